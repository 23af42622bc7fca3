package domain

import "errors"

// Sentinel errors shared across services. Controllers match these with
// errors.Is and map them to HTTP status codes.
var (
	// ErrNotFound means the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the caller is not allowed to act on the entity.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput means the request payload failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEligibility means a business rule rejected the registration attempt.
	// The wrapping error carries the human-readable reason.
	ErrEligibility = errors.New("not eligible")

	// ErrConflict means an idempotency or uniqueness rule was violated and the
	// caller should re-fetch current state rather than retry blindly.
	ErrConflict = errors.New("conflict")

	// ErrExternalService means an outbound gateway or provider call failed or
	// timed out. Safe to retry with backoff for order and refund creation.
	ErrExternalService = errors.New("external service failure")

	// ErrInvalidSignature means a payment proof or webhook signature did not
	// match. Terminal: retrying the same payload cannot succeed.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInconsistentState means an internal invariant was violated, e.g. a
	// conditional update matched zero rows and the re-read state is neither
	// the expected success nor failure. Fatal to the request.
	ErrInconsistentState = errors.New("inconsistent state")
)
