package domain

import "context"

// Eligibility reason codes returned to callers.
const (
	ReasonOK                = "ok"
	ReasonWaitlistAvailable = "event full, waitlist available"
	ReasonNotOpenYet        = "registration has not opened yet"
	ReasonDeadlinePassed    = "registration deadline has passed"
	ReasonEventFull         = "event is full"
	ReasonAlreadyRegistered = "already registered for this event"
)

// EligibilityResult is the outcome of an eligibility check. When the event is
// full but waitlisting is enabled, CanRegister is true and WaitlistAvailable
// tells the caller they will be waitlisted rather than admitted.
// swagger:model EligibilityResult
type EligibilityResult struct {
	CanRegister       bool   `json:"can_register"`
	Reason            string `json:"reason"`
	WaitlistAvailable bool   `json:"waitlist_available"`
}

// EligibilityService decides admit / waitlist / reject for a participant and
// event. Read-only: no side effects.
type EligibilityService interface {
	Check(ctx context.Context, eventID, participantID string) (*EligibilityResult, error)
}
