package domain

import (
	"context"
	"time"
)

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

// Registration lifecycle states. Cancelled and withdrawn are terminal; a
// registration never leaves a terminal state.
const (
	RegistrationPending        RegistrationStatus = "pending"
	RegistrationPaymentPending RegistrationStatus = "payment_pending"
	RegistrationConfirmed      RegistrationStatus = "confirmed"
	RegistrationWaitlist       RegistrationStatus = "waitlist"
	RegistrationCancelled      RegistrationStatus = "cancelled"
	RegistrationWithdrawn      RegistrationStatus = "withdrawn"
)

// Registration represents one participant's (or team's) claim on an event.
// swagger:model Registration
type Registration struct {
	ID               string             `json:"id"`
	EventID          string             `json:"event_id"`
	ParticipantID    string             `json:"participant_id"`
	Status           RegistrationStatus `json:"status"`
	IsTeam           bool               `json:"is_team"`
	TeamName         string             `json:"team_name,omitempty"`
	WaitlistPosition *int               `json:"waitlist_position,omitempty"`
	CancelledBy      string             `json:"cancelled_by,omitempty"`
	WithdrawalReason string             `json:"withdrawal_reason,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// NewRegistration returns a new Registration. ID is set by the repository on
// create; status and waitlist position are decided inside the create
// transaction.
func NewRegistration(eventID, participantID string, isTeam bool, teamName string, createdAt time.Time) *Registration {
	return &Registration{
		EventID:       eventID,
		ParticipantID: participantID,
		IsTeam:        isTeam,
		TeamName:      teamName,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

// IsTerminal reports whether the registration can no longer transition.
func (r *Registration) IsTerminal() bool {
	return r.Status == RegistrationCancelled || r.Status == RegistrationWithdrawn
}

// HoldsSlot reports whether the registration occupies one of the event's
// capacity slots.
func (r *Registration) HoldsSlot() bool {
	return r.Status == RegistrationPaymentPending || r.Status == RegistrationConfirmed
}

// TeamMember is one roster entry owned by a team registration.
// swagger:model TeamMember
type TeamMember struct {
	ID             string `json:"id"`
	RegistrationID string `json:"registration_id"`
	Position       int    `json:"position"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	IsCaptain      bool   `json:"is_captain"`
}

// TeamInfo is the roster supplied when creating or updating a registration.
type TeamInfo struct {
	TeamName string        `json:"team_name"`
	Members  []*TeamMember `json:"members"`
}

// RegistrationRepository defines storage operations for registrations. The
// create and terminate operations are transactional: they serialize on the
// event row so capacity claims, waitlist numbering and promotion cannot
// interleave across concurrent requests or service instances.
type RegistrationRepository interface {
	// Create inserts the registration and its team members as one atomic
	// unit. If wantSlot is true it first claims a capacity slot with a
	// conditional update; when the claim fails and the event allows
	// waitlisting it falls back to allocating the next waitlist position.
	// On any failure nothing persists. The returned registration carries the
	// final status and, if waitlisted, the assigned position.
	Create(ctx context.Context, reg *Registration, members []*TeamMember, wantSlot bool) error

	GetByID(ctx context.Context, id string) (*Registration, error)
	GetActiveByEventAndParticipant(ctx context.Context, eventID, participantID string) (*Registration, error)
	ListByParticipant(ctx context.Context, participantID string) ([]*Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]*Registration, error)

	// Terminate moves the registration to cancelled or withdrawn. When the
	// registration held a capacity slot the freed slot is handed to the
	// minimum remaining waitlist position in the same transaction; the
	// promoted registration (now payment_pending) is returned, or nil when
	// the waitlist was empty and the participant count was decremented
	// instead. Returns ErrConflict when the registration is already terminal.
	Terminate(ctx context.Context, id string, status RegistrationStatus, cancelledBy, reason string) (promoted *Registration, err error)

	// Confirm transitions payment_pending to confirmed. Returns false when
	// the registration was not payment_pending.
	Confirm(ctx context.Context, id string) (bool, error)

	// ReplaceTeam swaps the roster and team name atomically.
	ReplaceTeam(ctx context.Context, id string, teamName string, members []*TeamMember) error

	ListTeamMembers(ctx context.Context, registrationID string) ([]*TeamMember, error)
}

// RegistrationWithPosition bundles a registration with its waitlist position
// for API responses.
type RegistrationWithPosition struct {
	Registration *Registration `json:"registration"`
	Members      []*TeamMember `json:"members,omitempty"`
}

// RegistrationService owns the registration state machine.
type RegistrationService interface {
	Create(ctx context.Context, eventID, participantID string, team *TeamInfo) (*Registration, error)
	Get(ctx context.Context, id, callerID string, callerIsAdmin bool) (*RegistrationWithPosition, error)
	ListMine(ctx context.Context, participantID string) ([]*Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]*Registration, error)
	// Cancel terminates the registration: owners withdraw, admins cancel.
	Cancel(ctx context.Context, id, actorID string, actorIsAdmin bool, reason string) (*Registration, error)
	// UpdateTeam replaces the roster. Rejected once a successful payment
	// exists for the registration.
	UpdateTeam(ctx context.Context, id, actorID string, team *TeamInfo) (*Registration, error)
}
