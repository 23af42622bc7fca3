package domain

import (
	"context"
	"time"
)

// Event represents a capacity-bounded festival event participants register for.
// swagger:model Event
type Event struct {
	ID                      string     `json:"id"`
	Name                    string     `json:"name"`
	Sport                   string     `json:"sport"`
	Capacity                *int       `json:"capacity"` // nil means unlimited
	CurrentParticipantCount int        `json:"current_participant_count"`
	WaitlistEnabled         bool       `json:"waitlist_enabled"`
	RegistrationStart       time.Time  `json:"registration_start"`
	RegistrationDeadline    time.Time  `json:"registration_deadline"`
	MinTeamSize             int        `json:"min_team_size"`
	MaxTeamSize             int        `json:"max_team_size"`
	BaseFee                 int64      `json:"base_fee"` // minor currency units
	EarlyBirdFee            *int64     `json:"early_bird_fee,omitempty"`
	EarlyBirdDeadline       *time.Time `json:"early_bird_deadline,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// IsTeamEvent reports whether registrations for this event carry a roster.
func (e *Event) IsTeamEvent() bool {
	return e.MaxTeamSize > 1
}

// IsFull reports whether the event has no free slot. Unlimited-capacity
// events are never full. This is advisory only: the authoritative check is
// the conditional slot claim performed inside the registration transaction.
func (e *Event) IsFull() bool {
	return e.Capacity != nil && e.CurrentParticipantCount >= *e.Capacity
}

// RegistrationOpen reports whether now falls inside the registration window.
func (e *Event) RegistrationOpen(now time.Time) bool {
	return !now.Before(e.RegistrationStart) && !now.After(e.RegistrationDeadline)
}

// EffectiveFee returns the fee in effect at the given time, applying the
// early-bird fee when configured and still valid.
func (e *Event) EffectiveFee(now time.Time) int64 {
	if e.EarlyBirdFee != nil && e.EarlyBirdDeadline != nil && !now.After(*e.EarlyBirdDeadline) {
		return *e.EarlyBirdFee
	}
	return e.BaseFee
}

// EventRepository defines the interface for event storage.
type EventRepository interface {
	GetByID(ctx context.Context, id string) (*Event, error)
	List(ctx context.Context) ([]*Event, error)
}
