package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"festreg/internal/domain"
)

type eligibilityService struct {
	eventRepo        domain.EventRepository
	registrationRepo domain.RegistrationRepository
}

// NewEligibilityService creates an EligibilityService with the given
// repositories.
func NewEligibilityService(
	eventRepo domain.EventRepository,
	registrationRepo domain.RegistrationRepository,
) domain.EligibilityService {
	return &eligibilityService{
		eventRepo:        eventRepo,
		registrationRepo: registrationRepo,
	}
}

// Check runs the admission checks in order; the first failing check wins.
// Window open, then capacity-or-waitlist, then no existing non-terminal
// registration. Read-only.
func (s *eligibilityService) Check(ctx context.Context, eventID, participantID string) (*domain.EligibilityResult, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	now := time.Now()
	if now.Before(event.RegistrationStart) {
		return &domain.EligibilityResult{Reason: domain.ReasonNotOpenYet}, nil
	}
	if now.After(event.RegistrationDeadline) {
		return &domain.EligibilityResult{Reason: domain.ReasonDeadlinePassed}, nil
	}

	full := event.IsFull()
	if full && !event.WaitlistEnabled {
		return &domain.EligibilityResult{Reason: domain.ReasonEventFull}, nil
	}

	if _, err := s.registrationRepo.GetActiveByEventAndParticipant(ctx, eventID, participantID); err == nil {
		return &domain.EligibilityResult{Reason: domain.ReasonAlreadyRegistered}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get registration: %w", err)
	}

	if full {
		return &domain.EligibilityResult{
			CanRegister:       true,
			Reason:            domain.ReasonWaitlistAvailable,
			WaitlistAvailable: true,
		}, nil
	}
	return &domain.EligibilityResult{CanRegister: true, Reason: domain.ReasonOK}, nil
}
