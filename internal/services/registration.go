package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"festreg/internal/domain"
)

type registrationService struct {
	eligibility      domain.EligibilityService
	eventRepo        domain.EventRepository
	registrationRepo domain.RegistrationRepository
	paymentRepo      domain.PaymentRepository
	effects          *SideEffects
}

// NewRegistrationService creates the RegistrationService owning the
// registration state machine.
func NewRegistrationService(
	eligibility domain.EligibilityService,
	eventRepo domain.EventRepository,
	registrationRepo domain.RegistrationRepository,
	paymentRepo domain.PaymentRepository,
	effects *SideEffects,
) domain.RegistrationService {
	return &registrationService{
		eligibility:      eligibility,
		eventRepo:        eventRepo,
		registrationRepo: registrationRepo,
		paymentRepo:      paymentRepo,
		effects:          effects,
	}
}

func (s *registrationService) Create(ctx context.Context, eventID, participantID string, team *domain.TeamInfo) (*domain.Registration, error) {
	elig, err := s.eligibility.Check(ctx, eventID, participantID)
	if err != nil {
		return nil, fmt.Errorf("check eligibility: %w", err)
	}
	if !elig.CanRegister {
		return nil, fmt.Errorf("%w: %s", domain.ErrEligibility, elig.Reason)
	}

	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}

	var members []*domain.TeamMember
	teamName := ""
	if event.IsTeamEvent() {
		if err := validateTeam(event, team); err != nil {
			return nil, err
		}
		teamName = strings.TrimSpace(team.TeamName)
		members = team.Members
	} else if team != nil && len(team.Members) > 0 {
		return nil, fmt.Errorf("%w: %s is not a team event", domain.ErrInvalidInput, event.Name)
	}

	now := time.Now()
	reg := domain.NewRegistration(eventID, participantID, event.IsTeamEvent(), teamName, now)
	wantSlot := !elig.WaitlistAvailable
	if wantSlot {
		reg.Status = domain.RegistrationPaymentPending
		if event.EffectiveFee(now) == 0 {
			reg.Status = domain.RegistrationConfirmed
		}
	} else {
		reg.Status = domain.RegistrationWaitlist
	}

	// The repository settles the final status under the event lock: a slot
	// claim that loses the race falls back to the waitlist when allowed.
	if err := s.registrationRepo.Create(ctx, reg, members, wantSlot); err != nil {
		return nil, fmt.Errorf("create registration: %w", err)
	}

	if reg.Status == domain.RegistrationConfirmed {
		// Free event: record a zero-amount payment so the ledger stays
		// complete.
		p := domain.NewPayment(reg.ID, participantID, 0, 0, domain.PaymentMethodFree, now)
		p.Status = domain.PaymentSuccess
		if err := s.paymentRepo.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("record free payment: %w", err)
		}
	}

	s.effects.Audit(participantID, domain.ActionRegistrationCreate, "registration", reg.ID, nil, reg)
	s.effects.RegistrationCreated(reg, event)
	return reg, nil
}

func (s *registrationService) Get(ctx context.Context, id, callerID string, callerIsAdmin bool) (*domain.RegistrationWithPosition, error) {
	reg, err := s.registrationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.ParticipantID != callerID && !callerIsAdmin {
		return nil, domain.ErrForbidden
	}
	var members []*domain.TeamMember
	if reg.IsTeam {
		members, err = s.registrationRepo.ListTeamMembers(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list team members: %w", err)
		}
	}
	return &domain.RegistrationWithPosition{Registration: reg, Members: members}, nil
}

func (s *registrationService) ListMine(ctx context.Context, participantID string) ([]*domain.Registration, error) {
	return s.registrationRepo.ListByParticipant(ctx, participantID)
}

func (s *registrationService) ListByEvent(ctx context.Context, eventID string) ([]*domain.Registration, error) {
	if _, err := s.eventRepo.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.registrationRepo.ListByEvent(ctx, eventID)
}

func (s *registrationService) Cancel(ctx context.Context, id, actorID string, actorIsAdmin bool, reason string) (*domain.Registration, error) {
	reg, err := s.registrationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Owners withdraw; admins cancel on someone's behalf.
	var status domain.RegistrationStatus
	switch {
	case reg.ParticipantID == actorID:
		status = domain.RegistrationWithdrawn
	case actorIsAdmin:
		status = domain.RegistrationCancelled
	default:
		return nil, domain.ErrForbidden
	}

	promoted, err := s.registrationRepo.Terminate(ctx, id, status, actorID, reason)
	if err != nil {
		return nil, err
	}

	event, eventErr := s.eventRepo.GetByID(ctx, reg.EventID)
	eventName := reg.EventID
	if eventErr == nil {
		eventName = event.Name
	}

	oldStatus := reg.Status
	reg.Status = status
	reg.CancelledBy = actorID
	reg.WithdrawalReason = reason
	reg.WaitlistPosition = nil

	s.effects.Audit(actorID, domain.ActionRegistrationCancel, "registration", reg.ID,
		map[string]any{"status": oldStatus}, map[string]any{"status": status, "reason": reason})
	s.effects.RegistrationTerminated(reg, eventName)
	if promoted != nil {
		// On a free event there is nothing to collect, so the promoted
		// registration confirms immediately instead of waiting on a
		// payment that can never be ordered.
		if eventErr == nil && event.EffectiveFee(time.Now()) == 0 {
			ok, cerr := s.registrationRepo.Confirm(ctx, promoted.ID)
			if cerr != nil {
				return nil, fmt.Errorf("confirm promoted registration: %w", cerr)
			}
			if ok {
				promoted.Status = domain.RegistrationConfirmed
				p := domain.NewPayment(promoted.ID, promoted.ParticipantID, 0, 0, domain.PaymentMethodFree, time.Now())
				p.Status = domain.PaymentSuccess
				if err := s.paymentRepo.Create(ctx, p); err != nil {
					return nil, fmt.Errorf("record free payment: %w", err)
				}
			}
		}
		s.effects.Audit(actorID, domain.ActionRegistrationPromote, "registration", promoted.ID,
			map[string]any{"status": domain.RegistrationWaitlist}, map[string]any{"status": promoted.Status})
		s.effects.RegistrationPromoted(promoted)
	}
	return reg, nil
}

func (s *registrationService) UpdateTeam(ctx context.Context, id, actorID string, team *domain.TeamInfo) (*domain.Registration, error) {
	reg, err := s.registrationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.ParticipantID != actorID {
		return nil, domain.ErrForbidden
	}
	if reg.Status != domain.RegistrationPending && reg.Status != domain.RegistrationPaymentPending {
		return nil, fmt.Errorf("%w: roster can no longer be changed", domain.ErrConflict)
	}
	paid, err := s.paymentRepo.HasSuccessfulByRegistration(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("check payments: %w", err)
	}
	if paid {
		return nil, fmt.Errorf("%w: roster is locked after payment", domain.ErrConflict)
	}

	event, err := s.eventRepo.GetByID(ctx, reg.EventID)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if !event.IsTeamEvent() {
		return nil, fmt.Errorf("%w: %s is not a team event", domain.ErrInvalidInput, event.Name)
	}
	if err := validateTeam(event, team); err != nil {
		return nil, err
	}

	if err := s.registrationRepo.ReplaceTeam(ctx, id, strings.TrimSpace(team.TeamName), team.Members); err != nil {
		return nil, fmt.Errorf("replace team: %w", err)
	}
	reg.TeamName = strings.TrimSpace(team.TeamName)

	s.effects.Audit(actorID, domain.ActionTeamUpdate, "registration", reg.ID, nil,
		map[string]any{"team_name": reg.TeamName, "members": len(team.Members)})
	return reg, nil
}

// validateTeam checks the roster against the event's size bounds, requires a
// captain, and normalizes member positions.
func validateTeam(event *domain.Event, team *domain.TeamInfo) error {
	if team == nil || len(team.Members) == 0 {
		return fmt.Errorf("%w: team roster is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(team.TeamName) == "" {
		return fmt.Errorf("%w: team name is required", domain.ErrInvalidInput)
	}
	n := len(team.Members)
	if n < event.MinTeamSize || n > event.MaxTeamSize {
		return fmt.Errorf("%w: team size must be between %d and %d", domain.ErrInvalidInput, event.MinTeamSize, event.MaxTeamSize)
	}
	captains := 0
	for i, m := range team.Members {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("%w: member %d has no name", domain.ErrInvalidInput, i+1)
		}
		if m.IsCaptain {
			captains++
		}
		m.Position = i + 1
	}
	if captains == 0 {
		return fmt.Errorf("%w: team must have a captain", domain.ErrInvalidInput)
	}
	return nil
}
