package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"festreg/internal/domain"
)

type paymentOrderService struct {
	registrationRepo      domain.RegistrationRepository
	eventRepo             domain.EventRepository
	paymentRepo           domain.PaymentRepository
	gateway               domain.PaymentGateway
	effects               *SideEffects
	currency              string
	convenienceFeePercent int64
}

// NewPaymentOrderService creates the PaymentOrderService. Order creation is
// idempotent per registration: a retry or double-click returns the existing
// open order instead of creating a duplicate on the gateway.
func NewPaymentOrderService(
	registrationRepo domain.RegistrationRepository,
	eventRepo domain.EventRepository,
	paymentRepo domain.PaymentRepository,
	gateway domain.PaymentGateway,
	effects *SideEffects,
	currency string,
	convenienceFeePercent int,
) domain.PaymentOrderService {
	if currency == "" {
		currency = "INR"
	}
	return &paymentOrderService{
		registrationRepo:      registrationRepo,
		eventRepo:             eventRepo,
		paymentRepo:           paymentRepo,
		gateway:               gateway,
		effects:               effects,
		currency:              currency,
		convenienceFeePercent: int64(convenienceFeePercent),
	}
}

func (s *paymentOrderService) CreateOrder(ctx context.Context, registrationID, callerID string) (*domain.OrderResult, error) {
	reg, err := s.registrationRepo.GetByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.ParticipantID != callerID {
		return nil, domain.ErrForbidden
	}
	if reg.Status != domain.RegistrationPaymentPending {
		return nil, fmt.Errorf("%w: registration is not awaiting payment", domain.ErrConflict)
	}

	if existing, err := s.paymentRepo.GetOpenByRegistration(ctx, registrationID); err == nil {
		return &domain.OrderResult{
			PaymentID:      existing.ID,
			GatewayOrderID: existing.GatewayOrderID,
			Amount:         existing.TotalAmount,
			Currency:       s.currency,
			Reused:         true,
		}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get open payment: %w", err)
	}

	event, err := s.eventRepo.GetByID(ctx, reg.EventID)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}

	now := time.Now()
	amount := event.EffectiveFee(now)
	if amount <= 0 {
		return nil, fmt.Errorf("%w: event has no fee to collect", domain.ErrInvalidInput)
	}
	fee := amount * s.convenienceFeePercent / 100

	p := domain.NewPayment(registrationID, callerID, amount, fee, domain.PaymentMethodOnline, now)
	if err := s.paymentRepo.Create(ctx, p); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// A concurrent request created the open payment first; return
			// its order when it is already referenced.
			if existing, gerr := s.paymentRepo.GetOpenByRegistration(ctx, registrationID); gerr == nil {
				return &domain.OrderResult{
					PaymentID:      existing.ID,
					GatewayOrderID: existing.GatewayOrderID,
					Amount:         existing.TotalAmount,
					Currency:       s.currency,
					Reused:         true,
				}, nil
			}
			// A pending row without an order reference means an earlier
			// attempt died between creating the row and recording the
			// order. Adopt it and attach a fresh order so the
			// registration does not stay stuck behind the unique index.
			if orphan, gerr := s.paymentRepo.GetPendingByRegistration(ctx, registrationID); gerr == nil && orphan.GatewayOrderID == "" {
				return s.attachOrder(ctx, orphan, registrationID, callerID)
			}
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}

	return s.attachOrder(ctx, p, registrationID, callerID)
}

// attachOrder creates the gateway order for a pending payment row and records
// its reference. On gateway failure the row is marked failed rather than
// deleted, so the attempt stays auditable and the next call starts clean.
func (s *paymentOrderService) attachOrder(ctx context.Context, p *domain.Payment, registrationID, callerID string) (*domain.OrderResult, error) {
	receipt := uuid.NewString()
	order, err := s.gateway.CreateOrder(ctx, p.TotalAmount, s.currency, receipt, map[string]string{
		"registration_id": registrationID,
		"payment_id":      p.ID,
	})
	if err != nil {
		if mfErr := s.paymentRepo.MarkFailed(ctx, p.ID); mfErr != nil {
			return nil, fmt.Errorf("create gateway order: %w (mark payment failed: %v)", err, mfErr)
		}
		s.effects.Audit(callerID, domain.ActionPaymentFail, "payment", p.ID, nil,
			map[string]any{"reason": "gateway order creation failed"})
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	if err := s.paymentRepo.SetGatewayOrder(ctx, p.ID, order.ID); err != nil {
		// The gateway order exists but we cannot look it up later; surface
		// the error rather than hand out an orphaned order id.
		return nil, fmt.Errorf("record gateway order: %w", err)
	}

	s.effects.Audit(callerID, domain.ActionPaymentOrderCreate, "payment", p.ID, nil,
		map[string]any{"gateway_order_id": order.ID, "amount": p.TotalAmount})
	return &domain.OrderResult{
		PaymentID:      p.ID,
		GatewayOrderID: order.ID,
		Amount:         p.TotalAmount,
		Currency:       s.currency,
	}, nil
}
