package services

import (
	"context"
	"fmt"

	"festreg/internal/domain"
)

type refundService struct {
	registrationRepo domain.RegistrationRepository
	paymentRepo      domain.PaymentRepository
	gateway          domain.PaymentGateway
	effects          *SideEffects
}

// NewRefundService creates the RefundService. Refund accumulation is a
// conditional update against the committed refund_amount, so two concurrent
// refunds can never together exceed the captured total.
func NewRefundService(
	registrationRepo domain.RegistrationRepository,
	paymentRepo domain.PaymentRepository,
	gateway domain.PaymentGateway,
	effects *SideEffects,
) domain.RefundService {
	return &refundService{
		registrationRepo: registrationRepo,
		paymentRepo:      paymentRepo,
		gateway:          gateway,
		effects:          effects,
	}
}

func (s *refundService) ProcessRefund(ctx context.Context, paymentID string, amount int64, reason, actorID string) (*domain.Payment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", domain.ErrInvalidInput)
	}

	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.Refundable() {
		return nil, fmt.Errorf("%w: payment is not refundable (status %s)", domain.ErrConflict, p.Status)
	}
	if amount > p.RefundableAmount() {
		return nil, fmt.Errorf("%w: exceeds refundable amount: %d", domain.ErrInvalidInput, p.RefundableAmount())
	}

	// Online payments refund through the gateway first; no local bookkeeping
	// happens unless the external refund succeeded. Offline and free
	// payments are pure bookkeeping.
	refundID := ""
	if p.Method == domain.PaymentMethodOnline {
		refundID, err = s.gateway.CreateRefund(ctx, p.GatewayPaymentID, amount)
		if err != nil {
			return nil, fmt.Errorf("create gateway refund: %w", err)
		}
	}

	applied, err := s.paymentRepo.ApplyRefund(ctx, p.ID, amount, refundID, reason, actorID)
	if err != nil {
		return nil, fmt.Errorf("apply refund: %w", err)
	}
	if !applied {
		// A concurrent refund won the race and the remaining balance no
		// longer covers this amount.
		return nil, fmt.Errorf("%w: refundable amount changed, re-fetch the payment", domain.ErrConflict)
	}

	updated, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("re-read payment: %w", err)
	}

	s.effects.Audit(actorID, domain.ActionRefund, "payment", p.ID,
		map[string]any{"refund_amount": p.RefundAmount, "status": p.Status},
		map[string]any{"refund_amount": updated.RefundAmount, "status": updated.Status, "reason": reason})
	s.effects.RefundProcessed(updated, s.eventIDForPayment(ctx, updated), amount, reason)
	return updated, nil
}

func (s *refundService) eventIDForPayment(ctx context.Context, p *domain.Payment) string {
	reg, err := s.registrationRepo.GetByID(ctx, p.RegistrationID)
	if err != nil {
		return ""
	}
	return reg.EventID
}
