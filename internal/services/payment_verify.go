package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"festreg/internal/domain"
)

type paymentVerifyService struct {
	registrationRepo domain.RegistrationRepository
	paymentRepo      domain.PaymentRepository
	gateway          domain.PaymentGateway
	effects          *SideEffects
}

// NewPaymentVerifyService creates the PaymentVerificationService. The client
// checkout callback and the gateway webhook both land on the same conditional
// capture, so duplicated or racing signals apply exactly once.
func NewPaymentVerifyService(
	registrationRepo domain.RegistrationRepository,
	paymentRepo domain.PaymentRepository,
	gateway domain.PaymentGateway,
	effects *SideEffects,
) domain.PaymentVerificationService {
	return &paymentVerifyService{
		registrationRepo: registrationRepo,
		paymentRepo:      paymentRepo,
		gateway:          gateway,
		effects:          effects,
	}
}

func (s *paymentVerifyService) VerifyCheckout(ctx context.Context, orderID, gatewayPaymentID, signature string) (*domain.VerificationResult, error) {
	// Look up by order id before judging the signature so a failure can be
	// recorded against the right row.
	p, err := s.paymentRepo.GetByGatewayOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.PaymentSuccess {
		return &domain.VerificationResult{Payment: p, AlreadyVerified: true}, nil
	}

	if !s.gateway.VerifyCheckoutSignature(orderID, gatewayPaymentID, signature) {
		if p.Status == domain.PaymentPending {
			if err := s.paymentRepo.MarkFailed(ctx, p.ID); err != nil {
				return nil, fmt.Errorf("mark payment failed: %w", err)
			}
			s.effects.Audit(p.PayerID, domain.ActionPaymentFail, "payment", p.ID,
				map[string]any{"status": domain.PaymentPending},
				map[string]any{"status": domain.PaymentFailed, "reason": "signature mismatch"})
		}
		return nil, fmt.Errorf("%w: payment signature mismatch", domain.ErrInvalidSignature)
	}

	return s.applyCapture(ctx, p, gatewayPaymentID, signature)
}

// applyCapture performs the exactly-once success transition and confirms the
// registration. Shared by the checkout callback and the webhook.
func (s *paymentVerifyService) applyCapture(ctx context.Context, p *domain.Payment, gatewayPaymentID, signature string) (*domain.VerificationResult, error) {
	applied, err := s.paymentRepo.Capture(ctx, p.ID, gatewayPaymentID, signature)
	if err != nil {
		return nil, fmt.Errorf("capture payment: %w", err)
	}
	if !applied {
		// Zero rows matched: re-read and decide. A concurrent signal winning
		// the race is success; anything else is an invariant violation.
		cur, err := s.paymentRepo.GetByID(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("re-read payment: %w", err)
		}
		if cur.Status == domain.PaymentSuccess {
			return &domain.VerificationResult{Payment: cur, AlreadyVerified: true}, nil
		}
		return nil, fmt.Errorf("%w: payment %s is %s after capture attempt", domain.ErrInconsistentState, p.ID, cur.Status)
	}

	p.Status = domain.PaymentSuccess
	p.GatewayPaymentID = gatewayPaymentID

	if err := s.confirmRegistration(ctx, p.RegistrationID); err != nil {
		return nil, err
	}

	reg, err := s.registrationRepo.GetByID(ctx, p.RegistrationID)
	if err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}
	s.effects.Audit(p.PayerID, domain.ActionPaymentCapture, "payment", p.ID,
		map[string]any{"status": domain.PaymentPending},
		map[string]any{"status": domain.PaymentSuccess, "gateway_payment_id": gatewayPaymentID})
	s.effects.PaymentCaptured(p, reg)
	return &domain.VerificationResult{Payment: p}, nil
}

func (s *paymentVerifyService) confirmRegistration(ctx context.Context, registrationID string) error {
	ok, err := s.registrationRepo.Confirm(ctx, registrationID)
	if err != nil {
		return fmt.Errorf("confirm registration: %w", err)
	}
	if !ok {
		reg, err := s.registrationRepo.GetByID(ctx, registrationID)
		if err != nil {
			return fmt.Errorf("re-read registration: %w", err)
		}
		if reg.Status != domain.RegistrationConfirmed {
			return fmt.Errorf("%w: registration %s is %s after payment capture", domain.ErrInconsistentState, registrationID, reg.Status)
		}
	}
	return nil
}

func (s *paymentVerifyService) VerifyOffline(ctx context.Context, registrationID string, amount int64, note, actorID string) (*domain.Payment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput)
	}
	reg, err := s.registrationRepo.GetByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.Status != domain.RegistrationPaymentPending && reg.Status != domain.RegistrationPending {
		return nil, fmt.Errorf("%w: registration is not awaiting payment", domain.ErrConflict)
	}

	// Reuse the open payment row when one exists, otherwise record a fresh
	// successful offline payment.
	var p *domain.Payment
	capturedID, err := s.paymentRepo.CaptureOffline(ctx, registrationID, actorID, note, amount)
	if err != nil {
		return nil, fmt.Errorf("capture offline payment: %w", err)
	}
	if capturedID != "" {
		p, err = s.paymentRepo.GetByID(ctx, capturedID)
		if err != nil {
			return nil, fmt.Errorf("re-read payment: %w", err)
		}
	} else {
		p = domain.NewPayment(registrationID, reg.ParticipantID, amount, 0, domain.PaymentMethodOffline, time.Now())
		p.Status = domain.PaymentSuccess
		p.VerifiedBy = actorID
		p.VerificationNote = note
		if err := s.paymentRepo.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("create offline payment: %w", err)
		}
	}

	if err := s.confirmRegistration(ctx, registrationID); err != nil {
		return nil, err
	}

	s.effects.Audit(actorID, domain.ActionPaymentOffline, "payment", p.ID, nil,
		map[string]any{"amount": amount, "note": note})
	s.effects.PaymentCaptured(p, reg)
	return p, nil
}

// webhookEvent is the gateway's webhook envelope.
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Amount  int64  `json:"amount"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
				Amount    int64  `json:"amount"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

// Webhook event types handled by HandleWebhook.
const (
	webhookPaymentCaptured = "payment.captured"
	webhookPaymentFailed   = "payment.failed"
	webhookRefundProcessed = "refund.processed"
)

func (s *paymentVerifyService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		return fmt.Errorf("%w: webhook signature mismatch", domain.ErrInvalidSignature)
	}

	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: malformed webhook payload: %v", domain.ErrInvalidInput, err)
	}

	switch evt.Event {
	case webhookPaymentCaptured:
		ent := evt.Payload.Payment.Entity
		p, err := s.paymentRepo.GetByGatewayOrderID(ctx, ent.OrderID)
		if err != nil {
			return fmt.Errorf("lookup order %s: %w", ent.OrderID, err)
		}
		if p.Status == domain.PaymentSuccess {
			return nil
		}
		_, err = s.applyCapture(ctx, p, ent.ID, "")
		return err

	case webhookPaymentFailed:
		ent := evt.Payload.Payment.Entity
		p, err := s.paymentRepo.GetByGatewayOrderID(ctx, ent.OrderID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("lookup order %s: %w", ent.OrderID, err)
		}
		// Conditional on the open statuses: a payment already captured is
		// never downgraded by a late failure event.
		if err := s.paymentRepo.MarkFailed(ctx, p.ID); err != nil {
			return fmt.Errorf("mark payment failed: %w", err)
		}
		s.effects.Audit("gateway", domain.ActionPaymentFail, "payment", p.ID, nil,
			map[string]any{"reason": "gateway reported failure", "gateway_payment_id": ent.ID})
		return nil

	case webhookRefundProcessed:
		return s.applyWebhookRefund(ctx, evt)

	default:
		// Unknown event types are acknowledged and ignored.
		return nil
	}
}

func (s *paymentVerifyService) applyWebhookRefund(ctx context.Context, evt webhookEvent) error {
	ent := evt.Payload.Refund.Entity
	// A non-positive amount would corrupt the cumulative refund ledger; the
	// guard in ApplyRefund only bounds the upper end.
	if ent.Amount <= 0 {
		return fmt.Errorf("%w: refund amount must be positive", domain.ErrInvalidInput)
	}
	p, err := s.paymentRepo.GetByGatewayPaymentID(ctx, ent.PaymentID)
	if err != nil {
		return fmt.Errorf("lookup payment %s: %w", ent.PaymentID, err)
	}
	// Dedup by the stored refund id: redelivery of an applied refund is a
	// no-op.
	if p.RefundID == ent.ID && ent.ID != "" {
		return nil
	}

	applied, err := s.paymentRepo.ApplyRefund(ctx, p.ID, ent.Amount, ent.ID, "gateway webhook", "gateway")
	if err != nil {
		return fmt.Errorf("apply refund: %w", err)
	}
	if !applied {
		cur, err := s.paymentRepo.GetByID(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("re-read payment: %w", err)
		}
		if cur.RefundID == ent.ID {
			return nil
		}
		return fmt.Errorf("%w: refund %s rejected for payment %s (status %s, refunded %d of %d)",
			domain.ErrInconsistentState, ent.ID, p.ID, cur.Status, cur.RefundAmount, cur.TotalAmount)
	}

	s.effects.Audit("gateway", domain.ActionRefund, "payment", p.ID,
		map[string]any{"refund_amount": p.RefundAmount},
		map[string]any{"refund_amount": p.RefundAmount + ent.Amount, "refund_id": ent.ID})
	s.effects.RefundProcessed(p, s.eventIDForPayment(ctx, p), ent.Amount, "gateway webhook")
	return nil
}

func (s *paymentVerifyService) eventIDForPayment(ctx context.Context, p *domain.Payment) string {
	reg, err := s.registrationRepo.GetByID(ctx, p.RegistrationID)
	if err != nil {
		return ""
	}
	return reg.EventID
}
