package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"festreg/internal/domain"
)

type paymentRepository struct {
	DB *sql.DB
}

// NewPaymentRepository returns a PaymentRepository backed by Postgres. A
// partial unique index on payments(registration_id) for the pending and
// processing statuses keeps at most one open payment per registration; every
// status transition out of pending is a conditional update so two concurrent
// signals can never both apply.
func NewPaymentRepository(db *sql.DB) domain.PaymentRepository {
	return &paymentRepository{
		DB: db,
	}
}

const paymentColumns = `id, registration_id, payer_id, amount, convenience_fee, total_amount,
		method, status, gateway_order_id, gateway_payment_id, gateway_signature,
		refund_amount, refund_id, refund_reason, refunded_by,
		verified_by, verification_note, created_at, updated_at`

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

func scanPayment(row interface{ Scan(...any) error }) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(
		&p.ID, &p.RegistrationID, &p.PayerID, &p.Amount, &p.ConvenienceFee,
		&p.TotalAmount, &p.Method, &p.Status, &p.GatewayOrderID,
		&p.GatewayPaymentID, &p.GatewaySignature, &p.RefundAmount, &p.RefundID,
		&p.RefundReason, &p.RefundedBy, &p.VerifiedBy, &p.VerificationNote,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (registration_id, payer_id, amount, convenience_fee, total_amount,
			method, status, gateway_order_id, gateway_payment_id, verified_by, verification_note,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, query,
		p.RegistrationID, p.PayerID, p.Amount, p.ConvenienceFee, p.TotalAmount,
		p.Method, p.Status, p.GatewayOrderID, p.GatewayPaymentID,
		p.VerifiedBy, p.VerificationNote, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: an open payment already exists for this registration", domain.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.getBy(ctx, "id", id)
}

func (r *paymentRepository) GetByGatewayOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.getBy(ctx, "gateway_order_id", orderID)
}

func (r *paymentRepository) GetByGatewayPaymentID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return r.getBy(ctx, "gateway_payment_id", paymentID)
}

func (r *paymentRepository) getBy(ctx context.Context, column, value string) (*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE ` + column + ` = $1
	`
	p, err := scanPayment(r.DB.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *paymentRepository) GetOpenByRegistration(ctx context.Context, registrationID string) (*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE registration_id = $1 AND status = 'pending' AND gateway_order_id <> ''
	`
	p, err := scanPayment(r.DB.QueryRowContext(ctx, query, registrationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *paymentRepository) GetPendingByRegistration(ctx context.Context, registrationID string) (*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE registration_id = $1 AND status = 'pending'
	`
	p, err := scanPayment(r.DB.QueryRowContext(ctx, query, registrationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *paymentRepository) HasSuccessfulByRegistration(ctx context.Context, registrationID string) (bool, error) {
	query := `
		SELECT COUNT(1)
		FROM payments
		WHERE registration_id = $1 AND status IN ('success', 'refunded', 'partially_refunded')
	`
	var n int
	if err := r.DB.QueryRowContext(ctx, query, registrationID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *paymentRepository) SetGatewayOrder(ctx context.Context, id, orderID string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE payments
		SET gateway_order_id = $2, updated_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, orderID, time.Now())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: payment %s is no longer pending", domain.ErrInconsistentState, id)
	}
	return nil
}

func (r *paymentRepository) Capture(ctx context.Context, id, gatewayPaymentID, signature string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE payments
		SET status = 'success', gateway_payment_id = $2, gateway_signature = $3, updated_at = $4
		WHERE id = $1 AND status = 'pending'
	`, id, gatewayPaymentID, signature, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *paymentRepository) CaptureOffline(ctx context.Context, registrationID, verifiedBy, note string, amount int64) (string, error) {
	var id string
	err := r.DB.QueryRowContext(ctx, `
		UPDATE payments
		SET status = 'success', method = 'offline', amount = $4, total_amount = $4,
			convenience_fee = 0, verified_by = $2, verification_note = $3, updated_at = $5
		WHERE registration_id = $1 AND status = 'pending'
		RETURNING id
	`, registrationID, verifiedBy, note, amount, time.Now()).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

func (r *paymentRepository) MarkFailed(ctx context.Context, id string) error {
	// Guarded on the open statuses: a captured payment is never downgraded.
	_, err := r.DB.ExecContext(ctx, `
		UPDATE payments
		SET status = 'failed', updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, id, time.Now())
	return err
}

func (r *paymentRepository) ApplyRefund(ctx context.Context, id string, amount int64, refundID, reason, actor string) (bool, error) {
	// The WHERE clause is the refund-bound invariant: two concurrent refunds
	// cannot both pass the guard, because each applies against the committed
	// refund_amount.
	res, err := r.DB.ExecContext(ctx, `
		UPDATE payments
		SET refund_amount = refund_amount + $2,
			status = CASE WHEN refund_amount + $2 >= total_amount THEN 'refunded' ELSE 'partially_refunded' END,
			refund_id = $3, refund_reason = $4, refunded_by = $5, updated_at = $6
		WHERE id = $1
			AND status IN ('success', 'partially_refunded')
			AND refund_amount + $2 <= total_amount
	`, id, amount, refundID, reason, actor, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
