package domain

import (
	"context"
	"time"
)

// PaymentMethod distinguishes how a payment is collected.
type PaymentMethod string

// Payment methods.
const (
	PaymentMethodOnline  PaymentMethod = "online"
	PaymentMethodOffline PaymentMethod = "offline"
	PaymentMethodFree    PaymentMethod = "free"
)

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

// Payment statuses. At most one payment per registration may be pending or
// processing at a time (partial unique index on the payments table).
const (
	PaymentPending           PaymentStatus = "pending"
	PaymentProcessing        PaymentStatus = "processing"
	PaymentSuccess           PaymentStatus = "success"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Payment represents an expected or captured charge for a registration. A
// payment row may outlive a cancelled registration for audit and refunds.
// swagger:model Payment
type Payment struct {
	ID               string        `json:"id"`
	RegistrationID   string        `json:"registration_id"`
	PayerID          string        `json:"payer_id"`
	Amount           int64         `json:"amount"`          // minor currency units
	ConvenienceFee   int64         `json:"convenience_fee"` // minor currency units
	TotalAmount      int64         `json:"total_amount"`    // amount + convenience fee
	Method           PaymentMethod `json:"method"`
	Status           PaymentStatus `json:"status"`
	GatewayOrderID   string        `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string        `json:"gateway_payment_id,omitempty"`
	GatewaySignature string        `json:"-"`
	RefundAmount     int64         `json:"refund_amount"`
	RefundID         string        `json:"refund_id,omitempty"` // last applied gateway refund id, webhook dedup key
	RefundReason     string        `json:"refund_reason,omitempty"`
	RefundedBy       string        `json:"refunded_by,omitempty"`
	VerifiedBy       string        `json:"verified_by,omitempty"` // offline verification actor
	VerificationNote string        `json:"verification_note,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NewPayment returns a new pending Payment. ID is set by the repository.
func NewPayment(registrationID, payerID string, amount, convenienceFee int64, method PaymentMethod, createdAt time.Time) *Payment {
	return &Payment{
		RegistrationID: registrationID,
		PayerID:        payerID,
		Amount:         amount,
		ConvenienceFee: convenienceFee,
		TotalAmount:    amount + convenienceFee,
		Method:         method,
		Status:         PaymentPending,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

// RefundableAmount returns how much of the captured total can still be
// refunded.
func (p *Payment) RefundableAmount() int64 {
	return p.TotalAmount - p.RefundAmount
}

// Refundable reports whether the payment is in a state refunds apply to.
func (p *Payment) Refundable() bool {
	return p.Status == PaymentSuccess || p.Status == PaymentPartiallyRefunded
}

// PaymentRepository defines storage operations for payments. Every mutation
// of a pending row is a conditional update so concurrent signals cannot both
// apply; callers inspect the applied flag and re-read on a lost race.
type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	GetByGatewayOrderID(ctx context.Context, orderID string) (*Payment, error)
	GetByGatewayPaymentID(ctx context.Context, paymentID string) (*Payment, error)
	// GetOpenByRegistration returns the pending payment holding a gateway
	// order reference for the registration, if any.
	GetOpenByRegistration(ctx context.Context, registrationID string) (*Payment, error)

	// GetPendingByRegistration returns the pending payment for the
	// registration whether or not a gateway order reference was recorded
	// yet. Used to recover rows orphaned between Create and
	// SetGatewayOrder.
	GetPendingByRegistration(ctx context.Context, registrationID string) (*Payment, error)
	HasSuccessfulByRegistration(ctx context.Context, registrationID string) (bool, error)

	// SetGatewayOrder records the gateway order reference on a still-pending
	// payment.
	SetGatewayOrder(ctx context.Context, id, orderID string) error

	// Capture sets status success and records the gateway payment id and
	// signature, only while the payment is pending. Returns false when zero
	// rows matched.
	Capture(ctx context.Context, id, gatewayPaymentID, signature string) (bool, error)

	// CaptureOffline marks the pending payment for the registration as a
	// successful offline payment and returns its id, or "" when no pending
	// row existed.
	CaptureOffline(ctx context.Context, registrationID, verifiedBy, note string, amount int64) (paymentID string, err error)

	// MarkFailed moves a pending or processing payment to failed; a payment
	// already captured is never downgraded. Zero rows matched is not an
	// error.
	MarkFailed(ctx context.Context, id string) error

	// ApplyRefund accumulates amount onto refund_amount and derives the new
	// status, guarded by "refund_amount + amount <= total_amount" and the
	// refundable statuses. Returns false when the guard rejected the update.
	ApplyRefund(ctx context.Context, id string, amount int64, refundID, reason, actor string) (bool, error)
}

// GatewayOrder is the gateway-side object representing an expected charge.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// GatewayPayment is the gateway's view of a captured or failed charge.
type GatewayPayment struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
	Status  string `json:"status"`
}

// PaymentGateway is the outbound port to the payment provider. All calls are
// bounded by the client timeout; a timeout is reported as an error, never as
// success.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*GatewayOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
	CreateRefund(ctx context.Context, paymentID string, amount int64) (refundID string, err error)
	// VerifyCheckoutSignature checks the client-supplied proof
	// HMAC-SHA256(order_id|payment_id) in constant time.
	VerifyCheckoutSignature(orderID, paymentID, signature string) bool
	// VerifyWebhookSignature checks the webhook body signature in constant
	// time.
	VerifyWebhookSignature(body []byte, signature string) bool
}

// OrderResult is returned to the client to launch the gateway checkout.
type OrderResult struct {
	PaymentID      string `json:"payment_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Reused         bool   `json:"reused"`
}

// PaymentOrderService creates gateway orders for registrations awaiting
// payment. Idempotent per registration: re-invocation returns the open order.
type PaymentOrderService interface {
	CreateOrder(ctx context.Context, registrationID, callerID string) (*OrderResult, error)
}

// VerificationResult reports the outcome of applying a payment proof.
type VerificationResult struct {
	Payment         *Payment `json:"payment"`
	AlreadyVerified bool     `json:"already_verified"`
}

// PaymentVerificationService reconciles success signals from the client
// callback and the gateway webhook into exactly one capture.
type PaymentVerificationService interface {
	VerifyCheckout(ctx context.Context, orderID, gatewayPaymentID, signature string) (*VerificationResult, error)
	VerifyOffline(ctx context.Context, registrationID string, amount int64, note, actorID string) (*Payment, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

// RefundService applies partial and full refunds against captured payments.
type RefundService interface {
	ProcessRefund(ctx context.Context, paymentID string, amount int64, reason, actorID string) (*Payment, error)
}
