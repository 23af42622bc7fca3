package domain

import "context"

// Mailer defines the contract for sending emails (infrastructure port).
type Mailer interface {
	Send(to, subject, html, text string) error
}

// EmailTemplateRenderer renders email content from a named template with the given data.
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// RegistrationEmailData holds data for registration lifecycle emails
// (confirmed, waitlisted, promoted).
type RegistrationEmailData struct {
	Email            string
	Name             string
	EventName        string
	TeamName         string
	WaitlistPosition int
}

// PaymentEmailData holds data for the payment-received email.
type PaymentEmailData struct {
	Email     string
	Name      string
	EventName string
	Amount    int64
	Reference string
}

// RefundEmailData holds data for the refund-processed email.
type RefundEmailData struct {
	Email     string
	Name      string
	EventName string
	Amount    int64
	Reason    string
}

// EmailService defines the contract for sending domain-level emails.
type EmailService interface {
	SendRegistrationConfirmed(ctx context.Context, data *RegistrationEmailData) error
	SendWaitlisted(ctx context.Context, data *RegistrationEmailData) error
	SendWaitlistPromoted(ctx context.Context, data *RegistrationEmailData) error
	SendPaymentReceived(ctx context.Context, data *PaymentEmailData) error
	SendRefundProcessed(ctx context.Context, data *RefundEmailData) error
}
