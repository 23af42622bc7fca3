package services

import (
	"context"
	"fmt"
	"log"

	"festreg/internal/domain"
)

type emailService struct {
	mailer   domain.Mailer
	renderer domain.EmailTemplateRenderer
}

// NewEmailService returns an EmailService that uses the given Mailer and template renderer.
func NewEmailService(mailer domain.Mailer, renderer domain.EmailTemplateRenderer) domain.EmailService {
	return &emailService{mailer: mailer, renderer: renderer}
}

func (s *emailService) SendRegistrationConfirmed(ctx context.Context, data *domain.RegistrationEmailData) error {
	return s.send("registration_confirmed", data, data.Email)
}

func (s *emailService) SendWaitlisted(ctx context.Context, data *domain.RegistrationEmailData) error {
	return s.send("waitlisted", data, data.Email)
}

func (s *emailService) SendWaitlistPromoted(ctx context.Context, data *domain.RegistrationEmailData) error {
	return s.send("waitlist_promoted", data, data.Email)
}

func (s *emailService) SendPaymentReceived(ctx context.Context, data *domain.PaymentEmailData) error {
	return s.send("payment_received", data, data.Email)
}

func (s *emailService) SendRefundProcessed(ctx context.Context, data *domain.RefundEmailData) error {
	return s.send("refund_processed", data, data.Email)
}

func (s *emailService) send(templateName string, data any, to string) error {
	if to == "" {
		return fmt.Errorf("%s email: recipient address is empty", templateName)
	}
	subject, htmlBody, textBody, err := s.renderer.Render(templateName, data)
	if err != nil {
		return fmt.Errorf("failed to render %s template: %w", templateName, err)
	}
	if err := s.mailer.Send(to, subject, htmlBody, textBody); err != nil {
		return fmt.Errorf("failed to send %s email: %w", templateName, err)
	}
	log.Printf("[EMAIL] %s sent to %s", templateName, to)
	return nil
}
