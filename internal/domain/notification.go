package domain

import (
	"context"
	"time"
)

// Notification is an in-app message attached to a registration or payment
// state change. Delivery is best effort and never blocks the transition that
// produced it.
// swagger:model Notification
type Notification struct {
	ID             string    `json:"id"`
	RecipientID    string    `json:"recipient_id"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	RegistrationID string    `json:"registration_id,omitempty"`
	PaymentID      string    `json:"payment_id,omitempty"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NotificationRepository defines storage for in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListByRecipient(ctx context.Context, recipientID string) ([]*Notification, error)
}
