package postgres

import (
	"context"
	"database/sql"

	"festreg/internal/domain"
)

type notificationRepository struct {
	DB *sql.DB
}

// NewNotificationRepository returns a NotificationRepository backed by
// Postgres.
func NewNotificationRepository(db *sql.DB) domain.NotificationRepository {
	return &notificationRepository{
		DB: db,
	}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (recipient_id, title, message, registration_id, payment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		n.RecipientID, n.Title, n.Message, n.RegistrationID, n.PaymentID, n.CreatedAt,
	).Scan(&n.ID)
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]*domain.Notification, error) {
	query := `
		SELECT id, recipient_id, title, message, registration_id, payment_id, read_at, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.DB.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*domain.Notification
	for rows.Next() {
		n := &domain.Notification{}
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.RegistrationID, &n.PaymentID, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if list == nil {
		list = []*domain.Notification{}
	}
	return list, nil
}
