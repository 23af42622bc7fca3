package domain

import (
	"context"
	"encoding/json"
	"time"
)

// AuditEntry is one append-only record of a state-changing action.
type AuditEntry struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actor_id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	OldValues  json.RawMessage `json:"old_values,omitempty"`
	NewValues  json.RawMessage `json:"new_values,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Audit action names.
const (
	ActionRegistrationCreate  = "registration.create"
	ActionRegistrationCancel  = "registration.cancel"
	ActionRegistrationPromote = "registration.promote"
	ActionTeamUpdate          = "registration.team_update"
	ActionPaymentOrderCreate  = "payment.order_create"
	ActionPaymentCapture      = "payment.capture"
	ActionPaymentFail         = "payment.fail"
	ActionPaymentOffline      = "payment.offline_verify"
	ActionRefund              = "payment.refund"
)

// AuditRepository appends audit entries. Entries are never updated or
// deleted.
type AuditRepository interface {
	Record(ctx context.Context, entry *AuditEntry) error
}
