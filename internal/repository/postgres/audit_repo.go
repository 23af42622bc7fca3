package postgres

import (
	"context"
	"database/sql"

	"festreg/internal/domain"
)

type auditRepository struct {
	DB *sql.DB
}

// NewAuditRepository returns an append-only AuditRepository backed by
// Postgres.
func NewAuditRepository(db *sql.DB) domain.AuditRepository {
	return &auditRepository{
		DB: db,
	}
}

func (r *auditRepository) Record(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (actor_id, action, entity_type, entity_id, old_values, new_values, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		entry.ActorID, entry.Action, entry.EntityType, entry.EntityID,
		nullableJSON(entry.OldValues), nullableJSON(entry.NewValues), entry.CreatedAt,
	).Scan(&entry.ID)
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
