package postgres

import (
	"context"
	"database/sql"
	"errors"

	"festreg/internal/domain"
)

type eventRepository struct {
	DB *sql.DB
}

// NewEventRepository returns an EventRepository backed by Postgres.
func NewEventRepository(db *sql.DB) domain.EventRepository {
	return &eventRepository{
		DB: db,
	}
}

const eventColumns = `id, name, sport, capacity, current_participant_count, waitlist_enabled,
		registration_start, registration_deadline, min_team_size, max_team_size,
		base_fee, early_bird_fee, early_bird_deadline, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (*domain.Event, error) {
	ev := &domain.Event{}
	err := row.Scan(
		&ev.ID, &ev.Name, &ev.Sport, &ev.Capacity, &ev.CurrentParticipantCount,
		&ev.WaitlistEnabled, &ev.RegistrationStart, &ev.RegistrationDeadline,
		&ev.MinTeamSize, &ev.MaxTeamSize, &ev.BaseFee, &ev.EarlyBirdFee,
		&ev.EarlyBirdDeadline, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE id = $1
	`
	ev, err := scanEvent(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return ev, nil
}

func (r *eventRepository) List(ctx context.Context) ([]*domain.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		ORDER BY registration_start ASC
	`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if events == nil {
		events = []*domain.Event{}
	}
	return events, nil
}
