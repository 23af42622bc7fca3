package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"festreg/internal/domain"
)

type registrationRepository struct {
	DB *sql.DB
}

// NewRegistrationRepository returns a RegistrationRepository backed by
// Postgres. Capacity claims, waitlist numbering and promotion all run inside
// transactions that lock the event row, so concurrent requests (across any
// number of service instances) serialize per event.
func NewRegistrationRepository(db *sql.DB) domain.RegistrationRepository {
	return &registrationRepository{
		DB: db,
	}
}

const registrationColumns = `id, event_id, participant_id, status, is_team, team_name,
		waitlist_position, cancelled_by, withdrawal_reason, created_at, updated_at`

func scanRegistration(row interface{ Scan(...any) error }) (*domain.Registration, error) {
	reg := &domain.Registration{}
	err := row.Scan(
		&reg.ID, &reg.EventID, &reg.ParticipantID, &reg.Status, &reg.IsTeam,
		&reg.TeamName, &reg.WaitlistPosition, &reg.CancelledBy,
		&reg.WithdrawalReason, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *registrationRepository) Create(ctx context.Context, reg *domain.Registration, members []*domain.TeamMember, wantSlot bool) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// Lock the event row: this is the serialized critical section for both
	// the slot claim and the waitlist sequence.
	var capacity sql.NullInt64
	var waitlistEnabled bool
	err = tx.QueryRowContext(ctx, `
		SELECT capacity, waitlist_enabled
		FROM events
		WHERE id = $1
		FOR UPDATE
	`, reg.EventID).Scan(&capacity, &waitlistEnabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("lock event: %w", err)
	}

	now := reg.CreatedAt
	needPosition := !wantSlot
	if wantSlot {
		// Conditional claim: the WHERE clause is the capacity invariant.
		res, err := tx.ExecContext(ctx, `
			UPDATE events
			SET current_participant_count = current_participant_count + 1, updated_at = $2
			WHERE id = $1 AND (capacity IS NULL OR current_participant_count < capacity)
		`, reg.EventID, now)
		if err != nil {
			return fmt.Errorf("claim slot: %w", err)
		}
		claimed, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim slot: %w", err)
		}
		if claimed == 0 {
			// Filled up since the eligibility check. Fall back to the
			// waitlist when the event allows it.
			if !waitlistEnabled {
				return fmt.Errorf("%w: %s", domain.ErrEligibility, domain.ReasonEventFull)
			}
			reg.Status = domain.RegistrationWaitlist
			needPosition = true
		}
	}
	if needPosition {
		var pos int
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(waitlist_position), 0) + 1
			FROM registrations
			WHERE event_id = $1 AND status = 'waitlist'
		`, reg.EventID).Scan(&pos)
		if err != nil {
			return fmt.Errorf("next waitlist position: %w", err)
		}
		reg.Status = domain.RegistrationWaitlist
		reg.WaitlistPosition = &pos
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO registrations (event_id, participant_id, status, is_team, team_name, waitlist_position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, reg.EventID, reg.ParticipantID, reg.Status, reg.IsTeam, reg.TeamName, reg.WaitlistPosition, reg.CreatedAt, reg.UpdatedAt).
		Scan(&reg.ID)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}

	for _, m := range members {
		m.RegistrationID = reg.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO team_members (registration_id, position, name, email, phone, is_captain)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, reg.ID, m.Position, m.Name, m.Email, m.Phone, m.IsCaptain).Scan(&m.ID)
		if err != nil {
			// Rolling back undoes the registration row, the slot claim and
			// the waitlist position in one shot.
			return fmt.Errorf("insert team member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *registrationRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE id = $1
	`
	reg, err := scanRegistration(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return reg, nil
}

func (r *registrationRepository) GetActiveByEventAndParticipant(ctx context.Context, eventID, participantID string) (*domain.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE event_id = $1 AND participant_id = $2 AND status NOT IN ('cancelled', 'withdrawn')
		LIMIT 1
	`
	reg, err := scanRegistration(r.DB.QueryRowContext(ctx, query, eventID, participantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return reg, nil
}

func (r *registrationRepository) ListByParticipant(ctx context.Context, participantID string) ([]*domain.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE participant_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, participantID)
}

func (r *registrationRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE event_id = $1
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, eventID)
}

func (r *registrationRepository) list(ctx context.Context, query string, arg any) ([]*domain.Registration, error) {
	rows, err := r.DB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []*domain.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if regs == nil {
		regs = []*domain.Registration{}
	}
	return regs, nil
}

func (r *registrationRepository) Terminate(ctx context.Context, id string, status domain.RegistrationStatus, cancelledBy, reason string) (*domain.Registration, error) {
	if status != domain.RegistrationCancelled && status != domain.RegistrationWithdrawn {
		return nil, fmt.Errorf("%w: %q is not a terminal status", domain.ErrInvalidInput, status)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	cur, err := scanRegistration(tx.QueryRowContext(ctx, `
		SELECT `+registrationColumns+`
		FROM registrations
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lock registration: %w", err)
	}
	if cur.IsTerminal() {
		// A retried cancellation lands here, so promotion can never run
		// twice for the same registration.
		return nil, fmt.Errorf("%w: already cancelled", domain.ErrConflict)
	}

	// Event lock serializes the slot hand-off with concurrent creations.
	var dummy string
	err = tx.QueryRowContext(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, cur.EventID).Scan(&dummy)
	if err != nil {
		return nil, fmt.Errorf("lock event: %w", err)
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE registrations
		SET status = $2, cancelled_by = $3, withdrawal_reason = $4, waitlist_position = NULL, updated_at = $5
		WHERE id = $1
	`, id, status, cancelledBy, reason, now)
	if err != nil {
		return nil, fmt.Errorf("terminate registration: %w", err)
	}

	var promoted *domain.Registration
	if cur.HoldsSlot() {
		// The freed slot goes to the minimum remaining waitlist position;
		// if nobody is waiting, the participant count drops instead.
		promoted, err = scanRegistration(tx.QueryRowContext(ctx, `
			SELECT `+registrationColumns+`
			FROM registrations
			WHERE event_id = $1 AND status = 'waitlist'
			ORDER BY waitlist_position ASC
			LIMIT 1
		`, cur.EventID))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("next waitlisted: %w", err)
		}
		if promoted != nil {
			_, err = tx.ExecContext(ctx, `
				UPDATE registrations
				SET status = 'payment_pending', waitlist_position = NULL, updated_at = $2
				WHERE id = $1
			`, promoted.ID, now)
			if err != nil {
				return nil, fmt.Errorf("promote registration: %w", err)
			}
			promoted.Status = domain.RegistrationPaymentPending
			promoted.WaitlistPosition = nil
			promoted.UpdatedAt = now
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE events
				SET current_participant_count = current_participant_count - 1, updated_at = $2
				WHERE id = $1 AND current_participant_count > 0
			`, cur.EventID, now)
			if err != nil {
				return nil, fmt.Errorf("release slot: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return promoted, nil
}

func (r *registrationRepository) Confirm(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE registrations
		SET status = 'confirmed', updated_at = $2
		WHERE id = $1 AND status = 'payment_pending'
	`, id, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *registrationRepository) ReplaceTeam(ctx context.Context, id string, teamName string, members []*domain.TeamMember) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE registrations
		SET team_name = $2, updated_at = $3
		WHERE id = $1
	`, id, teamName, time.Now())
	if err != nil {
		return fmt.Errorf("update team name: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM team_members WHERE registration_id = $1`, id); err != nil {
		return fmt.Errorf("delete team members: %w", err)
	}
	for _, m := range members {
		m.RegistrationID = id
		err = tx.QueryRowContext(ctx, `
			INSERT INTO team_members (registration_id, position, name, email, phone, is_captain)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, id, m.Position, m.Name, m.Email, m.Phone, m.IsCaptain).Scan(&m.ID)
		if err != nil {
			return fmt.Errorf("insert team member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *registrationRepository) ListTeamMembers(ctx context.Context, registrationID string) ([]*domain.TeamMember, error) {
	query := `
		SELECT id, registration_id, position, name, email, phone, is_captain
		FROM team_members
		WHERE registration_id = $1
		ORDER BY position ASC
	`
	rows, err := r.DB.QueryContext(ctx, query, registrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*domain.TeamMember
	for rows.Next() {
		m := &domain.TeamMember{}
		if err := rows.Scan(&m.ID, &m.RegistrationID, &m.Position, &m.Name, &m.Email, &m.Phone, &m.IsCaptain); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if members == nil {
		members = []*domain.TeamMember{}
	}
	return members, nil
}
