package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"festreg/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var eventCols = []string{"id", "name", "sport", "capacity", "current_participant_count", "waitlist_enabled",
	"registration_start", "registration_deadline", "min_team_size", "max_team_size",
	"base_fee", "early_bird_fee", "early_bird_deadline", "created_at", "updated_at"}

func TestEventRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	deadline := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		id      string
		mock    func(mock sqlmock.Sqlmock)
		want    *domain.Event
		wantErr error
	}{
		{
			name: "success",
			id:   "ev-1",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, name, sport, capacity`).
					WithArgs("ev-1").
					WillReturnRows(sqlmock.NewRows(eventCols).
						AddRow("ev-1", "100m Sprint", "athletics", 64, 10, true,
							at, deadline, 1, 1, 50000, nil, nil, at, at))
			},
			want: &domain.Event{
				ID:                      "ev-1",
				Name:                    "100m Sprint",
				Sport:                   "athletics",
				Capacity:                intPtr(64),
				CurrentParticipantCount: 10,
				WaitlistEnabled:         true,
				RegistrationStart:       at,
				RegistrationDeadline:    deadline,
				MinTeamSize:             1,
				MaxTeamSize:             1,
				BaseFee:                 50000,
				CreatedAt:               at,
				UpdatedAt:               at,
			},
		},
		{
			name: "unlimited capacity scans as nil",
			id:   "ev-2",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, name, sport, capacity`).
					WithArgs("ev-2").
					WillReturnRows(sqlmock.NewRows(eventCols).
						AddRow("ev-2", "Fun Run", "athletics", nil, 220, false,
							at, deadline, 1, 1, 0, nil, nil, at, at))
			},
			want: &domain.Event{
				ID:                      "ev-2",
				Name:                    "Fun Run",
				Sport:                   "athletics",
				CurrentParticipantCount: 220,
				RegistrationStart:       at,
				RegistrationDeadline:    deadline,
				MinTeamSize:             1,
				MaxTeamSize:             1,
				CreatedAt:               at,
				UpdatedAt:               at,
			},
		},
		{
			name: "not found",
			id:   "ev-missing",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, name, sport, capacity`).
					WithArgs("ev-missing").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			repo := NewEventRepository(db)
			got, err := repo.GetByID(ctx, tt.id)
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr))
				require.Nil(t, got)
				require.NoError(t, mock.ExpectationsWereMet())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepository_List(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	deadline := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT id, name, sport, capacity`).
			WillReturnRows(sqlmock.NewRows(eventCols).
				AddRow("ev-1", "100m Sprint", "athletics", 64, 10, true,
					at, deadline, 1, 1, 50000, nil, nil, at, at).
				AddRow("ev-2", "5-a-side Football", "football", 16, 16, true,
					at, deadline, 5, 8, 200000, nil, nil, at, at))

		repo := NewEventRepository(db)
		events, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, events, 2)
		require.Equal(t, "ev-1", events[0].ID)
		require.True(t, events[1].IsTeamEvent())
		require.True(t, events[1].IsFull())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT id, name, sport, capacity`).
			WillReturnRows(sqlmock.NewRows(eventCols))

		repo := NewEventRepository(db)
		events, err := repo.List(ctx)
		require.NoError(t, err)
		require.Empty(t, events)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
