package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"festreg/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openEvent(id string, capacity, registered int) *domain.Event {
	now := time.Now()
	return &domain.Event{
		ID:                      id,
		Name:                    "100m Sprint",
		Sport:                   "athletics",
		Capacity:                &capacity,
		CurrentParticipantCount: registered,
		WaitlistEnabled:         true,
		RegistrationStart:       now.Add(-24 * time.Hour),
		RegistrationDeadline:    now.Add(24 * time.Hour),
		MinTeamSize:             1,
		MaxTeamSize:             1,
		BaseFee:                 50000,
	}
}

func TestEligibilityService_Check(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		event      func() *domain.Event
		existing   *domain.Registration
		wantCan    bool
		wantReason string
		wantWait   bool
	}{
		{
			name:       "eligible",
			event:      func() *domain.Event { return openEvent("ev-1", 10, 3) },
			wantCan:    true,
			wantReason: domain.ReasonOK,
		},
		{
			name: "not open yet",
			event: func() *domain.Event {
				ev := openEvent("ev-1", 10, 0)
				ev.RegistrationStart = time.Now().Add(time.Hour)
				return ev
			},
			wantReason: domain.ReasonNotOpenYet,
		},
		{
			name: "deadline passed",
			event: func() *domain.Event {
				ev := openEvent("ev-1", 10, 0)
				ev.RegistrationDeadline = time.Now().Add(-time.Hour)
				return ev
			},
			wantReason: domain.ReasonDeadlinePassed,
		},
		{
			name: "full without waitlist",
			event: func() *domain.Event {
				ev := openEvent("ev-1", 5, 5)
				ev.WaitlistEnabled = false
				return ev
			},
			wantReason: domain.ReasonEventFull,
		},
		{
			name:       "full with waitlist",
			event:      func() *domain.Event { return openEvent("ev-1", 5, 5) },
			wantCan:    true,
			wantReason: domain.ReasonWaitlistAvailable,
			wantWait:   true,
		},
		{
			name:  "already registered",
			event: func() *domain.Event { return openEvent("ev-1", 10, 3) },
			existing: &domain.Registration{
				ID: "reg-9", EventID: "ev-1", ParticipantID: "user-1",
				Status: domain.RegistrationConfirmed,
			},
			wantReason: domain.ReasonAlreadyRegistered,
		},
		{
			name:  "terminal registration does not block",
			event: func() *domain.Event { return openEvent("ev-1", 10, 3) },
			existing: &domain.Registration{
				ID: "reg-9", EventID: "ev-1", ParticipantID: "user-1",
				Status: domain.RegistrationWithdrawn,
			},
			wantCan:    true,
			wantReason: domain.ReasonOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := newFakeEventRepo(tt.event())
			regs := newFakeRegistrationRepo()
			if tt.existing != nil {
				regs.byID[tt.existing.ID] = tt.existing
			}

			svc := NewEligibilityService(events, regs)
			got, err := svc.Check(ctx, "ev-1", "user-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantCan, got.CanRegister)
			assert.Equal(t, tt.wantReason, got.Reason)
			assert.Equal(t, tt.wantWait, got.WaitlistAvailable)
		})
	}
}

func TestEligibilityService_Check_EventNotFound(t *testing.T) {
	svc := NewEligibilityService(newFakeEventRepo(), newFakeRegistrationRepo())
	_, err := svc.Check(context.Background(), "ev-missing", "user-1")
	require.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestEligibilityService_Check_UnlimitedCapacityNeverFull(t *testing.T) {
	ev := openEvent("ev-1", 0, 9000)
	ev.Capacity = nil
	ev.WaitlistEnabled = false

	svc := NewEligibilityService(newFakeEventRepo(ev), newFakeRegistrationRepo())
	got, err := svc.Check(context.Background(), "ev-1", "user-1")
	require.NoError(t, err)
	assert.True(t, got.CanRegister)
	assert.Equal(t, domain.ReasonOK, got.Reason)
}
