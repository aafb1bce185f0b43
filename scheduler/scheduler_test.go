// ABOUTME: Tests for the scheduler and calendar grid
// ABOUTME: Covers materialization dedup, event lifecycle rules and grid completeness
package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupScheduler(t *testing.T) (*Scheduler, *models.Dossier) {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	d := &models.Dossier{ClientName: "Acme", OriginalAmount: decimal.NewFromInt(900), Priority: models.PriorityHigh}
	require.NoError(t, db.CreateDossier(context.Background(), database, d))

	return New(database, nil), d
}

func pending(dossierID, ruleID uuid.UUID, date time.Time) models.PendingAction {
	return models.PendingAction{
		DossierID: dossierID,
		RuleID:    ruleID,
		RuleName:  "first reminder",
		Action:    models.RuleAction{Type: models.ActionEmail, TemplateID: "reminder-1"},
		Date:      date,
		Time:      "09:00",
		Priority:  models.PriorityHigh,
	}
}

func TestMaterializeIsIdempotent(t *testing.T) {
	s, d := setupScheduler(t)
	ctx := context.Background()
	today := models.DateOf(time.Now())
	ruleID := uuid.New()

	created, err := s.Materialize(ctx, []models.PendingAction{pending(d.ID, ruleID, today)})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.True(t, created[0].IsAutomatic)
	assert.Equal(t, models.EventScheduled, created[0].Status)

	created, err = s.Materialize(ctx, []models.PendingAction{pending(d.ID, ruleID, today)})
	require.NoError(t, err)
	assert.Empty(t, created)

	events, err := s.EventsOn(ctx, today)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCreateManual(t *testing.T) {
	s, d := setupScheduler(t)
	ctx := context.Background()

	ev, err := s.CreateManual(ctx, ManualEvent{DossierID: d.ID, Date: time.Now().AddDate(0, 0, 1), Time: "14:30", Type: models.ActionCall, Message: "call accounting"})
	require.NoError(t, err)
	assert.False(t, ev.IsAutomatic)
	assert.Equal(t, models.PriorityHigh, ev.Priority, "priority defaults to the dossier's")

	upcoming, err := s.Upcoming(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "14:30", upcoming[0].Time)

	_, err = s.CreateManual(ctx, ManualEvent{DossierID: uuid.New(), Type: models.ActionCall})
	assert.ErrorIs(t, err, db.ErrDossierNotFound)

	_, err = s.CreateManual(ctx, ManualEvent{DossierID: d.ID, Type: models.ActionStatusChange})
	assert.Error(t, err)
}

func TestCancelIsIdempotent(t *testing.T) {
	s, d := setupScheduler(t)
	ctx := context.Background()

	ev, err := s.CreateManual(ctx, ManualEvent{DossierID: d.ID, Type: models.ActionEmail, TemplateID: "reminder-1"})
	require.NoError(t, err)

	require.NoError(t, s.Cancel(ctx, ev.ID))
	require.NoError(t, s.Cancel(ctx, ev.ID))

	found, err := db.GetEvent(ctx, s.db, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventCancelled, found.Status)

	assert.ErrorIs(t, s.Complete(ctx, ev.ID, "done"), ErrTerminalEvent)
}

func TestTerminalEventsCannotReopen(t *testing.T) {
	s, d := setupScheduler(t)
	ctx := context.Background()

	ev, err := s.CreateManual(ctx, ManualEvent{DossierID: d.ID, Type: models.ActionLetter})
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, ev.ID, "letter posted"))

	assert.ErrorIs(t, s.Cancel(ctx, ev.ID), ErrTerminalEvent)
	assert.ErrorIs(t, s.Fail(ctx, ev.ID, "lost"), ErrTerminalEvent)
	assert.ErrorIs(t, s.Complete(ctx, ev.ID, "again"), ErrTerminalEvent)
}

func TestCancelInFlight(t *testing.T) {
	s, d := setupScheduler(t)
	ctx := context.Background()

	ev, err := s.CreateManual(ctx, ManualEvent{DossierID: d.ID, Type: models.ActionSMS})
	require.NoError(t, err)
	ok, err := db.ClaimEvent(ctx, s.db, ev.ID)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, s.Cancel(ctx, ev.ID), ErrInFlight)
}

func TestRetryCreatesNewEvent(t *testing.T) {
	s, d := setupScheduler(t)
	ctx := context.Background()

	ev, err := s.CreateManual(ctx, ManualEvent{DossierID: d.ID, Type: models.ActionEmail, TemplateID: "reminder-1"})
	require.NoError(t, err)

	_, err = s.Retry(ctx, ev.ID)
	assert.Error(t, err, "scheduled events are not retried")

	require.NoError(t, s.Fail(ctx, ev.ID, "smtp down"))
	retry, err := s.Retry(ctx, ev.ID)
	require.NoError(t, err)
	assert.NotEqual(t, ev.ID, retry.ID)
	assert.Equal(t, models.EventScheduled, retry.Status)

	old, err := db.GetEvent(ctx, s.db, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventFailed, old.Status)
}

func TestMonthGridCompleteness(t *testing.T) {
	today := time.Date(2026, 2, 14, 15, 0, 0, 0, models.Location)

	for year := 2024; year <= 2027; year++ {
		for month := time.January; month <= time.December; month++ {
			g := MonthGrid(year, month, today)

			require.Zero(t, len(g.Days)%7, "%d-%02d", year, month)
			assert.Equal(t, time.Monday, g.Days[0].Date.Weekday())
			assert.Equal(t, time.Sunday, g.Last().Weekday())

			seen := map[int]int{}
			for _, day := range g.Days {
				if day.InMonth {
					seen[day.Date.Day()]++
				}
				if day.IsToday {
					assert.True(t, models.SameDay(day.Date, today))
				}
			}
			daysInMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, models.Location).Day()
			require.Len(t, seen, daysInMonth)
			for _, count := range seen {
				assert.Equal(t, 1, count)
			}
		}
	}
}

func TestMonthGridMarksToday(t *testing.T) {
	today := time.Date(2026, 3, 18, 8, 0, 0, 0, models.Location)
	g := MonthGrid(2026, time.March, today)

	count := 0
	for _, day := range g.Days {
		if day.IsToday {
			count++
			assert.Equal(t, 18, day.Date.Day())
		}
	}
	assert.Equal(t, 1, count)
	assert.Len(t, g.Weeks(), len(g.Days)/7)
}

func TestGridWithEventsIncludesAdjacentDays(t *testing.T) {
	s, d := setupScheduler(t)
	ctx := context.Background()

	// March 2026 starts on a Sunday, so the grid opens on Monday Feb 23.
	feb := time.Date(2026, 2, 24, 0, 0, 0, 0, models.Location)
	_, err := s.CreateManual(ctx, ManualEvent{DossierID: d.ID, Date: feb, Time: "10:00", Type: models.ActionCall})
	require.NoError(t, err)

	g, err := s.GridWithEvents(ctx, 2026, time.March)
	require.NoError(t, err)

	found := false
	for _, day := range g.Days {
		if models.SameDay(day.Date, feb) {
			assert.False(t, day.InMonth)
			assert.Len(t, day.Events, 1)
			found = true
		}
	}
	assert.True(t, found)
}
