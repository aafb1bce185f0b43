// ABOUTME: Tests for relance event database operations
// ABOUTME: Covers dedup on insert, calendar queries and compare-and-set transitions
package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/relance/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAutomaticEvent(dossierID, ruleID uuid.UUID, date time.Time, clock string) *models.RelanceEvent {
	return &models.RelanceEvent{
		DossierID:   dossierID,
		RuleID:      &ruleID,
		Date:        date,
		Time:        clock,
		Type:        models.ActionEmail,
		TemplateID:  "reminder-1",
		IsAutomatic: true,
	}
}

func TestCreateEventDedupAutomatic(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	dossierID, ruleID := uuid.New(), uuid.New()
	today := models.DateOf(time.Now())

	created, err := CreateEvent(ctx, db, newAutomaticEvent(dossierID, ruleID, today, "09:00"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = CreateEvent(ctx, db, newAutomaticEvent(dossierID, ruleID, today, "10:00"))
	require.NoError(t, err)
	assert.False(t, created, "same dossier, rule, action and date is the same event")

	exists, err := AutomaticEventExists(ctx, db, dossierID, ruleID, 0, today)
	require.NoError(t, err)
	assert.True(t, exists)

	// Manual events are never deduplicated
	for i := 0; i < 2; i++ {
		created, err = CreateEvent(ctx, db, &models.RelanceEvent{DossierID: dossierID, Date: today, Time: "11:00", Type: models.ActionCall})
		require.NoError(t, err)
		assert.True(t, created)
	}

	events, err := ListEventsOn(ctx, db, today)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestCreateEventValidation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := CreateEvent(ctx, db, &models.RelanceEvent{DossierID: uuid.New(), Date: time.Now(), Time: "25:99", Type: models.ActionEmail})
	assert.Error(t, err)

	_, err = CreateEvent(ctx, db, &models.RelanceEvent{DossierID: uuid.New(), Date: time.Now(), Time: "09:00", Type: "fax"})
	assert.Error(t, err)

	_, err = CreateEvent(ctx, db, &models.RelanceEvent{DossierID: uuid.New(), Date: time.Now(), Time: "09:00", Type: models.ActionSMS, IsAutomatic: true})
	assert.Error(t, err)
}

func TestListUpcomingEventsOrdering(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	dossierID := uuid.New()
	today := models.DateOf(time.Now())
	inputs := []struct {
		date  time.Time
		clock string
	}{
		{today.AddDate(0, 0, 2), "08:00"},
		{today, "14:00"},
		{today, "09:00"},
	}
	for _, in := range inputs {
		_, err := CreateEvent(ctx, db, &models.RelanceEvent{DossierID: dossierID, Date: in.date, Time: in.clock, Type: models.ActionEmail})
		require.NoError(t, err)
	}

	// A cancelled event is not upcoming
	cancelled := &models.RelanceEvent{DossierID: dossierID, Date: today, Time: "07:00", Type: models.ActionSMS}
	_, err := CreateEvent(ctx, db, cancelled)
	require.NoError(t, err)
	ok, err := TransitionEvent(ctx, db, cancelled.ID, models.EventScheduled, models.EventCancelled, nil)
	require.NoError(t, err)
	require.True(t, ok)

	upcoming, err := ListUpcomingEvents(ctx, db, dossierID)
	require.NoError(t, err)
	require.Len(t, upcoming, 3)
	assert.Equal(t, "09:00", upcoming[0].Time)
	assert.Equal(t, "14:00", upcoming[1].Time)
	assert.True(t, models.SameDay(upcoming[2].Date, today.AddDate(0, 0, 2)))
}

func TestListDueEvents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	dossierID := uuid.New()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, models.Location)

	email := &models.RelanceEvent{DossierID: dossierID, Date: now, Time: "09:00", Type: models.ActionEmail}
	status := &models.RelanceEvent{DossierID: dossierID, Date: now, Time: "11:00", Type: models.ActionStatusChange, NewStatus: models.StatusReminder1}
	later := &models.RelanceEvent{DossierID: dossierID, Date: now, Time: "15:00", Type: models.ActionSMS}
	call := &models.RelanceEvent{DossierID: dossierID, Date: now.AddDate(0, 0, -1), Time: "09:00", Type: models.ActionCall, AwaitingManual: true}
	// A retried letter keeps a result note but has not been handed over yet.
	retry := &models.RelanceEvent{DossierID: dossierID, Date: now, Time: "10:00", Type: models.ActionLetter, Result: "retry of an earlier letter"}
	for _, ev := range []*models.RelanceEvent{email, status, later, call, retry} {
		_, err := CreateEvent(ctx, db, ev)
		require.NoError(t, err)
	}

	due, err := ListDueEvents(ctx, db, dossierID, now)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, models.ActionStatusChange, due[0].Type, "status changes come first")
	assert.Equal(t, email.ID, due[1].ID)
	assert.Equal(t, retry.ID, due[2].ID)
}

func TestClaimEventIsExclusive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ev := &models.RelanceEvent{DossierID: uuid.New(), Date: time.Now(), Time: "09:00", Type: models.ActionEmail}
	_, err := CreateEvent(ctx, db, ev)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ClaimEvent(ctx, db, ev.ID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	require.NoError(t, FinishEvent(ctx, db, ev.ID, models.EventCompleted, "sent"))
	found, err := GetEvent(ctx, db, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventCompleted, found.Status)
	assert.Equal(t, "sent", found.Result)

	// Terminal events cannot be finished or claimed again
	assert.Error(t, FinishEvent(ctx, db, ev.ID, models.EventFailed, "again"))
	ok, err := ClaimEvent(ctx, db, ev.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseEvent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ev := &models.RelanceEvent{DossierID: uuid.New(), Date: time.Now(), Time: "09:00", Type: models.ActionLetter}
	_, err := CreateEvent(ctx, db, ev)
	require.NoError(t, err)

	ok, err := ClaimEvent(ctx, db, ev.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, ReleaseEvent(ctx, db, ev.ID, "awaiting manual fulfillment"))

	found, err := GetEvent(ctx, db, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventScheduled, found.Status)
	assert.Equal(t, "awaiting manual fulfillment", found.Result)
	assert.True(t, found.AwaitingManual)

	due, err := ListDueEvents(ctx, db, ev.DossierID, time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due, "a released letter is not dispatched again")

	assert.Error(t, ReleaseEvent(ctx, db, ev.ID, "twice"))
}

func TestFailStaleInFlight(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	dossierID := uuid.New()
	stuck := &models.RelanceEvent{DossierID: dossierID, Date: time.Now(), Time: "09:00", Type: models.ActionEmail}
	waiting := &models.RelanceEvent{DossierID: dossierID, Date: time.Now(), Time: "10:00", Type: models.ActionSMS}
	for _, ev := range []*models.RelanceEvent{stuck, waiting} {
		_, err := CreateEvent(ctx, db, ev)
		require.NoError(t, err)
	}

	ok, err := ClaimEvent(ctx, db, stuck.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// Claimed after the cutoff: left alone.
	n, err := FailStaleInFlight(ctx, db, time.Now().Add(-time.Hour), "abandoned")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = FailStaleInFlight(ctx, db, time.Now().Add(time.Minute), "abandoned")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err := GetEvent(ctx, db, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventFailed, found.Status)
	assert.Equal(t, "abandoned", found.Result)

	found, err = GetEvent(ctx, db, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventScheduled, found.Status)
}

func TestCancelScheduledEvents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	dossierID := uuid.New()
	for i := 0; i < 3; i++ {
		_, err := CreateEvent(ctx, db, &models.RelanceEvent{DossierID: dossierID, Date: time.Now(), Time: "09:00", Type: models.ActionEmail})
		require.NoError(t, err)
	}

	n, err := CancelScheduledEvents(ctx, db, dossierID, "dossier settled")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	counts, err := CountEventsByStatus(ctx, db, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.EventCancelled])

	_, err = GetEvent(ctx, db, uuid.New())
	assert.ErrorIs(t, err, ErrEventNotFound)
}
