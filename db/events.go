// ABOUTME: Relance event database operations
// ABOUTME: Handles event creation with dedup, calendar queries and compare-and-set status transitions
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/relance/models"
)

const eventColumns = `id, dossier_id, rule_id, action_index, date, time, type, status, template_id,
	new_status, assign_to, message, priority, is_automatic, result, awaiting_manual, created_at, updated_at`

// CreateEvent inserts an event. It returns false without error when an
// automatic event for the same (dossier, rule, action, date) already exists.
func CreateEvent(ctx context.Context, db *sql.DB, ev *models.RelanceEvent) (bool, error) {
	if !ev.Type.Valid() {
		return false, fmt.Errorf("invalid event type: %s", ev.Type)
	}
	if _, _, err := models.ParseClock(ev.Time); err != nil {
		return false, err
	}
	if ev.IsAutomatic && ev.RuleID == nil {
		return false, fmt.Errorf("automatic events must reference a rule")
	}
	if ev.Status == "" {
		ev.Status = models.EventScheduled
	}
	if ev.Priority == "" {
		ev.Priority = models.PriorityMedium
	}

	id := uuid.New()
	now := time.Now()

	var ruleID *string
	if ev.RuleID != nil {
		s := ev.RuleID.String()
		ruleID = &s
	}

	res, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO relance_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id.String(), ev.DossierID.String(), ruleID, ev.ActionIndex, models.FormatDate(ev.Date), ev.Time,
		string(ev.Type), string(ev.Status), ev.TemplateID, string(ev.NewStatus), ev.AssignTo, ev.Message,
		string(ev.Priority), ev.IsAutomatic, ev.Result, ev.AwaitingManual, now, now)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	ev.ID = id
	ev.Date = models.DateOf(ev.Date)
	ev.CreatedAt = now
	ev.UpdatedAt = now
	return true, nil
}

func scanEvent(s scanner) (*models.RelanceEvent, error) {
	ev := &models.RelanceEvent{}
	var ruleID uuid.NullUUID
	var date, typ, status, newStatus, priority string

	err := s.Scan(&ev.ID, &ev.DossierID, &ruleID, &ev.ActionIndex, &date, &ev.Time, &typ, &status,
		&ev.TemplateID, &newStatus, &ev.AssignTo, &ev.Message, &priority, &ev.IsAutomatic, &ev.Result,
		&ev.AwaitingManual, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, err
	}

	ev.Date, err = models.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("failed to parse event date: %w", err)
	}
	if ruleID.Valid {
		id := ruleID.UUID
		ev.RuleID = &id
	}
	ev.Type = models.ActionType(typ)
	ev.Status = models.EventStatus(status)
	ev.NewStatus = models.DossierStatus(newStatus)
	ev.Priority = models.Priority(priority)

	return ev, nil
}

func queryEvents(ctx context.Context, db *sql.DB, query string, args ...any) ([]models.RelanceEvent, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []models.RelanceEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}

	return events, rows.Err()
}

func GetEvent(ctx context.Context, db *sql.DB, id uuid.UUID) (*models.RelanceEvent, error) {
	row := db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM relance_events WHERE id = ?`, id.String())
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// ListEventsOn returns every event on a date, whatever its status.
func ListEventsOn(ctx context.Context, db *sql.DB, date time.Time) ([]models.RelanceEvent, error) {
	return queryEvents(ctx, db, `
		SELECT `+eventColumns+`
		FROM relance_events
		WHERE date = ?
		ORDER BY time ASC, created_at ASC
	`, models.FormatDate(date))
}

// ListEventsBetween returns events with from <= date <= to.
func ListEventsBetween(ctx context.Context, db *sql.DB, from, to time.Time) ([]models.RelanceEvent, error) {
	return queryEvents(ctx, db, `
		SELECT `+eventColumns+`
		FROM relance_events
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC, time ASC, created_at ASC
	`, models.FormatDate(from), models.FormatDate(to))
}

// ListUpcomingEvents returns a dossier's scheduled events by date then time.
func ListUpcomingEvents(ctx context.Context, db *sql.DB, dossierID uuid.UUID) ([]models.RelanceEvent, error) {
	return queryEvents(ctx, db, `
		SELECT `+eventColumns+`
		FROM relance_events
		WHERE dossier_id = ? AND status = 'scheduled'
		ORDER BY date ASC, time ASC, created_at ASC
	`, dossierID.String())
}

// ListEventsForDossier returns a dossier's full event history.
func ListEventsForDossier(ctx context.Context, db *sql.DB, dossierID uuid.UUID) ([]models.RelanceEvent, error) {
	return queryEvents(ctx, db, `
		SELECT `+eventColumns+`
		FROM relance_events
		WHERE dossier_id = ?
		ORDER BY date ASC, time ASC, created_at ASC
	`, dossierID.String())
}

// ListDueEvents returns scheduled events due at or before now for one dossier,
// status changes first. Manual-fulfillment events already confirmed by a
// previous dispatch are excluded.
func ListDueEvents(ctx context.Context, db *sql.DB, dossierID uuid.UUID, now time.Time) ([]models.RelanceEvent, error) {
	return queryEvents(ctx, db, `
		SELECT `+eventColumns+`
		FROM relance_events
		WHERE dossier_id = ?
		  AND status = 'scheduled'
		  AND (date || ' ' || time) <= ?
		  AND awaiting_manual = 0
		ORDER BY CASE type WHEN 'status_change' THEN 0 ELSE 1 END, date ASC, time ASC, created_at ASC
	`, dossierID.String(), models.FormatDate(now)+" "+models.ClockOf(now))
}

// AutomaticEventExists reports whether a rule already produced an event for
// the dossier, action and date.
func AutomaticEventExists(ctx context.Context, db *sql.DB, dossierID, ruleID uuid.UUID, actionIndex int, date time.Time) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM relance_events
		WHERE is_automatic = 1 AND dossier_id = ? AND rule_id = ? AND action_index = ? AND date = ?
	`, dossierID.String(), ruleID.String(), actionIndex, models.FormatDate(date)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// TransitionEvent moves an event from one status to another atomically. It
// returns false when the event was not in the expected status.
func TransitionEvent(ctx context.Context, db *sql.DB, id uuid.UUID, from, to models.EventStatus, result *string) (bool, error) {
	var res sql.Result
	var err error
	if result != nil {
		res, err = db.ExecContext(ctx, `
			UPDATE relance_events SET status = ?, result = ?, updated_at = ? WHERE id = ? AND status = ?
		`, string(to), *result, time.Now(), id.String(), string(from))
	} else {
		res, err = db.ExecContext(ctx, `
			UPDATE relance_events SET status = ?, updated_at = ? WHERE id = ? AND status = ?
		`, string(to), time.Now(), id.String(), string(from))
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimEvent marks a scheduled event in flight. Only one caller can win the claim.
func ClaimEvent(ctx context.Context, db *sql.DB, id uuid.UUID) (bool, error) {
	return TransitionEvent(ctx, db, id, models.EventScheduled, models.EventInFlight, nil)
}

// FinishEvent commits an in-flight event to a terminal status.
func FinishEvent(ctx context.Context, db *sql.DB, id uuid.UUID, status models.EventStatus, result string) error {
	if status != models.EventCompleted && status != models.EventFailed {
		return fmt.Errorf("cannot finish event with status %s", status)
	}
	ok, err := TransitionEvent(ctx, db, id, models.EventInFlight, status, &result)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("event %s is not in flight", id)
	}
	return nil
}

// ReleaseEvent returns an in-flight call or letter to scheduled with a result
// note. It stays scheduled, awaiting a person, and is no longer due.
func ReleaseEvent(ctx context.Context, db *sql.DB, id uuid.UUID, result string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE relance_events SET status = 'scheduled', result = ?, awaiting_manual = 1, updated_at = ?
		WHERE id = ? AND status = 'in_flight'
	`, result, time.Now(), id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("event %s is not in flight", id)
	}
	return nil
}

// FailStaleInFlight moves events claimed before the cutoff and never
// finished to failed. It returns how many were moved.
func FailStaleInFlight(ctx context.Context, db *sql.DB, cutoff time.Time, result string) (int, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE relance_events SET status = 'failed', result = ?, updated_at = ?
		WHERE status = 'in_flight' AND updated_at < ?
	`, result, time.Now(), cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CancelScheduledEvents cancels every scheduled event of a dossier.
func CancelScheduledEvents(ctx context.Context, db *sql.DB, dossierID uuid.UUID, reason string) (int, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE relance_events SET status = 'cancelled', result = ?, updated_at = ?
		WHERE dossier_id = ? AND status = 'scheduled'
	`, reason, time.Now(), dossierID.String())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountEventsByStatus counts events per status on a date.
func CountEventsByStatus(ctx context.Context, db *sql.DB, date time.Time) (map[models.EventStatus]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM relance_events WHERE date = ? GROUP BY status
	`, models.FormatDate(date))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[models.EventStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[models.EventStatus(status)] = count
	}

	return counts, rows.Err()
}
