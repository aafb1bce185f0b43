// ABOUTME: Scheduler owning the relance event time axis
// ABOUTME: Materializes pending actions into events and manages their lifecycle
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
)

var (
	// ErrTerminalEvent is returned when a transition out of a terminal state is attempted.
	ErrTerminalEvent = errors.New("event is in a terminal state")
	// ErrInFlight is returned when an event is being dispatched.
	ErrInFlight = errors.New("event is being dispatched")
)

type Scheduler struct {
	db     *sql.DB
	now    func() time.Time
	logger *log.Logger
}

func New(database *sql.DB, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{db: database, now: time.Now, logger: logger}
}

// SetClock replaces the wall clock, for tests and replays.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Materialize turns pending actions into scheduled automatic events. An
// action whose (dossier, rule, action, date) event already exists is a no-op.
func (s *Scheduler) Materialize(ctx context.Context, actions []models.PendingAction) ([]models.RelanceEvent, error) {
	var created []models.RelanceEvent

	for _, pa := range actions {
		exists, err := db.AutomaticEventExists(ctx, s.db, pa.DossierID, pa.RuleID, pa.ActionIndex, pa.Date)
		if err != nil {
			return created, fmt.Errorf("failed to check existing events: %w", err)
		}
		if exists {
			s.logger.Debug("event already scheduled", "dossier", pa.DossierID, "rule", pa.RuleName, "date", models.FormatDate(pa.Date))
			continue
		}

		ruleID := pa.RuleID
		ev := &models.RelanceEvent{
			DossierID:   pa.DossierID,
			RuleID:      &ruleID,
			ActionIndex: pa.ActionIndex,
			Date:        pa.Date,
			Time:        pa.Time,
			Type:        pa.Action.Type,
			Status:      models.EventScheduled,
			TemplateID:  pa.Action.TemplateID,
			NewStatus:   pa.Action.NewStatus,
			AssignTo:    pa.Action.AssignTo,
			Message:     pa.Action.Message,
			Priority:    pa.Priority,
			IsAutomatic: true,
		}
		ok, err := db.CreateEvent(ctx, s.db, ev)
		if err != nil {
			return created, fmt.Errorf("failed to create event: %w", err)
		}
		if !ok {
			continue
		}
		created = append(created, *ev)
	}

	return created, nil
}

// ManualEvent is a user-created relance.
type ManualEvent struct {
	DossierID  uuid.UUID
	Date       time.Time
	Time       string
	Type       models.ActionType
	TemplateID string
	NewStatus  models.DossierStatus
	AssignTo   string
	Message    string
	Priority   models.Priority
}

// CreateManual schedules a user-created event.
func (s *Scheduler) CreateManual(ctx context.Context, m ManualEvent) (*models.RelanceEvent, error) {
	d, err := db.GetDossier(ctx, s.db, m.DossierID)
	if err != nil {
		return nil, err
	}
	if !m.Type.Valid() {
		return nil, fmt.Errorf("invalid event type %q", m.Type)
	}
	if m.Type == models.ActionStatusChange && !m.NewStatus.Valid() {
		return nil, fmt.Errorf("status change events need a valid new status")
	}
	if m.Date.IsZero() {
		m.Date = s.now()
	}
	if m.Time == "" {
		m.Time = models.ClockOf(s.now())
	}
	if m.Priority == "" {
		m.Priority = d.Priority
	}

	ev := &models.RelanceEvent{
		DossierID:  m.DossierID,
		Date:       m.Date,
		Time:       m.Time,
		Type:       m.Type,
		Status:     models.EventScheduled,
		TemplateID: m.TemplateID,
		NewStatus:  m.NewStatus,
		AssignTo:   m.AssignTo,
		Message:    m.Message,
		Priority:   m.Priority,
	}
	if _, err := db.CreateEvent(ctx, s.db, ev); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return ev, nil
}

// Retry re-triggers a failed event as a new manual event dated now. The
// failed event stays as it is.
func (s *Scheduler) Retry(ctx context.Context, id uuid.UUID) (*models.RelanceEvent, error) {
	failed, err := db.GetEvent(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if failed.Status != models.EventFailed {
		return nil, fmt.Errorf("only failed events can be retried, event is %s", failed.Status)
	}

	now := s.now()
	ev := &models.RelanceEvent{
		DossierID:   failed.DossierID,
		RuleID:      failed.RuleID,
		ActionIndex: failed.ActionIndex,
		Date:        now,
		Time:        models.ClockOf(now),
		Type:        failed.Type,
		Status:      models.EventScheduled,
		TemplateID:  failed.TemplateID,
		NewStatus:   failed.NewStatus,
		AssignTo:    failed.AssignTo,
		Message:     failed.Message,
		Priority:    failed.Priority,
		Result:      "retry of " + failed.ID.String(),
	}
	if _, err := db.CreateEvent(ctx, s.db, ev); err != nil {
		return nil, fmt.Errorf("failed to create retry event: %w", err)
	}
	return ev, nil
}

// EventsOn returns every event on a date.
func (s *Scheduler) EventsOn(ctx context.Context, date time.Time) ([]models.RelanceEvent, error) {
	return db.ListEventsOn(ctx, s.db, date)
}

// Upcoming returns a dossier's scheduled events ordered by date then time.
func (s *Scheduler) Upcoming(ctx context.Context, dossierID uuid.UUID) ([]models.RelanceEvent, error) {
	return db.ListUpcomingEvents(ctx, s.db, dossierID)
}

// Due returns a dossier's scheduled events whose date and time have passed,
// status changes first.
func (s *Scheduler) Due(ctx context.Context, dossierID uuid.UUID, now time.Time) ([]models.RelanceEvent, error) {
	return db.ListDueEvents(ctx, s.db, dossierID, now)
}

// History returns all events of a dossier.
func (s *Scheduler) History(ctx context.Context, dossierID uuid.UUID) ([]models.RelanceEvent, error) {
	return db.ListEventsForDossier(ctx, s.db, dossierID)
}

// Cancel moves a scheduled event to cancelled. Cancelling a cancelled event is
// a no-op; an event already claimed by a dispatch runs to its own outcome.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID) error {
	ok, err := db.TransitionEvent(ctx, s.db, id, models.EventScheduled, models.EventCancelled, nil)
	if err != nil {
		return fmt.Errorf("failed to cancel event: %w", err)
	}
	if ok {
		s.logger.Info("event cancelled", "event", id)
		return nil
	}

	ev, err := db.GetEvent(ctx, s.db, id)
	if err != nil {
		return err
	}
	switch ev.Status {
	case models.EventCancelled:
		return nil
	case models.EventInFlight:
		return ErrInFlight
	case models.EventScheduled:
		return fmt.Errorf("event %s changed concurrently", id)
	case models.EventCompleted, models.EventFailed:
		return ErrTerminalEvent
	}
	return ErrTerminalEvent
}

// Complete marks a scheduled event done, typically a call or letter fulfilled by hand.
func (s *Scheduler) Complete(ctx context.Context, id uuid.UUID, result string) error {
	return s.finish(ctx, id, models.EventCompleted, result)
}

// Fail marks a scheduled event failed.
func (s *Scheduler) Fail(ctx context.Context, id uuid.UUID, result string) error {
	return s.finish(ctx, id, models.EventFailed, result)
}

func (s *Scheduler) finish(ctx context.Context, id uuid.UUID, status models.EventStatus, result string) error {
	ok, err := db.TransitionEvent(ctx, s.db, id, models.EventScheduled, status, &result)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if ok {
		return nil
	}

	ev, err := db.GetEvent(ctx, s.db, id)
	if err != nil {
		return err
	}
	if ev.Status == models.EventInFlight {
		return ErrInFlight
	}
	return ErrTerminalEvent
}
