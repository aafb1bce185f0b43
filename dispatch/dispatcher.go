// ABOUTME: Action dispatcher executing due relance events
// ABOUTME: Claims each event atomically, performs its side effect under a timeout and records the outcome
package dispatch

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
	ErrNotDue         = errors.New("event is not due")
	ErrAlreadyClaimed = errors.New("event already claimed")
)

const DefaultTimeout = 30 * time.Second

// Sender delivers a message to one destination (email address or phone number).
type Sender interface {
	Send(ctx context.Context, destination, subject, body string) error
}

// CalendarPublisher records a manual obligation in an external calendar and
// returns the external event reference.
type CalendarPublisher interface {
	Publish(ctx context.Context, ev *models.RelanceEvent, d *models.Dossier) (string, error)
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomePending means the event went back to scheduled, awaiting a person.
	OutcomePending Outcome = "pending"
	// OutcomeSkipped means another dispatcher holds the event.
	OutcomeSkipped Outcome = "skipped"
)

type DispatchResult struct {
	EventID   uuid.UUID            `json:"event_id"`
	DossierID uuid.UUID            `json:"dossier_id"`
	Type      models.ActionType    `json:"type"`
	Outcome   Outcome              `json:"outcome"`
	Detail    string               `json:"detail"`
	NewStatus models.DossierStatus `json:"new_status,omitempty"`
}

// Escalated reports whether the dispatch moved the dossier up the ladder.
func (r DispatchResult) Escalated() bool {
	return r.NewStatus != ""
}

type Options struct {
	Mail     Sender
	SMS      Sender
	Calendar CalendarPublisher
	Renderer *Renderer
	Timeout  time.Duration
	Logger   *log.Logger
	Now      func() time.Time
}

type Dispatcher struct {
	db       *sql.DB
	mail     Sender
	sms      Sender
	calendar CalendarPublisher
	renderer *Renderer
	timeout  time.Duration
	logger   *log.Logger
	now      func() time.Time
}

func New(database *sql.DB, opts Options) *Dispatcher {
	d := &Dispatcher{
		db:       database,
		mail:     opts.Mail,
		sms:      opts.SMS,
		calendar: opts.Calendar,
		renderer: opts.Renderer,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if d.renderer == nil {
		d.renderer = NewRenderer(database)
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.logger == nil {
		d.logger = log.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Dispatch executes one due event. The event is claimed with a compare-and-set
// before any side effect, so concurrent or repeated calls for the same event
// perform the side effect at most once; losers get ErrAlreadyClaimed.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *models.RelanceEvent) (DispatchResult, error) {
	res := DispatchResult{EventID: ev.ID, DossierID: ev.DossierID, Type: ev.Type}

	if ev.DueAt().After(d.now()) {
		return res, ErrNotDue
	}

	claimed, err := db.ClaimEvent(ctx, d.db, ev.ID)
	if err != nil {
		return res, fmt.Errorf("failed to claim event: %w", err)
	}
	if !claimed {
		res.Outcome = OutcomeSkipped
		res.Detail = "already claimed or no longer scheduled"
		d.logger.Debug("dispatch skipped", "event", ev.ID, "type", ev.Type)
		return res, ErrAlreadyClaimed
	}

	// The outcome must be recorded even if the caller gives up meanwhile.
	recordCtx := context.WithoutCancel(ctx)

	dossier, err := db.GetDossier(ctx, d.db, ev.DossierID)
	if err != nil {
		detail := "dossier not found"
		if !errors.Is(err, db.ErrDossierNotFound) {
			detail = fmt.Sprintf("failed to load dossier: %v", err)
		}
		return d.finish(recordCtx, res, OutcomeFailed, detail)
	}

	switch ev.Type {
	case models.ActionStatusChange:
		return d.changeStatus(recordCtx, res, ev, dossier)
	case models.ActionEmail:
		return d.send(ctx, recordCtx, res, ev, dossier, d.mail, dossier.ClientEmail, defaultEmailTemplate)
	case models.ActionSMS:
		return d.send(ctx, recordCtx, res, ev, dossier, d.sms, dossier.ClientPhone, defaultSMSTemplate)
	case models.ActionCall, models.ActionLetter:
		return d.confirmObligation(ctx, recordCtx, res, ev, dossier)
	}

	return d.finish(recordCtx, res, OutcomeFailed, fmt.Sprintf("unsupported action type %q", ev.Type))
}

func (d *Dispatcher) changeStatus(ctx context.Context, res DispatchResult, ev *models.RelanceEvent, dossier *models.Dossier) (DispatchResult, error) {
	next, moved := models.Advance(dossier.Status, ev.NewStatus)
	if !moved {
		return d.finish(ctx, res, OutcomeCompleted, fmt.Sprintf("status already %s", dossier.Status))
	}

	if err := db.UpdateDossier(ctx, d.db, dossier.ID, db.DossierPatch{Status: &next}); err != nil {
		detail := fmt.Sprintf("failed to update dossier: %v", err)
		if errors.Is(err, db.ErrDossierNotFound) {
			detail = "dossier not found"
		}
		return d.finish(ctx, res, OutcomeFailed, detail)
	}

	res.NewStatus = next
	return d.finish(ctx, res, OutcomeCompleted, fmt.Sprintf("status %s -> %s", dossier.Status, next))
}

func (d *Dispatcher) send(ctx, recordCtx context.Context, res DispatchResult, ev *models.RelanceEvent, dossier *models.Dossier,
	sender Sender, destination, fallbackTemplate string) (DispatchResult, error) {
	if sender == nil {
		return d.finish(recordCtx, res, OutcomeFailed, fmt.Sprintf("no %s transport configured", ev.Type))
	}
	if destination == "" {
		return d.finish(recordCtx, res, OutcomeFailed, fmt.Sprintf("dossier has no %s destination", ev.Type))
	}

	invoices, err := db.ListInvoicesByDossier(ctx, d.db, dossier.ID)
	if err != nil {
		return d.finish(recordCtx, res, OutcomeFailed, fmt.Sprintf("failed to load invoices: %v", err))
	}

	templateID := ev.TemplateID
	if templateID == "" {
		templateID = fallbackTemplate
	}
	msg, err := d.renderer.Render(ctx, templateID, Variables(dossier, invoices, d.now()))
	if err != nil {
		return d.finish(recordCtx, res, OutcomeFailed, fmt.Sprintf("failed to render template: %v", err))
	}
	if ev.Message != "" {
		msg.Body += "\n" + ev.Message
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := sender.Send(sendCtx, destination, msg.Subject, msg.Body); err != nil {
		detail := fmt.Sprintf("send failed: %v", err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
			detail = fmt.Sprintf("send timed out after %s", d.timeout)
		}
		return d.finish(recordCtx, res, OutcomeFailed, detail)
	}

	contact := d.now()
	if err := db.UpdateDossier(recordCtx, d.db, dossier.ID, db.DossierPatch{LastContact: &contact}); err != nil {
		d.logger.Warn("failed to record last contact", "dossier", dossier.ID, "err", err)
	}

	return d.finish(recordCtx, res, OutcomeCompleted, fmt.Sprintf("%s sent to %s using %s", ev.Type, destination, templateID))
}

// confirmObligation handles calls and letters. They are fulfilled by a
// person: the event goes back to scheduled with a note and is completed by hand.
func (d *Dispatcher) confirmObligation(ctx, recordCtx context.Context, res DispatchResult, ev *models.RelanceEvent, dossier *models.Dossier) (DispatchResult, error) {
	note := fmt.Sprintf("%s awaiting manual fulfillment", ev.Type)
	if ev.AssignTo != "" {
		note += " by " + ev.AssignTo
	}

	if d.calendar != nil {
		pubCtx, cancel := context.WithTimeout(ctx, d.timeout)
		ref, err := d.calendar.Publish(pubCtx, ev, dossier)
		cancel()
		if err != nil {
			note += fmt.Sprintf(" (calendar publish failed: %v)", err)
		} else {
			note += fmt.Sprintf(" (calendar event %s)", ref)
		}
	}

	if err := db.ReleaseEvent(recordCtx, d.db, ev.ID, note); err != nil {
		return res, fmt.Errorf("failed to release event: %w", err)
	}

	res.Outcome = OutcomePending
	res.Detail = note
	d.logger.Info("dispatch", "event", ev.ID, "dossier", ev.DossierID, "type", ev.Type, "outcome", res.Outcome, "detail", note)
	return res, nil
}

func (d *Dispatcher) finish(ctx context.Context, res DispatchResult, outcome Outcome, detail string) (DispatchResult, error) {
	status := models.EventCompleted
	if outcome == OutcomeFailed {
		status = models.EventFailed
	}

	res.Outcome = outcome
	res.Detail = detail

	if err := db.FinishEvent(ctx, d.db, res.EventID, status, detail); err != nil {
		d.logger.Error("failed to record dispatch outcome", "event", res.EventID, "outcome", outcome, "err", err)
		return res, fmt.Errorf("failed to record outcome: %w", err)
	}

	if outcome == OutcomeFailed {
		d.logger.Warn("dispatch", "event", res.EventID, "dossier", res.DossierID, "type", res.Type, "outcome", outcome, "detail", detail)
	} else {
		d.logger.Info("dispatch", "event", res.EventID, "dossier", res.DossierID, "type", res.Type, "outcome", outcome, "detail", detail)
	}
	return res, nil
}
