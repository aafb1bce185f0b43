// ABOUTME: Relance service wiring the rule engine, scheduler and dispatcher together
// ABOUTME: Exposes the query surface and the explicit operations on dossiers and events

package relance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/dispatch"
	"github.com/harperreed/relance/engine"
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/scheduler"
	"github.com/shopspring/decimal"
)

const DefaultWorkers = 4

// Options configures a Service. Transports left nil make the matching
// actions fail at dispatch time.
type Options struct {
	Mail     dispatch.Sender
	SMS      dispatch.Sender
	Calendar dispatch.CalendarPublisher
	Timeout  time.Duration
	Workers  int
	// DryRun evaluates and materializes events but never dispatches them.
	DryRun bool
	Logger *log.Logger
	Now    func() time.Time
}

type Service struct {
	db        *sql.DB
	scheduler *scheduler.Scheduler
	renderer  *dispatch.Renderer
	opts      Options
	logger    *log.Logger
	now       func() time.Time
	locks     *dossierLocks
}

func New(database *sql.DB, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}

	sched := scheduler.New(database, opts.Logger)
	sched.SetClock(opts.Now)

	return &Service{
		db:        database,
		scheduler: sched,
		renderer:  dispatch.NewRenderer(database),
		opts:      opts,
		logger:    opts.Logger,
		now:       opts.Now,
		locks:     newDossierLocks(),
	}
}

func (s *Service) DB() *sql.DB {
	return s.db
}

func (s *Service) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

func (s *Service) Renderer() *dispatch.Renderer {
	return s.renderer
}

// Now reads the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// dispatcher builds a dispatcher whose clock is pinned to asOf, so a tick
// replayed for another date dispatches what was due at that date.
func (s *Service) dispatcher(asOf time.Time) *dispatch.Dispatcher {
	return dispatch.New(s.db, dispatch.Options{
		Mail:     s.opts.Mail,
		SMS:      s.opts.SMS,
		Calendar: s.opts.Calendar,
		Renderer: s.renderer,
		Timeout:  s.opts.Timeout,
		Logger:   s.logger,
		Now:      func() time.Time { return asOf },
	})
}

// loadEngine reads the active rules and validates them.
func (s *Service) loadEngine(ctx context.Context) (*engine.Engine, error) {
	rules, err := db.ListRules(ctx, s.db, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return engine.New(rules, s.logger), nil
}

// Evaluation is the outcome of a read-only evaluation pass.
type Evaluation struct {
	AsOf         time.Time              `json:"as_of"`
	Actions      []models.PendingAction `json:"actions"`
	ConfigErrors []engine.ConfigError   `json:"config_errors,omitempty"`
}

// EvaluateNow runs the rule engine over every open dossier without writing
// anything and returns the actions a tick would schedule right now.
func (s *Service) EvaluateNow(ctx context.Context) (*Evaluation, error) {
	asOf := s.now()
	eng, err := s.loadEngine(ctx)
	if err != nil {
		return nil, err
	}

	dossiers, err := db.ListDossiers(ctx, s.db, db.DossierFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list dossiers: %w", err)
	}

	out := &Evaluation{AsOf: asOf, ConfigErrors: eng.ConfigErrors()}
	for i := range dossiers {
		in, err := s.input(ctx, &dossiers[i], asOf)
		if err != nil {
			return nil, err
		}
		res := eng.Evaluate(in)
		out.Actions = append(out.Actions, res.Actions...)
	}
	return out, nil
}

func (s *Service) input(ctx context.Context, d *models.Dossier, asOf time.Time) (engine.Input, error) {
	invoices, err := db.ListInvoicesByDossier(ctx, s.db, d.ID)
	if err != nil {
		return engine.Input{}, fmt.Errorf("failed to load invoices for %s: %w", d.ID, err)
	}
	existing, err := db.ListEventsForDossier(ctx, s.db, d.ID)
	if err != nil {
		return engine.Input{}, fmt.Errorf("failed to load events for %s: %w", d.ID, err)
	}
	return engine.Input{Dossier: d, Invoices: invoices, Existing: existing, AsOf: asOf}, nil
}

// Classification is the risk assessment of one dossier.
type Classification struct {
	DossierID   uuid.UUID            `json:"dossier_id"`
	ClientName  string               `json:"client_name"`
	Status      models.DossierStatus `json:"status"`
	DaysOverdue int                  `json:"days_overdue"`
	TotalAmount decimal.Decimal      `json:"total_amount"`
	Tier        models.RiskTier      `json:"tier"`
}

// Classify computes a dossier's risk tier from its current invoices.
func (s *Service) Classify(ctx context.Context, dossierID uuid.UUID) (*Classification, error) {
	d, err := db.GetDossier(ctx, s.db, dossierID)
	if err != nil {
		return nil, err
	}
	invoices, err := db.ListInvoicesByDossier(ctx, s.db, dossierID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoices: %w", err)
	}

	days := engine.DaysOverdue(d, invoices, s.now())
	if d.IsClosed() {
		days = 0
	}
	return &Classification{
		DossierID:   d.ID,
		ClientName:  d.ClientName,
		Status:      d.Status,
		DaysOverdue: days,
		TotalAmount: d.TotalAmount,
		Tier:        models.ClassifyRisk(days, d.TotalAmount),
	}, nil
}

// CriticalDossiers lists open dossiers that are at least high risk or at the
// critical step, most risky first.
func (s *Service) CriticalDossiers(ctx context.Context, limit int) ([]models.Dossier, error) {
	dossiers, err := db.ListDossiers(ctx, s.db, db.DossierFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list dossiers: %w", err)
	}

	var critical []models.Dossier
	for i := range dossiers {
		d := &dossiers[i]
		if d.Status == models.StatusCritical || models.Classify(d).Rank() >= models.RiskHigh.Rank() {
			critical = append(critical, *d)
		}
	}
	models.SortByRisk(critical)

	if limit > 0 && len(critical) > limit {
		critical = critical[:limit]
	}
	return critical, nil
}

func (s *Service) EventsOn(ctx context.Context, date time.Time) ([]models.RelanceEvent, error) {
	return s.scheduler.EventsOn(ctx, date)
}

func (s *Service) Upcoming(ctx context.Context, dossierID uuid.UUID) ([]models.RelanceEvent, error) {
	if _, err := db.GetDossier(ctx, s.db, dossierID); err != nil {
		return nil, err
	}
	return s.scheduler.Upcoming(ctx, dossierID)
}

// RecordPayment applies a payment. A payment that settles the dossier closes
// it, resets its status and cancels its scheduled events.
func (s *Service) RecordPayment(ctx context.Context, invoiceID uuid.UUID, amount decimal.Decimal) (*models.Dossier, error) {
	inv, err := db.GetInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(inv.DossierID)
	defer unlock()

	now := s.now()
	d, err := db.RecordPayment(ctx, s.db, invoiceID, amount, now)
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}
	s.logger.Info("payment recorded", "dossier", d.ID, "invoice", invoiceID, "amount", amount.StringFixed(2))

	if !d.IsSettled() {
		return d, nil
	}

	if err := db.CloseDossier(ctx, s.db, d.ID, now); err != nil {
		return nil, fmt.Errorf("failed to close dossier: %w", err)
	}
	n, err := db.CancelScheduledEvents(ctx, s.db, d.ID, "dossier settled")
	if err != nil {
		return nil, fmt.Errorf("failed to cancel scheduled events: %w", err)
	}
	s.logger.Info("dossier settled", "dossier", d.ID, "cancelled_events", n)

	return db.GetDossier(ctx, s.db, d.ID)
}

// OverrideStatus sets a dossier's status by hand, in either direction.
func (s *Service) OverrideStatus(ctx context.Context, dossierID uuid.UUID, status models.DossierStatus) error {
	unlock := s.locks.Lock(dossierID)
	defer unlock()

	if err := db.OverrideDossierStatus(ctx, s.db, dossierID, status); err != nil {
		return err
	}
	s.logger.Info("status overridden", "dossier", dossierID, "status", status)
	return nil
}

// Escalate moves a dossier forward to target. Targets at or behind the
// current step leave it unchanged.
func (s *Service) Escalate(ctx context.Context, dossierID uuid.UUID, target models.DossierStatus) (models.DossierStatus, bool, error) {
	unlock := s.locks.Lock(dossierID)
	defer unlock()

	d, err := db.GetDossier(ctx, s.db, dossierID)
	if err != nil {
		return "", false, err
	}
	next, moved := models.Advance(d.Status, target)
	if !moved {
		return d.Status, false, nil
	}
	if err := db.UpdateDossier(ctx, s.db, dossierID, db.DossierPatch{Status: &next}); err != nil {
		return d.Status, false, err
	}
	s.logger.Info("dossier escalated", "dossier", dossierID, "from", d.Status, "to", next)
	return next, true, nil
}

// Schedule creates a manual event.
func (s *Service) Schedule(ctx context.Context, m scheduler.ManualEvent) (*models.RelanceEvent, error) {
	unlock := s.locks.Lock(m.DossierID)
	defer unlock()
	return s.scheduler.CreateManual(ctx, m)
}

// DispatchEvent runs one event by hand, for example a manual relance created for now.
func (s *Service) DispatchEvent(ctx context.Context, eventID uuid.UUID) (dispatch.DispatchResult, error) {
	ev, err := db.GetEvent(ctx, s.db, eventID)
	if err != nil {
		return dispatch.DispatchResult{}, err
	}

	unlock := s.locks.Lock(ev.DossierID)
	defer unlock()
	return s.dispatcher(s.now()).Dispatch(ctx, ev)
}
