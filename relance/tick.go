// ABOUTME: Tick orchestration: refresh, evaluate, materialize and dispatch for every open dossier
// ABOUTME: Dossiers run on a bounded worker pool; failures stay local to their dossier

package relance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/dispatch"
	"github.com/harperreed/relance/engine"
	"github.com/harperreed/relance/models"
	"github.com/oklog/ulid/v2"
)

// DossierError records a failure that stopped processing of one dossier.
type DossierError struct {
	DossierID uuid.UUID `json:"dossier_id"`
	Err       string    `json:"error"`
}

// TickResult aggregates one tick across all dossiers.
type TickResult struct {
	RunID        ulid.ULID                 `json:"run_id"`
	AsOf         time.Time                 `json:"as_of"`
	Dossiers     int                       `json:"dossiers"`
	Created      int                       `json:"created"`
	Escalated    int                       `json:"escalated"`
	Dispatched   int                       `json:"dispatched"`
	Failed       int                       `json:"failed"`
	Abandoned    int                       `json:"abandoned,omitempty"`
	Dispatches   []dispatch.DispatchResult `json:"dispatches,omitempty"`
	ConfigErrors []engine.ConfigError      `json:"config_errors,omitempty"`
	Errors       []DossierError            `json:"errors,omitempty"`
}

type dossierOutcome struct {
	created    int
	dispatches []dispatch.DispatchResult
	err        error
}

// Tick runs one engine cycle as of asOf. Each open dossier is evaluated,
// its new events materialized and its due events dispatched, status changes
// first. A dossier's failure never aborts the others.
func (s *Service) Tick(ctx context.Context, asOf time.Time) (*TickResult, error) {
	run, err := db.CreateTickRun(ctx, s.db, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to start tick: %w", err)
	}

	if _, err := db.RefreshOverdue(ctx, s.db, asOf); err != nil {
		return nil, fmt.Errorf("failed to refresh overdue days: %w", err)
	}

	abandoned, err := s.failStaleInFlight(ctx)
	if err != nil {
		return nil, err
	}

	eng, err := s.loadEngine(ctx)
	if err != nil {
		return nil, err
	}

	dossiers, err := db.ListDossiers(ctx, s.db, db.DossierFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list dossiers: %w", err)
	}

	result := &TickResult{
		RunID:        run.ID,
		AsOf:         asOf,
		Dossiers:     len(dossiers),
		Abandoned:    abandoned,
		ConfigErrors: eng.ConfigErrors(),
	}
	disp := s.dispatcher(asOf)

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan *models.Dossier)
	)

	workers := s.opts.Workers
	if workers > len(dossiers) {
		workers = len(dossiers)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range jobs {
				out := s.processDossier(ctx, eng, disp, d, asOf)

				mu.Lock()
				result.add(d.ID, out)
				mu.Unlock()
			}
		}()
	}

feed:
	for i := range dossiers {
		select {
		case jobs <- &dossiers[i]:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	now := time.Now()
	run.FinishedAt = &now
	run.Dossiers = result.Dossiers
	run.Created = result.Created
	run.Escalated = result.Escalated
	run.Dispatched = result.Dispatched
	run.Failed = result.Failed
	run.ConfigErrors = len(result.ConfigErrors)
	if err := db.FinishTickRun(context.WithoutCancel(ctx), s.db, run); err != nil {
		s.logger.Error("failed to record tick run", "run", run.ID, "err", err)
	}

	s.logger.Info("tick",
		"run", run.ID,
		"as_of", asOf.Format(time.RFC3339),
		"dossiers", result.Dossiers,
		"created", result.Created,
		"escalated", result.Escalated,
		"dispatched", result.Dispatched,
		"failed", result.Failed,
		"config_errors", len(result.ConfigErrors),
		"errors", len(result.Errors),
	)

	return result, ctx.Err()
}

// failStaleInFlight fails events left in flight by a dispatch that never
// recorded its outcome. Claims younger than twice the dispatch timeout may
// still belong to a running dispatch and are kept.
func (s *Service) failStaleInFlight(ctx context.Context) (int, error) {
	timeout := s.opts.Timeout
	if timeout <= 0 {
		timeout = dispatch.DefaultTimeout
	}
	cutoff := time.Now().Add(-2 * timeout)

	n, err := db.FailStaleInFlight(ctx, s.db, cutoff, "dispatch abandoned before recording an outcome")
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale in-flight events: %w", err)
	}
	if n > 0 {
		s.logger.Warn("failed stale in-flight events", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

func (r *TickResult) add(id uuid.UUID, out dossierOutcome) {
	r.Created += out.created
	for _, res := range out.dispatches {
		r.Dispatches = append(r.Dispatches, res)
		switch res.Outcome {
		case dispatch.OutcomeFailed:
			r.Failed++
		case dispatch.OutcomeCompleted, dispatch.OutcomePending:
			r.Dispatched++
		}
		if res.Escalated() {
			r.Escalated++
		}
	}
	if out.err != nil {
		r.Errors = append(r.Errors, DossierError{DossierID: id, Err: out.err.Error()})
	}
}

func (s *Service) processDossier(ctx context.Context, eng *engine.Engine, disp *dispatch.Dispatcher, d *models.Dossier, asOf time.Time) dossierOutcome {
	var out dossierOutcome

	unlock := s.locks.Lock(d.ID)
	defer unlock()

	// Re-read under the lock: a payment may have closed the dossier since listing.
	current, err := db.GetDossier(ctx, s.db, d.ID)
	if err != nil {
		out.err = err
		return out
	}
	if current.IsClosed() {
		return out
	}

	in, err := s.input(ctx, current, asOf)
	if err != nil {
		out.err = err
		return out
	}

	res := eng.Evaluate(in)
	if res.Governing != nil {
		s.logger.Debug("escalation due", "dossier", d.ID, "from", current.Status, "to", res.Governing.Action.NewStatus, "rule", res.Governing.RuleName)
	}

	created, err := s.scheduler.Materialize(ctx, res.Actions)
	out.created = len(created)
	if err != nil {
		out.err = err
		return out
	}

	if s.opts.DryRun {
		return out
	}

	due, err := s.scheduler.Due(ctx, d.ID, asOf)
	if err != nil {
		out.err = fmt.Errorf("failed to list due events: %w", err)
		return out
	}

	for i := range due {
		if ctx.Err() != nil {
			break
		}
		r, err := disp.Dispatch(ctx, &due[i])
		if errors.Is(err, dispatch.ErrAlreadyClaimed) || errors.Is(err, dispatch.ErrNotDue) {
			continue
		}
		if err != nil {
			out.err = err
			continue
		}
		out.dispatches = append(out.dispatches, r)
	}

	return out
}

// Run ticks immediately and then every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", interval)
	}

	s.logger.Info("relance daemon started", "interval", interval, "workers", s.opts.Workers, "dry_run", s.opts.DryRun)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx, s.now()); err != nil && ctx.Err() == nil {
			s.logger.Error("tick failed", "err", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("relance daemon stopped")
			return nil
		case <-ticker.C:
		}
	}
}
