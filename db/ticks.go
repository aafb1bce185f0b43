// ABOUTME: Tick run audit log
// ABOUTME: Records the aggregate outcome of every evaluation/dispatch cycle under a ULID
package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// TickRun is one persisted engine cycle.
type TickRun struct {
	ID           ulid.ULID  `json:"id"`
	AsOf         time.Time  `json:"as_of"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Dossiers     int        `json:"dossiers"`
	Created      int        `json:"created"`
	Escalated    int        `json:"escalated"`
	Dispatched   int        `json:"dispatched"`
	Failed       int        `json:"failed"`
	ConfigErrors int        `json:"config_errors"`
}

// CreateTickRun starts a tick run record. ULIDs sort by start time.
func CreateTickRun(ctx context.Context, db *sql.DB, asOf time.Time) (*TickRun, error) {
	now := time.Now()
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tick id: %w", err)
	}

	run := &TickRun{ID: id, AsOf: asOf, StartedAt: now}
	_, err = db.ExecContext(ctx, `
		INSERT INTO tick_runs (id, as_of, started_at) VALUES (?, ?, ?)
	`, run.ID.String(), run.AsOf, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create tick run: %w", err)
	}
	return run, nil
}

// FinishTickRun stores the final counts of a run.
func FinishTickRun(ctx context.Context, db *sql.DB, run *TickRun) error {
	now := time.Now()
	run.FinishedAt = &now
	_, err := db.ExecContext(ctx, `
		UPDATE tick_runs
		SET finished_at = ?, dossiers = ?, created = ?, escalated = ?, dispatched = ?, failed = ?, config_errors = ?
		WHERE id = ?
	`, run.FinishedAt, run.Dossiers, run.Created, run.Escalated, run.Dispatched, run.Failed, run.ConfigErrors,
		run.ID.String())
	if err != nil {
		return fmt.Errorf("failed to finish tick run: %w", err)
	}
	return nil
}

// ListTickRuns returns the most recent runs first.
func ListTickRuns(ctx context.Context, db *sql.DB, limit int) ([]TickRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, as_of, started_at, finished_at, dossiers, created, escalated, dispatched, failed, config_errors
		FROM tick_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []TickRun
	for rows.Next() {
		var run TickRun
		var id string
		if err := rows.Scan(&id, &run.AsOf, &run.StartedAt, &run.FinishedAt, &run.Dossiers, &run.Created,
			&run.Escalated, &run.Dispatched, &run.Failed, &run.ConfigErrors); err != nil {
			return nil, err
		}
		run.ID, err = ulid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse tick id: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
