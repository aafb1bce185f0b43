// ABOUTME: Dossier database operations
// ABOUTME: Handles dossier creation, filtered listing, restricted patches and closing
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/harperreed/relance/models"
	"github.com/shopspring/decimal"
)

const dossierColumns = `id, manager_id, reference, client_name, client_email, client_phone,
	total_amount, original_amount, paid_amount, status, days_overdue, priority, tags,
	last_contact, reset_at, closed_at, created_at, updated_at`

// DossierFilter narrows ListDossiers. Zero values match everything.
type DossierFilter struct {
	Status        models.DossierStatus
	Priority      models.Priority
	ManagerID     *uuid.UUID
	Tag           string
	Query         string
	IncludeClosed bool
	Limit         int
}

// DossierPatch is the restricted set of fields the engine may write.
type DossierPatch struct {
	Status      *models.DossierStatus
	DaysOverdue *int
	LastContact *time.Time
}

func validateAmounts(d *models.Dossier) error {
	if d.OriginalAmount.IsNegative() || d.PaidAmount.IsNegative() || d.TotalAmount.IsNegative() {
		return fmt.Errorf("amounts must be non-negative")
	}
	if d.PaidAmount.GreaterThan(d.OriginalAmount) {
		return fmt.Errorf("paid amount %s exceeds original amount %s", d.PaidAmount, d.OriginalAmount)
	}
	return nil
}

// CreateDossier registers a new debtor dossier.
func CreateDossier(ctx context.Context, db *sql.DB, d *models.Dossier) error {
	if d.ClientName == "" {
		return fmt.Errorf("client name is required")
	}
	if d.Status == "" {
		d.Status = models.StatusInitial
	}
	if d.Priority == "" {
		d.Priority = models.PriorityMedium
	}
	if !d.Status.Valid() {
		return fmt.Errorf("invalid dossier status: %s", d.Status)
	}
	if !d.Priority.Valid() {
		return fmt.Errorf("invalid priority: %s", d.Priority)
	}
	if d.TotalAmount.IsZero() {
		d.TotalAmount = d.OriginalAmount.Sub(d.PaidAmount)
	}
	if err := validateAmounts(d); err != nil {
		return err
	}
	if d.DaysOverdue < 0 {
		d.DaysOverdue = 0
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}

	tags, err := json.Marshal(d.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	d.ID = uuid.New()
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err = db.ExecContext(ctx, `
		INSERT INTO dossiers (`+dossierColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID.String(), d.ManagerID.String(), d.Reference, d.ClientName, d.ClientEmail, d.ClientPhone,
		d.TotalAmount.String(), d.OriginalAmount.String(), d.PaidAmount.String(),
		string(d.Status), d.DaysOverdue, string(d.Priority), string(tags),
		d.LastContact, d.ResetAt, d.ClosedAt, d.CreatedAt, d.UpdatedAt)

	return err
}

func scanDossier(s scanner) (*models.Dossier, error) {
	d := &models.Dossier{}
	var status, priority, tags string
	var total, original, paid decimal.Decimal

	err := s.Scan(
		&d.ID, &d.ManagerID, &d.Reference, &d.ClientName, &d.ClientEmail, &d.ClientPhone,
		&total, &original, &paid, &status, &d.DaysOverdue, &priority, &tags,
		&d.LastContact, &d.ResetAt, &d.ClosedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.TotalAmount = total
	d.OriginalAmount = original
	d.PaidAmount = paid
	d.Status = models.DossierStatus(status)
	d.Priority = models.Priority(priority)

	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &d.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
	}

	return d, nil
}

// GetDossier returns the dossier with id, or ErrDossierNotFound.
func GetDossier(ctx context.Context, db *sql.DB, id uuid.UUID) (*models.Dossier, error) {
	return getDossier(ctx, db, id)
}

func getDossier(ctx context.Context, q querier, id uuid.UUID) (*models.Dossier, error) {
	row := q.QueryRowContext(ctx, `SELECT `+dossierColumns+` FROM dossiers WHERE id = ?`, id.String())
	d, err := scanDossier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDossierNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDossiers returns dossiers matching filter, most overdue first.
func ListDossiers(ctx context.Context, db *sql.DB, filter DossierFilter) ([]models.Dossier, error) {
	var where []string
	var args []any

	if !filter.IncludeClosed {
		where = append(where, "closed_at IS NULL")
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if filter.ManagerID != nil {
		where = append(where, "manager_id = ?")
		args = append(args, filter.ManagerID.String())
	}
	if filter.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(dossiers.tags) WHERE json_each.value = ?)")
		args = append(args, filter.Tag)
	}
	if filter.Query != "" {
		where = append(where, "(client_name LIKE ? OR reference LIKE ? OR client_email LIKE ?)")
		pattern := "%" + filter.Query + "%"
		args = append(args, pattern, pattern, pattern)
	}

	query := `SELECT ` + dossierColumns + ` FROM dossiers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY days_overdue DESC, created_at ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var dossiers []models.Dossier
	for rows.Next() {
		d, err := scanDossier(rows)
		if err != nil {
			return nil, err
		}
		dossiers = append(dossiers, *d)
	}

	return dossiers, rows.Err()
}

// UpdateDossier applies a restricted patch (status, days overdue, last contact).
func UpdateDossier(ctx context.Context, db *sql.DB, id uuid.UUID, patch DossierPatch) error {
	return updateDossier(ctx, db, id, patch)
}

func updateDossier(ctx context.Context, q querier, id uuid.UUID, patch DossierPatch) error {
	var sets []string
	var args []any

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return fmt.Errorf("invalid dossier status: %s", *patch.Status)
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.DaysOverdue != nil {
		days := *patch.DaysOverdue
		if days < 0 {
			days = 0
		}
		sets = append(sets, "days_overdue = ?")
		args = append(args, days)
	}
	if patch.LastContact != nil {
		sets = append(sets, "last_contact = ?")
		args = append(args, *patch.LastContact)
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now(), id.String())

	res, err := q.ExecContext(ctx, `UPDATE dossiers SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDossierNotFound
	}
	return nil
}

// CloseDossier archives a fully paid dossier. Status goes back to the first
// ladder step and a new escalation cycle starts at reset_at.
func CloseDossier(ctx context.Context, db *sql.DB, id uuid.UUID, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE dossiers
		SET status = ?, days_overdue = 0, closed_at = ?, reset_at = ?, updated_at = ?
		WHERE id = ?
	`, string(models.StatusInitial), at, at, time.Now(), id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDossierNotFound
	}
	return nil
}

// OverrideDossierStatus is the manual, non-automatic status change. It is not
// a new threshold crossing, so reset_at is left alone and rules that already
// fired stay suppressed.
func OverrideDossierStatus(ctx context.Context, db *sql.DB, id uuid.UUID, status models.DossierStatus) error {
	if _, err := models.Override(status); err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `UPDATE dossiers SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDossierNotFound
	}
	return nil
}

// DeleteDossier removes a dossier and its invoices. Events are kept so their
// history stays visible.
func DeleteDossier(ctx context.Context, db *sql.DB, id uuid.UUID) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM invoices WHERE dossier_id = ?`, id.String()); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM dossiers WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDossierNotFound
	}

	return tx.Commit()
}

// CountDossiersByStatus returns open dossier counts per ladder step.
func CountDossiersByStatus(ctx context.Context, db *sql.DB) (map[models.DossierStatus]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM dossiers WHERE closed_at IS NULL GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[models.DossierStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[models.DossierStatus(status)] = count
	}

	return counts, rows.Err()
}
