// ABOUTME: Invoice database operations
// ABOUTME: Handles invoice creation, payments, overdue recalculation and dossier roll-up
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/relance/models"
	"github.com/shopspring/decimal"
)

const invoiceColumns = `id, dossier_id, number, amount, original_amount, paid_amount, due_date, status, created_at, updated_at`

// CreateInvoice adds an invoice under a dossier and rolls its amounts up.
func CreateInvoice(ctx context.Context, db *sql.DB, inv *models.Invoice) error {
	if inv.Number == "" {
		return fmt.Errorf("invoice number is required")
	}
	if !inv.OriginalAmount.IsPositive() {
		return fmt.Errorf("invoice amount must be positive")
	}
	if inv.PaidAmount.IsNegative() || inv.PaidAmount.GreaterThan(inv.OriginalAmount) {
		return fmt.Errorf("paid amount %s out of range", inv.PaidAmount)
	}
	if inv.DueDate.IsZero() {
		return fmt.Errorf("due date is required")
	}

	inv.ID = uuid.New()
	now := time.Now()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	inv.DueDate = models.DateOf(inv.DueDate)
	inv.Amount = inv.OriginalAmount.Sub(inv.PaidAmount)
	inv.Status = inv.DeriveStatus(now)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := getDossier(ctx, tx, inv.DossierID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.ID.String(), inv.DossierID.String(), inv.Number, inv.Amount.String(), inv.OriginalAmount.String(),
		inv.PaidAmount.String(), models.FormatDate(inv.DueDate), string(inv.Status), inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return err
	}

	if err := rollupDossier(ctx, tx, inv.DossierID, now); err != nil {
		return err
	}

	return tx.Commit()
}

func scanInvoice(s scanner) (*models.Invoice, error) {
	inv := &models.Invoice{}
	var due, status string
	err := s.Scan(&inv.ID, &inv.DossierID, &inv.Number, &inv.Amount, &inv.OriginalAmount, &inv.PaidAmount,
		&due, &status, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}

	inv.DueDate, err = models.ParseDate(due)
	if err != nil {
		return nil, fmt.Errorf("failed to parse due date: %w", err)
	}
	inv.Status = models.InvoiceStatus(status)

	return inv, nil
}

func GetInvoice(ctx context.Context, db *sql.DB, id uuid.UUID) (*models.Invoice, error) {
	row := db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id.String())
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvoicesByDossier returns a dossier's invoices ordered by due date.
func ListInvoicesByDossier(ctx context.Context, db *sql.DB, dossierID uuid.UUID) ([]models.Invoice, error) {
	return listInvoicesByDossier(ctx, db, dossierID)
}

func listInvoicesByDossier(ctx context.Context, q querier, dossierID uuid.UUID) ([]models.Invoice, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE dossier_id = ?
		ORDER BY due_date ASC, number ASC
	`, dossierID.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}

	return invoices, rows.Err()
}

// RecordPayment applies a payment to an invoice and returns the updated dossier.
func RecordPayment(ctx context.Context, db *sql.DB, invoiceID uuid.UUID, amount decimal.Decimal, asOf time.Time) (*models.Dossier, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, invoiceID.String())
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}

	outstanding := inv.OriginalAmount.Sub(inv.PaidAmount)
	if amount.GreaterThan(outstanding) {
		return nil, fmt.Errorf("payment %s exceeds outstanding amount %s", amount, outstanding)
	}

	inv.PaidAmount = inv.PaidAmount.Add(amount)
	inv.Amount = inv.OriginalAmount.Sub(inv.PaidAmount)
	inv.Status = inv.DeriveStatus(asOf)

	_, err = tx.ExecContext(ctx, `
		UPDATE invoices SET paid_amount = ?, amount = ?, status = ?, updated_at = ? WHERE id = ?
	`, inv.PaidAmount.String(), inv.Amount.String(), string(inv.Status), time.Now(), inv.ID.String())
	if err != nil {
		return nil, err
	}

	if err := rollupDossier(ctx, tx, inv.DossierID, asOf); err != nil {
		return nil, err
	}

	d, err := getDossier(ctx, tx, inv.DossierID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return d, nil
}

// rollupDossier recomputes a dossier's amounts and days overdue from its invoices.
func rollupDossier(ctx context.Context, q querier, dossierID uuid.UUID, asOf time.Time) error {
	invoices, err := listInvoicesByDossier(ctx, q, dossierID)
	if err != nil {
		return err
	}
	if len(invoices) == 0 {
		return nil
	}

	original, paid := decimal.Zero, decimal.Zero
	days := 0
	for i := range invoices {
		original = original.Add(invoices[i].OriginalAmount)
		paid = paid.Add(invoices[i].PaidAmount)
		if d := invoices[i].DaysOverdue(asOf); d > days {
			days = d
		}
	}

	_, err = q.ExecContext(ctx, `
		UPDATE dossiers
		SET original_amount = ?, paid_amount = ?, total_amount = ?, days_overdue = ?, updated_at = ?
		WHERE id = ?
	`, original.String(), paid.String(), original.Sub(paid).String(), days, time.Now(), dossierID.String())
	return err
}

// RefreshOverdue recomputes invoice statuses and dossier days overdue as of a
// date. It returns the number of dossiers whose days overdue changed.
func RefreshOverdue(ctx context.Context, db *sql.DB, asOf time.Time) (int, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE status <> 'paid'`)
	if err != nil {
		return 0, err
	}

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			_ = rows.Close()
			return 0, err
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	maxDays := make(map[uuid.UUID]int)
	for i := range invoices {
		inv := &invoices[i]
		status := inv.DeriveStatus(asOf)
		if status != inv.Status {
			if _, err := tx.ExecContext(ctx, `UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?`,
				string(status), time.Now(), inv.ID.String()); err != nil {
				return 0, err
			}
		}
		if d := inv.DaysOverdue(asOf); d > maxDays[inv.DossierID] {
			maxDays[inv.DossierID] = d
		} else if _, ok := maxDays[inv.DossierID]; !ok {
			maxDays[inv.DossierID] = 0
		}
	}

	changed := 0
	for dossierID, days := range maxDays {
		res, err := tx.ExecContext(ctx, `
			UPDATE dossiers SET days_overdue = ?, updated_at = ?
			WHERE id = ? AND closed_at IS NULL AND days_overdue <> ?
		`, days, time.Now(), dossierID.String(), days)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		changed += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return changed, nil
}
