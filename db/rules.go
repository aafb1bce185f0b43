// ABOUTME: Relance rule database operations
// ABOUTME: Stores rule conditions, actions and schedule as JSON columns
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/harperreed/relance/models"
)

const ruleColumns = `id, name, trigger_days, trigger_conditions, actions, schedule, is_active, priority, created_at, updated_at`

type ruleDocuments struct {
	conditions string
	actions    string
	schedule   string
}

func encodeRule(r *models.RelanceRule) (ruleDocuments, error) {
	var docs ruleDocuments

	conditions, err := json.Marshal(r.TriggerConditions)
	if err != nil {
		return docs, fmt.Errorf("failed to encode trigger conditions: %w", err)
	}
	actions := r.Actions
	if actions == nil {
		actions = []models.RuleAction{}
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return docs, fmt.Errorf("failed to encode actions: %w", err)
	}
	schedule, err := json.Marshal(r.Schedule)
	if err != nil {
		return docs, fmt.Errorf("failed to encode schedule: %w", err)
	}

	docs.conditions = string(conditions)
	docs.actions = string(actionsJSON)
	docs.schedule = string(schedule)
	return docs, nil
}

// CreateRule stores a new rule. Semantic validation (actions, amount range,
// schedule) is the rule engine's job; only the trigger threshold is enforced here.
func CreateRule(ctx context.Context, db *sql.DB, r *models.RelanceRule) error {
	if r.TriggerDays < 1 {
		return fmt.Errorf("trigger days must be at least 1, got %d", r.TriggerDays)
	}

	docs, err := encodeRule(r)
	if err != nil {
		return err
	}

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err = db.ExecContext(ctx, `
		INSERT INTO relance_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID.String(), r.Name, r.TriggerDays, docs.conditions, docs.actions, docs.schedule,
		r.IsActive, r.Priority, r.CreatedAt, r.UpdatedAt)

	return err
}

// UpsertRule inserts or replaces a rule by id, keeping its identity. Used when
// importing rule documents from another device.
func UpsertRule(ctx context.Context, db *sql.DB, r *models.RelanceRule) error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("rule ID is required")
	}
	if r.TriggerDays < 1 {
		return fmt.Errorf("trigger days must be at least 1, got %d", r.TriggerDays)
	}

	docs, err := encodeRule(r)
	if err != nil {
		return err
	}

	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err = db.ExecContext(ctx, `
		INSERT INTO relance_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			trigger_days = excluded.trigger_days,
			trigger_conditions = excluded.trigger_conditions,
			actions = excluded.actions,
			schedule = excluded.schedule,
			is_active = excluded.is_active,
			priority = excluded.priority,
			updated_at = excluded.updated_at
	`, r.ID.String(), r.Name, r.TriggerDays, docs.conditions, docs.actions, docs.schedule,
		r.IsActive, r.Priority, r.CreatedAt, r.UpdatedAt)

	return err
}

func scanRule(s scanner) (*models.RelanceRule, error) {
	r := &models.RelanceRule{}
	var conditions, actions, schedule string

	err := s.Scan(&r.ID, &r.Name, &r.TriggerDays, &conditions, &actions, &schedule,
		&r.IsActive, &r.Priority, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(conditions), &r.TriggerConditions); err != nil {
		return nil, fmt.Errorf("failed to decode trigger conditions of rule %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(actions), &r.Actions); err != nil {
		return nil, fmt.Errorf("failed to decode actions of rule %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(schedule), &r.Schedule); err != nil {
		return nil, fmt.Errorf("failed to decode schedule of rule %s: %w", r.ID, err)
	}

	return r, nil
}

func GetRule(ctx context.Context, db *sql.DB, id uuid.UUID) (*models.RelanceRule, error) {
	row := db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM relance_rules WHERE id = ?`, id.String())
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRules returns rules ordered by trigger threshold.
func ListRules(ctx context.Context, db *sql.DB, activeOnly bool) ([]models.RelanceRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM relance_rules`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY trigger_days ASC, priority DESC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var rules []models.RelanceRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}

	return rules, rows.Err()
}

// SetRuleActive toggles a rule on or off.
func SetRuleActive(ctx context.Context, db *sql.DB, id uuid.UUID, active bool) error {
	res, err := db.ExecContext(ctx, `UPDATE relance_rules SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now(), id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func DeleteRule(ctx context.Context, db *sql.DB, id uuid.UUID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM relance_rules WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRuleNotFound
	}
	return nil
}
