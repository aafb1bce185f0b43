// ABOUTME: Message template database operations
// ABOUTME: Stores user-defined email and SMS templates keyed by a short id
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/relance/models"
)

var ErrTemplateNotFound = errors.New("template not found")

// UpsertTemplate creates or replaces a template by id.
func UpsertTemplate(ctx context.Context, db *sql.DB, tpl *models.Template) error {
	if tpl.ID == "" {
		return fmt.Errorf("template id is required")
	}
	if tpl.Channel != models.ActionEmail && tpl.Channel != models.ActionSMS {
		return fmt.Errorf("templates are only supported for email and sms, got %s", tpl.Channel)
	}
	if tpl.Body == "" {
		return fmt.Errorf("template body is required")
	}

	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO templates (id, channel, subject, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel = excluded.channel,
			subject = excluded.subject,
			body = excluded.body,
			updated_at = excluded.updated_at
	`, tpl.ID, string(tpl.Channel), tpl.Subject, tpl.Body, now, now)
	return err
}

func GetTemplate(ctx context.Context, db *sql.DB, id string) (*models.Template, error) {
	tpl := &models.Template{}
	var channel string
	err := db.QueryRowContext(ctx, `SELECT id, channel, subject, body FROM templates WHERE id = ?`, id).
		Scan(&tpl.ID, &channel, &tpl.Subject, &tpl.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	tpl.Channel = models.ActionType(channel)
	return tpl, nil
}

func ListTemplates(ctx context.Context, db *sql.DB) ([]models.Template, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, channel, subject, body FROM templates ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var templates []models.Template
	for rows.Next() {
		var tpl models.Template
		var channel string
		if err := rows.Scan(&tpl.ID, &channel, &tpl.Subject, &tpl.Body); err != nil {
			return nil, err
		}
		tpl.Channel = models.ActionType(channel)
		templates = append(templates, tpl)
	}

	return templates, rows.Err()
}
