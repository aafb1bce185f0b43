// ABOUTME: Export and import of rule and template documents through Charm KV
// ABOUTME: Rules are stored as JSON under rule:<id>, templates under template:<id>

package charm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
)

const (
	rulePrefix     = "rule:"
	templatePrefix = "template:"
)

// SyncReport counts the documents moved by Push or Pull.
type SyncReport struct {
	Rules     int `json:"rules"`
	Templates int `json:"templates"`
}

func ruleKey(r *models.RelanceRule) []byte {
	return []byte(rulePrefix + r.ID.String())
}

func templateKey(tpl *models.Template) []byte {
	return []byte(templatePrefix + tpl.ID)
}

// PushRules writes every rule and template in the database to the KV store.
// Rules removed locally are deleted remotely so the store mirrors the database.
func PushRules(ctx context.Context, c *Client, database *sql.DB) (SyncReport, error) {
	var report SyncReport

	rules, err := db.ListRules(ctx, database, false)
	if err != nil {
		return report, fmt.Errorf("failed to list rules: %w", err)
	}

	keep := make(map[string]bool, len(rules))
	for i := range rules {
		data, err := json.Marshal(&rules[i])
		if err != nil {
			return report, fmt.Errorf("failed to encode rule %s: %w", rules[i].ID, err)
		}
		key := ruleKey(&rules[i])
		if err := c.Set(key, data); err != nil {
			return report, fmt.Errorf("failed to store rule %s: %w", rules[i].ID, err)
		}
		keep[string(key)] = true
		report.Rules++
	}

	stale, err := c.KeysWithPrefix([]byte(rulePrefix))
	if err != nil {
		return report, fmt.Errorf("failed to list remote rules: %w", err)
	}
	for _, k := range stale {
		if !keep[string(k)] {
			if err := c.Delete(k); err != nil {
				return report, fmt.Errorf("failed to delete remote rule %s: %w", k, err)
			}
		}
	}

	templates, err := db.ListTemplates(ctx, database)
	if err != nil {
		return report, fmt.Errorf("failed to list templates: %w", err)
	}
	for i := range templates {
		data, err := json.Marshal(&templates[i])
		if err != nil {
			return report, fmt.Errorf("failed to encode template %s: %w", templates[i].ID, err)
		}
		if err := c.Set(templateKey(&templates[i]), data); err != nil {
			return report, fmt.Errorf("failed to store template %s: %w", templates[i].ID, err)
		}
		report.Templates++
	}

	return report, nil
}

// PullRules syncs with the server, then upserts every rule and template
// document into the database, keeping their ids.
func PullRules(ctx context.Context, c *Client, database *sql.DB) (SyncReport, error) {
	var report SyncReport

	if err := c.Sync(); err != nil {
		return report, fmt.Errorf("failed to sync: %w", err)
	}

	keys, err := c.Keys()
	if err != nil {
		return report, fmt.Errorf("failed to list documents: %w", err)
	}

	for _, k := range keys {
		key := string(k)
		switch {
		case strings.HasPrefix(key, rulePrefix):
			var r models.RelanceRule
			if err := getDocument(c, k, &r); err != nil {
				return report, err
			}
			if err := db.UpsertRule(ctx, database, &r); err != nil {
				return report, fmt.Errorf("failed to import rule %s: %w", r.Name, err)
			}
			report.Rules++
		case strings.HasPrefix(key, templatePrefix):
			var tpl models.Template
			if err := getDocument(c, k, &tpl); err != nil {
				return report, err
			}
			if err := db.UpsertTemplate(ctx, database, &tpl); err != nil {
				return report, fmt.Errorf("failed to import template %s: %w", tpl.ID, err)
			}
			report.Templates++
		}
	}

	return report, nil
}

func getDocument(c *Client, key []byte, v any) error {
	data, err := c.Get(key)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
