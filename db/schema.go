// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation for dossiers, invoices, rules, events and tick runs
package db

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS dossiers (
	id TEXT PRIMARY KEY,
	manager_id TEXT NOT NULL,
	reference TEXT NOT NULL DEFAULT '',
	client_name TEXT NOT NULL,
	client_email TEXT NOT NULL DEFAULT '',
	client_phone TEXT NOT NULL DEFAULT '',
	total_amount TEXT NOT NULL DEFAULT '0',
	original_amount TEXT NOT NULL DEFAULT '0',
	paid_amount TEXT NOT NULL DEFAULT '0',
	status TEXT NOT NULL DEFAULT 'initial' CHECK(status IN ('initial', 'reminder_1', 'reminder_2', 'critical')),
	days_overdue INTEGER NOT NULL DEFAULT 0 CHECK(days_overdue >= 0),
	priority TEXT NOT NULL DEFAULT 'medium' CHECK(priority IN ('low', 'medium', 'high', 'urgent')),
	tags TEXT NOT NULL DEFAULT '[]',
	last_contact DATETIME,
	reset_at DATETIME,
	closed_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dossiers_status ON dossiers(status);
CREATE INDEX IF NOT EXISTS idx_dossiers_manager_id ON dossiers(manager_id);

CREATE TABLE IF NOT EXISTS invoices (
	id TEXT PRIMARY KEY,
	dossier_id TEXT NOT NULL,
	number TEXT NOT NULL,
	amount TEXT NOT NULL DEFAULT '0',
	original_amount TEXT NOT NULL DEFAULT '0',
	paid_amount TEXT NOT NULL DEFAULT '0',
	due_date TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open', 'overdue', 'partially_paid', 'paid')),
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (dossier_id) REFERENCES dossiers(id)
);

CREATE INDEX IF NOT EXISTS idx_invoices_dossier_id ON invoices(dossier_id);

CREATE TABLE IF NOT EXISTS relance_rules (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	trigger_days INTEGER NOT NULL,
	trigger_conditions TEXT NOT NULL DEFAULT '{}',
	actions TEXT NOT NULL DEFAULT '[]',
	schedule TEXT NOT NULL DEFAULT '{}',
	is_active INTEGER NOT NULL DEFAULT 1,
	priority INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relance_rules_trigger ON relance_rules(trigger_days);

CREATE TABLE IF NOT EXISTS relance_events (
	id TEXT PRIMARY KEY,
	dossier_id TEXT NOT NULL,
	rule_id TEXT,
	action_index INTEGER NOT NULL DEFAULT 0,
	date TEXT NOT NULL,
	time TEXT NOT NULL,
	type TEXT NOT NULL CHECK(type IN ('email', 'sms', 'call', 'letter', 'status_change')),
	status TEXT NOT NULL DEFAULT 'scheduled' CHECK(status IN ('scheduled', 'in_flight', 'completed', 'failed', 'cancelled')),
	template_id TEXT NOT NULL DEFAULT '',
	new_status TEXT NOT NULL DEFAULT '',
	assign_to TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL DEFAULT 'medium',
	is_automatic INTEGER NOT NULL DEFAULT 0,
	result TEXT NOT NULL DEFAULT '',
	awaiting_manual INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relance_events_date ON relance_events(date, time);
CREATE INDEX IF NOT EXISTS idx_relance_events_dossier ON relance_events(dossier_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_relance_events_automatic
	ON relance_events(dossier_id, rule_id, action_index, date) WHERE is_automatic = 1;

CREATE TABLE IF NOT EXISTS templates (
	id TEXT PRIMARY KEY,
	channel TEXT NOT NULL CHECK(channel IN ('email', 'sms')),
	subject TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tick_runs (
	id TEXT PRIMARY KEY,
	as_of DATETIME NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	dossiers INTEGER NOT NULL DEFAULT 0,
	created INTEGER NOT NULL DEFAULT 0,
	escalated INTEGER NOT NULL DEFAULT 0,
	dispatched INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	config_errors INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tick_runs_started ON tick_runs(started_at DESC);
`

func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	return addColumn(db, "relance_events", "awaiting_manual", "INTEGER NOT NULL DEFAULT 0")
}

// addColumn adds a column to a table created before the column existed.
func addColumn(db *sql.DB, table, column, definition string) error {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	if count > 0 {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}
