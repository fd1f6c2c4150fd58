package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := Bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Bootstrap creates tables/indexes if missing.
//
// contacts and opportunities are the canonical records, keyed by
// (source_system, source_id) so that re-delivered webhooks converge on one
// row. integration_events is append-only. webhook_deliveries rows are created
// in status 'received' before any business logic runs and transition exactly
// once to 'processed' or 'failed'.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS contacts (
  id                TEXT PRIMARY KEY,
  source_system     TEXT NOT NULL,
  source_id         TEXT NOT NULL,
  email             TEXT,
  first_name        TEXT,
  last_name         TEXT,
  phone             TEXT,
  company           TEXT,
  engagement_status TEXT NOT NULL DEFAULT 'lead',
  projects          JSON NOT NULL DEFAULT '[]',
  tags              JSON NOT NULL DEFAULT '[]',
  custom_fields     JSON NOT NULL DEFAULT '{}',
  sync_status       TEXT NOT NULL DEFAULT 'synced',
  created_at        TEXT NOT NULL,
  updated_at        TEXT NOT NULL,
  last_synced_at    TEXT NOT NULL,
  UNIQUE(source_system, source_id)
);`,
		`CREATE TABLE IF NOT EXISTS opportunities (
  id                TEXT PRIMARY KEY,
  source_system     TEXT NOT NULL,
  source_id         TEXT NOT NULL,
  contact_source_id TEXT,
  name              TEXT,
  pipeline_id       TEXT,
  stage_id          TEXT,
  status            TEXT,
  monetary_value    REAL NOT NULL DEFAULT 0,
  assigned_to       TEXT,
  custom_fields     JSON NOT NULL DEFAULT '{}',
  sync_status       TEXT NOT NULL DEFAULT 'synced',
  created_at        TEXT NOT NULL,
  updated_at        TEXT NOT NULL,
  last_synced_at    TEXT NOT NULL,
  UNIQUE(source_system, source_id)
);`,
		`CREATE TABLE IF NOT EXISTS integration_events (
  id           TEXT PRIMARY KEY,
  source       TEXT NOT NULL,
  event_type   TEXT NOT NULL,
  entity_type  TEXT NOT NULL,
  entity_id    TEXT,
  action       TEXT NOT NULL,
  payload      JSON,
  latency_ms   INTEGER NOT NULL DEFAULT 0,
  error        TEXT,
  processed_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
  id           TEXT PRIMARY KEY,
  source       TEXT NOT NULL,
  event_type   TEXT,
  status       TEXT NOT NULL,
  raw_body     TEXT,
  body_digest  TEXT,
  error        TEXT,
  received_at  TEXT NOT NULL,
  processed_at TEXT
);`,
		`CREATE INDEX IF NOT EXISTS webhook_deliveries_status_received_at_idx ON webhook_deliveries(status, received_at);`,
		`CREATE INDEX IF NOT EXISTS integration_events_source_processed_at_idx ON integration_events(source, processed_at);`,
		`CREATE INDEX IF NOT EXISTS contacts_sync_status_idx ON contacts(sync_status);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
