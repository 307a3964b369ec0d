// Package postgres opens the shared database connection and maintains the
// schema for the identity, biometric, and fraud stores.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// schema is idempotent so startup can apply it unconditionally.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS identity_records (
		did           TEXT PRIMARY KEY,
		document      JSONB NOT NULL,
		owner_id      TEXT NOT NULL,
		status        TEXT NOT NULL,
		anchor_tx_ref TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS identity_records_owner_idx ON identity_records (owner_id)`,
	`CREATE TABLE IF NOT EXISTS biometric_templates (
		template_id   TEXT PRIMARY KEY,
		modality      TEXT NOT NULL,
		features      JSONB NOT NULL,
		owner_user_id TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS template_bindings (
		did           TEXT NOT NULL,
		modality      TEXT NOT NULL,
		template_id   TEXT NOT NULL REFERENCES biometric_templates(template_id),
		owner_user_id TEXT NOT NULL,
		status        TEXT NOT NULL,
		anchor_tx_ref TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (did, modality)
	)`,
	`CREATE TABLE IF NOT EXISTS fraud_reports (
		id            TEXT PRIMARY KEY,
		did           TEXT NOT NULL DEFAULT '',
		type          TEXT NOT NULL,
		score         DOUBLE PRECISION NOT NULL,
		data          JSONB NOT NULL,
		details       JSONB NOT NULL,
		reported_at   TIMESTAMPTZ NOT NULL,
		anchor_tx_ref TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS fraud_reports_did_idx ON fraud_reports (did, reported_at)`,
}

// EnsureSchema creates the tables the stores expect.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
