package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"bioanchor/internal/domain"
	"bioanchor/pkg/platform/sentinel"
)

// Postgres persists fraud reports durably. Expected schema:
//
//	CREATE TABLE fraud_reports (
//	    id            TEXT PRIMARY KEY,
//	    did           TEXT NOT NULL DEFAULT '',
//	    type          TEXT NOT NULL,
//	    score         DOUBLE PRECISION NOT NULL,
//	    data          JSONB NOT NULL,
//	    details       JSONB NOT NULL,
//	    reported_at   TIMESTAMPTZ NOT NULL,
//	    anchor_tx_ref TEXT NOT NULL DEFAULT ''
//	);
//	CREATE INDEX fraud_reports_did_idx ON fraud_reports (did, reported_at);
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Append(ctx context.Context, report domain.FraudReport) error {
	data, err := json.Marshal(report.Data)
	if err != nil {
		return fmt.Errorf("marshal report data: %w", err)
	}
	details, err := json.Marshal(report.Details)
	if err != nil {
		return fmt.Errorf("marshal report details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fraud_reports (id, did, type, score, data, details, reported_at, anchor_tx_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		report.ID, report.DID, string(report.Type), report.Score, data, details,
		report.Timestamp, report.AnchorTxRef)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("append fraud report: %w", err)
	}
	return nil
}

func (s *Postgres) ListByDID(ctx context.Context, did string) ([]domain.FraudReport, error) {
	return s.query(ctx, `
		SELECT id, did, type, score, data, details, reported_at, anchor_tx_ref
		FROM fraud_reports WHERE did = $1 ORDER BY reported_at`, did)
}

func (s *Postgres) List(ctx context.Context) ([]domain.FraudReport, error) {
	return s.query(ctx, `
		SELECT id, did, type, score, data, details, reported_at, anchor_tx_ref
		FROM fraud_reports ORDER BY reported_at`)
}

func (s *Postgres) query(ctx context.Context, q string, args ...any) ([]domain.FraudReport, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list fraud reports: %w", err)
	}
	defer rows.Close()

	var out []domain.FraudReport
	for rows.Next() {
		var report domain.FraudReport
		var fraudType string
		var data, details []byte
		if err := rows.Scan(&report.ID, &report.DID, &fraudType, &report.Score,
			&data, &details, &report.Timestamp, &report.AnchorTxRef); err != nil {
			return nil, fmt.Errorf("scan fraud report: %w", err)
		}
		report.Type = domain.FraudType(fraudType)
		if err := json.Unmarshal(data, &report.Data); err != nil {
			return nil, fmt.Errorf("decode report data: %w", err)
		}
		if err := json.Unmarshal(details, &report.Details); err != nil {
			return nil, fmt.Errorf("decode report details: %w", err)
		}
		out = append(out, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list fraud reports: %w", err)
	}
	return out, nil
}
