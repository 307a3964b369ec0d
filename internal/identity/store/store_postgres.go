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

// Postgres persists identity records durably. Expected schema:
//
//	CREATE TABLE identity_records (
//	    did           TEXT PRIMARY KEY,
//	    document      JSONB NOT NULL,
//	    owner_id      TEXT NOT NULL,
//	    status        TEXT NOT NULL,
//	    anchor_tx_ref TEXT NOT NULL,
//	    created_at    TIMESTAMPTZ NOT NULL,
//	    updated_at    TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX identity_records_owner_idx ON identity_records (owner_id);
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, record domain.IdentityRecord) error {
	document, err := json.Marshal(record.Document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO identity_records (did, document, owner_id, status, anchor_tx_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.DID, document, record.Owner, string(record.Status), record.AnchorTxRef,
		record.CreatedAt, record.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create identity record: %w", err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, record domain.IdentityRecord) error {
	document, err := json.Marshal(record.Document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE identity_records
		SET document = $2, owner_id = $3, status = $4, anchor_tx_ref = $5, updated_at = $6
		WHERE did = $1`,
		record.DID, document, record.Owner, string(record.Status), record.AnchorTxRef, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update identity record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update identity record: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) Find(ctx context.Context, did string) (domain.IdentityRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT did, document, owner_id, status, anchor_tx_ref, created_at, updated_at
		FROM identity_records WHERE did = $1`, did)
	record, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdentityRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.IdentityRecord{}, fmt.Errorf("find identity record: %w", err)
	}
	return record, nil
}

func (s *Postgres) ListByOwner(ctx context.Context, owner string) ([]domain.IdentityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT did, document, owner_id, status, anchor_tx_ref, created_at, updated_at
		FROM identity_records WHERE owner_id = $1 ORDER BY created_at`, owner)
	if err != nil {
		return nil, fmt.Errorf("list identity records: %w", err)
	}
	defer rows.Close()

	var out []domain.IdentityRecord
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan identity record: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list identity records: %w", err)
	}
	return out, nil
}

func scanRecord(scan func(dest ...any) error) (domain.IdentityRecord, error) {
	var record domain.IdentityRecord
	var document []byte
	var status string
	if err := scan(&record.DID, &document, &record.Owner, &status, &record.AnchorTxRef,
		&record.CreatedAt, &record.UpdatedAt); err != nil {
		return domain.IdentityRecord{}, err
	}
	record.Status = domain.RecordStatus(status)
	if err := json.Unmarshal(document, &record.Document); err != nil {
		return domain.IdentityRecord{}, fmt.Errorf("decode document: %w", err)
	}
	return record, nil
}
