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

// Postgres persists templates and bindings durably. Expected schema:
//
//	CREATE TABLE biometric_templates (
//	    template_id   TEXT PRIMARY KEY,
//	    modality      TEXT NOT NULL,
//	    features      JSONB NOT NULL,
//	    owner_user_id TEXT NOT NULL,
//	    created_at    TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE template_bindings (
//	    did           TEXT NOT NULL,
//	    modality      TEXT NOT NULL,
//	    template_id   TEXT NOT NULL REFERENCES biometric_templates(template_id),
//	    owner_user_id TEXT NOT NULL,
//	    status        TEXT NOT NULL,
//	    anchor_tx_ref TEXT NOT NULL,
//	    created_at    TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (did, modality)
//	);
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) SaveTemplate(ctx context.Context, template domain.BiometricTemplate) error {
	features, err := json.Marshal(template.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO biometric_templates (template_id, modality, features, owner_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		template.TemplateID, string(template.Modality), features, template.OwnerUserID, template.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

func (s *Postgres) FindTemplate(ctx context.Context, templateID string) (domain.BiometricTemplate, error) {
	var template domain.BiometricTemplate
	var modality string
	var features []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT template_id, modality, features, owner_user_id, created_at
		FROM biometric_templates WHERE template_id = $1`,
		templateID).Scan(&template.TemplateID, &modality, &features, &template.OwnerUserID, &template.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BiometricTemplate{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.BiometricTemplate{}, fmt.Errorf("find template: %w", err)
	}
	template.Modality = domain.Modality(modality)
	if err := json.Unmarshal(features, &template.Features); err != nil {
		return domain.BiometricTemplate{}, fmt.Errorf("decode features: %w", err)
	}
	return template, nil
}

// ActivateBinding upserts the (did, modality) row. The primary key makes the
// supersede implicit: only one binding per pair exists, and the insert of a
// re-enrollment overwrites the prior one atomically.
func (s *Postgres) ActivateBinding(ctx context.Context, binding domain.TemplateBinding) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO template_bindings (did, modality, template_id, owner_user_id, status, anchor_tx_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (did, modality) DO UPDATE SET
			template_id = EXCLUDED.template_id,
			owner_user_id = EXCLUDED.owner_user_id,
			status = EXCLUDED.status,
			anchor_tx_ref = EXCLUDED.anchor_tx_ref,
			created_at = EXCLUDED.created_at`,
		binding.DID, string(binding.Modality), binding.TemplateID, binding.OwnerUserID,
		string(domain.BindingStatusActive), binding.AnchorTxRef, binding.CreatedAt)
	if err != nil {
		return fmt.Errorf("activate binding: %w", err)
	}
	return nil
}

func (s *Postgres) FindActiveBinding(ctx context.Context, did string, modality domain.Modality) (domain.TemplateBinding, error) {
	var binding domain.TemplateBinding
	var mod, status string
	err := s.db.QueryRowContext(ctx, `
		SELECT did, modality, template_id, owner_user_id, status, anchor_tx_ref, created_at
		FROM template_bindings WHERE did = $1 AND modality = $2 AND status = $3`,
		did, string(modality), string(domain.BindingStatusActive)).
		Scan(&binding.DID, &mod, &binding.TemplateID, &binding.OwnerUserID, &status, &binding.AnchorTxRef, &binding.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TemplateBinding{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.TemplateBinding{}, fmt.Errorf("find binding: %w", err)
	}
	binding.Modality = domain.Modality(mod)
	binding.Status = domain.BindingStatus(status)
	return binding, nil
}
