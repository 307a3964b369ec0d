// Package store persists biometric templates and their ledger-anchored
// bindings. Implementations must support safe concurrent reads; write
// serialization per (did, modality) key is the service's responsibility.
package store

import (
	"context"

	"bioanchor/internal/domain"
)

// TemplateStore owns enrollment IDs and feature vectors. Templates are
// immutable after creation.
type TemplateStore interface {
	SaveTemplate(ctx context.Context, template domain.BiometricTemplate) error
	FindTemplate(ctx context.Context, templateID string) (domain.BiometricTemplate, error)
}

// BindingStore tracks which template is live for each (did, modality) pair.
// Activating a binding supersedes any previously active binding for the same
// pair in the same write.
type BindingStore interface {
	// ActivateBinding marks binding active and supersedes the prior active
	// binding for (binding.DID, binding.Modality), if any.
	ActivateBinding(ctx context.Context, binding domain.TemplateBinding) error
	FindActiveBinding(ctx context.Context, did string, modality domain.Modality) (domain.TemplateBinding, error)
}

// Store combines both concerns; the in-memory, redis, and postgres
// implementations each satisfy it.
type Store interface {
	TemplateStore
	BindingStore
}
