package domain

import (
	"time"

	dErrors "bioanchor/pkg/domain-errors"
)

// Modality is a biometric category. Thresholds, feature dimensionality, and
// similarity semantics are modality-specific.
type Modality string

const (
	ModalityFace        Modality = "face"
	ModalityFingerprint Modality = "fingerprint"
)

// ParseModality validates a modality string from an untrusted boundary.
func ParseModality(s string) (Modality, error) {
	switch Modality(s) {
	case ModalityFace, ModalityFingerprint:
		return Modality(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unsupported modality %q", s)
	}
}

// FeatureVector is the numeric feature representation produced by an
// extractor. Face embeddings carry a single row; fingerprint templates carry
// one row per detected descriptor. Row order carries no meaning for
// descriptor sets; comparisons must not depend on it.
type FeatureVector [][]float64

// Empty reports whether no usable feature rows are present.
func (v FeatureVector) Empty() bool {
	if len(v) == 0 {
		return true
	}
	for _, row := range v {
		if len(row) > 0 {
			return false
		}
	}
	return true
}

// Clone deep-copies the vector so stored templates cannot alias caller memory.
func (v FeatureVector) Clone() FeatureVector {
	if v == nil {
		return nil
	}
	out := make(FeatureVector, len(v))
	for i, row := range v {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// BiometricTemplate is a stored feature representation of an enrolled sample.
// Immutable after creation: re-enrollment creates a new template ID and
// supersedes the prior active one for the same (owner, modality) pair.
type BiometricTemplate struct {
	TemplateID  string
	Modality    Modality
	Features    FeatureVector
	OwnerUserID string
	CreatedAt   time.Time
}

// BindingStatus tracks whether a template binding is live for verification.
type BindingStatus string

const (
	// BindingStatusPending marks a binding whose anchor commit has not yet
	// confirmed. Pending bindings never serve verification.
	BindingStatusPending BindingStatus = "pending"
	BindingStatusActive  BindingStatus = "active"
	// BindingStatusSuperseded marks a binding replaced by a re-enrollment.
	BindingStatusSuperseded BindingStatus = "superseded"
)

// TemplateBinding associates the active template for a (did, modality) pair
// with the ledger transaction that anchored its commitment.
//
// Invariant: a binding may only become active after the commitment derived
// from its template's feature vector has been confirmed on the ledger, and
// AnchorTxRef records that transaction.
type TemplateBinding struct {
	DID         string
	Modality    Modality
	TemplateID  string
	OwnerUserID string
	Status      BindingStatus
	AnchorTxRef string
	CreatedAt   time.Time
}
