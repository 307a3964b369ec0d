package domain

import (
	"time"

	dErrors "bioanchor/pkg/domain-errors"
)

// FraudType classifies a fraud report.
type FraudType string

const (
	FraudTypeIdentity FraudType = "identity"
	FraudTypeDeepfake FraudType = "deepfake"
)

// ParseFraudType validates a fraud type string from an untrusted boundary.
func ParseFraudType(s string) (FraudType, error) {
	switch FraudType(s) {
	case FraudTypeIdentity, FraudTypeDeepfake:
		return FraudType(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unsupported fraud type %q", s)
	}
}

// FraudReport is an append-only record of a detection outcome. Reports are
// never mutated; the anchor reference is set at creation time if the report
// qualified for on-chain anchoring.
type FraudReport struct {
	ID          string
	DID         string
	Type        FraudType
	Score       float64
	Data        map[string]any
	Details     map[string]any
	Timestamp   time.Time
	AnchorTxRef string
}

// RiskFactors are the transient situational signals considered alongside the
// report history when scoring a DID. Each factor contributes a fixed,
// order-insensitive additive weight.
type RiskFactors struct {
	UnusualBehavior  bool
	LocationMismatch bool
	DeviceAnomaly    bool
}

// RiskLevel buckets a numeric risk score.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "Low"
	RiskLevelMedium RiskLevel = "Medium"
	RiskLevelHigh   RiskLevel = "High"
)

// RiskAssessment is computed on demand from history plus factors; it is never
// persisted as an entity.
type RiskAssessment struct {
	DID         string
	Score       float64
	Level       RiskLevel
	ReportCount int
	AssessedAt  time.Time
}
