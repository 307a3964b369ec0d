// Package service implements the risk scoring engine: on-demand risk
// assessment over the fraud report history and append-only fraud event
// recording with best-effort on-chain anchoring of high-severity events.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"bioanchor/internal/audit"
	"bioanchor/internal/domain"
	fraudmetrics "bioanchor/internal/fraud/metrics"
	"bioanchor/internal/fraud/store"
	"bioanchor/internal/ledger"
	dErrors "bioanchor/pkg/domain-errors"
)

// Scoring weights. Each historical report contributes a tenth of its score;
// each active situational factor contributes a fixed additive weight. The
// sum is capped at 1.0.
const (
	reportWeight           = 0.1
	unusualBehaviorWeight  = 0.20
	locationMismatchWeight = 0.15
	deviceAnomalyWeight    = 0.10

	highRiskThreshold   = 0.7
	mediumRiskThreshold = 0.4

	// DefaultAnchorThreshold is the per-type score above which a fraud
	// event qualifies for on-chain anchoring.
	DefaultAnchorThreshold = 0.7
)

// Config carries per-type anchor thresholds. Types absent from the map use
// DefaultAnchorThreshold.
type Config struct {
	AnchorThresholds map[domain.FraudType]float64
}

func (c Config) anchorThreshold(t domain.FraudType) float64 {
	if threshold, ok := c.AnchorThresholds[t]; ok {
		return threshold
	}
	return DefaultAnchorThreshold
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the risk scoring engine over the report store and the anchor
// ledger.
type Service struct {
	reports store.ReportStore
	anchors ledger.AnchorLedger
	cfg     Config
	logger  *slog.Logger
	auditor AuditPublisher
	metrics *fraudmetrics.Metrics
	now     func() time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

func WithMetrics(m *fraudmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source. Tests use this for stable timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(reports store.ReportStore, anchors ledger.AnchorLedger, cfg Config, opts ...Option) *Service {
	s := &Service{
		reports: reports,
		anchors: anchors,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the risk assessment for a DID from its report history plus
// transient factors. It is a pure function of both: equal history and equal
// factors always produce the same score and level.
func (s *Service) Score(ctx context.Context, did string, factors domain.RiskFactors) (domain.RiskAssessment, error) {
	if !domain.ValidDID(did) {
		return domain.RiskAssessment{}, dErrors.Newf(dErrors.CodeInvalidInput, "malformed DID %q", did)
	}

	history, err := s.reports.ListByDID(ctx, did)
	if err != nil {
		return domain.RiskAssessment{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load report history")
	}

	score := 0.0
	for _, report := range history {
		score += report.Score * reportWeight
	}
	if factors.UnusualBehavior {
		score += unusualBehaviorWeight
	}
	if factors.LocationMismatch {
		score += locationMismatchWeight
	}
	if factors.DeviceAnomaly {
		score += deviceAnomalyWeight
	}
	score = math.Min(score, 1.0)

	assessment := domain.RiskAssessment{
		DID:         did,
		Score:       score,
		Level:       levelFor(score),
		ReportCount: len(history),
		AssessedAt:  s.now().UTC(),
	}
	if s.metrics != nil {
		s.metrics.IncrementAssessment(string(assessment.Level))
	}
	return assessment, nil
}

func levelFor(score float64) domain.RiskLevel {
	switch {
	case score >= highRiskThreshold:
		return domain.RiskLevelHigh
	case score >= mediumRiskThreshold:
		return domain.RiskLevelMedium
	default:
		return domain.RiskLevelLow
	}
}

// ReportRequest records one fraud event. DID is optional: events without a
// subject DID are persisted but never anchored.
type ReportRequest struct {
	DID     string
	Type    string
	Score   float64
	Data    map[string]any
	Details map[string]any
}

// RecordFraudEvent persists a fraud report and, when the score exceeds the
// type's anchor threshold and a DID is present, anchors it on the ledger.
// Anchoring is best-effort: its failure is logged and the report is kept
// without an anchor reference.
func (s *Service) RecordFraudEvent(ctx context.Context, req ReportRequest) (domain.FraudReport, error) {
	fraudType, err := domain.ParseFraudType(req.Type)
	if err != nil {
		return domain.FraudReport{}, err
	}
	if req.Score < 0 || req.Score > 1 {
		return domain.FraudReport{}, dErrors.Newf(dErrors.CodeInvalidInput, "score %v outside [0,1]", req.Score)
	}
	if req.DID != "" && !domain.ValidDID(req.DID) {
		return domain.FraudReport{}, dErrors.Newf(dErrors.CodeInvalidInput, "malformed DID %q", req.DID)
	}

	report := domain.FraudReport{
		ID:        uuid.NewString(),
		DID:       req.DID,
		Type:      fraudType,
		Score:     req.Score,
		Data:      req.Data,
		Details:   req.Details,
		Timestamp: s.now().UTC(),
	}

	if req.DID != "" && req.Score > s.cfg.anchorThreshold(fraudType) {
		if txRef, err := s.anchorReport(ctx, report); err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "fraud event anchoring failed",
					"did", req.DID, "type", string(fraudType), "error", err)
			}
		} else {
			report.AnchorTxRef = string(txRef)
		}
	}

	if err := s.reports.Append(ctx, report); err != nil {
		return domain.FraudReport{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist fraud report")
	}

	s.emitAudit(ctx, audit.Event{
		DID:     report.DID,
		Action:  audit.ActionFraudEventRecorded,
		Outcome: "ok",
		Detail:  string(fraudType),
	})
	if s.metrics != nil {
		s.metrics.IncrementEvent(string(fraudType), report.AnchorTxRef != "")
	}
	return report, nil
}

// Reports lists fraud reports, filtered by DID when one is given.
func (s *Service) Reports(ctx context.Context, did string) ([]domain.FraudReport, error) {
	var (
		reports []domain.FraudReport
		err     error
	)
	if did == "" {
		reports, err = s.reports.List(ctx)
	} else {
		reports, err = s.reports.ListByDID(ctx, did)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list fraud reports")
	}
	return reports, nil
}

// anchorPayload is the canonical on-chain encoding of a qualifying fraud
// event. The score is stored in basis points of 0.01, matching the 0–1.0
// score range losslessly.
type anchorPayload struct {
	Type     domain.FraudType `json:"type"`
	ScoreBps int              `json:"score_bps"`
	Details  map[string]any   `json:"details,omitempty"`
}

func (s *Service) anchorReport(ctx context.Context, report domain.FraudReport) (ledger.TxRef, error) {
	payload, err := json.Marshal(anchorPayload{
		Type:     report.Type,
		ScoreBps: ScoreBasisPoints(report.Score),
		Details:  report.Details,
	})
	if err != nil {
		return "", err
	}
	return s.anchors.Commit(ctx, ledger.FraudKey(report.DID, report.ID), payload)
}

// ScoreBasisPoints converts a [0,1] score to hundredths for on-chain
// storage.
func ScoreBasisPoints(score float64) int {
	return int(math.Round(score * 100))
}

// ScoreFromBasisPoints reverses ScoreBasisPoints.
func ScoreFromBasisPoints(bps int) float64 {
	return float64(bps) / 100
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
