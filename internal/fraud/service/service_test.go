package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bioanchor/internal/audit"
	"bioanchor/internal/domain"
	"bioanchor/internal/fraud/store"
	"bioanchor/internal/ledger"
	dErrors "bioanchor/pkg/domain-errors"
	"bioanchor/pkg/platform/sentinel"
)

type RiskScoringSuite struct {
	suite.Suite
	ctx     context.Context
	reports *store.InMemory
	anchors *ledger.Memory
	sink    *audit.Memory
	service *Service
}

func TestRiskScoringSuite(t *testing.T) {
	suite.Run(t, new(RiskScoringSuite))
}

func (s *RiskScoringSuite) SetupTest() {
	s.ctx = context.Background()
	s.reports = store.NewInMemory()
	s.anchors = ledger.NewMemory()
	s.sink = audit.NewMemory()
	s.service = New(s.reports, s.anchors, Config{},
		WithAuditPublisher(audit.NewPublisher(s.sink)),
		WithClock(func() time.Time {
			return time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)
		}),
	)
}

func (s *RiskScoringSuite) seedReports(did string, scores ...float64) {
	for _, score := range scores {
		_, err := s.service.RecordFraudEvent(s.ctx, ReportRequest{
			DID:   did,
			Type:  "identity",
			Score: score,
		})
		s.Require().NoError(err)
	}
}

func (s *RiskScoringSuite) TestScoreNoHistoryNoFactorsIsZero() {
	assessment, err := s.service.Score(s.ctx, domain.NewDID(), domain.RiskFactors{})
	s.Require().NoError(err)
	s.Zero(assessment.Score)
	s.Equal(domain.RiskLevelLow, assessment.Level)
	s.Zero(assessment.ReportCount)
}

func (s *RiskScoringSuite) TestScoreFactorsOnly() {
	assessment, err := s.service.Score(s.ctx, domain.NewDID(), domain.RiskFactors{
		UnusualBehavior: true,
		DeviceAnomaly:   true,
	})
	s.Require().NoError(err)
	s.InDelta(0.30, assessment.Score, 1e-9)
	s.Equal(domain.RiskLevelLow, assessment.Level)
}

func (s *RiskScoringSuite) TestScoreHistoryOnly() {
	did := domain.NewDID()
	s.seedReports(did, 0.8, 0.9)

	assessment, err := s.service.Score(s.ctx, did, domain.RiskFactors{})
	s.Require().NoError(err)
	s.InDelta(0.17, assessment.Score, 1e-9)
	s.Equal(domain.RiskLevelLow, assessment.Level)
	s.Equal(2, assessment.ReportCount)
}

func (s *RiskScoringSuite) TestScoreHistoryPlusFactorReachesMedium() {
	did := domain.NewDID()
	s.seedReports(did, 0.9, 0.9, 0.9)

	assessment, err := s.service.Score(s.ctx, did, domain.RiskFactors{UnusualBehavior: true})
	s.Require().NoError(err)
	s.InDelta(0.47, assessment.Score, 1e-9)
	s.Equal(domain.RiskLevelMedium, assessment.Level)
}

func (s *RiskScoringSuite) TestScoreCappedAtOne() {
	did := domain.NewDID()
	scores := make([]float64, 15)
	for i := range scores {
		scores[i] = 1.0
	}
	s.seedReports(did, scores...)

	assessment, err := s.service.Score(s.ctx, did, domain.RiskFactors{})
	s.Require().NoError(err)
	s.Equal(1.0, assessment.Score)
	s.Equal(domain.RiskLevelHigh, assessment.Level)
}

func (s *RiskScoringSuite) TestScoreMonotonicInHistoryAndFactors() {
	did := domain.NewDID()
	base, err := s.service.Score(s.ctx, did, domain.RiskFactors{})
	s.Require().NoError(err)

	s.seedReports(did, 0.5)
	withReport, err := s.service.Score(s.ctx, did, domain.RiskFactors{})
	s.Require().NoError(err)
	s.GreaterOrEqual(withReport.Score, base.Score)

	withFactor, err := s.service.Score(s.ctx, did, domain.RiskFactors{LocationMismatch: true})
	s.Require().NoError(err)
	s.GreaterOrEqual(withFactor.Score, withReport.Score)
}

func (s *RiskScoringSuite) TestScoreRejectsMalformedDID() {
	_, err := s.service.Score(s.ctx, "bogus", domain.RiskFactors{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *RiskScoringSuite) TestHighSeverityEventWithDIDIsAnchored() {
	did := domain.NewDID()
	report, err := s.service.RecordFraudEvent(s.ctx, ReportRequest{
		DID:     did,
		Type:    "deepfake",
		Score:   0.95,
		Details: map[string]any{"model": "synthvoice"},
	})
	s.Require().NoError(err)
	s.NotEmpty(report.AnchorTxRef)

	anchored, err := s.anchors.Lookup(s.ctx, ledger.FraudKey(did, report.ID))
	s.Require().NoError(err)
	var payload anchorPayload
	s.Require().NoError(json.Unmarshal(anchored, &payload))
	s.Equal(domain.FraudTypeDeepfake, payload.Type)
	s.Equal(95, payload.ScoreBps)
}

func (s *RiskScoringSuite) TestLowSeverityEventIsNotAnchored() {
	report, err := s.service.RecordFraudEvent(s.ctx, ReportRequest{
		DID:   domain.NewDID(),
		Type:  "identity",
		Score: 0.5,
	})
	s.Require().NoError(err)
	s.Empty(report.AnchorTxRef)
}

func (s *RiskScoringSuite) TestThresholdScoreIsNotAnchored() {
	// Anchoring requires score strictly above the threshold.
	report, err := s.service.RecordFraudEvent(s.ctx, ReportRequest{
		DID:   domain.NewDID(),
		Type:  "identity",
		Score: 0.7,
	})
	s.Require().NoError(err)
	s.Empty(report.AnchorTxRef)
}

func (s *RiskScoringSuite) TestEventWithoutDIDIsPersistedNotAnchored() {
	report, err := s.service.RecordFraudEvent(s.ctx, ReportRequest{
		Type:  "deepfake",
		Score: 0.99,
	})
	s.Require().NoError(err)
	s.Empty(report.AnchorTxRef)

	reports, err := s.reports.List(s.ctx)
	s.Require().NoError(err)
	s.Len(reports, 1)
}

func (s *RiskScoringSuite) TestAnchorFailureStillPersistsReport() {
	s.anchors.FailCommits(sentinel.ErrUnavailable)

	did := domain.NewDID()
	report, err := s.service.RecordFraudEvent(s.ctx, ReportRequest{
		DID:   did,
		Type:  "identity",
		Score: 0.9,
	})
	s.Require().NoError(err)
	s.Empty(report.AnchorTxRef)

	reports, err := s.reports.ListByDID(s.ctx, did)
	s.Require().NoError(err)
	s.Len(reports, 1)
}

func (s *RiskScoringSuite) TestRecordFraudEventValidation() {
	for name, req := range map[string]ReportRequest{
		"unknown type":  {Type: "phishing", Score: 0.5},
		"score above 1": {Type: "identity", Score: 1.5},
		"score below 0": {Type: "identity", Score: -0.1},
		"malformed did": {DID: "bogus", Type: "identity", Score: 0.5},
	} {
		s.Run(name, func() {
			_, err := s.service.RecordFraudEvent(s.ctx, req)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func (s *RiskScoringSuite) TestPerTypeThresholdOverride() {
	svc := New(s.reports, s.anchors, Config{
		AnchorThresholds: map[domain.FraudType]float64{domain.FraudTypeIdentity: 0.3},
	})

	report, err := svc.RecordFraudEvent(s.ctx, ReportRequest{
		DID:   domain.NewDID(),
		Type:  "identity",
		Score: 0.4,
	})
	s.Require().NoError(err)
	s.NotEmpty(report.AnchorTxRef)
}

func (s *RiskScoringSuite) TestReportsFilterByDID() {
	did := domain.NewDID()
	s.seedReports(did, 0.2)
	s.seedReports(domain.NewDID(), 0.3)

	filtered, err := s.service.Reports(s.ctx, did)
	s.Require().NoError(err)
	s.Len(filtered, 1)

	all, err := s.service.Reports(s.ctx, "")
	s.Require().NoError(err)
	s.Len(all, 2)
}

func TestScoreBasisPointsRoundTrip(t *testing.T) {
	for _, score := range []float64{0, 0.01, 0.33, 0.7, 0.95, 1} {
		bps := ScoreBasisPoints(score)
		if got := ScoreFromBasisPoints(bps); got != score {
			t.Fatalf("round trip %v: got %v", score, got)
		}
	}
}
