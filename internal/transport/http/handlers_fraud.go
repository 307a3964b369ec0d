package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"bioanchor/internal/domain"
	fraudservice "bioanchor/internal/fraud/service"
	"bioanchor/pkg/platform/httputil"
)

// FraudService is the risk scoring engine surface the handlers call.
type FraudService interface {
	Score(ctx context.Context, did string, factors domain.RiskFactors) (domain.RiskAssessment, error)
	RecordFraudEvent(ctx context.Context, req fraudservice.ReportRequest) (domain.FraudReport, error)
	Reports(ctx context.Context, did string) ([]domain.FraudReport, error)
}

type FraudHandler struct {
	service FraudService
	logger  *slog.Logger
}

type fraudReportRequest struct {
	DID     string         `json:"did,omitempty"`
	Type    string         `json:"type"`
	Score   float64        `json:"score"`
	Data    map[string]any `json:"data,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type fraudReportResponse struct {
	ID          string         `json:"id"`
	DID         string         `json:"did,omitempty"`
	Type        string         `json:"type"`
	Score       float64        `json:"score"`
	Data        map[string]any `json:"data,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	AnchorTxRef string         `json:"anchor_tx_ref,omitempty"`
}

func toReportResponse(report domain.FraudReport) fraudReportResponse {
	return fraudReportResponse{
		ID:          report.ID,
		DID:         report.DID,
		Type:        string(report.Type),
		Score:       report.Score,
		Data:        report.Data,
		Details:     report.Details,
		Timestamp:   report.Timestamp,
		AnchorTxRef: report.AnchorTxRef,
	}
}

func (h *FraudHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[fraudReportRequest](w, r)
	if !ok {
		return
	}

	report, err := h.service.RecordFraudEvent(ctx, fraudservice.ReportRequest{
		DID:     req.DID,
		Type:    req.Type,
		Score:   req.Score,
		Data:    req.Data,
		Details: req.Details,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "fraud report failed", "type", req.Type, "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toReportResponse(report))
}

type riskScoreRequest struct {
	DID     string `json:"did"`
	Factors struct {
		UnusualBehavior  bool `json:"unusual_behavior"`
		LocationMismatch bool `json:"location_mismatch"`
		DeviceAnomaly    bool `json:"device_anomaly"`
	} `json:"factors"`
}

type riskScoreResponse struct {
	DID         string    `json:"did"`
	Score       float64   `json:"score"`
	Level       string    `json:"level"`
	ReportCount int       `json:"report_count"`
	AssessedAt  time.Time `json:"assessed_at"`
}

func (h *FraudHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[riskScoreRequest](w, r)
	if !ok {
		return
	}

	assessment, err := h.service.Score(ctx, req.DID, domain.RiskFactors{
		UnusualBehavior:  req.Factors.UnusualBehavior,
		LocationMismatch: req.Factors.LocationMismatch,
		DeviceAnomaly:    req.Factors.DeviceAnomaly,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, riskScoreResponse{
		DID:         assessment.DID,
		Score:       assessment.Score,
		Level:       string(assessment.Level),
		ReportCount: assessment.ReportCount,
		AssessedAt:  assessment.AssessedAt,
	})
}

func (h *FraudHandler) HandleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.service.Reports(r.Context(), r.URL.Query().Get("did"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]fraudReportResponse, 0, len(reports))
	for _, report := range reports {
		out = append(out, toReportResponse(report))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
