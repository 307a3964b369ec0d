package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	biometricservice "bioanchor/internal/biometric/service"
	"bioanchor/pkg/platform/httputil"
	"bioanchor/pkg/platform/middleware/auth"
)

// BiometricService is the biometric anchor manager surface the handlers call.
type BiometricService interface {
	Register(ctx context.Context, req biometricservice.RegisterRequest) (biometricservice.RegisterResult, error)
	Verify(ctx context.Context, req biometricservice.VerifyRequest) (biometricservice.VerifyResult, error)
}

type BiometricHandler struct {
	service BiometricService
	logger  *slog.Logger
}

// Sample bytes travel base64-encoded in JSON.
type registerBiometricRequest struct {
	DID      string `json:"did"`
	Modality string `json:"modality"`
	Sample   []byte `json:"sample"`
}

type registerBiometricResponse struct {
	TemplateID  string `json:"template_id"`
	Modality    string `json:"modality"`
	AnchorTxRef string `json:"anchor_tx_ref"`
}

func (h *BiometricHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[registerBiometricRequest](w, r)
	if !ok {
		return
	}

	result, err := h.service.Register(ctx, biometricservice.RegisterRequest{
		UserID:   auth.GetUserID(ctx),
		DID:      req.DID,
		Modality: req.Modality,
		Sample:   req.Sample,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "biometric registration failed",
			"modality", req.Modality, "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, registerBiometricResponse{
		TemplateID:  result.TemplateID,
		Modality:    string(result.Modality),
		AnchorTxRef: result.AnchorTxRef,
	})
}

type verifyBiometricRequest struct {
	DID      string `json:"did"`
	Modality string `json:"modality"`
	Sample   []byte `json:"sample"`
}

type verifyBiometricResponse struct {
	Verified         bool    `json:"verified"`
	Match            bool    `json:"match"`
	Similarity       float64 `json:"similarity"`
	AnchorConsistent bool    `json:"anchor_consistent"`
}

func (h *BiometricHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[verifyBiometricRequest](w, r)
	if !ok {
		return
	}

	result, err := h.service.Verify(ctx, biometricservice.VerifyRequest{
		DID:      req.DID,
		Modality: req.Modality,
		Sample:   req.Sample,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, verifyBiometricResponse{
		Verified:         result.Verified,
		Match:            result.Match,
		Similarity:       result.Similarity,
		AnchorConsistent: result.AnchorConsistent,
	})
}
