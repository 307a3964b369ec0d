package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bioanchor/internal/domain"
	identityservice "bioanchor/internal/identity/service"
	"bioanchor/pkg/platform/httputil"
	"bioanchor/pkg/platform/middleware/auth"
)

// IdentityService is the DID anchor manager surface the handlers call.
type IdentityService interface {
	Create(ctx context.Context, req identityservice.CreateRequest) (domain.IdentityRecord, error)
	Update(ctx context.Context, req identityservice.UpdateRequest) (domain.IdentityRecord, error)
	Verify(ctx context.Context, did string, expected *domain.DidDocument) (identityservice.VerifyResult, error)
	Get(ctx context.Context, did string) (identityservice.GetResult, error)
	List(ctx context.Context, owner string) ([]domain.IdentityRecord, error)
}

type IdentityHandler struct {
	service IdentityService
	logger  *slog.Logger
}

type identityRecordResponse struct {
	DID         string             `json:"did"`
	Document    domain.DidDocument `json:"document"`
	Owner       string             `json:"owner"`
	Status      string             `json:"status"`
	AnchorTxRef string             `json:"anchor_tx_ref"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func toRecordResponse(record domain.IdentityRecord) identityRecordResponse {
	return identityRecordResponse{
		DID:         record.DID,
		Document:    record.Document,
		Owner:       record.Owner,
		Status:      string(record.Status),
		AnchorTxRef: record.AnchorTxRef,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

type createIdentityRequest struct {
	DID       string `json:"did,omitempty"`
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
}

func (h *IdentityHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[createIdentityRequest](w, r)
	if !ok {
		return
	}

	record, err := h.service.Create(ctx, identityservice.CreateRequest{
		DID:       req.DID,
		Owner:     auth.GetUserID(ctx),
		Name:      req.Name,
		PublicKey: req.PublicKey,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "did create failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(record))
}

type updateIdentityRequest struct {
	Name      string `json:"name,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
}

func (h *IdentityHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[updateIdentityRequest](w, r)
	if !ok {
		return
	}

	record, err := h.service.Update(ctx, identityservice.UpdateRequest{
		DID:    chi.URLParam(r, "did"),
		Caller: auth.GetUserID(ctx),
		Patch:  domain.DocumentPatch{Name: req.Name, PublicKey: req.PublicKey},
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "did update failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record))
}

type verifyIdentityRequest struct {
	ExpectedDocument *domain.DidDocument `json:"expected_document,omitempty"`
}

type verifyIdentityResponse struct {
	Anchored      bool `json:"anchored"`
	DocumentMatch bool `json:"document_match"`
}

func (h *IdentityHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[verifyIdentityRequest](w, r)
	if !ok {
		return
	}

	result, err := h.service.Verify(ctx, chi.URLParam(r, "did"), req.ExpectedDocument)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, verifyIdentityResponse{
		Anchored:      result.Anchored,
		DocumentMatch: result.DocumentMatch,
	})
}

type getIdentityResponse struct {
	identityRecordResponse
	Anchored bool `json:"anchored"`
}

func (h *IdentityHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Get(r.Context(), chi.URLParam(r, "did"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, getIdentityResponse{
		identityRecordResponse: toRecordResponse(result.Record),
		Anchored:               result.Anchored,
	})
}

func (h *IdentityHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := h.service.List(ctx, auth.GetUserID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]identityRecordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toRecordResponse(record))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
