// Package service implements the biometric anchor manager. Enrollment stores
// a template, anchors its commitment on the ledger, and only then activates
// the (did, modality) binding; verification matches locally and then
// cross-checks the freshly derived commitment against the anchored one, so a
// swapped template store cannot produce a verified result.
package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bioanchor/internal/audit"
	"bioanchor/internal/biometric/matcher"
	biometricmetrics "bioanchor/internal/biometric/metrics"
	"bioanchor/internal/biometric/store"
	"bioanchor/internal/commitment"
	"bioanchor/internal/domain"
	"bioanchor/internal/ledger"
	dErrors "bioanchor/pkg/domain-errors"
	"bioanchor/pkg/platform/keyedmutex"
	"bioanchor/pkg/platform/sentinel"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Matcher is the local biometric decision boundary, satisfied by
// *matcher.Matcher.
type Matcher interface {
	Enroll(ctx context.Context, ownerUserID string, modality domain.Modality, sample []byte) (domain.BiometricTemplate, error)
	Verify(ctx context.Context, modality domain.Modality, sample []byte, templateID string) (matcher.Result, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates biometric enrollment and verification against the
// binding store and the anchor ledger. A keyed mutex serializes writers on
// the same (did, modality) pair for the whole enrollment, ledger commit
// included.
type Service struct {
	matcher  Matcher
	bindings store.BindingStore
	anchors  ledger.AnchorLedger
	locks    *keyedmutex.KeyedMutex
	tracer   trace.Tracer
	logger   *slog.Logger
	auditor  AuditPublisher
	metrics  *biometricmetrics.Metrics
	now      func() time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

func WithMetrics(m *biometricmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source. Tests use this for stable timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(m Matcher, bindings store.BindingStore, anchors ledger.AnchorLedger, opts ...Option) *Service {
	s := &Service{
		matcher:  m,
		bindings: bindings,
		anchors:  anchors,
		locks:    keyedmutex.New(),
		tracer:   otel.Tracer("bioanchor/biometric/service"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRequest enrolls a sample for a user and binds it to a DID.
type RegisterRequest struct {
	UserID   string
	DID      string
	Modality string
	Sample   []byte
}

// RegisterResult reports a completed, anchored enrollment.
type RegisterResult struct {
	TemplateID  string
	Modality    domain.Modality
	AnchorTxRef string
}

// Register enrolls the sample, anchors its commitment, and activates the
// (did, modality) binding. The binding is written only after the ledger
// confirms, so a failed or timed-out commit leaves no active binding and the
// call is safe to retry.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	ctx, span := s.tracer.Start(ctx, "biometric.register",
		trace.WithAttributes(attribute.String("modality", req.Modality)))
	defer span.End()

	if req.UserID == "" {
		return RegisterResult{}, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if !domain.ValidDID(req.DID) {
		return RegisterResult{}, dErrors.Newf(dErrors.CodeInvalidInput, "malformed DID %q", req.DID)
	}
	modality, err := domain.ParseModality(req.Modality)
	if err != nil {
		return RegisterResult{}, err
	}
	if len(req.Sample) == 0 {
		return RegisterResult{}, dErrors.New(dErrors.CodeInvalidInput, "sample is required")
	}

	key := bindingLockKey(req.DID, modality)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	template, err := s.matcher.Enroll(ctx, req.UserID, modality, req.Sample)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNoFeatureDetected) {
			return RegisterResult{}, dErrors.Wrap(err, dErrors.CodeEnrollmentFailed, "no usable features in sample")
		}
		return RegisterResult{}, err
	}

	value := commitment.Derive(req.DID, modality, template.Features)
	txRef, err := s.commitAnchor(ctx, ledger.BiometricKey(req.DID, string(modality)), value[:])
	if err != nil {
		return RegisterResult{}, err
	}

	binding := domain.TemplateBinding{
		DID:         req.DID,
		Modality:    modality,
		TemplateID:  template.TemplateID,
		OwnerUserID: req.UserID,
		Status:      domain.BindingStatusActive,
		AnchorTxRef: string(txRef),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.bindings.ActivateBinding(ctx, binding); err != nil {
		return RegisterResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to activate binding")
	}

	s.emitAudit(ctx, audit.Event{
		Actor:   req.UserID,
		DID:     req.DID,
		Action:  audit.ActionBiometricEnrolled,
		Outcome: "ok",
		Detail:  string(modality),
	})
	if s.metrics != nil {
		s.metrics.IncrementEnrollment(string(modality))
	}
	return RegisterResult{
		TemplateID:  template.TemplateID,
		Modality:    modality,
		AnchorTxRef: string(txRef),
	}, nil
}

// VerifyRequest checks a sample against the active enrollment for a DID.
type VerifyRequest struct {
	DID      string
	Modality string
	Sample   []byte
}

// VerifyResult is the outcome of a biometric verification.
//
// Verified is true only when the sample matched locally AND the freshly
// derived commitment equals the anchored one. Match=false with
// AnchorConsistent=true is a plain non-match; Match=true with
// AnchorConsistent=false signals tampering with the off-chain template store
// and must never be treated as a simple failure to match.
type VerifyResult struct {
	Verified         bool
	Match            bool
	Similarity       float64
	AnchorConsistent bool
}

// Verify matches the sample against the active binding for (did, modality)
// and, on a local match, cross-checks the commitment against the ledger.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "biometric.verify",
		trace.WithAttributes(attribute.String("modality", req.Modality)))
	defer span.End()

	if !domain.ValidDID(req.DID) {
		return VerifyResult{}, dErrors.Newf(dErrors.CodeInvalidInput, "malformed DID %q", req.DID)
	}
	modality, err := domain.ParseModality(req.Modality)
	if err != nil {
		return VerifyResult{}, err
	}
	if len(req.Sample) == 0 {
		return VerifyResult{}, dErrors.New(dErrors.CodeInvalidInput, "sample is required")
	}

	binding, err := s.bindings.FindActiveBinding(ctx, req.DID, modality)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return VerifyResult{}, dErrors.Newf(dErrors.CodeNoEnrollment, "no active enrollment for %s/%s", req.DID, modality)
		}
		return VerifyResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load binding")
	}

	decision, err := s.matcher.Verify(ctx, modality, req.Sample, binding.TemplateID)
	if err != nil {
		return VerifyResult{}, err
	}

	if !decision.IsMatch {
		s.observeVerification(ctx, req, "no_match")
		return VerifyResult{
			Match:            false,
			Similarity:       decision.Similarity,
			AnchorConsistent: true,
		}, nil
	}

	// Local match: the anchor decides. Re-derive from the probe's features
	// and compare against the value committed at enrollment.
	derived := commitment.Derive(req.DID, modality, decision.Features)
	anchored, err := s.anchors.Lookup(ctx, ledger.BiometricKey(req.DID, string(modality)))
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return VerifyResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "anchor ledger lookup failed")
	}
	consistent := err == nil && bytes.Equal(anchored, derived[:])

	if !consistent {
		if s.metrics != nil {
			s.metrics.AnchorInconsistent.Inc()
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "anchor inconsistency detected",
				"did", req.DID, "modality", string(modality))
		}
		s.observeVerification(ctx, req, "anchor_inconsistent")
		return VerifyResult{
			Match:            true,
			Similarity:       decision.Similarity,
			AnchorConsistent: false,
		}, nil
	}

	s.observeVerification(ctx, req, "verified")
	return VerifyResult{
		Verified:         true,
		Match:            true,
		Similarity:       decision.Similarity,
		AnchorConsistent: true,
	}, nil
}

func bindingLockKey(did string, modality domain.Modality) string {
	return did + "/" + string(modality)
}

func (s *Service) commitAnchor(ctx context.Context, key string, payload []byte) (ledger.TxRef, error) {
	start := time.Now()
	txRef, err := s.anchors.Commit(ctx, key, payload)
	if s.metrics != nil {
		s.metrics.ObserveAnchorCommit(start)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrTimeout) {
			return "", dErrors.Wrap(err, dErrors.CodeAnchorTimeout, "anchor confirmation timed out")
		}
		return "", dErrors.Wrap(err, dErrors.CodeAnchorCommitFailed, "anchor commit failed")
	}
	return txRef, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}

func (s *Service) observeVerification(ctx context.Context, req VerifyRequest, outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementVerification(req.Modality, outcome)
	}
	s.emitAudit(ctx, audit.Event{
		DID:     req.DID,
		Action:  audit.ActionBiometricVerified,
		Outcome: outcome,
		Detail:  req.Modality,
	})
}
