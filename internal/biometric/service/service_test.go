package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bioanchor/internal/audit"
	"bioanchor/internal/biometric/extractor"
	"bioanchor/internal/biometric/matcher"
	"bioanchor/internal/biometric/store"
	"bioanchor/internal/commitment"
	"bioanchor/internal/domain"
	"bioanchor/internal/ledger"
	dErrors "bioanchor/pkg/domain-errors"
	"bioanchor/pkg/platform/sentinel"
)

type BiometricAnchorSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.InMemory
	anchors *ledger.Memory
	sink    *audit.Memory
	service *Service
}

func TestBiometricAnchorSuite(t *testing.T) {
	suite.Run(t, new(BiometricAnchorSuite))
}

func (s *BiometricAnchorSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	s.anchors = ledger.NewMemory()
	s.sink = audit.NewMemory()
	m := matcher.New(extractor.NewReference(), s.store, matcher.Config{})
	s.service = New(m, s.store, s.anchors,
		WithAuditPublisher(audit.NewPublisher(s.sink)),
		WithClock(func() time.Time {
			return time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)
		}),
	)
}

func sample(seed string) []byte {
	return bytes.Repeat([]byte(seed), 8)
}

func (s *BiometricAnchorSuite) register(did, modality string, probe []byte) RegisterResult {
	result, err := s.service.Register(s.ctx, RegisterRequest{
		UserID:   "user-1",
		DID:      did,
		Modality: modality,
		Sample:   probe,
	})
	s.Require().NoError(err)
	return result
}

func (s *BiometricAnchorSuite) TestRegisterAnchorsThenActivatesBinding() {
	did := domain.NewDID()
	result := s.register(did, "face", sample("fa"))

	s.NotEmpty(result.TemplateID)
	s.NotEmpty(result.AnchorTxRef)
	s.Equal(domain.ModalityFace, result.Modality)

	binding, err := s.store.FindActiveBinding(s.ctx, did, domain.ModalityFace)
	s.Require().NoError(err)
	s.Equal(result.TemplateID, binding.TemplateID)
	s.Equal(domain.BindingStatusActive, binding.Status)
	s.Equal(result.AnchorTxRef, binding.AnchorTxRef)

	template, err := s.store.FindTemplate(s.ctx, result.TemplateID)
	s.Require().NoError(err)
	value := commitment.Derive(did, domain.ModalityFace, template.Features)
	anchored, err := s.anchors.Lookup(s.ctx, ledger.BiometricKey(did, "face"))
	s.Require().NoError(err)
	s.Equal(value[:], anchored)
}

func (s *BiometricAnchorSuite) TestRegisterValidation() {
	did := domain.NewDID()
	for name, req := range map[string]RegisterRequest{
		"no user":       {DID: did, Modality: "face", Sample: sample("fa")},
		"malformed did": {UserID: "u", DID: "not-a-did", Modality: "face", Sample: sample("fa")},
		"bad modality":  {UserID: "u", DID: did, Modality: "iris", Sample: sample("fa")},
		"no sample":     {UserID: "u", DID: did, Modality: "face"},
	} {
		s.Run(name, func() {
			_, err := s.service.Register(s.ctx, req)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func (s *BiometricAnchorSuite) TestRegisterTinySampleFailsEnrollment() {
	_, err := s.service.Register(s.ctx, RegisterRequest{
		UserID:   "user-1",
		DID:      domain.NewDID(),
		Modality: "face",
		Sample:   []byte("tiny"),
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeEnrollmentFailed))
	s.True(dErrors.HasCode(err, dErrors.CodeNoFeatureDetected))
}

func (s *BiometricAnchorSuite) TestRegisterLedgerTimeoutLeavesNoBinding() {
	did := domain.NewDID()
	s.anchors.FailCommits(sentinel.ErrTimeout)

	_, err := s.service.Register(s.ctx, RegisterRequest{
		UserID:   "user-1",
		DID:      did,
		Modality: "face",
		Sample:   sample("fa"),
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAnchorTimeout))

	_, err = s.store.FindActiveBinding(s.ctx, did, domain.ModalityFace)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	// Retry after recovery succeeds and leaves exactly one active binding.
	s.anchors.Restore()
	result := s.register(did, "face", sample("fa"))
	binding, err := s.store.FindActiveBinding(s.ctx, did, domain.ModalityFace)
	s.Require().NoError(err)
	s.Equal(result.TemplateID, binding.TemplateID)
}

func (s *BiometricAnchorSuite) TestReenrollmentSupersedesPriorBinding() {
	did := domain.NewDID()
	first := s.register(did, "face", sample("fa"))
	second := s.register(did, "face", sample("fb"))

	s.NotEqual(first.TemplateID, second.TemplateID)
	binding, err := s.store.FindActiveBinding(s.ctx, did, domain.ModalityFace)
	s.Require().NoError(err)
	s.Equal(second.TemplateID, binding.TemplateID)
}

func (s *BiometricAnchorSuite) TestVerifyRoundTripSameSample() {
	did := domain.NewDID()
	probe := sample("fp")
	s.register(did, "fingerprint", probe)

	result, err := s.service.Verify(s.ctx, VerifyRequest{
		DID:      did,
		Modality: "fingerprint",
		Sample:   probe,
	})
	s.Require().NoError(err)
	s.True(result.Verified)
	s.True(result.Match)
	s.True(result.AnchorConsistent)
	s.GreaterOrEqual(result.Similarity, matcher.DefaultFingerprintThreshold)
}

func (s *BiometricAnchorSuite) TestVerifyNonMatchIsNotInconsistent() {
	did := domain.NewDID()
	s.register(did, "face", sample("fa"))

	result, err := s.service.Verify(s.ctx, VerifyRequest{
		DID:      did,
		Modality: "face",
		Sample:   sample("zz"),
	})
	s.Require().NoError(err)
	s.False(result.Verified)
	s.False(result.Match)
	s.True(result.AnchorConsistent)
}

func (s *BiometricAnchorSuite) TestVerifyDetectsSwappedTemplate() {
	did := domain.NewDID()
	attacker := sample("ev")
	legit := s.register(did, "face", sample("fa"))

	// Swap the stored template for the attacker's features without a
	// corresponding ledger commit.
	features, err := extractor.NewReference().Extract(s.ctx, domain.ModalityFace, attacker)
	s.Require().NoError(err)
	s.store.ReplaceTemplate(domain.BiometricTemplate{
		TemplateID:  legit.TemplateID,
		Modality:    domain.ModalityFace,
		Features:    features,
		OwnerUserID: "attacker",
	})

	result, err := s.service.Verify(s.ctx, VerifyRequest{
		DID:      did,
		Modality: "face",
		Sample:   attacker,
	})
	s.Require().NoError(err)
	s.True(result.Match, "attacker sample matches the swapped template locally")
	s.False(result.AnchorConsistent, "anchor cross-check must expose the swap")
	s.False(result.Verified)
}

func (s *BiometricAnchorSuite) TestVerifyWithoutEnrollment() {
	_, err := s.service.Verify(s.ctx, VerifyRequest{
		DID:      domain.NewDID(),
		Modality: "face",
		Sample:   sample("fa"),
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNoEnrollment))
}

func (s *BiometricAnchorSuite) TestModalitiesAreIndependent() {
	did := domain.NewDID()
	s.register(did, "face", sample("fa"))

	_, err := s.service.Verify(s.ctx, VerifyRequest{
		DID:      did,
		Modality: "fingerprint",
		Sample:   sample("fa"),
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNoEnrollment))
}

func (s *BiometricAnchorSuite) TestAuditTrailRecordsOutcomes() {
	did := domain.NewDID()
	probe := sample("fa")
	s.register(did, "face", probe)

	_, err := s.service.Verify(s.ctx, VerifyRequest{DID: did, Modality: "face", Sample: probe})
	s.Require().NoError(err)

	events := s.sink.Events()
	s.Require().Len(events, 2)
	s.Equal(audit.ActionBiometricEnrolled, events[0].Action)
	s.Equal(audit.ActionBiometricVerified, events[1].Action)
	s.Equal("verified", events[1].Outcome)
}
