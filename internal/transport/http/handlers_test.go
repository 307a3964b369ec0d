package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bioanchor/internal/biometric/extractor"
	"bioanchor/internal/biometric/matcher"
	biometricservice "bioanchor/internal/biometric/service"
	biometricstore "bioanchor/internal/biometric/store"
	fraudservice "bioanchor/internal/fraud/service"
	fraudstore "bioanchor/internal/fraud/store"
	identityservice "bioanchor/internal/identity/service"
	identitystore "bioanchor/internal/identity/store"
	"bioanchor/internal/ledger"
	"bioanchor/pkg/jwttoken"
)

// The handler suite runs the full stack behind the router: real services,
// in-memory stores, and the in-memory ledger fake. Only the chain is faked.
type HandlerSuite struct {
	suite.Suite
	server *httptest.Server
	tokens *jwttoken.Service
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	anchors := ledger.NewMemory()
	bioStore := biometricstore.NewInMemory()
	s.tokens = jwttoken.New("handler-test-key", "bioanchor")

	identity := identityservice.New(identitystore.NewInMemory(), anchors)
	biometric := biometricservice.New(
		matcher.New(extractor.NewReference(), bioStore, matcher.Config{}),
		bioStore,
		anchors,
	)
	fraud := fraudservice.New(fraudstore.NewInMemory(), anchors, fraudservice.Config{})

	s.server = httptest.NewServer(NewRouter(Deps{
		Identity:  identity,
		Biometric: biometric,
		Fraud:     fraud,
		Tokens:    s.tokens,
	}))
}

func (s *HandlerSuite) TearDownTest() {
	s.server.Close()
}

func (s *HandlerSuite) token(userID string, admin bool) string {
	token, err := s.tokens.Generate(userID, admin, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *HandlerSuite) do(method, path, token string, body any) *http.Response {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		s.Require().NoError(err)
	}
	req, err := http.NewRequest(method, s.server.URL+path, bytes.NewReader(payload))
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *HandlerSuite) decode(resp *http.Response, v any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(v))
}

func (s *HandlerSuite) createDID(userID string) string {
	resp := s.do(http.MethodPost, "/identity", s.token(userID, false), map[string]string{
		"name":       "Alice",
		"public_key": "z6MkAliceKey",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var created struct {
		DID string `json:"did"`
	}
	s.decode(resp, &created)
	s.Require().NotEmpty(created.DID)
	return created.DID
}

func (s *HandlerSuite) TestHealthz() {
	resp := s.do(http.MethodGet, "/healthz", "", nil)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *HandlerSuite) TestCreateRequiresAuth() {
	resp := s.do(http.MethodPost, "/identity", "", map[string]string{
		"name":       "Alice",
		"public_key": "k",
	})
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *HandlerSuite) TestCreateAndGetDID() {
	did := s.createDID("user-1")

	resp := s.do(http.MethodGet, "/identity/"+did, "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var got struct {
		DID      string `json:"did"`
		Status   string `json:"status"`
		Anchored bool   `json:"anchored"`
	}
	s.decode(resp, &got)
	s.Equal(did, got.DID)
	s.Equal("active", got.Status)
	s.True(got.Anchored)
}

func (s *HandlerSuite) TestCreateValidationError() {
	resp := s.do(http.MethodPost, "/identity", s.token("user-1", false), map[string]string{
		"name": "Alice",
	})
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
	var body struct {
		Error string `json:"error"`
	}
	s.decode(resp, &body)
	s.Equal("invalid_input", body.Error)
}

func (s *HandlerSuite) TestUpdateByNonOwnerIsForbidden() {
	did := s.createDID("user-1")

	resp := s.do(http.MethodPut, "/identity/"+did, s.token("user-2", false), map[string]string{
		"name": "Mallory",
	})
	defer resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *HandlerSuite) TestVerifyDIDEndpoint() {
	did := s.createDID("user-1")

	resp := s.do(http.MethodPost, fmt.Sprintf("/identity/%s/verify", did), "", map[string]any{})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var result struct {
		Anchored      bool `json:"anchored"`
		DocumentMatch bool `json:"document_match"`
	}
	s.decode(resp, &result)
	s.True(result.Anchored)
	s.True(result.DocumentMatch)
}

func (s *HandlerSuite) TestBiometricRegisterAndVerifyRoundTrip() {
	did := s.createDID("user-1")
	probe := bytes.Repeat([]byte("fa"), 8)

	resp := s.do(http.MethodPost, "/biometric/register", s.token("user-1", false), map[string]any{
		"did":      did,
		"modality": "face",
		"sample":   probe,
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var registered struct {
		TemplateID  string `json:"template_id"`
		AnchorTxRef string `json:"anchor_tx_ref"`
	}
	s.decode(resp, &registered)
	s.NotEmpty(registered.TemplateID)
	s.NotEmpty(registered.AnchorTxRef)

	resp = s.do(http.MethodPost, "/biometric/verify", "", map[string]any{
		"did":      did,
		"modality": "face",
		"sample":   probe,
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var verified struct {
		Verified         bool `json:"verified"`
		AnchorConsistent bool `json:"anchor_consistent"`
	}
	s.decode(resp, &verified)
	s.True(verified.Verified)
	s.True(verified.AnchorConsistent)
}

func (s *HandlerSuite) TestBiometricVerifyWithoutEnrollment() {
	did := s.createDID("user-1")

	resp := s.do(http.MethodPost, "/biometric/verify", "", map[string]any{
		"did":      did,
		"modality": "face",
		"sample":   bytes.Repeat([]byte("fa"), 8),
	})
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)
	var body struct {
		Error string `json:"error"`
	}
	s.decode(resp, &body)
	s.Equal("no_enrollment", body.Error)
}

func (s *HandlerSuite) TestFraudReportAndAdminListing() {
	did := s.createDID("user-1")

	resp := s.do(http.MethodPost, "/fraud/report", s.token("user-1", false), map[string]any{
		"did":   did,
		"type":  "deepfake",
		"score": 0.9,
	})
	defer resp.Body.Close()
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	// Listing is admin-only.
	resp = s.do(http.MethodGet, "/fraud/reports", s.token("user-1", false), nil)
	resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)

	resp = s.do(http.MethodGet, "/fraud/reports?did="+did, s.token("ops-1", true), nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var reports []struct {
		Type        string `json:"type"`
		AnchorTxRef string `json:"anchor_tx_ref"`
	}
	s.decode(resp, &reports)
	s.Require().Len(reports, 1)
	s.Equal("deepfake", reports[0].Type)
	s.NotEmpty(reports[0].AnchorTxRef)
}

func (s *HandlerSuite) TestRiskScoreEndpoint() {
	did := s.createDID("user-1")

	resp := s.do(http.MethodPost, "/fraud/risk", s.token("user-1", false), map[string]any{
		"did": did,
		"factors": map[string]bool{
			"unusual_behavior": true,
			"device_anomaly":   true,
		},
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var assessment struct {
		Score float64 `json:"score"`
		Level string  `json:"level"`
	}
	s.decode(resp, &assessment)
	s.InDelta(0.30, assessment.Score, 1e-9)
	s.Equal("Low", assessment.Level)
}

func (s *HandlerSuite) TestMalformedBodyIsBadRequest() {
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/biometric/verify", bytes.NewReader([]byte("{")))
	s.Require().NoError(err)
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}
