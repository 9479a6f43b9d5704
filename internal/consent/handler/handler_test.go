package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"consentis/contracts/records"
	"consentis/internal/chaincode"
	"consentis/internal/consent/models"
	"consentis/internal/consent/service"
	"consentis/internal/ledger"
	"consentis/internal/ledger/memory"
	"consentis/internal/platform/middleware"
	policystore "consentis/internal/policy/store"
	"consentis/pkg/platform/httputil"
)

// HandlerSuite drives the routes against a real service on the memory
// ledger so status mapping is checked end to end.
type HandlerSuite struct {
	suite.Suite
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := memory.NewManualClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	l := memory.New(chaincode.New(), memory.WithClock(clock.Now), memory.WithLogger(logger))
	svc := service.NewService(l, policystore.NewInMemory(), nil, logger, service.WithClock(clock.Now))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Caller(ledger.DefaultIdentities()))
	New(svc, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path, caller string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(middleware.CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](s *HandlerSuite, rec *httptest.ResponseRecorder) T {
	var v T
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *HandlerSuite) provision(assetID string) (models.KeyPair, models.AnchorResult) {
	rec := s.do(http.MethodPost, "/v1/keys/derive", "", map[string]string{"seed": "wallet", "assetId": assetID})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	keys := decodeBody[models.KeyPair](s, rec)

	rec = s.do(http.MethodPost, "/v1/anchors/provision", "issuer", map[string]any{
		"assetId":      assetID,
		"publicKeyPem": keys.PublicKeyPEM,
		"policy": map[string]any{
			"purposes":     []string{"research"},
			"operations":   "read",
			"durationDays": 30,
		},
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	return keys, decodeBody[models.AnchorResult](s, rec)
}

func (s *HandlerSuite) TestPolicyRoutes() {
	body := map[string]any{"policy": map[string]any{"purposes": []string{"research"}, "operations": []string{"read"}, "durationSecs": 60}}

	rec := s.do(http.MethodPost, "/v1/policies", "", body)
	s.Equal(http.StatusCreated, rec.Code)
	created := decodeBody[models.PolicyResult](s, rec)
	s.False(created.Existed)

	rec = s.do(http.MethodPost, "/v1/policies", "", body)
	s.Equal(http.StatusOK, rec.Code)
	s.True(decodeBody[models.PolicyResult](s, rec).Existed)

	rec = s.do(http.MethodGet, "/v1/policies/"+created.PolicyHash, "", nil)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/v1/descriptors", "", map[string]any{
		"policyHash": created.PolicyHash,
		"datasetIds": []string{"ds-1"},
	})
	s.Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Contains(rec.Body.String(), "descriptorHash")

	rec = s.do(http.MethodDelete, "/v1/policies/"+created.PolicyHash, "", nil)
	s.Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/v1/policies/"+created.PolicyHash, "", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestPolicyValidationReturnsDetails() {
	rec := s.do(http.MethodPost, "/v1/policies", "", map[string]any{
		"policy": map[string]any{"purposes": []string{"research"}, "operations": []string{"read"}, "durationSecs": 0, "assuranceLevel": "AL7"},
	})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[httputil.ErrorResponse](s, rec)
	s.Equal("policy_validation_failed", resp.Error)
	s.GreaterOrEqual(len(resp.Details), 2)
}

func (s *HandlerSuite) TestMalformedBodies() {
	req := httptest.NewRequest(http.MethodPost, "/v1/anchors", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/v1/anchors", "", map[string]string{"assetId": "vc-1", "publicKeyPem": "x", "policyHash": "short"})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("invalid_input", decodeBody[httputil.ErrorResponse](s, rec).Error)
}

func (s *HandlerSuite) TestAnchorLifecycle() {
	keys, created := s.provision("vc-7")
	s.Require().NotNil(created.Anchor)

	rec := s.do(http.MethodPost, "/v1/anchors/provision", "holder", map[string]any{
		"assetId":      "vc-8",
		"publicKeyPem": keys.PublicKeyPEM,
		"policy":       map[string]any{"purposes": []string{"research"}, "operations": []string{"read"}, "durationSecs": 60},
	})
	s.Equal(http.StatusForbidden, rec.Code, "holders may not create anchors")

	rec = s.do(http.MethodPost, "/v1/access/precheck", "", map[string]string{"assetId": "vc-7", "purpose": "research", "operation": "read"})
	s.Equal(http.StatusOK, rec.Code)
	s.True(decodeBody[models.PrecheckResult](s, rec).Allowed)

	rec = s.do(http.MethodPost, "/v1/access/verify", "3", map[string]any{
		"assetId":       "vc-7",
		"accessRequest": map[string]string{"purpose": "research", "operation": "delete"},
	})
	s.Equal(http.StatusOK, rec.Code)
	decision := decodeBody[records.AccessDecision](s, rec)
	s.False(decision.Result)

	rec = s.do(http.MethodGet, "/v1/anchors/vc-7", "verifier", nil)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/v1/keys/sign-revocation", "", map[string]string{
		"assetId":       "vc-7",
		"timestamp":     created.Anchor.CreatedTimestamp,
		"privateKeyPem": keys.PrivateKeyPEM,
	})
	s.Require().Equal(http.StatusOK, rec.Code)
	signed := decodeBody[models.SignedAction](s, rec)

	revoke := map[string]string{"assetId": "vc-7", "publicKeyPem": keys.PublicKeyPEM, "signature": signed.Signature}
	rec = s.do(http.MethodPost, "/v1/anchors/revoke", "holder", revoke)
	s.Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/v1/anchors/revoke", "holder", revoke)
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/v1/anchors", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	list := decodeBody[AnchorListResponse](s, rec)
	s.Require().Len(list.Anchors, 1)
	s.Equal(records.StatusRevoked, list.Anchors[0].Status)
}

func (s *HandlerSuite) TestDIDRoutes() {
	const did = "did:fabric:org1-issuer"
	verkey := "3yZe7dDQNj1EZ8zcq6YxRVmKeHrTSTtjfeEHMDygpG9D"

	rec := s.do(http.MethodPost, "/v1/dids", "", map[string]string{"didId": did, "publicKeyBase58": verkey})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/v1/dids/"+did, "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(did, decodeBody[records.DID](s, rec).DidID)

	rec = s.do(http.MethodGet, "/v1/dids/latest/Org1", "", nil)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/v1/resolve/"+did, "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(did, decodeBody[models.DIDDocument](s, rec).ID)

	rec = s.do(http.MethodGet, "/v1/resolve/did:web:example.com", "", nil)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/v1/dids/"+did+"/revoke", "", nil)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/v1/dids/latest/Org1", "", nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/v1/dids", "", map[string]string{"didId": "not-a-did", "publicKeyBase58": verkey})
	s.Equal(http.StatusBadRequest, rec.Code)
}
