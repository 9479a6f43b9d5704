package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	h.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadiness(t *testing.T) {
	h := New("test", "memory")
	h.RegisterCheck("ledger", func(context.Context) error { return nil })

	rec := serve(t, h, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	h.RegisterCheck("policy_store", func(context.Context) error { return errors.New("connection refused") })
	rec = serve(t, h, "/health/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "up", resp.Checks["ledger"])
	assert.Equal(t, "down: connection refused", resp.Checks["policy_store"])
}

func TestStatusReportsLedger(t *testing.T) {
	h := New("devnet", "memory")
	rec := serve(t, h, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "memory", resp.LedgerMode)
	assert.Nil(t, resp.BlockHeight)

	h.ReportHeight(func() uint64 { return 7 })
	rec = serve(t, h, "/health")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.BlockHeight)
	assert.Equal(t, uint64(7), *resp.BlockHeight)
}

func TestLiveness(t *testing.T) {
	rec := serve(t, New("test", "gateway"), "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
