package devnet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentis/internal/ledger/memory"
	"consentis/internal/platform/config"
	"consentis/internal/platform/logger"
	"consentis/internal/platform/middleware"
)

func TestBuildMemoryNode(t *testing.T) {
	cfg, err := config.Load(config.New())
	require.NoError(t, err)

	clock := memory.NewManualClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	app, err := Build(context.Background(), cfg, logger.Discard(), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close()) })

	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := `{"policy":{"purposes":["research"],"operations":["read"],"durationSecs":60}}`
	resp, err = http.Post(srv.URL+"/v1/policies", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	mfs, err := app.Registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(mfs))
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["consentis_policies_upserted_total"])
	assert.True(t, names["consentis_ledger_block_height"])
	assert.True(t, names["go_goroutines"])
}

func TestBuildRejectsUnreachablePostgres(t *testing.T) {
	cfg, err := config.Load(config.New())
	require.NoError(t, err)
	cfg.Store.Backend = config.StorePostgres
	cfg.Database.URL = "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"

	_, err = Build(context.Background(), cfg, logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy store")
}

func TestBuildWithAuditMirror(t *testing.T) {
	cfg, err := config.Load(config.New())
	require.NoError(t, err)
	cfg.Kafka.Brokers = "127.0.0.1:1"
	cfg.Kafka.DeliveryTimeout = 200 * time.Millisecond

	app, err := Build(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close()) })

	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "mirror starts closed")
}

func TestBuildReturnsStartupErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bad redis url", func(c *config.Config) {
			c.Store.Backend = config.StoreRedis
			c.Redis.URL = "not-a-url://"
		}, "policy store"},
		{"blank kafka brokers", func(c *config.Config) {
			c.Kafka.Brokers = " , "
		}, "audit mirror"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(config.New())
			require.NoError(t, err)
			tt.mutate(&cfg)

			var app *App
			require.NotPanics(t, func() {
				app, err = Build(context.Background(), cfg, logger.Discard())
			})
			require.Error(t, err)
			assert.Nil(t, app)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildAppliesConfiguredRoles(t *testing.T) {
	t.Setenv("ISSUER_MSP", "UniversityMSP")
	t.Setenv("HOLDER_MSP", "StudentMSP")
	t.Setenv("VERIFIER_MSP", "EmployerMSP")
	cfg, err := config.FromEnv()
	require.NoError(t, err)

	app, err := Build(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close()) })
	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	storeKey := func(caller, did string) *http.Response {
		body := `{"args":["` + did + `","6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2","",""]}`
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/ledger/submit/StoreDidKey", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.CallerHeader, caller)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusOK, storeKey("issuer", "did:fabric:u1").StatusCode)
	assert.Equal(t, http.StatusOK, storeKey("UniversityMSP", "did:fabric:u2").StatusCode)
	assert.Equal(t, http.StatusForbidden, storeKey("holder", "did:fabric:s1").StatusCode)
	assert.Equal(t, http.StatusBadRequest, storeKey("Org1MSP", "did:fabric:o1").StatusCode)
}
