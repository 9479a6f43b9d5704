package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"consentis/internal/ledger"
	"consentis/internal/platform/health"
	"consentis/internal/platform/metrics"
	"consentis/internal/platform/middleware"
	"consentis/pkg/validation"
)

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// Deps collects everything the router mounts. Nil members are skipped.
type Deps struct {
	Consent  Registrar
	Ledger   *LedgerHandler
	Health   *health.Handler
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// Identities resolves X-Caller-MSP; requests without it run as the
	// issuer. The zero value means the reference network.
	Identities     ledger.Identities
	RequestTimeout time.Duration
	// RateLimit is per caller per second; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(d Deps, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.Instrument)
	}

	// Probes and scrapes stay outside the timeout and caller checks.
	if d.Health != nil {
		d.Health.Register(r)
	}
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ids := d.Identities
	if ids == (ledger.Identities{}) {
		ids = ledger.DefaultIdentities()
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Use(middleware.MaxBody(validation.MaxBodySize))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.Caller(ids))
		r.Use(middleware.RateLimit(d.RateLimit, d.RateBurst))

		if d.Consent != nil {
			d.Consent.Register(r)
		}
		if d.Ledger != nil {
			d.Ledger.Register(r)
		}
	})

	return r
}
