// Package health serves the liveness, readiness and status probes of the
// consentis API.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"consentis/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

const defaultCheckTimeout = 2 * time.Second

// CheckFunc reports whether one dependency is usable.
type CheckFunc func(ctx context.Context) error

type Handler struct {
	started      time.Time
	environment  string
	ledgerMode   string
	checkTimeout time.Duration

	mu     sync.RWMutex
	checks map[string]CheckFunc
	height func() uint64
}

// New builds a handler for environment and ledgerMode ("memory" or
// "gateway"). Readiness is "ready" until checks are registered.
func New(environment, ledgerMode string) *Handler {
	return &Handler{
		started:      time.Now(),
		environment:  environment,
		ledgerMode:   ledgerMode,
		checkTimeout: defaultCheckTimeout,
		checks:       map[string]CheckFunc{},
	}
}

// RegisterCheck adds or replaces the readiness check called name.
func (h *Handler) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	h.checks[name] = check
	h.mu.Unlock()
}

// ReportHeight makes /health include the committed block height.
func (h *Handler) ReportHeight(height func() uint64) {
	h.mu.Lock()
	h.height = height
	h.mu.Unlock()
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

type LivenessResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

// ReadinessResponse maps each check name to "up" or "down: <reason>".
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs the checks in parallel under one deadline. Any
// failure turns the reply into a 503.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	results := h.runChecks(r.Context())

	resp := ReadinessResponse{Status: "ready", Checks: make(map[string]string, len(results))}
	status := http.StatusOK
	for name, err := range results {
		if err != nil {
			resp.Checks[name] = "down: " + err.Error()
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "up"
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) runChecks(ctx context.Context) map[string]error {
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, fn := range h.checks {
		checks[name] = fn
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]error, len(checks))
		g       errgroup.Group
	)
	for name, fn := range checks {
		g.Go(func() error {
			err := fn(ctx)
			mu.Lock()
			results[name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

type StatusResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Environment   string  `json:"environment"`
	LedgerMode    string  `json:"ledger_mode"`
	BlockHeight   *uint64 `json:"block_height,omitempty"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	Timestamp     string  `json:"timestamp"`
}

func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	resp := StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		LedgerMode:    h.ledgerMode,
		UptimeSeconds: int64(now.Sub(h.started) / time.Second),
		Timestamp:     now.UTC().Format(time.RFC3339),
	}
	h.mu.RLock()
	height := h.height
	h.mu.RUnlock()
	if height != nil {
		v := height()
		resp.BlockHeight = &v
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
