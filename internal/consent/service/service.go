package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"consentis/internal/audit"
	"consentis/internal/consent/metrics"
	"consentis/internal/platform/tracer"
	"consentis/internal/policy"
	policystore "consentis/internal/policy/store"
	dErrors "consentis/pkg/domain-errors"
	platformsync "consentis/pkg/platform/sync"
)

// Ledger invokes contract transactions as the named caller.
// Error Contract:
// - Contract failures surface as domain errors carrying the contract's code
// - Transport failures are returned as-is and reported as internal errors
type Ledger interface {
	Submit(ctx context.Context, caller, name string, args ...string) ([]byte, error)
	Evaluate(ctx context.Context, caller, name string, args ...string) ([]byte, error)
}

// PolicyStore persists canonical policies off-ledger.
// Error Contract:
// - GetByHash and Delete return sentinel.ErrNotFound when no document has the hash
// - Save returns sentinel.ErrConflict when the hash is already stored
type PolicyStore interface {
	Save(ctx context.Context, doc *policystore.Document) error
	GetByHash(ctx context.Context, policyHash string) (*policystore.Document, error)
	Delete(ctx context.Context, policyHash string) error
}

// AuditPublisher records service-side audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Option func(*Service)

// Service resolves policies off-ledger and drives the consent-anchor and
// DID-registry transactions on the ledger. It holds no ledger state of its
// own; every decision that must be non-repudiable is taken by the contract.
type Service struct {
	ledger          Ledger
	store           PolicyStore
	auditor         AuditPublisher
	canonicalizer   *policy.Canonicalizer
	tx              PolicyStoreTx
	metrics         *metrics.Metrics
	tracer          tracer.Tracer
	logger          *slog.Logger
	maxDurationSecs int64
	clock           func() time.Time
}

func NewService(ledger Ledger, store PolicyStore, auditor AuditPublisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		ledger:          ledger,
		store:           store,
		auditor:         auditor,
		logger:          logger,
		tracer:          tracer.NewNoop(),
		maxDurationSecs: policy.DefaultMaxDurationSecs,
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.New(slog.DiscardHandler)
	}
	if svc.canonicalizer == nil {
		svc.canonicalizer = policy.NewCanonicalizer(policy.MustDefaultRegistry())
	}
	if svc.tx == nil {
		svc.tx = &shardedPolicyTx{mu: platformsync.NewShardedMutex(), store: store}
	}
	return svc
}

// WithMetrics sets the metrics instance for the service
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger instance for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithMaxDurationSecs sets the deployment ceiling for policy durations.
// Non-positive values keep the three-year default.
func WithMaxDurationSecs(secs int64) Option {
	return func(s *Service) {
		if secs > 0 {
			s.maxDurationSecs = secs
		}
	}
}

// WithClock sets the wall clock used by prechecks.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithCanonicalizer replaces the canonicalizer built on the embedded
// templates.
func WithCanonicalizer(c *policy.Canonicalizer) Option {
	return func(s *Service) {
		s.canonicalizer = c
	}
}

// WithPolicyStoreTx replaces the lock-based upsert boundary.
func WithPolicyStoreTx(tx PolicyStoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// Canonicalizer exposes the policy canonicalizer.
func (s *Service) Canonicalizer() *policy.Canonicalizer {
	return s.canonicalizer
}

func (s *Service) submit(ctx context.Context, caller, name string, args ...string) ([]byte, error) {
	return s.invoke(ctx, "submit", tracer.SpanLedgerSubmit, s.ledger.Submit, caller, name, args)
}

func (s *Service) evaluate(ctx context.Context, caller, name string, args ...string) ([]byte, error) {
	return s.invoke(ctx, "evaluate", tracer.SpanLedgerEvaluate, s.ledger.Evaluate, caller, name, args)
}

type ledgerCall func(ctx context.Context, caller, name string, args ...string) ([]byte, error)

func (s *Service) invoke(ctx context.Context, kind, spanName string, call ledgerCall, caller, name string, args []string) (out []byte, err error) {
	ctx, span := s.tracer.Start(ctx, spanName,
		tracer.String(tracer.AttrTransaction, name),
		tracer.String(tracer.AttrCaller, caller),
	)
	defer func() { span.End(err) }()

	start := time.Now()
	out, err = call(ctx, caller, name, args...)
	outcome := "ok"
	if err != nil {
		err = ledgerError(err, name)
		outcome = string(dErrors.CodeOf(err))
	}
	if s.metrics != nil {
		s.metrics.ObserveLedgerCall(kind, name, outcome, time.Since(start).Seconds())
	}
	if err != nil {
		s.logger.DebugContext(ctx, "ledger call failed",
			"kind", kind,
			"tx", name,
			"caller", caller,
			"error", err,
		)
	}
	return out, err
}

// ledgerError keeps contract errors intact and marks anything else as an
// infrastructure failure.
func ledgerError(err error, name string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, name+" timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, name+" failed")
}

func decode[T any](raw []byte, what string) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode "+what)
	}
	return &v, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}

func (s *Service) observeStore(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveStoreOperationLatency(op, time.Since(start).Seconds())
	}
}
