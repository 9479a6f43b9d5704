// Package devnet assembles the consent service, its ledger client and the
// HTTP surface from configuration. The devnet binary and the end-to-end
// suite both start from Build.
package devnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"consentis/internal/audit"
	"consentis/internal/chaincode"
	"consentis/internal/consent/handler"
	consentmetrics "consentis/internal/consent/metrics"
	"consentis/internal/consent/service"
	"consentis/internal/ledger"
	"consentis/internal/ledger/gateway"
	"consentis/internal/ledger/memory"
	"consentis/internal/platform/config"
	"consentis/internal/platform/database"
	"consentis/internal/platform/health"
	"consentis/internal/platform/kafka/producer"
	httpmetrics "consentis/internal/platform/metrics"
	"consentis/internal/platform/redis"
	"consentis/internal/platform/tracer"
	policystore "consentis/internal/policy/store"
	httptransport "consentis/internal/transport/http"
)

// App is an assembled devnet node.
type App struct {
	Router   http.Handler
	Ledger   ledger.Client
	Registry *prometheus.Registry
	Audit    *audit.InMemoryStore

	cfg        config.Config
	logger     *slog.Logger
	background []func(context.Context) error
	closers    []func() error
}

// Option adjusts Build.
type Option func(*options)

type options struct {
	clock func() time.Time
}

// WithClock sets the clock of the in-memory ledger and of prechecks.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// Build wires every component cfg selects. Call Close when done.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := &App{Registry: reg, cfg: cfg, logger: logger}
	built := false
	defer func() {
		if !built {
			_ = app.Close()
		}
	}()

	ids := ledger.IdentitiesFromConfig(cfg.Roles)
	if ids == (ledger.Identities{}) {
		ids = ledger.DefaultIdentities()
	}

	h := health.New(cfg.Server.Environment, cfg.Ledger.Mode)

	switch cfg.Ledger.Mode {
	case config.LedgerFabric:
		gw := gateway.New(cfg.Fabric, logger, gateway.WithIdentities(ids))
		app.Ledger = gw
		app.closers = append(app.closers, gw.Close)
		h.RegisterCheck("ledger", func(ctx context.Context) error {
			return gw.Ping(ctx, ids.Issuer)
		})
	default:
		contract := chaincode.New(
			chaincode.WithMaxDurationSecs(float64(cfg.Consent.MaxDurationSecs)),
			chaincode.WithRoleMSPs(chaincode.RoleMSPs(ids)),
			chaincode.WithLogger(logger),
		)
		mem := memory.New(contract,
			memory.WithClock(o.clock),
			memory.WithLogger(logger),
			memory.WithMetrics(memory.NewMetrics(reg)),
		)
		app.Ledger = mem
		h.ReportHeight(mem.Height)
		app.background = append(app.background, func(ctx context.Context) error {
			return logEvents(ctx, mem, logger)
		})
	}

	store, err := app.policyStore(ctx, h, reg)
	if err != nil {
		return nil, err
	}

	app.Audit = audit.NewInMemoryStore()
	var auditStore audit.Store = app.Audit
	if cfg.Kafka.Brokers != "" {
		prod, err := producer.New(cfg.Kafka, logger)
		if err != nil {
			return nil, fmt.Errorf("audit mirror: %w", err)
		}
		app.closers = append(app.closers, prod.Close)
		mirror := audit.NewMirrorStore(app.Audit, prod, cfg.Kafka.Topic, logger,
			audit.WithMirrorTimeout(cfg.Kafka.DeliveryTimeout),
		)
		h.RegisterCheck("audit_mirror", mirror.Health)
		auditStore = mirror
	}
	publisher := audit.NewPublisher(auditStore,
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(logger),
		audit.WithPublisherClock(o.clock),
	)
	app.closers = append(app.closers, func() error { publisher.Close(); return nil })

	svc := service.NewService(app.Ledger, store, publisher, logger,
		service.WithMetrics(consentmetrics.New(reg)),
		service.WithTracer(tracer.NewOTel()),
		service.WithMaxDurationSecs(cfg.Consent.MaxDurationSecs),
		service.WithClock(o.clock),
	)

	app.Router = httptransport.NewRouter(httptransport.Deps{
		Consent:        handler.New(svc, logger),
		Ledger:         httptransport.NewLedgerHandler(app.Ledger, logger),
		Health:         h,
		Metrics:        httpmetrics.New(reg),
		Gatherer:       reg,
		Identities:     ids,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
	}, logger)
	built = true
	return app, nil
}

func (a *App) policyStore(ctx context.Context, h *health.Handler, reg prometheus.Registerer) (service.PolicyStore, error) {
	switch a.cfg.Store.Backend {
	case config.StorePostgres:
		pool, err := database.New(ctx, a.cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("policy store: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		h.RegisterCheck("policy_store", pool.Health)
		return policystore.NewPostgres(pool.DB()), nil
	case config.StoreRedis:
		client, err := redis.New(ctx, a.cfg.Redis, reg)
		if err != nil {
			return nil, fmt.Errorf("policy store: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		h.RegisterCheck("policy_store", client.Health)
		a.background = append(a.background, func(ctx context.Context) error {
			return client.RunPoolStats(ctx, 15*time.Second)
		})
		return policystore.NewRedis(client.Client), nil
	default:
		return policystore.NewInMemory(), nil
	}
}

// Serve listens on the configured address until ctx ends, then shuts the
// server down within the configured grace period.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("starting http server", "addr", srv.Addr, "ledger_mode", a.cfg.Ledger.Mode, "policy_store", a.cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	for _, run := range a.background {
		g.Go(func() error { return run(ctx) })
	}
	return g.Wait()
}

// Close releases every connection Build opened.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// logEvents writes every committed chaincode event to the log.
func logEvents(ctx context.Context, l *memory.Ledger, logger *slog.Logger) error {
	events, unsubscribe := l.Subscribe(64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			logger.Debug("chaincode event",
				"tx", ev.TxID,
				"block", ev.BlockNumber,
				"event", ev.Name,
				"payload_bytes", len(ev.Payload),
			)
		}
	}
}
