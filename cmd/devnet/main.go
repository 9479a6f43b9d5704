package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"consentis/internal/devnet"
	"consentis/internal/platform/config"
	"consentis/internal/platform/logger"
)

// main wires the devnet node from the environment and serves until SIGINT
// or SIGTERM. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log.Info("initializing consentis devnet",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"ledger_mode", cfg.Ledger.Mode,
		"policy_store", cfg.Store.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := devnet.Build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build devnet", "error", err)
		os.Exit(1)
	}

	err = app.Serve(ctx)
	if cerr := app.Close(); cerr != nil {
		log.Error("failed to release resources", "error", cerr)
	}
	if err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
