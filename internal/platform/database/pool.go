package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"consentis/internal/platform/config"
	"consentis/migrations"
)

const pingTimeout = 5 * time.Second

// ErrNotConfigured is reported by Health on a pool built from an empty URL.
var ErrNotConfigured = errors.New("policy database not configured")

// Pool is the PostgreSQL handle behind the policy store.
type Pool struct {
	db *sql.DB
}

// New opens the policy database, waits for it to answer and brings the
// schema up to date. An empty URL yields a nil pool and no error, which
// callers treat as "use the in-memory store".
func New(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open policy database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := prepare(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Pool{db: db}, nil
}

func prepare(ctx context.Context, db *sql.DB) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping policy database: %w", err)
	}
	return Migrate(ctx, db)
}

// Migrate applies the embedded *.up.sql scripts in lexical order. Each
// script uses IF NOT EXISTS, so reapplying them is a no-op.
func Migrate(ctx context.Context, db *sql.DB) error {
	scripts, err := fs.Glob(migrations.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	slices.Sort(scripts)

	for _, name := range scripts {
		body, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("load migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func (p *Pool) DB() *sql.DB {
	return p.db
}

// Health pings the database. It backs the "policy_store" readiness check.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return ErrNotConfigured
	}
	return p.db.PingContext(ctx)
}

func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
