// Package chaincode implements the consent-anchor and DID-registry ledger
// contract.
//
// Every operation is deterministic: time comes from the transaction
// timestamp, records are written as canonical JSON, and the only I/O is the
// ledger.Stub. Role and existence failures return domain errors so the
// runtime aborts the transaction; an access denial is a committed outcome,
// not an error.
package chaincode

import (
	"log/slog"
	"maps"
)

// DefaultMaxDurationSecs is the anchor lifetime ceiling: three years.
const DefaultMaxDurationSecs = 3 * 365 * 24 * 60 * 60

// Contract holds configuration shared by all transactions. It is immutable
// after construction and must be configured identically on every peer.
type Contract struct {
	roles          map[string]Role
	maxDurationSec float64
	logger         *slog.Logger
}

// Option configures a Contract.
type Option func(*Contract)

// WithMaxDurationSecs sets the ceiling anchor durations are clamped to.
// Non-positive values keep the default.
func WithMaxDurationSecs(secs float64) Option {
	return func(c *Contract) {
		if secs > 0 {
			c.maxDurationSec = secs
		}
	}
}

// WithRoleMSPs replaces the MSP id to role mapping.
func WithRoleMSPs(m map[string]Role) Option {
	return func(c *Contract) {
		c.roles = maps.Clone(m)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Contract) {
		c.logger = logger
	}
}

// New creates a Contract.
func New(opts ...Option) *Contract {
	c := &Contract{
		roles:          DefaultRoleMSPs(),
		maxDurationSec: DefaultMaxDurationSecs,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
