// Package tracer provides a lightweight tracing abstraction for ledger calls.
//
// The service depends on the Tracer interface rather than on OpenTelemetry
// directly. NoopTracer serves tests; OTelTracer adapts the global (or an
// injected) OpenTelemetry tracer.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, marking it failed when err is non-nil.
	// End must be called exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)

	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span; the returned context carries it.
	//
	// Example:
	//   ctx, span := tr.Start(ctx, tracer.SpanLedgerSubmit,
	//       tracer.String(tracer.AttrTransaction, "CreateVcAnchor"),
	//   )
	//   defer span.End(err)
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashID shortens an identifier to 16 hex characters of its SHA-256 so
// traces can be correlated without carrying consent or DID identifiers.
func HashID(v string) string {
	if v == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(v))
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanLedgerSubmit   = "ledger.submit"
	SpanLedgerEvaluate = "ledger.evaluate"
	SpanPolicyUpsert   = "policy.upsert"
	SpanPrecheck       = "consent.precheck"
)

// Attribute keys.
const (
	AttrTransaction = "ledger.transaction"
	AttrCaller      = "ledger.caller"
	AttrAssetID     = "asset_id_hash"
	AttrPolicyHash  = "policy_hash"
	AttrResult      = "result"
	AttrReason      = "reason"
)
