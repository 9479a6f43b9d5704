package tracer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"consentis/internal/platform/tracer"
)

func TestNoopTracer_Start(t *testing.T) {
	tr := tracer.NewNoop()
	ctx := context.Background()

	newCtx, span := tr.Start(ctx, tracer.SpanLedgerSubmit,
		tracer.String(tracer.AttrTransaction, "CreateVcAnchor"),
		tracer.Bool("flag", true),
	)

	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)

	span.SetAttributes(tracer.String("another", "attr"))
	span.AddEvent("test.event", tracer.Int64("count", 42))
	span.End(nil)
}

func TestOTelTracer_Start(t *testing.T) {
	tr := tracer.NewOTel(tracer.WithOTelTracer(noop.NewTracerProvider().Tracer("test")))

	ctx, span := tr.Start(context.Background(), tracer.SpanLedgerEvaluate,
		tracer.String(tracer.AttrTransaction, "ReadVcAnchor"),
		tracer.Int64("args", 1),
		tracer.Float64("ratio", 0.5),
	)
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.AddEvent("retry", tracer.Duration("backoff", 0))
	span.End(errors.New("conflict"))
}

func TestHashID(t *testing.T) {
	assert.Empty(t, tracer.HashID(""))
	assert.Len(t, tracer.HashID("consent-1"), 16)
	assert.Equal(t, tracer.HashID("consent-1"), tracer.HashID("consent-1"))
	assert.NotEqual(t, tracer.HashID("consent-1"), tracer.HashID("consent-2"))
}

func TestAttributeConstructors(t *testing.T) {
	assert.Equal(t, tracer.Attribute{Key: "k", Value: "v"}, tracer.String("k", "v"))
	assert.Equal(t, tracer.Attribute{Key: "b", Value: true}, tracer.Bool("b", true))
	assert.Equal(t, int64(42), tracer.Int64("n", 42).Value)
	assert.Equal(t, 3.14, tracer.Float64("f", 3.14).Value)
	assert.Equal(t, int64(150), tracer.Duration("latency", 150*1e6).Value)
}
