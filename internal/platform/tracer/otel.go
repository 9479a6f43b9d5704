package tracer

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "consentis/pkg/domain-errors"
)

const instrumentationName = "consentis/ledger"

// AttrErrorCode carries the domain error code of a failed span.
const AttrErrorCode = "consentis.error_code"

// OTelTracer emits ledger and policy spans through OpenTelemetry. Ledger
// spans are client spans; everything else is internal.
type OTelTracer struct {
	tracer trace.Tracer
}

type OTelOption func(*OTelTracer)

// WithOTelTracer replaces the global provider's tracer.
func WithOTelTracer(t trace.Tracer) OTelOption {
	return func(o *OTelTracer) { o.tracer = t }
}

func NewOTel(opts ...OTelOption) *OTelTracer {
	t := &OTelTracer{tracer: otel.Tracer(instrumentationName)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *OTelTracer) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	kind := trace.SpanKindInternal
	if strings.HasPrefix(name, "ledger.") {
		kind = trace.SpanKindClient
	}
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(convert(attrs)...),
	)
	return ctx, otelSpan{span}
}

type otelSpan struct{ span trace.Span }

// End tags failures with their domain code. Business rejections such as
// role_denied are errors for the caller, so the span status is set for
// every non-nil err.
func (s otelSpan) End(err error) {
	if err != nil {
		s.span.SetAttributes(attribute.String(AttrErrorCode, string(dErrors.CodeOf(err))))
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

func (s otelSpan) SetAttributes(attrs ...Attribute) {
	s.span.SetAttributes(convert(attrs)...)
}

func (s otelSpan) AddEvent(name string, attrs ...Attribute) {
	s.span.AddEvent(name, trace.WithAttributes(convert(attrs)...))
}

func convert(attrs []Attribute) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		var kv attribute.KeyValue
		switch v := a.Value.(type) {
		case string:
			kv = attribute.String(a.Key, v)
		case bool:
			kv = attribute.Bool(a.Key, v)
		case int64:
			kv = attribute.Int64(a.Key, v)
		case int:
			kv = attribute.Int(a.Key, v)
		case float64:
			kv = attribute.Float64(a.Key, v)
		case []string:
			kv = attribute.StringSlice(a.Key, v)
		default:
			continue
		}
		out = append(out, kv)
	}
	return out
}

var _ Tracer = (*OTelTracer)(nil)
