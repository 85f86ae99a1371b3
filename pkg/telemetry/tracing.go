package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name.
const defaultTracerName = "slimerrt"

// TracerOption configures a Tracer.
type TracerOption func(*tracerConfig)

type tracerConfig struct {
	provider trace.TracerProvider
	kind     trace.SpanKind
}

// WithTracerProvider sets the provider spans are created from. The default is
// the global provider, which is a no-op until the application installs one
// with otel.SetTracerProvider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(c *tracerConfig) {
		c.provider = tp
	}
}

// WithSpanKind sets the kind of every span the Tracer starts.
func WithSpanKind(kind trace.SpanKind) TracerOption {
	return func(c *tracerConfig) {
		c.kind = kind
	}
}

// Tracer starts spans around connection lifecycle operations.
type Tracer struct {
	tracer trace.Tracer
	kind   trace.SpanKind
}

// NewTracer returns a Tracer named name, or "slimerrt" if name is empty.
func NewTracer(name string, opts ...TracerOption) *Tracer {
	config := tracerConfig{kind: trace.SpanKindInternal}
	for _, opt := range opts {
		opt(&config)
	}
	if config.provider == nil {
		config.provider = otel.GetTracerProvider()
	}
	if name == "" {
		name = defaultTracerName
	}
	return &Tracer{tracer: config.provider.Tracer(name), kind: config.kind}
}

// Start starts a span named "slimerrt.<op>". On a nil Tracer it returns ctx
// unchanged and a no-op span.
func (t *Tracer) Start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return t.tracer.Start(ctx, defaultTracerName+"."+op,
		trace.WithSpanKind(t.kind),
		trace.WithAttributes(attrs...),
	)
}

// End records err on span, sets its status and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
