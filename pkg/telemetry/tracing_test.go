package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type recordedSpan struct {
	noop.Span
	name   string
	kind   trace.SpanKind
	attrs  []attribute.KeyValue
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordedSpan) End(...trace.SpanEndOption) { s.ended = true }

func (s *recordedSpan) RecordError(err error, _ ...trace.EventOption) {
	s.errs = append(s.errs, err)
}

func (s *recordedSpan) SetStatus(code codes.Code, _ string) { s.status = code }

type recordingProvider struct {
	noop.TracerProvider
	spans []*recordedSpan
}

func (p *recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return &recordingTracer{provider: p}
}

type recordingTracer struct {
	noop.Tracer
	provider *recordingProvider
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	s := &recordedSpan{name: name, kind: cfg.SpanKind(), attrs: cfg.Attributes()}
	t.provider.spans = append(t.provider.spans, s)
	return trace.ContextWithSpan(ctx, s), s
}

func TestTracer_StartAndEnd(t *testing.T) {
	tp := &recordingProvider{}
	tr := NewTracer("", WithTracerProvider(tp), WithSpanKind(trace.SpanKindServer))

	ctx, span := tr.Start(context.Background(), "connect", attribute.String("peer", "127.0.0.1:4040"))
	if trace.SpanFromContext(ctx) != span {
		t.Error("span not stored in returned context")
	}
	End(span, nil)

	_, failed := tr.Start(context.Background(), "authenticate")
	End(failed, errors.New("denied"))

	if len(tp.spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(tp.spans))
	}
	ok, bad := tp.spans[0], tp.spans[1]
	if ok.name != "slimerrt.connect" || ok.kind != trace.SpanKindServer {
		t.Errorf("span = %q kind %v", ok.name, ok.kind)
	}
	if len(ok.attrs) != 1 || ok.attrs[0].Value.AsString() != "127.0.0.1:4040" {
		t.Errorf("attrs = %v", ok.attrs)
	}
	if !ok.ended || ok.status != codes.Ok || len(ok.errs) != 0 {
		t.Errorf("successful span: ended=%v status=%v errs=%v", ok.ended, ok.status, ok.errs)
	}
	if !bad.ended || bad.status != codes.Error || len(bad.errs) != 1 {
		t.Errorf("failed span: ended=%v status=%v errs=%v", bad.ended, bad.status, bad.errs)
	}
}

func TestTracer_NilIsNoop(t *testing.T) {
	var tr *Tracer
	parent := &recordedSpan{}
	ctx := trace.ContextWithSpan(context.Background(), parent)

	got, span := tr.Start(ctx, "receive")
	if got != ctx {
		t.Error("nil Tracer changed the context")
	}
	End(span, errors.New("ignored"))
	if parent.ended {
		t.Error("ending the no-op span ended the parent")
	}
}

func TestTracer_NoopProvider(t *testing.T) {
	tr := NewTracer("test", WithTracerProvider(noop.NewTracerProvider()))
	_, span := tr.Start(context.Background(), "op")
	if span.IsRecording() {
		t.Error("noop span is recording")
	}
	End(span, nil)
}
