package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Enabled {
		t.Error("tracing should be disabled by default")
	}
	if cfg.ServiceName != "lifespan" {
		t.Errorf("ServiceName = %q, want lifespan", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("SampleRate = %v, want 1.0", cfg.SampleRate)
	}
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(ctx); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
	if IsEnabled() {
		t.Error("IsEnabled() = true after disabled Init")
	}
}

func TestStartSpan_NoOp(t *testing.T) {
	ctx, span := StartSpan(context.Background(), SpanStartup)
	if ctx == nil || span == nil {
		t.Fatal("StartSpan should always return a context and span")
	}
	if span.SpanContext().IsValid() {
		t.Error("no-op span should not carry a valid span context")
	}
	if TraceID(ctx) != "" {
		t.Error("TraceID() should be empty for no-op spans")
	}
	span.End()
}

func TestRecordError(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tr := tp.Tracer("test")

	ctx, span := tr.Start(context.Background(), SpanShutdown)
	RecordError(span, nil)
	RecordError(span, errors.New("shutdown failed"))
	AddEvent(ctx, "shutdown.sent", MessageKind("shutdown"))
	span.End()

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(ended))
	}
	got := ended[0]
	if got.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", got.Status().Code)
	}
	if got.Status().Description != "shutdown failed" {
		t.Errorf("description = %q", got.Status().Description)
	}
	if len(got.Events()) != 2 {
		t.Errorf("expected exception and custom event, got %d events", len(got.Events()))
	}
	if TraceID(ctx) == "" {
		t.Error("TraceID() should be set for recorded spans")
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, sdktrace.AlwaysSample().Description()},
		{2.0, sdktrace.AlwaysSample().Description()},
		{0.0, sdktrace.NeverSample().Description()},
		{-1, sdktrace.NeverSample().Description()},
		{0.5, sdktrace.TraceIDRatioBased(0.5).Description()},
	}

	for _, tt := range tests {
		if got := Sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("Sampler(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestAttributes(t *testing.T) {
	if kv := Loop(7); kv.Value.AsInt64() != 7 || string(kv.Key) != AttrLoop {
		t.Errorf("Loop(7) = %v", kv)
	}
	if kv := Releases(3); kv.Value.AsInt64() != 3 {
		t.Errorf("Releases(3) = %v", kv)
	}
	if kv := SessionID("abc"); kv.Value.AsString() != "abc" {
		t.Errorf("SessionID = %v", kv)
	}
}
