package telemetry

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mjasion/balena-home/coned_rtu/pkg/config"
)

func TestInitProviders_Disabled(t *testing.T) {
	providers, err := InitProviders(context.Background(), &config.OpenTelemetryConfig{Enabled: false}, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if providers != nil {
		t.Error("Expected nil providers when disabled")
	}

	if err := providers.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected nil providers shutdown to succeed, got: %v", err)
	}
}

func TestInitProviders_Enabled(t *testing.T) {
	cfg := &config.OpenTelemetryConfig{
		Enabled:     true,
		ServiceName: "coned-rtu-test",
		Endpoint:    "localhost:4318",
		Traces:      config.OTelTracesConfig{Enabled: true, SamplingRatio: 1, BatchDelayMs: 100},
		Metrics:     config.OTelMetricsConfig{Enabled: true, IntervalMillis: 60000},
	}

	providers, err := InitProviders(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if providers.TracerProvider == nil || providers.MeterProvider == nil {
		t.Fatal("Expected both providers to be initialized")
	}

	// nothing was recorded, so shutdown does not reach the collector
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = providers.Shutdown(ctx)
}

func TestUseInsecure(t *testing.T) {
	cfg := &config.OpenTelemetryConfig{}
	if !useInsecure(cfg, "localhost:4318") {
		t.Error("Expected localhost endpoint to be insecure")
	}
	if useInsecure(cfg, "otel.example.com:443") {
		t.Error("Expected remote endpoint to be secure")
	}
	cfg.Insecure = true
	if !useInsecure(cfg, "otel.example.com:4318") {
		t.Error("Expected insecure flag to be honoured")
	}
}

func TestLogWithTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	InfoWithTrace(context.Background(), logger, "no span", zap.Int("n", 1))

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	WarnWithTrace(ctx, logger, "with span")
	span.End()

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(entries))
	}

	if _, ok := entries[0].ContextMap()["trace_id"]; ok {
		t.Error("Expected no trace_id without a span")
	}

	fields := entries[1].ContextMap()
	if fields["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("Expected trace_id %s, got %v", span.SpanContext().TraceID(), fields["trace_id"])
	}
	if fields["span_id"] != span.SpanContext().SpanID().String() {
		t.Errorf("Expected span_id %s, got %v", span.SpanContext().SpanID(), fields["span_id"])
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("Expected warn level, got %s", entries[1].Level)
	}
}

func TestLogWithTrace_RespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	DebugWithTrace(context.Background(), zap.New(core), "hidden")
	if logs.Len() != 0 {
		t.Errorf("Expected debug entry to be filtered, got %d entries", logs.Len())
	}
}
