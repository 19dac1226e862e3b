package telemetry

import (
	"context"
	"errors"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("flowtrace")

	if cfg.ServiceName != "flowtrace" {
		t.Errorf("expected service name flowtrace, got %q", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4317" {
		t.Errorf("expected local collector endpoint, got %q", cfg.Endpoint)
	}
	if !cfg.Insecure {
		t.Error("local default must not require TLS")
	}
	if cfg.SamplingRatio != 1.0 {
		t.Errorf("expected full sampling by default, got %v", cfg.SamplingRatio)
	}
	if cfg.BatchTimeout <= 0 || cfg.ExportTimeout <= 0 {
		t.Errorf("expected positive timeouts, got batch=%v export=%v", cfg.BatchTimeout, cfg.ExportTimeout)
	}
}

func TestExporterBeforeInit(t *testing.T) {
	e := NewExporter(Config{Endpoint: "collector:4317", ServiceName: "flowtrace"})

	if e.IsInitialized() {
		t.Error("exporter must not report initialized before Init")
	}
	if e.Tracer() != nil {
		t.Error("tracer must be nil before Init")
	}
}

func TestUserAgent(t *testing.T) {
	got := userAgent(Config{ServiceName: "flowtrace", ServiceVersion: "1.2.0"})
	if got != "flowtrace/1.2.0" {
		t.Errorf("expected flowtrace/1.2.0, got %q", got)
	}
	if got := userAgent(Config{ServiceName: "flowtrace"}); got != "flowtrace" {
		t.Errorf("expected bare service name without a version, got %q", got)
	}
}

func TestSpanHelpersNoopWithoutSpan(t *testing.T) {
	// Untraced runs pass a bare context; every helper must be safe.
	ctx := context.Background()

	RecordError(ctx, errors.New("source reset"))
	AddSpanEvent(ctx, "epoch.flushed")
	SetSpanAttributes(ctx)

	ctx, span := StartSpanFromContext(ctx, "flowtrace.run")
	defer span.End()
	AddSpanEvent(ctx, "topology.sealed")
}
