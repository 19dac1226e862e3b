// Package telemetry exports pipeline run traces over OTLP gRPC. A run is one
// span; stream operators annotate it with epoch flushes, topology sealing,
// and final counters through the span helpers below.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// Config configures OTLP gRPC export.
type Config struct {
	// Endpoint of the OTLP gRPC collector, host:port.
	Endpoint string

	// ServiceName and ServiceVersion identify this embedding in traces.
	ServiceName    string
	ServiceVersion string

	// Environment tags the deployment (e.g. "production").
	Environment string

	// Insecure disables TLS on the collector connection.
	Insecure bool

	// Headers are sent with every export request (auth tokens etc).
	Headers map[string]string

	// BatchTimeout bounds how long spans wait before export; ExportTimeout
	// bounds one export call.
	BatchTimeout  time.Duration
	ExportTimeout time.Duration

	// SamplingRatio is the sampled fraction of runs, 0 to 1.
	SamplingRatio float64
}

// DefaultConfig returns export defaults for a local collector.
func DefaultConfig(service string) Config {
	return Config{
		Endpoint:      "localhost:4317",
		ServiceName:   service,
		Insecure:      true,
		BatchTimeout:  5 * time.Second,
		ExportTimeout: 30 * time.Second,
		SamplingRatio: 1.0,
	}
}

// Exporter owns the tracer provider lifecycle for one embedding.
type Exporter struct {
	mu sync.Mutex

	cfg         Config
	provider    *sdktrace.TracerProvider
	tracer      trace.Tracer
	shutdown    func(context.Context) error
	initialized bool
}

// NewExporter creates an exporter; nothing is dialed until Init.
func NewExporter(cfg Config) *Exporter {
	return &Exporter{cfg: cfg}
}

// Init builds the OTLP exporter, installs the global tracer provider and
// propagators, and returns the shutdown function that flushes pending spans.
// Calling Init again returns the existing shutdown function.
func (e *Exporter) Init(ctx context.Context) (func(context.Context) error, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return e.shutdown, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(e.cfg.Endpoint),
		otlptracegrpc.WithTimeout(e.cfg.ExportTimeout),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent(userAgent(e.cfg))),
	}
	if e.cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(e.cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(e.cfg.Headers))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(e.cfg.ServiceName),
			semconv.ServiceVersion(e.cfg.ServiceVersion),
			semconv.DeploymentEnvironment(e.cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	e.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(e.cfg.BatchTimeout)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(e.cfg.SamplingRatio)),
	)
	otel.SetTracerProvider(e.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	e.tracer = e.provider.Tracer(e.cfg.ServiceName)
	e.shutdown = func(ctx context.Context) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.initialized {
			return nil
		}
		e.initialized = false
		return e.provider.Shutdown(ctx)
	}
	e.initialized = true

	return e.shutdown, nil
}

func userAgent(cfg Config) string {
	if cfg.ServiceVersion == "" {
		return cfg.ServiceName
	}
	return cfg.ServiceName + "/" + cfg.ServiceVersion
}

func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1.0:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(ratio)
	}
}

// Tracer returns the exporter's tracer, nil before Init.
func (e *Exporter) Tracer() trace.Tracer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracer
}

// IsInitialized reports whether Init has completed and the exporter has not
// been shut down.
func (e *Exporter) IsInitialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// Init is the one-call entry point: create an exporter, initialize it, and
// return the shutdown function.
func Init(cfg Config) (func(context.Context) error, error) {
	return NewExporter(cfg).Init(context.Background())
}

// --- Span helpers ---
//
// All helpers act on the span carried in ctx and are no-ops when the run is
// untraced, so operators call them unconditionally.

// StartSpanFromContext starts a span using the global tracer.
func StartSpanFromContext(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer("").Start(ctx, name, opts...)
}

// RecordError records err on the span in ctx.
func RecordError(ctx context.Context, err error) {
	trace.SpanFromContext(ctx).RecordError(err)
}

// AddSpanEvent adds a timestamped event to the span in ctx.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanAttributes sets attributes on the span in ctx.
func SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
