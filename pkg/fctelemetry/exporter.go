package fctelemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ExporterConfig points the Flow-pipeline tracer at an OTLP/HTTP
// collector. It is separate from Settings because most deployments
// never set an endpoint and keep tracing on the no-op path; Settings
// stays the cheap, always-present knob and ExporterConfig is the
// opt-in wiring for the uncommon case of shipping spans out of
// process.
type ExporterConfig struct {
	// Endpoint is the collector's host:port, e.g. "localhost:4318".
	Endpoint string

	// URLPath is the collector's traces path. Defaults to "/v1/traces".
	URLPath string

	// Insecure disables TLS for the OTLP connection.
	Insecure bool

	// Headers are sent with every export request (auth tokens, tenant
	// IDs, and the like).
	Headers map[string]string
}

// Exporter owns the OTLP HTTP span exporter and the SDK TracerProvider
// built on top of it. Closing it flushes and tears down both.
type Exporter struct {
	provider *sdktrace.TracerProvider
	exporter *otlptrace.Exporter
}

// NewExporter builds an OTLP/HTTP exporter and registers a
// TracerProvider as the global provider, so GetTracer's otel.Tracer
// fallback starts emitting real spans instead of no-ops. Settings
// must have IsEnabled set; cfg.Endpoint is required.
func NewExporter(ctx context.Context, settings *Settings, cfg ExporterConfig) (*Exporter, error) {
	if settings == nil || !settings.IsEnabled {
		return nil, fmt.Errorf("fctelemetry: settings must be enabled to build an exporter")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("fctelemetry: endpoint is required")
	}
	urlPath := cfg.URLPath
	if urlPath == "" {
		urlPath = "/v1/traces"
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithURLPath(urlPath),
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("fctelemetry: failed to create OTLP exporter: %w", err)
	}

	serviceName := settings.ServiceName
	if serviceName == "" {
		serviceName = "flowcore"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("fctelemetry: failed to build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Exporter{provider: tp, exporter: exporter}, nil
}

// Tracer returns a tracer bound to this exporter's TracerProvider.
func (e *Exporter) Tracer() trace.Tracer {
	return e.provider.Tracer(TracerName)
}

// Shutdown flushes pending spans and releases the exporter's
// connection. Callers should invoke this during process shutdown.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil || e.provider == nil {
		return nil
	}
	if err := e.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("fctelemetry: shutdown failed: %w", err)
	}
	return nil
}

// ForceFlush exports any spans still buffered, without shutting down.
func (e *Exporter) ForceFlush(ctx context.Context) error {
	if e == nil || e.provider == nil {
		return nil
	}
	if err := e.provider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("fctelemetry: flush failed: %w", err)
	}
	return nil
}
