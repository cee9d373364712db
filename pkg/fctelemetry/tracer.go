package fctelemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the name used for the Flow-pipeline tracer.
const TracerName = "flowcore"

// Span names for the three pipeline stages spec.md's design notes call
// out as telemetry-worthy.
const (
	SpanCapture    = "flow.capture"
	SpanReassemble = "flow.reassemble"
	SpanQuery      = "flow.query"
)

// GetTracer resolves the tracer a Flow-pipeline stage should record
// spans against, in priority order: an explicit per-Settings override,
// then the global provider (which NewExporter points at a live OTLP
// collector when one is configured), falling back to a no-op tracer
// when telemetry isn't enabled at all.
func GetTracer(settings *Settings) trace.Tracer {
	if !telemetryEnabled(settings) {
		return noop.NewTracerProvider().Tracer(TracerName)
	}
	if settings.Tracer != nil {
		return settings.Tracer
	}
	return otel.Tracer(TracerName)
}

func telemetryEnabled(settings *Settings) bool {
	return settings != nil && settings.IsEnabled
}
