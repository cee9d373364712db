// Package fctelemetry adapts the teacher SDK's telemetry.Settings /
// GetTracer pattern to the Flow lifecycle: spans named flow.capture,
// flow.reassemble, and flow.query instead of the teacher's
// generation/embedding/streaming operations.
package fctelemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Settings configures Flow-pipeline tracing. Telemetry is disabled by
// default and must be explicitly enabled.
type Settings struct {
	// IsEnabled controls whether telemetry is active.
	IsEnabled bool

	// RecordContent controls whether Request/Response content is
	// recorded as span attributes. Defaults to false — Flow bodies can
	// carry arbitrary user content and recording them by default would
	// contradict the "redaction only at export time" posture elsewhere
	// in the core; tracing is a separate export path and gets its own
	// opt-in.
	RecordContent bool

	// ServiceName names the resource attribute emitted on every span.
	ServiceName string

	// Tracer is a custom OpenTelemetry tracer. If nil, the global
	// tracer is used.
	Tracer trace.Tracer
}

// DefaultSettings returns Settings with tracing disabled.
func DefaultSettings() *Settings {
	return &Settings{
		IsEnabled:     false,
		RecordContent: false,
		ServiceName:   "flowcore",
	}
}

// WithEnabled returns a copy of Settings with IsEnabled set.
func (s *Settings) WithEnabled(enabled bool) *Settings {
	c := *s
	c.IsEnabled = enabled
	return &c
}

// WithRecordContent returns a copy of Settings with RecordContent set.
func (s *Settings) WithRecordContent(record bool) *Settings {
	c := *s
	c.RecordContent = record
	return &c
}

// WithTracer returns a copy of Settings with Tracer set.
func (s *Settings) WithTracer(tracer trace.Tracer) *Settings {
	c := *s
	c.Tracer = tracer
	return &c
}

// FlowAttributes builds the common span attributes every Flow span
// carries, independent of which pipeline stage emitted it.
func FlowAttributes(flowID, provider, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("flow.id", flowID),
		attribute.String("flow.provider", provider),
		attribute.String("flow.model", model),
	}
}
