package fctelemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTracerReturnsNoopWhenDisabled(t *testing.T) {
	tracer := GetTracer(DefaultSettings())
	require.NotNil(t, tracer)
	_, span := tracer.Start(context.Background(), "x")
	defer span.End()
	assert.False(t, span.IsRecording())
}

func TestGetTracerReturnsNoopWhenNil(t *testing.T) {
	tracer := GetTracer(nil)
	require.NotNil(t, tracer)
}

func TestRecordSpanPropagatesResult(t *testing.T) {
	tracer := GetTracer(DefaultSettings())

	result, err := RecordSpan(context.Background(), tracer, SpanOptions{Name: SpanCapture}, func(ctx context.Context, span trace.Span) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestRecordSpanPropagatesError(t *testing.T) {
	tracer := GetTracer(DefaultSettings())

	out, err := RecordSpan(context.Background(), tracer, SpanOptions{Name: SpanReassemble}, func(ctx context.Context, span trace.Span) (string, error) {
		return "", errors.New("boom")
	})
	assert.Empty(t, out)
	assert.Error(t, err)
}

func TestNewExporterRejectsDisabledSettings(t *testing.T) {
	_, err := NewExporter(context.Background(), DefaultSettings(), ExporterConfig{Endpoint: "localhost:4318"})
	assert.Error(t, err)
}

func TestNewExporterRejectsMissingEndpoint(t *testing.T) {
	_, err := NewExporter(context.Background(), DefaultSettings().WithEnabled(true), ExporterConfig{})
	assert.Error(t, err)
}

func TestNewExporterBuildsProviderWithoutDialing(t *testing.T) {
	exp, err := NewExporter(context.Background(), DefaultSettings().WithEnabled(true), ExporterConfig{
		Endpoint: "localhost:4318",
		Insecure: true,
	})
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.NotNil(t, exp.Tracer())
}
