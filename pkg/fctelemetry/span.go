package fctelemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOptions configures one Flow-pipeline span.
type SpanOptions struct {
	Name       string
	Attributes []attribute.KeyValue
}

// RecordSpan starts a span, runs fn, records any returned error on the
// span, and ends it. Mirrors the teacher SDK's generic RecordSpan but
// always ends the span on return (Flow-pipeline spans have no
// async-continuation case the teacher's streaming spans needed).
func RecordSpan[T any](
	ctx context.Context,
	tracer trace.Tracer,
	opts SpanOptions,
	fn func(context.Context, trace.Span) (T, error),
) (T, error) {
	ctx, span := tracer.Start(ctx, opts.Name, trace.WithAttributes(opts.Attributes...))
	defer span.End()

	result, err := fn(ctx, span)
	if err != nil {
		recordError(span, err)
		var zero T
		return zero, err
	}
	return result, nil
}

func recordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
