package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for chunkflow spans.
const TracerName = "github.com/kart-io/chunkflow"

// Attribute keys used on pipeline spans.
const (
	MessagingSystem      = "messaging.system"
	MessagingDestination = "messaging.destination.name"
	MessagingMessageID   = "messaging.message.id"
	DocumentID           = "chunkflow.document_id"
	RetryCount           = "chunkflow.retry_count"
)

// StartSpan starts a span on the global tracer.
func StartSpan(ctx context.Context, spanName string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, spanName,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
}

// RecordError records err on the span in ctx and marks it failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceIDFromContext returns the active trace ID, or "".
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
