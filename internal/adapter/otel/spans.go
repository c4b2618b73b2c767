package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "spawnrelay"

// StartBroadcastSpan starts a span covering one fan-out, from snapshot until
// every delivery has settled.
func StartBroadcastSpan(ctx context.Context, eventType string, targets int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "broadcast",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.Int("broadcast.targets", targets),
		),
	)
}

// EndBroadcastSpan annotates span with the fan-out outcome and ends it.
func EndBroadcastSpan(span trace.Span, delivered, failed int) {
	span.SetAttributes(
		attribute.Int("broadcast.delivered", delivered),
		attribute.Int("broadcast.failed", failed),
	)
	span.End()
}
