package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "atlas"

// StartResolveSpan starts a span for a tiered query resolution.
func StartResolveSpan(ctx context.Context, sessionID, intent string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "resolve",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("query.intent", intent),
		),
	)
}

// StartWarehouseSpan starts a span for a warehouse query.
func StartWarehouseSpan(ctx context.Context, tier string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "warehouse.query",
		trace.WithAttributes(
			attribute.String("query.tier", tier),
		),
	)
}

// StartStreamSpan starts a span for an agent stream relay.
func StartStreamSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "stream",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
		),
	)
}
