// Package otel provides metric instruments and tracing setup for atlas-core.
package otel

import (
	"context"
	"log/slog"
)

// ShutdownFunc is called to flush and shut down the trace provider.
type ShutdownFunc func(ctx context.Context) error

// InitTracer returns a no-op shutdown function. Metric instruments work
// against the global meter provider; exporter wiring happens at deploy time.
func InitTracer(serviceName string) ShutdownFunc {
	slog.Info("otel: tracer initialized", "service", serviceName)
	return func(_ context.Context) error {
		return nil
	}
}
