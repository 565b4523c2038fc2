package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "atlas"

// Metrics holds all atlas-core metric instruments.
type Metrics struct {
	ChatRequests    metric.Int64Counter
	QueriesResolved metric.Int64Counter
	TierFallbacks   metric.Int64Counter
	StreamEvents    metric.Int64Counter
	ResolveDuration metric.Float64Histogram
	WarehouseRows   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ChatRequests, err = meter.Int64Counter("atlas.chat.requests",
		metric.WithDescription("Number of chat messages handled"))
	if err != nil {
		return nil, err
	}

	m.QueriesResolved, err = meter.Int64Counter("atlas.queries.resolved",
		metric.WithDescription("Number of queries resolved, by tier"))
	if err != nil {
		return nil, err
	}

	m.TierFallbacks, err = meter.Int64Counter("atlas.queries.tier_fallbacks",
		metric.WithDescription("Number of tier escalations during resolution"))
	if err != nil {
		return nil, err
	}

	m.StreamEvents, err = meter.Int64Counter("atlas.stream.events",
		metric.WithDescription("Number of stream events decoded, by type"))
	if err != nil {
		return nil, err
	}

	m.ResolveDuration, err = meter.Float64Histogram("atlas.resolve.duration_seconds",
		metric.WithDescription("Query resolution duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.WarehouseRows, err = meter.Float64Histogram("atlas.warehouse.rows",
		metric.WithDescription("Rows returned per warehouse query"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
