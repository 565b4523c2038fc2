// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Close shuts down the queue connection.
	Close() error
}

// Subject constants for the copilot event stream.
const (
	// SubjectQueryResolved carries one audit record per resolved query:
	// question, tier, row count, duration.
	SubjectQueryResolved = "copilot.queries.resolved"

	// SubjectDiscoveryAlert carries hidden-pattern discovery findings that
	// portfolio dashboards surface in real time.
	SubjectDiscoveryAlert = "copilot.alerts.discovery"

	// SubjectPortfolioAlert carries threshold breaches from the periodic
	// portfolio scan (CPI, SPI, contingency burn).
	SubjectPortfolioAlert = "copilot.alerts.portfolio"
)
