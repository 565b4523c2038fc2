package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/atlas-delivery/atlas/internal/adapter/ws"
	"github.com/atlas-delivery/atlas/internal/port/broadcast"
	"github.com/atlas-delivery/atlas/internal/port/messagequeue"
)

// alertRoutes maps each copilot alert subject to the WebSocket event type
// dashboards subscribe to.
var alertRoutes = map[string]string{
	messagequeue.SubjectDiscoveryAlert: ws.EventDiscoveryAlert,
	messagequeue.SubjectPortfolioAlert: ws.EventPortfolioAlert,
}

// RelayAlerts subscribes to the copilot alert subjects and forwards every
// message to connected WebSocket clients. Publishers never talk to the hub
// directly; anything that lands on an alert subject reaches dashboards,
// including alerts published by other processes. The returned func cancels
// all subscriptions.
func RelayAlerts(ctx context.Context, queue messagequeue.Queue, b broadcast.Broadcaster, log *slog.Logger) (func(), error) {
	if log == nil {
		log = slog.Default()
	}

	stops := make([]func(), 0, len(alertRoutes))
	stopAll := func() {
		for _, stop := range stops {
			stop()
		}
	}

	for subject, eventType := range alertRoutes {
		et := eventType
		stop, err := queue.Subscribe(ctx, subject, func(ctx context.Context, subj string, data []byte) error {
			b.BroadcastEvent(ctx, et, json.RawMessage(data))
			return nil
		})
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("relay subscribe %s: %w", subject, err)
		}
		stops = append(stops, stop)
		log.Debug("alert relay subscribed", "subject", subject, "event", et)
	}

	return stopAll, nil
}
