package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventPortfolioSummary = "portfolio.summary"
	EventDiscoveryAlert   = "alert.discovery"
	EventPortfolioAlert   = "alert.portfolio"
)

// PortfolioSummaryEvent is broadcast when portfolio KPIs are recomputed.
type PortfolioSummaryEvent struct {
	TotalProjects       int     `json:"total_projects"`
	TotalBudget         float64 `json:"total_budget"`
	AvgCPI              float64 `json:"avg_cpi"`
	AvgSPI              float64 `json:"avg_spi"`
	OverBudgetCount     int     `json:"over_budget_count"`
	BehindScheduleCount int     `json:"behind_schedule_count"`
}

// DiscoveryAlertEvent is broadcast when pattern discovery finds a
// cross-project anomaly.
type DiscoveryAlertEvent struct {
	Pattern      string  `json:"pattern"`
	MatchCount   int     `json:"match_count"`
	ProjectCount int     `json:"project_count"`
	TotalAmount  float64 `json:"total_amount"`
	AlertLevel   string  `json:"alert_level"`
}

// PortfolioAlertEvent is broadcast when a project breaches an alert threshold.
type PortfolioAlertEvent struct {
	ProjectID   string  `json:"project_id"`
	ProjectName string  `json:"project_name"`
	Metric      string  `json:"metric"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
	Severity    string  `json:"severity"`
}

// BroadcastEvent marshals a typed event and broadcasts it to all clients.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
