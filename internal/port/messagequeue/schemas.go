package messagequeue

import "time"

// QueryResolvedPayload is the schema for copilot.queries.resolved messages.
type QueryResolvedPayload struct {
	SessionID  string        `json:"session_id,omitempty"`
	Question   string        `json:"question"`
	Tier       string        `json:"tier"`
	RowCount   int           `json:"row_count"`
	Duration   time.Duration `json:"duration_ms"`
	ResolvedAt time.Time     `json:"resolved_at"`
}

// DiscoveryAlertPayload is the schema for copilot.alerts.discovery messages.
type DiscoveryAlertPayload struct {
	Pattern        string  `json:"pattern"`
	MatchCount     int     `json:"match_count"`
	ProjectCount   int     `json:"project_count"`
	TotalAmount    float64 `json:"total_amount"`
	AlertLevel     string  `json:"alert_level"`
	TriggerMessage string  `json:"trigger_message,omitempty"`
}

// PortfolioAlertPayload is the schema for copilot.alerts.portfolio messages.
type PortfolioAlertPayload struct {
	ProjectID   string  `json:"project_id"`
	ProjectName string  `json:"project_name"`
	Metric      string  `json:"metric"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
	Severity    string  `json:"severity"`
}
