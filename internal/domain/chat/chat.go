// Package chat defines the conversational request/response types shared by
// the router, the resolvers, and the HTTP layer.
package chat

// Intent classifies what a user message is asking for.
type Intent string

const (
	// IntentPatternDiscovery asks for cross-project anomaly analysis
	// (hidden change orders, scope leakage, systemic issues).
	IntentPatternDiscovery Intent = "pattern_discovery"

	// IntentDataQuery asks for a factual lookup against the warehouse.
	// This is the default when no discovery cue is present.
	IntentDataQuery Intent = "data_query"
)

// Request is an inbound chat message.
type Request struct {
	Message   string `json:"message"`
	ProjectID string `json:"project_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Response is the structured answer returned for every chat message.
// Response is always a complete, renderable markdown string; the remaining
// fields carry provenance and hints for the client.
type Response struct {
	Response      string         `json:"response"`
	Sources       []string       `json:"sources,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	Intent        Intent         `json:"intent"`
	Visualization string         `json:"visualization,omitempty"`
	AlertLevel    string         `json:"alert_level,omitempty"`
}

// Session carries per-conversation state. It is mutated only by the router,
// which runs conversations sequentially, so no locking is needed here.
type Session struct {
	ID             string `json:"id"`
	CurrentProject string `json:"current_project,omitempty"`
	LastIntent     Intent `json:"last_intent,omitempty"`
}
