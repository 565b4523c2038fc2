// Package stream decodes the server-sent event stream produced by the remote
// agent API into a closed set of typed events.
package stream

import "encoding/json"

// EventType tags an Event. Beyond the known constants, unrecognized payloads
// pass through with the frame's own event label as the type.
type EventType string

const (
	EventThinking EventType = "thinking"
	EventText     EventType = "text"
	EventToolUse  EventType = "tool_use"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event is one normalized stream event. Exactly one terminal event (done or
// error) ends every stream; events after the terminal are never emitted.
type Event struct {
	Type    EventType       `json:"type"`
	Title   string          `json:"title,omitempty"`
	Content string          `json:"content,omitempty"`
	Details string          `json:"details,omitempty"`
	ToolUse json.RawMessage `json:"tool_use,omitempty"`
	SQL     string          `json:"sql,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
