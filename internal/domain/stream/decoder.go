package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

type state int

const (
	stateStreaming state = iota
	stateDraining
	stateTerminated
)

// frameSep delimits SSE frames.
var frameSep = []byte("\n\n")

// Decoder is an incremental SSE decoder. Feed it raw chunks as they arrive;
// it buffers partial frames across chunk boundaries, so the emitted event
// sequence is identical no matter how the byte stream is split.
//
// A Decoder is not safe for concurrent use; it is driven by the single
// goroutine reading the transport.
type Decoder struct {
	buf      bytes.Buffer
	st       state
	terminal bool
	log      *slog.Logger
}

// NewDecoder creates a decoder in the streaming state.
func NewDecoder(log *slog.Logger) *Decoder {
	if log == nil {
		log = slog.Default()
	}
	return &Decoder{log: log}
}

// Feed appends a chunk and returns all events completed by it. Once a
// terminal event has been emitted the decoder ignores further input.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.st != stateStreaming {
		return nil
	}
	d.buf.Write(chunk)

	var events []Event
	for {
		raw := d.buf.Bytes()
		i := bytes.Index(raw, frameSep)
		if i < 0 {
			break
		}
		frame := string(raw[:i])
		d.buf.Next(i + len(frameSep))

		ev, ok := d.parseFrame(frame)
		if !ok {
			continue
		}
		events = append(events, ev)
		if ev.Terminal() {
			d.st = stateTerminated
			d.terminal = true
			break
		}
	}
	return events
}

// Close signals that the peer ended the stream. Any residual buffered bytes
// are parsed as one final frame, and a done event is synthesized if no
// terminal event was seen.
func (d *Decoder) Close() []Event {
	if d.st == stateTerminated {
		return nil
	}
	d.st = stateDraining

	var events []Event
	if residual := strings.TrimSpace(d.buf.String()); residual != "" {
		if ev, ok := d.parseFrame(residual); ok {
			events = append(events, ev)
			if ev.Terminal() {
				d.terminal = true
			}
		}
	}
	d.buf.Reset()
	d.st = stateTerminated

	if !d.terminal {
		d.terminal = true
		events = append(events, Event{Type: EventDone})
	}
	return events
}

// Fail terminates the stream with a single error event. Used for transport
// failures (connection errors, non-2xx before the first byte).
func (d *Decoder) Fail(err error) []Event {
	if d.st == stateTerminated {
		return nil
	}
	d.buf.Reset()
	d.st = stateTerminated
	d.terminal = true
	return []Event{{
		Type:    EventError,
		Content: "The streaming connection failed. Please try again.",
		Details: err.Error(),
	}}
}

// parseFrame splits a frame into its event label and data payload and
// normalizes the payload. Frames with no data line are dropped.
func (d *Decoder) parseFrame(frame string) (Event, bool) {
	var label, data string
	hasData := false

	for _, line := range strings.Split(frame, "\n") {
		switch {
		case strings.HasPrefix(line, "event:"):
			label = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(line[len("data:"):])
			hasData = true
		}
	}

	if !hasData {
		d.log.Debug("sse frame without data dropped", "frame", truncate(frame, 200))
		return Event{}, false
	}
	if data == "[DONE]" {
		return Event{Type: EventDone}, true
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(data), &obj); err != nil || obj == nil {
		// Not a JSON object: pass the raw payload through as best effort.
		return Event{Type: labelOr(label), Content: data}, true
	}
	return normalize(label, obj), true
}

// normalize applies the payload decision table. The branches are ordered;
// the first matching shape wins.
func normalize(label string, obj map[string]any) Event {
	if delta, ok := obj["delta"].(map[string]any); ok {
		return normalizeDelta(label, delta)
	}

	if content, ok := obj["content"]; ok {
		return Event{Type: EventText, Content: flattenContent(content)}
	}

	if typ, ok := obj["type"].(string); ok {
		switch typ {
		case "message_start":
			return Event{Type: EventThinking, Title: "Planning", Content: "Analyzing your question..."}
		case "message_stop":
			return Event{Type: EventDone}
		default:
			return Event{Type: EventType(typ)}
		}
	}

	if text, ok := obj["text"].(string); ok {
		return Event{Type: EventText, Content: text}
	}

	// Nothing usable in the payload; fall back to the frame label. Lifecycle
	// labels get the same treatment as lifecycle payload types.
	switch label {
	case "message_start":
		return Event{Type: EventThinking, Title: "Planning", Content: "Analyzing your question..."}
	case "message_stop":
		return Event{Type: EventDone}
	}
	return Event{Type: labelOr(label)}
}

func normalizeDelta(label string, delta map[string]any) Event {
	if text, ok := delta["text"].(string); ok {
		return Event{Type: EventText, Content: text}
	}

	if content, ok := delta["content"]; ok {
		if flat := flattenContent(content); flat != "" {
			return Event{Type: EventText, Content: flat}
		}
	}

	if thinking, ok := delta["thinking"]; ok {
		ev := Event{Type: EventThinking, Title: "Processing"}
		if m, ok := thinking.(map[string]any); ok {
			if title, ok := m["title"].(string); ok {
				ev.Title = title
			}
			if content, ok := m["content"].(string); ok {
				ev.Content = content
			}
		} else {
			ev.Content = fmt.Sprint(thinking)
		}
		return ev
	}

	toolUse, hasToolUse := delta["tool_use"]
	sql, hasSQL := delta["sql"].(string)
	if hasToolUse || hasSQL {
		ev := Event{Type: EventToolUse, SQL: sql}
		if hasToolUse {
			if raw, err := json.Marshal(toolUse); err == nil {
				ev.ToolUse = raw
			}
		}
		return ev
	}

	return Event{Type: labelOr(label)}
}

// flattenContent concatenates the text leaves of a content block list.
// A bare string is returned as is.
func flattenContent(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []any:
		var b strings.Builder
		for _, block := range c {
			switch blk := block.(type) {
			case string:
				b.WriteString(blk)
			case map[string]any:
				if text, ok := blk["text"].(string); ok {
					b.WriteString(text)
				}
			}
		}
		return b.String()
	}
	return ""
}

func labelOr(label string) EventType {
	if label == "" {
		return "message"
	}
	return EventType(label)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
