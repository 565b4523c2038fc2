package stream_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/atlas-delivery/atlas/internal/domain/stream"
)

func collect(d *stream.Decoder, input string) []stream.Event {
	events := d.Feed([]byte(input))
	return append(events, d.Close()...)
}

func TestDecodeTextDelta(t *testing.T) {
	d := stream.NewDecoder(nil)
	events := d.Feed([]byte("data: {\"delta\": {\"text\": \"hello\"}}\n\n"))

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != stream.EventText || events[0].Content != "hello" {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestDecodeContentBlockList(t *testing.T) {
	d := stream.NewDecoder(nil)
	payload := `data: {"delta": {"content": [{"type": "text", "text": "part one "}, "part two"]}}` + "\n\n"
	events := d.Feed([]byte(payload))

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Content != "part one part two" {
		t.Errorf("content = %q, want %q", events[0].Content, "part one part two")
	}
}

func TestDecodeThinkingDefaultsTitle(t *testing.T) {
	d := stream.NewDecoder(nil)
	events := d.Feed([]byte(`data: {"delta": {"thinking": {"content": "checking schema"}}}` + "\n\n"))

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != stream.EventThinking || ev.Title != "Processing" || ev.Content != "checking schema" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestDecodeToolUseWithSQL(t *testing.T) {
	d := stream.NewDecoder(nil)
	events := d.Feed([]byte(`data: {"delta": {"tool_use": {"name": "run_sql"}, "sql": "SELECT 1"}}` + "\n\n"))

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != stream.EventToolUse || ev.SQL != "SELECT 1" || len(ev.ToolUse) == 0 {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestDecodeMessageStartSynthesizesThinking(t *testing.T) {
	d := stream.NewDecoder(nil)
	events := d.Feed([]byte("event: message_start\ndata: {}\n\n"))

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	want := stream.Event{Type: stream.EventThinking, Title: "Planning", Content: "Analyzing your question..."}
	if !reflect.DeepEqual(events[0], want) {
		t.Errorf("got %+v, want %+v", events[0], want)
	}
}

func TestDecodeDoneSentinelTerminates(t *testing.T) {
	d := stream.NewDecoder(nil)
	events := d.Feed([]byte("data: [DONE]\n\ndata: {\"delta\": {\"text\": \"late\"}}\n\n"))

	if len(events) != 1 || events[0].Type != stream.EventDone {
		t.Fatalf("expected single done event, got %+v", events)
	}
	if late := d.Feed([]byte("data: {\"delta\": {\"text\": \"more\"}}\n\n")); late != nil {
		t.Errorf("events accepted after terminal: %+v", late)
	}
	if extra := d.Close(); extra != nil {
		t.Errorf("close after terminal emitted %+v", extra)
	}
}

func TestDecodeChunkBoundaryInvariant(t *testing.T) {
	input := "event: message_start\ndata: {}\n\n" +
		"data: {\"delta\": {\"text\": \"first\"}}\n\n" +
		"data: {\"delta\": {\"thinking\": {\"title\": \"Working\", \"content\": \"...\"}}}\n\n" +
		"data: [DONE]\n\n"

	whole := collect(stream.NewDecoder(nil), input)

	byteWise := stream.NewDecoder(nil)
	var split []stream.Event
	for i := 0; i < len(input); i++ {
		split = append(split, byteWise.Feed([]byte{input[i]})...)
	}
	split = append(split, byteWise.Close()...)

	if !reflect.DeepEqual(whole, split) {
		t.Errorf("chunking changed the event sequence:\nwhole: %+v\nsplit: %+v", whole, split)
	}
}

func TestDecodeMalformedFrameDropped(t *testing.T) {
	input := "data: {\"delta\": {\"text\": \"ok one\"}}\n\n" +
		"no colon here at all\n\n" +
		"data: {\"delta\": {\"text\": \"ok two\"}}\n\n"

	d := stream.NewDecoder(nil)
	events := d.Feed([]byte(input))

	if len(events) != 2 {
		t.Fatalf("expected 2 events with the malformed frame dropped, got %d: %+v", len(events), events)
	}
	if events[0].Content != "ok one" || events[1].Content != "ok two" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestDecodeInvalidJSONDegradesToRaw(t *testing.T) {
	d := stream.NewDecoder(nil)
	events := d.Feed([]byte("data: {not json\n\n"))

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Content != "{not json" {
		t.Errorf("raw payload not preserved: %+v", events[0])
	}
}

func TestCloseSynthesizesDone(t *testing.T) {
	d := stream.NewDecoder(nil)
	d.Feed([]byte("data: {\"delta\": {\"text\": \"partial answer\"}}\n\n"))

	events := d.Close()
	if len(events) != 1 || events[0].Type != stream.EventDone {
		t.Fatalf("expected synthesized done, got %+v", events)
	}
}

func TestCloseDrainsResidualFrame(t *testing.T) {
	d := stream.NewDecoder(nil)
	// Final frame arrives without the trailing blank line.
	d.Feed([]byte("data: {\"delta\": {\"text\": \"tail\"}}"))

	events := d.Close()
	if len(events) != 2 {
		t.Fatalf("expected residual text + done, got %+v", events)
	}
	if events[0].Content != "tail" || events[1].Type != stream.EventDone {
		t.Errorf("unexpected drain sequence: %+v", events)
	}
}

func TestFailEmitsSingleTerminalError(t *testing.T) {
	d := stream.NewDecoder(nil)
	events := d.Fail(errors.New("connect: refused"))

	if len(events) != 1 || events[0].Type != stream.EventError {
		t.Fatalf("expected single error event, got %+v", events)
	}
	if events[0].Details != "connect: refused" {
		t.Errorf("details = %q", events[0].Details)
	}
	if extra := d.Close(); extra != nil {
		t.Errorf("close after fail emitted %+v", extra)
	}
}
