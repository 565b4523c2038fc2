package agentrun_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atlas-delivery/atlas/internal/adapter/agentrun"
	"github.com/atlas-delivery/atlas/internal/config"
	"github.com/atlas-delivery/atlas/internal/domain/stream"
)

func newClient(url string) *agentrun.Client {
	return agentrun.NewClient(config.AgentRun{
		URL:            url,
		Token:          "test-token",
		ConnectTimeout: 5 * time.Second,
	}, nil)
}

func drain(t *testing.T, events <-chan stream.Event) []stream.Event {
	t.Helper()
	var out []stream.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestRunStreamsEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("unexpected auth: %q", auth)
		}
		if accept := r.Header.Get("Accept"); accept != "text/event-stream" {
			t.Errorf("unexpected accept: %q", accept)
		}

		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
			Stream bool `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if !body.Stream {
			t.Error("stream flag not set")
		}
		if len(body.Messages) != 1 || body.Messages[0].Content[0].Text != "show risky projects" {
			t.Errorf("unexpected messages: %+v", body.Messages)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: message_start\ndata: {}\n\n"))
		_, _ = w.Write([]byte("data: {\"delta\": {\"text\": \"Two projects look risky.\"}}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	events, err := newClient(srv.URL).Run(context.Background(),
		[]agentrun.Message{{Role: "user", Content: "show risky projects"}}, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := drain(t, events)
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(got), got)
	}
	if got[0].Type != stream.EventThinking || got[0].Title != "Planning" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Type != stream.EventText || got[1].Content != "Two projects look risky." {
		t.Errorf("second event = %+v", got[1])
	}
	if got[2].Type != stream.EventDone {
		t.Errorf("terminal event = %+v", got[2])
	}
}

func TestRunSynthesizesDoneOnPeerClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"delta\": {\"text\": \"partial\"}}\n\n"))
		// connection closes without [DONE]
	}))
	defer srv.Close()

	events, err := newClient(srv.URL).Run(context.Background(),
		[]agentrun.Message{{Role: "user", Content: "q"}}, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := drain(t, events)
	if len(got) != 2 {
		t.Fatalf("expected text + synthesized done, got %+v", got)
	}
	if got[1].Type != stream.EventDone {
		t.Errorf("terminal event = %+v", got[1])
	}
}

func TestRunNon2xxEmitsSingleError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "agent not deployed", http.StatusNotFound)
	}))
	defer srv.Close()

	events, err := newClient(srv.URL).Run(context.Background(),
		[]agentrun.Message{{Role: "user", Content: "q"}}, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := drain(t, events)
	if len(got) != 1 || got[0].Type != stream.EventError {
		t.Fatalf("expected single error event, got %+v", got)
	}
	if got[0].Content != "Agent API error: 404" {
		t.Errorf("content = %q", got[0].Content)
	}
}

func TestRunConnectionRefusedEmitsError(t *testing.T) {
	events, err := newClient("http://127.0.0.1:1").Run(context.Background(),
		[]agentrun.Message{{Role: "user", Content: "q"}}, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := drain(t, events)
	if len(got) != 1 || got[0].Type != stream.EventError {
		t.Fatalf("expected single error event, got %+v", got)
	}
}
