package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/atlas-delivery/atlas/internal/domain/chat"
	"github.com/atlas-delivery/atlas/internal/domain/query"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		message string
		want    chat.Intent
	}{
		{"Show me hidden patterns", chat.IntentPatternDiscovery},
		{"Is there a recurring issue with change orders?", chat.IntentPatternDiscovery},
		{"Any scope leakage this quarter?", chat.IntentPatternDiscovery},
		{"Do we have a scope gap?", chat.IntentPatternDiscovery},
		{"What about grounding specs?", chat.IntentPatternDiscovery},
		{"Is this systemic?", chat.IntentPatternDiscovery},
		{"List all projects", chat.IntentDataQuery},
		{"How many change orders are there?", chat.IntentDataQuery},
		{"What is the total budget?", chat.IntentDataQuery},
		{"", chat.IntentDataQuery},
	}
	for _, tt := range tests {
		if got := Classify(tt.message); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestExtractProjectID(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"Tell me about PRJ-003", "PRJ-003"},
		{"how is prj-012 doing", "PRJ-012"},
		{"Tell me about the harbor bridge project", "PRJ-006"},
		{"status of the Downtown Transit hub", "PRJ-001"},
		{"List all vendors", ""},
	}
	for _, tt := range tests {
		if got := ExtractProjectID(tt.message); got != tt.want {
			t.Errorf("ExtractProjectID(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func newTestRouter(wh *stubExecutor) *Router {
	resolver := newTestResolver(wh, &stubCompleter{})
	discovery := NewDiscovery(wh, "atlas", nil)
	return NewRouter(resolver, discovery, query.DefaultRenderOptions(), nil)
}

func TestRouteChangeOrderCount(t *testing.T) {
	wh := &stubExecutor{fn: func(string, ...any) (*query.Rowset, error) {
		return singleRow("CO_COUNT", int64(870)), nil
	}}
	rt := newTestRouter(wh)
	sess := &chat.Session{ID: "s1"}

	resp := rt.Route(context.Background(), chat.Request{Message: "How many change orders are there?"}, sess)

	if !strings.Contains(resp.Response, "Co Count") {
		t.Errorf("response missing title-cased column: %q", resp.Response)
	}
	if !strings.Contains(resp.Response, "870") {
		t.Errorf("response missing value: %q", resp.Response)
	}
	if resp.Intent != chat.IntentDataQuery {
		t.Errorf("Intent = %q, want data_query", resp.Intent)
	}
	if len(resp.Sources) == 0 || resp.Sources[0] != "Direct SQL" {
		t.Errorf("Sources = %v, want Direct SQL first", resp.Sources)
	}
	if resp.Context["row_count"] != 1 {
		t.Errorf("Context row_count = %v, want 1", resp.Context["row_count"])
	}
}

func TestRouteVendorListingRendersTable(t *testing.T) {
	wh := &stubExecutor{fn: func(string, ...any) (*query.Rowset, error) {
		return &query.Rowset{
			Columns: []string{"VENDOR_NAME", "TRADE_CATEGORY", "RISK_SCORE"},
			Rows: []map[string]any{
				{"VENDOR_NAME": "Apex Electrical", "TRADE_CATEGORY": "Electrical", "RISK_SCORE": 0.81},
				{"VENDOR_NAME": "Borealis Civil", "TRADE_CATEGORY": "Civil", "RISK_SCORE": 0.34},
			},
		}, nil
	}}
	rt := newTestRouter(wh)

	resp := rt.Route(context.Background(), chat.Request{Message: "List all vendors"}, &chat.Session{ID: "s1"})

	if !strings.Contains(resp.Response, "| Vendor Name | Trade Category | Risk Score |") {
		t.Errorf("response missing markdown header: %q", resp.Response)
	}
}

func TestRouteFallbackSuggestions(t *testing.T) {
	wh := &stubExecutor{fn: func(string, ...any) (*query.Rowset, error) {
		return &query.Rowset{}, nil
	}}
	rt := newTestRouter(wh)

	resp := rt.Route(context.Background(), chat.Request{Message: "sing me a song"}, &chat.Session{ID: "s1"})

	if !strings.Contains(resp.Response, "I couldn't process that query") {
		t.Errorf("response missing suggestion text: %q", resp.Response)
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "ATLAS System" {
		t.Errorf("Sources = %v, want [ATLAS System]", resp.Sources)
	}
}

func TestRouteUpdatesSessionContext(t *testing.T) {
	wh := &stubExecutor{fn: func(string, ...any) (*query.Rowset, error) {
		return singleRow("PROJECT_COUNT", int64(12)), nil
	}}
	rt := newTestRouter(wh)
	sess := &chat.Session{ID: "s1"}

	rt.Route(context.Background(), chat.Request{Message: "How many projects does PRJ-007 have?"}, sess)

	if sess.CurrentProject != "PRJ-007" {
		t.Errorf("CurrentProject = %q, want PRJ-007", sess.CurrentProject)
	}
	if sess.LastIntent != chat.IntentDataQuery {
		t.Errorf("LastIntent = %q, want data_query", sess.LastIntent)
	}

	rt.Route(context.Background(), chat.Request{Message: "any hidden patterns?"}, sess)
	if sess.CurrentProject != "PRJ-007" {
		t.Errorf("CurrentProject reset to %q, want sticky PRJ-007", sess.CurrentProject)
	}
	if sess.LastIntent != chat.IntentPatternDiscovery {
		t.Errorf("LastIntent = %q, want pattern_discovery", sess.LastIntent)
	}
}

func TestRouteExplicitProjectIDWins(t *testing.T) {
	wh := &stubExecutor{fn: func(string, ...any) (*query.Rowset, error) {
		return singleRow("PROJECT_COUNT", int64(12)), nil
	}}
	rt := newTestRouter(wh)
	sess := &chat.Session{ID: "s1"}

	rt.Route(context.Background(), chat.Request{Message: "count projects", ProjectID: "PRJ-002"}, sess)
	if sess.CurrentProject != "PRJ-002" {
		t.Errorf("CurrentProject = %q, want PRJ-002", sess.CurrentProject)
	}
}

func TestRouteDiscoveryErrorDegrades(t *testing.T) {
	wh := &stubExecutor{fn: func(sql string, _ ...any) (*query.Rowset, error) {
		return nil, context.DeadlineExceeded
	}}
	rt := newTestRouter(wh)

	resp := rt.Route(context.Background(), chat.Request{Message: "show hidden patterns"}, &chat.Session{ID: "s1"})

	if !strings.Contains(resp.Response, "I encountered an error") {
		t.Errorf("response = %q, want degraded error message", resp.Response)
	}
	if resp.Intent != chat.IntentPatternDiscovery {
		t.Errorf("Intent = %q, want pattern_discovery preserved", resp.Intent)
	}
}

func TestSessionStoreGetOrCreate(t *testing.T) {
	store := NewSessionStore()

	a := store.GetOrCreate("")
	if a.ID == "" {
		t.Fatal("expected generated session ID")
	}
	b := store.GetOrCreate(a.ID)
	if a != b {
		t.Error("GetOrCreate returned a different instance for the same ID")
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}

	store.Delete(a.ID)
	if store.Get(a.ID) != nil {
		t.Error("session survived Delete")
	}
}

func TestRouteResponseMarshalsIntentAsString(t *testing.T) {
	wh := &stubExecutor{fn: func(string, ...any) (*query.Rowset, error) {
		return singleRow("CO_COUNT", int64(870)), nil
	}}
	rt := newTestRouter(wh)
	sess := &chat.Session{ID: "s1"}

	resp := rt.Route(context.Background(), chat.Request{Message: "How many change orders are there?"}, sess)

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	if !strings.Contains(string(data), `"intent":"data_query"`) {
		t.Errorf("marshaled response missing string intent: %s", data)
	}
}
