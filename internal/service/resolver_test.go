package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atlas-delivery/atlas/internal/domain/query"
	"github.com/atlas-delivery/atlas/internal/port/messagequeue"
)

type stubExecutor struct {
	fn    func(sql string, args ...any) (*query.Rowset, error)
	calls []string
	args  [][]any
}

func (s *stubExecutor) Execute(_ context.Context, sql string, args ...any) (*query.Rowset, error) {
	s.calls = append(s.calls, sql)
	s.args = append(s.args, args)
	return s.fn(sql, args...)
}

type stubCompleter struct {
	reply string
	err   error
}

func (s *stubCompleter) Complete(_ context.Context, _ string) (string, error) {
	return s.reply, s.err
}

type memCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{items: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

type recordingQueue struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (q *recordingQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subjects = append(q.subjects, subject)
	q.payloads = append(q.payloads, data)
	return nil
}

func (q *recordingQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *recordingQueue) Close() error { return nil }

func singleRow(col string, val any) *query.Rowset {
	return &query.Rowset{
		Columns: []string{col},
		Rows:    []map[string]any{{col: val}},
	}
}

func newTestResolver(wh *stubExecutor, comp *stubCompleter) *TieredResolver {
	return NewTieredResolver(wh, comp, query.NewCatalog("atlas"), "atlas", nil)
}

func TestResolvePatternTier(t *testing.T) {
	wh := &stubExecutor{fn: func(string, ...any) (*query.Rowset, error) {
		return singleRow("CO_COUNT", int64(870)), nil
	}}
	r := newTestResolver(wh, &stubCompleter{})

	res := r.Resolve(context.Background(), "How many change orders are there?")
	if res.Source != query.TierPattern {
		t.Fatalf("Source = %q, want %q", res.Source, query.TierPattern)
	}
	if res.Rowset.RowCount() != 1 {
		t.Errorf("RowCount = %d, want 1", res.Rowset.RowCount())
	}
	if len(wh.calls) != 1 {
		t.Errorf("warehouse called %d times, want 1", len(wh.calls))
	}
}

func TestResolveEscalatesToLLMOnZeroRows(t *testing.T) {
	wh := &stubExecutor{fn: func(sql string, _ ...any) (*query.Rowset, error) {
		if strings.Contains(sql, "generated") {
			return singleRow("TOTAL", 42.0), nil
		}
		return &query.Rowset{}, nil
	}}
	comp := &stubCompleter{reply: "```sql\nSELECT 1 AS generated\n```"}
	r := newTestResolver(wh, comp)

	res := r.Resolve(context.Background(), "How many change orders are there?")
	if res.Source != query.TierLLM {
		t.Fatalf("Source = %q, want %q", res.Source, query.TierLLM)
	}
	if res.SQL != "SELECT 1 AS generated" {
		t.Errorf("SQL = %q, fences not stripped", res.SQL)
	}
}

func TestResolveFallsBackToSuggestions(t *testing.T) {
	wh := &stubExecutor{fn: func(string, ...any) (*query.Rowset, error) {
		return nil, errors.New("warehouse down")
	}}
	comp := &stubCompleter{err: errors.New("completion down")}
	r := newTestResolver(wh, comp)

	res := r.Resolve(context.Background(), "How many change orders are there?")
	if res.Source != query.TierNone {
		t.Fatalf("Source = %q, want %q", res.Source, query.TierNone)
	}
	if !strings.Contains(res.Explanation, "List all projects") {
		t.Errorf("fallback explanation missing suggestions: %q", res.Explanation)
	}
	if res.Rowset.RowCount() != 0 {
		t.Errorf("fallback carried rows: %d", res.Rowset.RowCount())
	}
}

func TestResolveNeverEscalatesPastFirstNonEmptyTier(t *testing.T) {
	wh := &stubExecutor{fn: func(string, ...any) (*query.Rowset, error) {
		return singleRow("PROJECT_COUNT", int64(12)), nil
	}}
	comp := &stubCompleter{reply: "SELECT should_not_run"}
	r := newTestResolver(wh, comp)

	r.Resolve(context.Background(), "How many projects are there?")
	if len(wh.calls) != 1 {
		t.Fatalf("warehouse called %d times, want 1 (no tier 2 run)", len(wh.calls))
	}
}

func TestResolveCacheHitSkipsWarehouse(t *testing.T) {
	wh := &stubExecutor{fn: func(string, ...any) (*query.Rowset, error) {
		return singleRow("CO_COUNT", int64(870)), nil
	}}
	r := newTestResolver(wh, &stubCompleter{})
	r.SetCache(newMemCache(), time.Minute)

	first := r.Resolve(context.Background(), "How many change orders are there?")
	second := r.Resolve(context.Background(), "how many change orders are there?")

	if len(wh.calls) != 1 {
		t.Fatalf("warehouse called %d times, want 1 (second resolve cached)", len(wh.calls))
	}
	if first.Source != second.Source {
		t.Errorf("cached tier %q differs from original %q", second.Source, first.Source)
	}
	if second.Rowset.RowCount() != 1 {
		t.Errorf("cached RowCount = %d, want 1", second.Rowset.RowCount())
	}
}

func TestResolvePublishesAudit(t *testing.T) {
	wh := &stubExecutor{fn: func(string, ...any) (*query.Rowset, error) {
		return singleRow("CO_COUNT", int64(870)), nil
	}}
	q := &recordingQueue{}
	r := newTestResolver(wh, &stubCompleter{})
	r.SetQueue(q)

	r.Resolve(context.Background(), "How many change orders are there?")

	if len(q.subjects) != 1 || q.subjects[0] != messagequeue.SubjectQueryResolved {
		t.Fatalf("audit subjects = %v, want [%s]", q.subjects, messagequeue.SubjectQueryResolved)
	}
	if !strings.Contains(string(q.payloads[0]), `"tier":"pattern"`) {
		t.Errorf("audit payload missing tier: %s", q.payloads[0])
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"```sql\nSELECT 1\n```", "SELECT 1"},
		{"```\nSELECT 1\n```", "SELECT 1"},
		{"```sql\nSELECT 1", "SELECT 1"},
		{"  SELECT 1  ", "SELECT 1"},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
