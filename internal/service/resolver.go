package service

import (
	"context"
	"embed"
	"encoding/json"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	aotel "github.com/atlas-delivery/atlas/internal/adapter/otel"
	"github.com/atlas-delivery/atlas/internal/domain/query"
	"github.com/atlas-delivery/atlas/internal/port/cache"
	"github.com/atlas-delivery/atlas/internal/port/completion"
	"github.com/atlas-delivery/atlas/internal/port/messagequeue"
	"github.com/atlas-delivery/atlas/internal/port/warehouse"
)

//go:embed templates/*.tmpl
var promptFS embed.FS

var sqlPrompt = template.Must(template.ParseFS(promptFS, "templates/sql_prompt.tmpl"))

// querySuggestions is returned when no tier can answer the question.
const querySuggestions = "I couldn't process that query. Here are some things I can answer:\n\n" +
	"📊 **Projects**\n" +
	"• \"List all projects\" or \"Show me the project names\"\n" +
	"• \"Show me the portfolio summary\"\n" +
	"• \"Which projects are over budget?\"\n" +
	"• \"Which projects are behind schedule?\"\n\n" +
	"💰 **Budget**\n" +
	"• \"What is the total budget by project?\"\n" +
	"• \"Show me the total spend per project\"\n\n" +
	"👷 **Vendors**\n" +
	"• \"List all vendors\"\n" +
	"• \"Which vendor has the most change orders?\"\n\n" +
	"📝 **Change Orders**\n" +
	"• \"How many change orders are there?\"\n" +
	"• \"Show change orders by category\""

// TieredResolver answers data questions with an escalating strategy:
// catalog-matched SQL first, LLM text-to-SQL second, static suggestions last.
// Pattern matching runs first because it is deterministic and auditable;
// the generative tier is strictly a fallback.
type TieredResolver struct {
	warehouse warehouse.Executor
	completer completion.Completer
	catalog   *query.Catalog
	schema    string
	log       *slog.Logger

	cache    cache.Cache
	cacheTTL time.Duration
	queue    messagequeue.Queue
	metrics  *aotel.Metrics
}

// NewTieredResolver creates a resolver over the given warehouse and completion backends.
func NewTieredResolver(wh warehouse.Executor, completer completion.Completer, catalog *query.Catalog, schema string, log *slog.Logger) *TieredResolver {
	if log == nil {
		log = slog.Default()
	}
	return &TieredResolver{
		warehouse: wh,
		completer: completer,
		catalog:   catalog,
		schema:    schema,
		log:       log,
	}
}

// SetCache enables result caching for resolved queries.
func (r *TieredResolver) SetCache(c cache.Cache, ttl time.Duration) {
	r.cache = c
	r.cacheTTL = ttl
}

// SetQueue enables audit publishing for resolved queries.
func (r *TieredResolver) SetQueue(q messagequeue.Queue) {
	r.queue = q
}

// SetMetrics enables metric recording.
func (r *TieredResolver) SetMetrics(m *aotel.Metrics) {
	r.metrics = m
}

// Resolve produces exactly one Result per question. It never returns an
// error: every failure degrades to the next tier, ending at the static
// suggestion fallback.
func (r *TieredResolver) Resolve(ctx context.Context, question string) *query.Result {
	start := time.Now()

	if res, ok := r.cached(ctx, question); ok {
		return res
	}

	res := r.resolve(ctx, question)
	elapsed := time.Since(start)

	if res.Source != query.TierNone {
		r.storeCache(ctx, question, res)
	}
	r.audit(ctx, question, res, elapsed)

	if r.metrics != nil {
		r.metrics.QueriesResolved.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tier", string(res.Source)),
		))
		r.metrics.ResolveDuration.Record(ctx, elapsed.Seconds())
		r.metrics.WarehouseRows.Record(ctx, float64(res.Rowset.RowCount()))
	}

	return res
}

func (r *TieredResolver) resolve(ctx context.Context, question string) *query.Result {
	// Tier 1: catalog pattern match.
	if rule, ok := r.catalog.Match(question); ok {
		rs, err := r.warehouse.Execute(ctx, rule.SQL)
		switch {
		case err != nil:
			r.log.Warn("catalog query failed", "rule", rule.Name, "error", err)
		case rs.RowCount() > 0:
			return &query.Result{
				SQL:         rule.SQL,
				Rowset:      *rs,
				Explanation: rule.Explanation,
				Source:      query.TierPattern,
			}
		}
		if r.metrics != nil {
			r.metrics.TierFallbacks.Add(ctx, 1, metric.WithAttributes(
				attribute.String("from", string(query.TierPattern)),
			))
		}
	}

	// Tier 2: LLM text-to-SQL.
	if sql, err := r.generateSQL(ctx, question); err != nil {
		r.log.Warn("text-to-sql generation failed", "error", err)
	} else if sql != "" {
		rs, err := r.warehouse.Execute(ctx, sql)
		switch {
		case err != nil:
			r.log.Warn("generated query failed", "sql", sql, "error", err)
		case rs.RowCount() > 0:
			return &query.Result{
				SQL:         sql,
				Rowset:      *rs,
				Explanation: "Query executed",
				Source:      query.TierLLM,
			}
		}
	}
	if r.metrics != nil {
		r.metrics.TierFallbacks.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(query.TierLLM)),
		))
	}

	// Tier 3: static suggestions.
	return &query.Result{
		Explanation: querySuggestions,
		Source:      query.TierNone,
	}
}

// generateSQL asks the completion model for a SQL statement and strips any
// Markdown code fence wrapping from the reply.
func (r *TieredResolver) generateSQL(ctx context.Context, question string) (string, error) {
	var prompt strings.Builder
	err := sqlPrompt.Execute(&prompt, struct {
		Schema   string
		Question string
	}{Schema: r.schema, Question: question})
	if err != nil {
		return "", err
	}

	raw, err := r.completer.Complete(ctx, prompt.String())
	if err != nil {
		return "", err
	}
	return stripFences(raw), nil
}

// stripFences removes a Markdown code-fence wrapper from generated SQL.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 1 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[1 : len(lines)-1]
	} else {
		lines = lines[1:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func cacheKey(question string) string {
	return "resolve:" + strings.ToLower(strings.TrimSpace(question))
}

func (r *TieredResolver) cached(ctx context.Context, question string) (*query.Result, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, ok, err := r.cache.Get(ctx, cacheKey(question))
	if err != nil || !ok {
		return nil, false
	}
	var res query.Result
	if err := json.Unmarshal(data, &res); err != nil {
		r.log.Warn("cached result unreadable", "error", err)
		return nil, false
	}
	return &res, true
}

func (r *TieredResolver) storeCache(ctx context.Context, question string, res *query.Result) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(question), data, r.cacheTTL); err != nil {
		r.log.Warn("result cache write failed", "error", err)
	}
}

func (r *TieredResolver) audit(ctx context.Context, question string, res *query.Result, elapsed time.Duration) {
	if r.queue == nil {
		return
	}
	payload := messagequeue.QueryResolvedPayload{
		Question:   question,
		Tier:       string(res.Source),
		RowCount:   res.Rowset.RowCount(),
		Duration:   elapsed / time.Millisecond,
		ResolvedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := r.queue.Publish(ctx, messagequeue.SubjectQueryResolved, data); err != nil {
		r.log.Warn("query audit publish failed", "error", err)
	}
}
