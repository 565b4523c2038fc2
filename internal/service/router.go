package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	aotel "github.com/atlas-delivery/atlas/internal/adapter/otel"
	"github.com/atlas-delivery/atlas/internal/domain/chat"
	"github.com/atlas-delivery/atlas/internal/domain/query"
)

// patternKeywords route a message to the discovery handler. Tested in
// order; first match wins.
var patternKeywords = []*regexp.Regexp{
	regexp.MustCompile(`hidden`),
	regexp.MustCompile(`pattern`),
	regexp.MustCompile(`scope\s*leakage`),
	regexp.MustCompile(`scope\s*gap`),
	regexp.MustCompile(`grounding`),
	regexp.MustCompile(`systemic`),
	regexp.MustCompile(`recurring`),
}

var projectIDPattern = regexp.MustCompile(`(?i)PRJ-(\d+)`)

// projectNames maps well-known project names to their IDs so a message
// like "tell me about the harbor bridge project" resolves without an
// explicit ID.
var projectNames = map[string]string{
	"downtown transit":     "PRJ-001",
	"riverside substation": "PRJ-002",
	"airport terminal":     "PRJ-003",
	"highway 101":          "PRJ-004",
	"metro blue line":      "PRJ-005",
	"harbor bridge":        "PRJ-006",
	"central utility":      "PRJ-007",
	"rail yard":            "PRJ-008",
	"water treatment":      "PRJ-009",
	"power substation":     "PRJ-010",
	"transit center west":  "PRJ-011",
	"tunnel boring":        "PRJ-012",
}

// Router classifies inbound chat messages and dispatches them to the
// tiered resolver or the pattern discovery handler.
type Router struct {
	resolver  *TieredResolver
	discovery *Discovery
	render    query.RenderOptions
	log       *slog.Logger
	metrics   *aotel.Metrics
}

// NewRouter creates a Router over the given handlers.
func NewRouter(resolver *TieredResolver, discovery *Discovery, render query.RenderOptions, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		resolver:  resolver,
		discovery: discovery,
		render:    render,
		log:       log,
	}
}

// SetMetrics enables metric recording.
func (rt *Router) SetMetrics(m *aotel.Metrics) {
	rt.metrics = m
}

// Classify determines the intent of a message. It is a pure function:
// the lowercased message is tested against the pattern keywords in
// order, and anything that matches none of them is a data query.
func Classify(message string) chat.Intent {
	lower := strings.ToLower(message)
	for _, re := range patternKeywords {
		if re.MatchString(lower) {
			return chat.IntentPatternDiscovery
		}
	}
	return chat.IntentDataQuery
}

// ExtractProjectID pulls a project reference out of a message, either an
// explicit PRJ-nnn ID or a known project name. Returns "" when the
// message carries no project hint.
func ExtractProjectID(message string) string {
	if m := projectIDPattern.FindStringSubmatch(message); m != nil {
		return "PRJ-" + m[1]
	}
	lower := strings.ToLower(message)
	for name, id := range projectNames {
		if strings.Contains(lower, name) {
			return id
		}
	}
	return ""
}

// Route processes one conversation turn. It updates the session context
// in place, dispatches on intent, and always returns a well-formed
// response: downstream failures degrade to a natural-language error
// message carrying the original intent.
func (rt *Router) Route(ctx context.Context, req chat.Request, sess *chat.Session) chat.Response {
	if req.ProjectID != "" {
		sess.CurrentProject = req.ProjectID
	} else if pid := ExtractProjectID(req.Message); pid != "" {
		sess.CurrentProject = pid
	}

	intent := Classify(req.Message)
	sess.LastIntent = intent

	rt.log.Info("message classified",
		"session_id", sess.ID,
		"intent", intent,
		"project", sess.CurrentProject)

	if rt.metrics != nil {
		rt.metrics.ChatRequests.Add(ctx, 1, metric.WithAttributes(
			attribute.String("intent", string(intent)),
		))
	}

	var (
		resp chat.Response
		err  error
	)
	switch intent {
	case chat.IntentPatternDiscovery:
		resp, err = rt.routeDiscovery(ctx, req.Message)
	default:
		resp = rt.routeDataQuery(ctx, req.Message, sess)
	}
	if err != nil {
		rt.log.Error("message handling failed", "session_id", sess.ID, "intent", intent, "error", err)
		return chat.Response{
			Response: fmt.Sprintf("I encountered an error: %v. Please try rephrasing your question.", err),
			Sources:  []string{},
			Context:  map[string]any{},
			Intent:   intent,
		}
	}
	return resp
}

func (rt *Router) routeDiscovery(ctx context.Context, message string) (chat.Response, error) {
	finding, err := rt.discovery.FindHiddenPatterns(ctx, message)
	if err != nil {
		return chat.Response{}, err
	}
	return chat.Response{
		Response:      finding.Narrative,
		Sources:       finding.Sources,
		Context:       finding.Data,
		Intent:        chat.IntentPatternDiscovery,
		Visualization: "scope_leakage",
		AlertLevel:    finding.AlertLevel,
	}, nil
}

func (rt *Router) routeDataQuery(ctx context.Context, message string, sess *chat.Session) chat.Response {
	ctx, span := aotel.StartResolveSpan(ctx, sess.ID, string(chat.IntentDataQuery))
	defer span.End()

	res := rt.resolver.Resolve(ctx, message)

	if res.Source == query.TierNone {
		return chat.Response{
			Response: res.Explanation,
			Sources:  []string{"ATLAS System"},
			Context:  map[string]any{},
			Intent:   chat.IntentDataQuery,
		}
	}

	return chat.Response{
		Response: query.Render(res, rt.render),
		Sources:  []string{tierSource(res.Source), "CAPITAL_PROJECTS_DB"},
		Context: map[string]any{
			"sql":       res.SQL,
			"row_count": res.Rowset.RowCount(),
		},
		Intent: chat.IntentDataQuery,
	}
}

func tierSource(t query.Tier) string {
	if t == query.TierLLM {
		return "Cortex LLM"
	}
	return "Direct SQL"
}
