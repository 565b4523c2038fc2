package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-delivery/atlas/internal/adapter/agentrun"
	"github.com/atlas-delivery/atlas/internal/adapter/ws"
	"github.com/atlas-delivery/atlas/internal/domain/chat"
	"github.com/atlas-delivery/atlas/internal/domain/stream"
	"github.com/atlas-delivery/atlas/internal/service"
)

// AgentRunner streams events from the remote agent API.
type AgentRunner interface {
	Run(ctx context.Context, messages []agentrun.Message, threadID string) (<-chan stream.Event, error)
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	router    *service.Router
	sessions  *service.SessionStore
	portfolio *service.Portfolio
	discovery *service.Discovery
	agent     AgentRunner
	hub       *ws.Hub
	ready     func(ctx context.Context) error
	log       *slog.Logger
}

// NewHandlers creates the handler set. ready is called by the health
// endpoint to verify the warehouse connection; it may be nil.
func NewHandlers(
	router *service.Router,
	sessions *service.SessionStore,
	portfolio *service.Portfolio,
	discovery *service.Discovery,
	agent AgentRunner,
	hub *ws.Hub,
	ready func(ctx context.Context) error,
	log *slog.Logger,
) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		router:    router,
		sessions:  sessions,
		portfolio: portfolio,
		discovery: discovery,
		agent:     agent,
		hub:       hub,
		ready:     ready,
		log:       log,
	}
}

type chatRequest struct {
	Message   string `json:"message"`
	ProjectID string `json:"project_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type chatEnvelope struct {
	chat.Response
	SessionID string `json:"session_id"`
}

// HandleChat processes one conversational turn through the intent router.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[chatRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Message, "message") {
		return
	}

	sess := h.sessions.GetOrCreate(req.SessionID)
	resp := h.router.Route(r.Context(), chat.Request{
		Message:   req.Message,
		ProjectID: req.ProjectID,
		SessionID: sess.ID,
	}, sess)

	writeJSON(w, http.StatusOK, chatEnvelope{Response: resp, SessionID: sess.ID})
}

// HandleChatStream relays the remote agent's reply as server-sent events.
// The stream always ends with a literal [DONE] frame.
func (h *Handlers) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[chatRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Message, "message") {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeSSE := func(ev stream.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			h.log.Error("marshal stream event", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	// The client sees a planning step immediately, before the agent
	// connection is established.
	writeSSE(stream.Event{Type: stream.EventThinking, Title: "Planning", Content: "Analyzing your question..."})

	events, err := h.agent.Run(r.Context(), []agentrun.Message{{Role: "user", Content: req.Message}}, req.SessionID)
	if err != nil {
		h.log.Error("agent stream start failed", "error", err)
		writeSSE(stream.Event{Type: stream.EventError, Content: "The streaming connection failed. Please try again."})
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
		return
	}

	for ev := range events {
		writeSSE(ev)
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// HandlePortfolioSummary returns the portfolio-level KPI rollup.
func (h *Handlers) HandlePortfolioSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.portfolio.Summary(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleListProjects returns all projects with health indicators.
func (h *Handlers) HandleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.portfolio.Projects(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// HandleGetProject returns one project by ID.
func (h *Handlers) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	project, err := h.portfolio.Project(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// HandleListVendors returns all active vendors ordered by risk score.
func (h *Handlers) HandleListVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.portfolio.Vendors(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vendors)
}

// HandleListChangeOrders returns change orders, optionally filtered by project.
func (h *Handlers) HandleListChangeOrders(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	orders, err := h.portfolio.ChangeOrders(r.Context(), projectID, limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// HandleHiddenPattern runs pattern discovery on demand.
func (h *Handlers) HandleHiddenPattern(w http.ResponseWriter, r *http.Request) {
	finding, err := h.discovery.FindHiddenPatterns(r.Context(), "api request")
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"narrative":   finding.Narrative,
		"data":        finding.Data,
		"sources":     finding.Sources,
		"alert_level": finding.AlertLevel,
	})
}

// HandleAtRiskActivities returns schedule activities above the slip threshold.
func (h *Handlers) HandleAtRiskActivities(w http.ResponseWriter, r *http.Request) {
	threshold := 0.5
	if v := r.URL.Query().Get("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "threshold must be a number")
			return
		}
		threshold = f
	}

	activities, err := h.portfolio.AtRiskActivities(r.Context(), threshold)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activities)
}

// HandlePortfolioAlerts scans every project against the alert thresholds.
func (h *Handlers) HandlePortfolioAlerts(w http.ResponseWriter, r *http.Request) {
	report, err := h.portfolio.ScanAlerts(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleMorningBrief assembles the daily portfolio digest.
func (h *Handlers) HandleMorningBrief(w http.ResponseWriter, r *http.Request) {
	brief, err := h.portfolio.MorningBrief(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, brief)
}

// HandleWS upgrades the connection and joins the live portfolio feed.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleWS(w, r)
}

// HandleHealth reports service liveness and warehouse reachability.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.log.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "degraded",
				"service": "atlas-core",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "atlas-core",
	})
}
