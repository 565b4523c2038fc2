package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-delivery/atlas/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, chatLimiter *middleware.RateLimiter) {
	r.Get("/health", h.HandleHealth)
	r.Get("/ws/portfolio", h.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"ATLAS Capital Delivery API","version":"1.0.0"}`))
		})

		// Chat: the LLM-backed endpoints carry a per-IP rate limit.
		r.Group(func(r chi.Router) {
			if chatLimiter != nil {
				r.Use(chatLimiter.Handler)
			}
			r.Post("/chat", h.HandleChat)
			r.Post("/chat/stream", h.HandleChatStream)
		})

		// Portfolio read APIs
		r.Get("/portfolio/summary", h.HandlePortfolioSummary)
		r.Get("/portfolio/alerts", h.HandlePortfolioAlerts)
		r.Get("/projects", h.HandleListProjects)
		r.Get("/projects/{id}", h.HandleGetProject)
		r.Get("/vendors", h.HandleListVendors)
		r.Get("/change-orders", h.HandleListChangeOrders)
		r.Get("/change-orders/hidden-pattern", h.HandleHiddenPattern)
		r.Get("/activities/at-risk", h.HandleAtRiskActivities)
		r.Get("/morning-brief", h.HandleMorningBrief)
	})
}
