package otel

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPMiddleware returns a chi-compatible middleware that opens a span per
// request. Health probes and the portfolio WebSocket upgrade are excluded:
// probes fire every few seconds and the WS connection is long-lived, so
// neither produces a useful request span.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	filter := func(r *http.Request) bool {
		switch r.URL.Path {
		case "/health", "/ws/portfolio":
			return false
		}
		return true
	}
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithFilter(filter),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}
