package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/atlas-delivery/atlas/internal/adapter/agentrun"
	athttp "github.com/atlas-delivery/atlas/internal/adapter/http"
	"github.com/atlas-delivery/atlas/internal/adapter/litellm"
	atnats "github.com/atlas-delivery/atlas/internal/adapter/nats"
	aotel "github.com/atlas-delivery/atlas/internal/adapter/otel"
	"github.com/atlas-delivery/atlas/internal/adapter/postgres"
	"github.com/atlas-delivery/atlas/internal/adapter/ristretto"
	"github.com/atlas-delivery/atlas/internal/adapter/ws"
	"github.com/atlas-delivery/atlas/internal/config"
	"github.com/atlas-delivery/atlas/internal/domain/query"
	"github.com/atlas-delivery/atlas/internal/logger"
	"github.com/atlas-delivery/atlas/internal/middleware"
	"github.com/atlas-delivery/atlas/internal/resilience"
	"github.com/atlas-delivery/atlas/internal/service"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_schema", cfg.Postgres.Schema,
		"llm_model", cfg.LiteLLM.Model,
	)

	ctx := context.Background()

	shutdownTracer := aotel.InitTracer(cfg.Logging.Service)
	defer func() { _ = shutdownTracer(ctx) }()

	metrics, err := aotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL warehouse
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	wh := postgres.NewWarehouse(pool, cfg.Postgres.QueryTimeout, log)

	// NATS
	queue, err := atnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()
	slog.Info("nats connected")

	// Query result cache
	resultCache, err := ristretto.New(cfg.Cache.MaxSizeMB)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer resultCache.Close()

	// --- Outbound clients ---

	llm := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey, cfg.LiteLLM.Model, cfg.LiteLLM.MaxTokens)
	llm.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	agent := agentrun.NewClient(cfg.AgentRun, log)

	// --- Services ---

	hub := ws.NewHub()

	catalog := query.NewCatalog(cfg.Postgres.Schema)
	resolver := service.NewTieredResolver(wh, llm, catalog, cfg.Postgres.Schema, log)
	resolver.SetCache(resultCache, cfg.Cache.TTL)
	resolver.SetQueue(queue)
	resolver.SetMetrics(metrics)

	discovery := service.NewDiscovery(wh, cfg.Postgres.Schema, log)
	discovery.SetQueue(queue)

	portfolio := service.NewPortfolio(wh, discovery, cfg.Postgres.Schema, cfg.Alerts, log)
	portfolio.SetQueue(queue)
	portfolio.SetBroadcaster(hub)

	stopRelay, err := service.RelayAlerts(ctx, queue, hub, log)
	if err != nil {
		return fmt.Errorf("start alert relay: %w", err)
	}
	defer stopRelay()

	renderOpts := query.RenderOptions{
		MaxTableRows:  cfg.Render.MaxTableRows,
		CellWidth:     cfg.Render.CellWidth,
		SQLPreviewLen: cfg.Render.SQLPreviewLen,
	}
	router := service.NewRouter(resolver, discovery, renderOpts, log)
	router.SetMetrics(metrics)

	sessions := service.NewSessionStore()

	// --- HTTP ---

	handlers := athttp.NewHandlers(router, sessions, portfolio, discovery, agent, hub, wh.Ping, log)

	chatLimiter := middleware.NewRateLimiter(5, 10)
	stopCleanup := chatLimiter.StartCleanup(time.Minute, 10*time.Minute)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(athttp.SecurityHeaders)
	r.Use(athttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(athttp.Logger)
	r.Use(aotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	athttp.MountRoutes(r, handlers, chatLimiter)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // /api/v1/chat/stream holds the connection open
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
