package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/inflightops/courier-router/internal/auth"
	"github.com/inflightops/courier-router/internal/circuit"
	"github.com/inflightops/courier-router/internal/config"
	"github.com/inflightops/courier-router/internal/events"
	"github.com/inflightops/courier-router/internal/gateway"
	"github.com/inflightops/courier-router/internal/health"
	"github.com/inflightops/courier-router/internal/ratelimit"
	"github.com/inflightops/courier-router/internal/router"
	"github.com/inflightops/courier-router/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	_ = godotenv.Load(".env")

	bootstrap := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Load configuration
	loader := config.NewLoader(*configDir, bootstrap)
	if err := loader.Load(); err != nil {
		bootstrap.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfg := loader.Config()
	logger := buildLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (router will start but auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (rate limits and auth cache disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.NewMetrics()
	bus := events.NewBus(logger)
	bus.Subscribe(events.ProviderHealthChanged{}.EventType(), func(ctx context.Context, e events.Event) {
		if hc, ok := e.(events.ProviderHealthChanged); ok && !hc.Healthy {
			logger.WarnContext(ctx, "provider degraded",
				"provider", hc.Provider,
				"health_score", hc.HealthScore)
		}
	})

	// Rate limiting: per-key RPM at the edge, per-provider RPM/TPM at dispatch
	limiter := ratelimit.NewLimiter(rdb)
	gate := ratelimit.NewProviderGate(limiter, ratelimit.NewTokenTracker(rdb), logger)

	// Routing core
	registry := router.NewRegistry(loader.Catalog())
	breakers := router.NewBreakerSet(circuit.Config{
		FailureRateThreshold:     cfg.Routing.CircuitBreaker.FailureRateThreshold,
		MinimumRequests:          cfg.Routing.CircuitBreaker.MinimumRequests,
		OpenTimeout:              cfg.Routing.CircuitBreaker.OpenTimeout,
		HalfOpenSuccessThreshold: cfg.Routing.CircuitBreaker.HalfOpenSuccessThreshold,
		HalfOpenMaxProbes:        cfg.Routing.CircuitBreaker.HalfOpenMaxProbes,
	})
	executor := router.NewExecutor(breakers, cfg.Routing, gate, bus, metrics, logger)
	rt := router.New(registry, router.NewRanker(cfg.Routing.Ranking), executor, metrics, logger)

	loader.OnReload(func() {
		rt.Reload(loader.Config().Routing.Ranking, loader.Catalog())
	})

	// Health monitor feeds probe latency and quota back into the registry
	monitor := health.NewMonitor(cfg.Routing.HealthMonitor, registry, gate, bus, metrics, logger)
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go monitor.Run(monitorCtx)

	// Build handler
	keyStore := auth.NewCachedKeyStore(dbPool, rdb)
	dispatcher := gateway.NewDispatcher(&http.Client{}, cfg.Routing, logger)
	handler := gateway.NewHandler(rt, loader.Catalog, monitor, gate, dispatcher, metrics, logger)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: cfg.Server.CORS.AllowedHeaders,
		MaxAge:         cfg.Server.CORS.MaxAge,
	}))

	// Unauthenticated routes
	r.Get("/courier/v1/health", healthHandler)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(keyStore))
		r.Use(ratelimit.Middleware(limiter, metrics))
		r.Post("/v1/chat/completions", handler.ChatCompletions)
		r.Post("/v1/messages", handler.Messages)
		r.Post("/v1/embeddings", handler.Embeddings)
		r.Get("/v1/models", handler.ListModels)
	})

	// Operational surface
	r.Route("/admin/v1", func(r chi.Router) {
		r.Use(auth.Middleware(keyStore))
		r.Get("/providers/health", handler.ProvidersStatus)
		r.Post("/providers/{provider}/breaker/reset", handler.ResetBreaker)
	})

	if cfg.Telemetry.MetricsPort > 0 {
		go serveMetrics(cfg.Telemetry.MetricsPort, logger)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("courier starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	stopMonitor()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("courier stopped")
}

func buildLogger(cfg config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func serveMetrics(port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics listener starting", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener failed", "error", err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}
