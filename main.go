package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	redis "github.com/redis/go-redis/v9"

	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/auth"
	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/config"
	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/health"
	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/middleware"
	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/tasks"
	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/telemetry"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger) // for third-party packages that use slog

	if err := run(cfg, logger); err != nil {
		logger.Error("server_error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.Options{
		Exporter:     cfg.TracingExporter,
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, err := tasks.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	logger.Info("database_migrate")
	if err := store.ApplyMigrations(ctx); err != nil {
		return err
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret, auth.Options{
		Leeway: cfg.JWTLeeway,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	rdb, err := middleware.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		// keep serving without the shared limiter
		logger.Warn("redis_unavailable", slog.String("addr", cfg.RedisAddr), slog.String("error", err.Error()))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	r := newRouter(routerDeps{
		cfg:      cfg,
		store:    store,
		verifier: verifier,
		redis:    rdb,
		logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listen", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server_shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type routerDeps struct {
	cfg      *config.Config
	store    tasks.Store
	verifier middleware.IdentityVerifier
	redis    *redis.Client
	logger   *slog.Logger
}

// newRouter wires the health endpoints, task routes, and middleware stack
func newRouter(d routerDeps) *chi.Mux {
	r := chi.NewRouter()

	// ---- Middleware stack (order matters a bit) ----
	// RequestID first so downstream can include it (logger, errors, etc.)
	r.Use(chimw.RequestID)

	// Panic recovery: never crash the server; returns 500 on panics
	r.Use(chimw.Recoverer)

	// Timeouts: cancel handlers that exceed this duration
	r.Use(chimw.Timeout(d.cfg.RequestTimeout))

	r.Use(middleware.SecureHeaders(d.cfg.IsProduction()))
	r.Use(middleware.ProcessTime)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"X-Request-ID", "Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Our structured request logger (now includes req_id and user_id).
	r.Use(middleware.RequestLogger(d.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.RateLimitMiddleware(middleware.NewLimiter(d.cfg.RateLimitRPS, d.cfg.RateLimitBurst)))

	// ---- Routes ----

	hh := health.NewHandler(d.store, version)
	r.Get("/", hh.Root)
	r.Get("/health", hh.Health)
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)
	r.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	// tasks routes, all scoped to the verified caller
	svc := tasks.NewService(d.store, d.logger)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(middleware.AuthConfig{Verifier: d.verifier}))
		r.Use(middleware.CallerRateLimit(d.redis, d.cfg.UserRateLimit, d.cfg.UserRateWindow, d.logger))
		tasks.RegisterRoutes(r, svc, d.logger)
	})

	return r
}

func newLogger(level, format string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: l}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
