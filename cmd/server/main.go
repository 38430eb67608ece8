package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/config"
	"github.com/ibrahim-sultan/examPro/internal/database"
	"github.com/ibrahim-sultan/examPro/internal/handler"
	"github.com/ibrahim-sultan/examPro/internal/i18n"
	"github.com/ibrahim-sultan/examPro/internal/logger"
	"github.com/ibrahim-sultan/examPro/internal/middleware"
	"github.com/ibrahim-sultan/examPro/internal/router"
	"github.com/ibrahim-sultan/examPro/internal/scoring"
	"github.com/ibrahim-sultan/examPro/internal/service"
	"github.com/ibrahim-sultan/examPro/internal/shuffle"
	"github.com/ibrahim-sultan/examPro/internal/store"
	"github.com/ibrahim-sultan/examPro/internal/validator"
	"github.com/ibrahim-sultan/examPro/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Str("scoring", cfg.ScoringPolicy).
		Msg("Starting examPro")

	// ─── Initialize Validator & Locales ────────────────────────────────
	validator.Setup()

	locales, err := i18n.New(cfg.DefaultLocale)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load locales")
	}

	policy, err := scoring.ForName(cfg.ScoringPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid scoring policy")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Open Store ────────────────────────────────────────────────────
	stores, err := store.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer stores.Close()

	// ─── Connect to Redis (optional) ───────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	catalog := service.NewExamCatalog(stores.Exams, stores.Questions, rdb, log)

	opts := []service.SessionOption{service.WithScoringPolicy(policy)}
	if rdb != nil {
		opts = append(opts, service.WithEventSink(service.NewRedisEventSink(rdb, log)))
	}
	sessionService := service.NewSessionService(stores.Sessions, catalog, shuffle.New(), log, opts...)

	eventLimiter := middleware.NewRateLimiter(ctx, cfg.EventRatePerMinute, time.Minute)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(sessionService, log),
		Monitor: handler.NewMonitorHandler(rdb, sessionService, log),
		WS:      handler.NewWSHandler(sessionService, eventLimiter, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(stores.Health, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	if rdb != nil {
		telemetryWorker := worker.NewTelemetryWorker(stores.Events, rdb, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			telemetryWorker.Start(workerCtx)
		}()
	}

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published exams into Redis BEFORE accepting traffic.
	// This avoids race conditions from lazy loading under thundering herd.
	if err := catalog.PrewarmPublished(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, locales, eventLimiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for their final flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
