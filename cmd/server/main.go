package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"content-server/internal/api"
	"content-server/internal/config"
	"content-server/internal/logger"
	"content-server/internal/metric"
	"content-server/internal/queue"
	"content-server/internal/services/jobwatch"
	"content-server/internal/telemetry"
)

/*
LEARNING: GRACEFUL SHUTDOWN PATTERN WITH OBSERVABILITY

The gateway only validates and enqueues; indexing happens in cmd/worker.
1. Load config, then logging, tracing and metrics
2. Connect to Redis and start the job event fan-out
3. Serve HTTP until SIGINT/SIGTERM, then drain in reverse order
*/

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to load config")
	}
	logger.Init(cfg.AppName, cfg.LogLevel)
	if err := cfg.Validate(config.RoleServer); err != nil {
		log.Fatal().Err(err).Msg("❌ Invalid configuration")
	}

	log.Info().Str("env", cfg.AppEnv).Msg("🚀 Starting job queue gateway...")

	// Learning: Do this FIRST so all operations are traced
	jaegerShutdown, err := telemetry.InitJaeger(cfg.AppName+"-gateway", cfg.AppEnv, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️  Failed to initialize Jaeger, continuing without tracing")
		jaegerShutdown = func(context.Context) error { return nil }
	}

	metrics, err := metric.New(cfg.StatsdAddr, cfg.AppName, cfg.AppEnv)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to initialize metrics")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	redisClient, err := queue.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to connect to Redis")
	}
	jobQueue := queue.NewRedisQueue(redisClient, queue.Options{
		Name:      cfg.QueueName,
		Attempts:  cfg.QueueAttempts,
		Retention: cfg.QueueRetention,
	})

	// Job events from the workers fan out to WebSocket watchers
	hub := jobwatch.NewHub()
	hub.Start()
	go func() {
		if err := jobQueue.Subscribe(ctx, hub.Publish); err != nil {
			log.Error().Err(err).Msg("job event subscription ended")
		}
	}()

	handler := api.NewHandler(jobQueue, metrics)
	router := api.SetupRoutes(handler, api.RouterConfig{
		SessionSecret: []byte(cfg.SessionSecret),
		SessionCookie: cfg.SessionCookie,
		Metrics:       metrics,
		WatchJob:      jobwatch.NewHandler(hub, jobQueue).WatchJob,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Learning: This allows us to handle shutdown signals concurrently
	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("🌐 Gateway listening")
		log.Info().Msg("   PUT    /jobs               - Index a bucket path")
		log.Info().Msg("   PUT    /jobs/note          - Index a note")
		log.Info().Msg("   PUT    /jobs/chat          - Index a chat summary")
		log.Info().Msg("   DELETE /jobs/note/{id}     - Delete a note's vectors")
		log.Info().Msg("   PUT    /delete-file        - Delete a file's vectors")
		log.Info().Msg("   GET    /jobs/index/{jobId} - Job status (session)")
		log.Info().Msg("   GET    /ws/jobs/{jobId}    - Job status stream (session)")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("❌ Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 Shutting down gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("⚠️  Server forced to shutdown")
	}

	stop()
	hub.Shutdown()

	if err := redisClient.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close Redis client")
	}
	if err := metrics.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close metrics client")
	}
	if err := jaegerShutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("⚠️  Failed to shutdown Jaeger")
	}

	log.Info().Msg("✓ Gateway shutdown complete")
}
