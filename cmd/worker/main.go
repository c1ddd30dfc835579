package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"content-server/internal/blobstore"
	"content-server/internal/config"
	"content-server/internal/loader"
	"content-server/internal/logger"
	"content-server/internal/metric"
	"content-server/internal/openai"
	"content-server/internal/queue"
	"content-server/internal/services"
	"content-server/internal/telemetry"
	"content-server/internal/vectorstore"
	"content-server/internal/worker"
)

/*
LEARNING: DEPENDENCY INJECTION IN MAIN

Every client is built here and handed to the layer that uses it:
  blob store → loader ─┐
  vector store ────────┼→ IndexerService → worker.Pool ← Redis queue
  OpenAI client ───────┘
Shutdown runs in reverse: stop dequeuing, wait for jobs, close clients.
*/

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to load config")
	}
	logger.Init(cfg.AppName, cfg.LogLevel)
	if err := cfg.Validate(config.RoleWorker); err != nil {
		log.Fatal().Err(err).Msg("❌ Invalid configuration")
	}

	log.Info().Str("env", cfg.AppEnv).Msg("🚀 Starting indexer worker...")

	jaegerShutdown, err := telemetry.InitJaeger(cfg.AppName+"-worker", cfg.AppEnv, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️  Failed to initialize Jaeger, continuing without tracing")
		jaegerShutdown = func(context.Context) error { return nil }
	}

	metrics, err := metric.New(cfg.StatsdAddr, cfg.AppName, cfg.AppEnv)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to initialize metrics")
	}

	ctx := context.Background()

	redisClient, err := queue.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to connect to Redis")
	}
	jobQueue := queue.NewRedisQueue(redisClient, queue.Options{
		Name:      cfg.QueueName,
		Attempts:  cfg.QueueAttempts,
		Retention: cfg.QueueRetention,
	})

	blobs, err := blobstore.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to initialize blob store")
	}

	vectors, closeVectors, err := vectorstore.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to initialize vector store")
	}

	location, err := time.LoadLocation(cfg.ChatTimezone)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Invalid CHAT_TIMEZONE")
	}

	embedder := openai.NewClient(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	log.Info().Str("model", cfg.EmbeddingModel).Msg("✓ OpenAI client initialized")

	// One limiter for every delete loop in this process
	deleter := services.NewDeleter(vectors, services.DefaultDeleteLimiter(), metrics)
	indexer := services.NewIndexerService(
		loader.New(blobs),
		vectors,
		embedder,
		deleter,
		metrics,
		location,
		cfg.EmbeddingBatchSize,
	)

	pool := worker.NewPool(jobQueue, indexer, metrics, cfg.WorkerConcurrency)
	if err := pool.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to start worker pool")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 Shutting down worker...")

	// Learning: This waits for workers to finish their current jobs
	pool.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := closeVectors(); err != nil {
		log.Warn().Err(err).Msg("failed to close vector store")
	}
	if err := redisClient.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close Redis client")
	}
	if err := metrics.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close metrics client")
	}
	if err := jaegerShutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("⚠️  Failed to shutdown Jaeger")
	}

	log.Info().Msg("✓ Worker shutdown complete")
}
