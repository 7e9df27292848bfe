/**
 * Placeholder Generation Worker - Main Entry Point
 *
 * Consumes template:generate tasks enqueued by the API server, renders the
 * template under the per-document lock and stores the result as an
 * artifact. Job progress is written to the shared metadata store.
 *
 * Requires REDIS_URL. DATABASE_URL must point at the same database as the
 * server, otherwise jobs and templates are invisible to the worker.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/adverant/nexus/pdfplaceholder/internal/app"
	"github.com/adverant/nexus/pdfplaceholder/internal/config"
	"github.com/adverant/nexus/pdfplaceholder/internal/logging"
	"github.com/adverant/nexus/pdfplaceholder/internal/queue"
)

func main() {
	config.LoadDotEnv(".env", ".env.placeholder")
	logger := logging.NewLogger("Worker")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Configure(cfg.LogLevel, cfg.LogFormat)

	if cfg.RedisURL == "" {
		logger.Error("REDIS_URL is required for the worker")
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, the worker cannot see templates created by the server")
	}

	rt, err := app.Build(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:    cfg.RedisURL,
		Concurrency: cfg.WorkerConcurrency,
		Handler:     queue.NewHandler(rt.Service, rt.Store, cfg.GenerationTimeout),
	})
	if err != nil {
		logger.Error("Failed to initialize queue consumer", "error", err)
		rt.Close()
		os.Exit(1)
	}

	if err := consumer.Start(); err != nil {
		logger.Error("Failed to start queue consumer", "error", err)
		rt.Close()
		os.Exit(1)
	}
	logger.Info("Worker ready",
		"queue", queue.DefaultQueue,
		"concurrency", cfg.WorkerConcurrency,
		"ocr", rt.OCR.Available,
		"ocr_engine", rt.OCR.Engine)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())

	consumer.Stop()
	logger.Info("Shutdown complete")
}
