/**
 * Placeholder API server - Main Entry Point
 *
 * Serves document upload, text detection, template management and
 * generation over HTTP. Asynchronous generation is handed to the worker
 * through asynq when REDIS_URL is configured.
 */

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adverant/nexus/pdfplaceholder/internal/app"
	"github.com/adverant/nexus/pdfplaceholder/internal/config"
	"github.com/adverant/nexus/pdfplaceholder/internal/httpapi"
	"github.com/adverant/nexus/pdfplaceholder/internal/logging"
	"github.com/adverant/nexus/pdfplaceholder/internal/queue"
)

const shutdownTimeout = 30 * time.Second

func main() {
	config.LoadDotEnv(".env", ".env.placeholder")
	logger := logging.NewLogger("Server")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Configure(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	rt, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	opts := httpapi.Options{
		Service:     rt.Service,
		MaxFileSize: cfg.MaxFileSize,
		Health:      map[string]interface{}{"ocr": rt.OCR},
	}

	var producer *queue.Producer
	if cfg.RedisURL != "" {
		producer, err = queue.NewProducer(cfg.RedisURL, rt.Store)
		if err != nil {
			logger.Error("Failed to initialize generation queue", "error", err)
			rt.Close()
			os.Exit(1)
		}
		defer producer.Close()
		opts.Async = producer
	} else {
		logger.Warn("REDIS_URL not set, asynchronous generation is disabled")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.New(opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.GenerationTimeout + 30*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Placeholder API listening", "addr", cfg.HTTPAddr, "ocr", rt.OCR.Available, "async", producer != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())
	case err, ok := <-serveErr:
		if ok {
			logger.Error("HTTP server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", "error", err)
	}
	logger.Info("Shutdown complete")
}
