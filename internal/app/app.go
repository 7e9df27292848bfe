// Package app wires configuration into the shared runtime used by the API
// server and the generation worker.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/adverant/nexus/pdfplaceholder/internal/config"
	"github.com/adverant/nexus/pdfplaceholder/internal/detect"
	"github.com/adverant/nexus/pdfplaceholder/internal/lock"
	"github.com/adverant/nexus/pdfplaceholder/internal/logging"
	"github.com/adverant/nexus/pdfplaceholder/internal/metrics"
	"github.com/adverant/nexus/pdfplaceholder/internal/ocr"
	"github.com/adverant/nexus/pdfplaceholder/internal/render"
	"github.com/adverant/nexus/pdfplaceholder/internal/storage"
	"github.com/adverant/nexus/pdfplaceholder/internal/templates"
)

// maxDecodedStream bounds one decompressed content stream.
const maxDecodedStream = 256 << 20

// App holds the long-lived collaborators of a process.
type App struct {
	Config  *config.Config
	Service *templates.Service
	Store   storage.Store
	Locks   lock.Locker
	OCR     ocr.Capability
	ocrPool *ocr.Pool
	logger  *logging.Logger
}

// Build connects storage and locks, probes OCR once and assembles the template service.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewLogger("App")
	a := &App{Config: cfg, logger: logger}

	if cfg.DatabaseURL != "" {
		logger.Info("Connecting to PostgreSQL")
		pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.Store = pg
	} else {
		logger.Warn("DATABASE_URL not set, metadata is kept in memory")
		a.Store = storage.NewMemoryStore()
	}

	uploads, err := storage.NewFileBlobStore(cfg.UploadDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	generated, err := storage.NewFileBlobStore(cfg.GeneratedDir)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.RedisURL != "" {
		rl, err := lock.NewRedisLocker(ctx, cfg.RedisURL, cfg.LockTTL, cfg.LockWait)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize document locks: %w", err)
		}
		a.Locks = rl
	} else {
		logger.Warn("REDIS_URL not set, document locks are process-local")
		a.Locks = lock.NewLocalLocker(cfg.LockWait)
	}

	pool, capability := ocr.Setup(ctx, cfg)
	a.OCR = capability
	a.ocrPool = pool
	opts := detect.Options{OCRScale: cfg.OCRScale}
	if pool != nil {
		opts.Recognizer = pool
	}

	m := metrics.New()
	a.Service = templates.NewService(templates.Deps{
		Files:             storage.NewManager(a.Store, uploads, generated),
		Cascade:           detect.NewCascade(opts),
		Generator:         render.NewGenerator(cfg.Render, m),
		Locks:             a.Locks,
		Metrics:           m,
		GenerationTimeout: cfg.GenerationTimeout,
		MaxDecodedSize:    maxDecodedStream,
	})

	logger.Info("Runtime ready",
		"store", storeKind(a.Store),
		"ocr", capability.Available,
		"ocr_engine", capability.Engine,
		"pid", os.Getpid())
	return a, nil
}

func storeKind(s storage.Store) string {
	if _, ok := s.(*storage.PostgresStore); ok {
		return "postgres"
	}
	return "memory"
}

// Close releases every collaborator that was opened.
func (a *App) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.ocrPool != nil {
		keep(a.ocrPool.Close())
	}
	if a.Locks != nil {
		keep(a.Locks.Close())
	}
	if a.Store != nil {
		keep(a.Store.Close())
	}
	return firstErr
}
