/**
 * Queue Consumer for the generation worker
 *
 * Consumes template:generate tasks from Redis via asynq, runs the
 * generation and records job progress in the metadata store.
 */

package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
	"github.com/adverant/nexus/pdfplaceholder/internal/logging"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
	"github.com/adverant/nexus/pdfplaceholder/internal/storage"
	"github.com/adverant/nexus/pdfplaceholder/internal/templates"
)

// ArtifactGenerator produces a stored artifact. *templates.Service satisfies it.
type ArtifactGenerator interface {
	GenerateArtifact(ctx context.Context, templateID string, replacements map[string]string, filename string) (*templates.ArtifactResult, error)
}

// Handler executes generation tasks.
type Handler struct {
	generator ArtifactGenerator
	jobs      storage.Store
	timeout   time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

// NewHandler creates a task handler. timeout <= 0 applies no extra deadline.
func NewHandler(generator ArtifactGenerator, jobs storage.Store, timeout time.Duration) *Handler {
	return &Handler{
		generator: generator,
		jobs:      jobs,
		timeout:   timeout,
		logger:    logging.NewLogger("Worker"),
		now:       time.Now,
	}
}

// ProcessTask implements asynq.Handler.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	p, err := decodeGeneratePayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	startTime := time.Now()
	log := h.logger.With("job", p.JobID, "template", p.TemplateID)

	job, err := h.jobs.GetJob(ctx, p.JobID)
	if err != nil {
		// The producer saves the job before enqueueing; recreate it if the store lost it.
		log.Warn("Job record missing, recreating", "error", err)
		job = &model.GenerationJob{ID: p.JobID, TemplateID: p.TemplateID, CreatedAt: h.now().UTC()}
	}
	job.Status = model.JobRunning
	job.UpdatedAt = h.now().UTC()
	if err := h.jobs.SaveJob(ctx, job); err != nil {
		log.Warn("Failed to update status to running", "error", err)
	}

	genCtx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.generator.GenerateArtifact(genCtx, p.TemplateID, p.Replacements, p.OutputFilename)
	duration := time.Since(startTime)
	if err != nil {
		retry := retryable(err) && !finalAttempt(ctx)
		log.Error("Generation failed", "duration", duration, "retry", retry, "error", err)

		if retry {
			job.Status = model.JobQueued
		} else {
			job.Status = model.JobFailed
		}
		job.Error = err.Error()
		job.UpdatedAt = h.now().UTC()
		if saveErr := h.jobs.SaveJob(context.WithoutCancel(ctx), job); saveErr != nil {
			log.Warn("Failed to record failure", "error", saveErr)
		}

		if !retry {
			return fmt.Errorf("generation failed: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("generation failed: %w", err)
	}

	job.Status = model.JobCompleted
	job.ArtifactID = res.Artifact.ID
	job.PlaceholdersReplaced = res.Report.PlaceholdersReplaced
	job.Warnings = res.Report.Warnings
	job.Error = ""
	job.UpdatedAt = h.now().UTC()
	if err := h.jobs.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		log.Warn("Failed to update status to completed", "error", err)
	}

	log.Info("Generation completed",
		"artifact", res.Artifact.ID,
		"replaced", res.Report.PlaceholdersReplaced,
		"warnings", len(res.Report.Warnings),
		"duration", duration)
	return nil
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch svcerrors.CodeOf(err) {
	case svcerrors.ErrorLockTimeout, svcerrors.ErrorStorageFailed:
		return true
	}
	return false
}

func finalAttempt(ctx context.Context) bool {
	n, ok1 := asynq.GetRetryCount(ctx)
	limit, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return true
	}
	return n >= limit
}

// Consumer runs the asynq server for generation tasks.
type Consumer struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	concurrency int
	logger      *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL    string
	Concurrency int
	Handler     *Handler
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("Handler is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("Queue")
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				DefaultQueue: 10,
				"default":    1,
			},
			RetryDelayFunc: retryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
			Logger:   logging.AsynqLogger{L: logger},
			LogLevel: asynq.WarnLevel,
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(TypeGenerate, cfg.Handler)

	return &Consumer{
		server:      server,
		mux:         mux,
		concurrency: cfg.Concurrency,
		logger:      logger,
	}, nil
}

// retryDelay backs off exponentially: 5s, 10s, 20s, capped at a minute.
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	delay := time.Duration(5*(1<<uint(n))) * time.Second
	if delay > 60*time.Second || delay <= 0 {
		delay = 60 * time.Second
	}
	return delay
}

// Start begins processing in the background.
func (c *Consumer) Start() error {
	c.logger.Info("Starting queue consumer", "concurrency", c.concurrency, "queue", DefaultQueue)
	if err := c.server.Start(c.mux); err != nil {
		return svcerrors.NewQueueFailedError(TypeGenerate, err)
	}
	return nil
}

// Stop waits for in-flight tasks and shuts the server down.
func (c *Consumer) Stop() {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
}

// Statistics returns consumer settings for the health endpoint.
func (c *Consumer) Statistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.concurrency,
		"queue":       DefaultQueue,
	}
}
