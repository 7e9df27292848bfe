package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
	"github.com/adverant/nexus/pdfplaceholder/internal/logging"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
	"github.com/adverant/nexus/pdfplaceholder/internal/storage"
)

// Enqueuer submits asynq tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Producer records generation jobs and enqueues them for the worker.
type Producer struct {
	client Enqueuer
	jobs   storage.Store
	queue  string
	logger *logging.Logger
	now    func() time.Time
}

// NewProducer connects an asynq client to redisURL.
func NewProducer(redisURL string, jobs storage.Store) (*Producer, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return NewProducerWith(asynq.NewClient(redisOpt), jobs), nil
}

// NewProducerWith uses an existing client.
func NewProducerWith(client Enqueuer, jobs storage.Store) *Producer {
	return &Producer{
		client: client,
		jobs:   jobs,
		queue:  DefaultQueue,
		logger: logging.NewLogger("Queue"),
		now:    time.Now,
	}
}

// EnqueueGeneration stores a queued job and submits its task. The job id
// doubles as the asynq task id so a job is never enqueued twice.
func (p *Producer) EnqueueGeneration(ctx context.Context, templateID string, replacements map[string]string, outputFilename string) (*model.GenerationJob, error) {
	now := p.now().UTC()
	job := &model.GenerationJob{
		ID:         uuid.New().String(),
		TemplateID: templateID,
		Status:     model.JobQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	task, err := NewGenerateTask(GeneratePayload{
		JobID:          job.ID,
		TemplateID:     templateID,
		Replacements:   replacements,
		OutputFilename: outputFilename,
	})
	if err != nil {
		return nil, svcerrors.NewQueueFailedError(TypeGenerate, err)
	}

	if err := p.jobs.SaveJob(ctx, job); err != nil {
		return nil, err
	}

	info, err := p.client.EnqueueContext(ctx, task,
		asynq.Queue(p.queue),
		asynq.TaskID(job.ID),
		asynq.MaxRetry(maxRetry),
	)
	if err != nil {
		job.Status = model.JobFailed
		job.Error = err.Error()
		job.UpdatedAt = p.now().UTC()
		if saveErr := p.jobs.SaveJob(context.WithoutCancel(ctx), job); saveErr != nil {
			p.logger.Warn("Failed to record enqueue failure", "job", job.ID, "error", saveErr)
		}
		return nil, svcerrors.NewQueueFailedError(TypeGenerate, err)
	}

	p.logger.Info("Generation enqueued", "job", job.ID, "template", templateID, "queue", info.Queue)
	return job, nil
}

// Close closes the asynq client.
func (p *Producer) Close() error {
	return p.client.Close()
}
