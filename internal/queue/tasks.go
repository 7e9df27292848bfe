package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// TypeGenerate is the task type of an asynchronous template generation.
	TypeGenerate = "template:generate"

	// DefaultQueue is the asynq queue generation tasks are enqueued on.
	DefaultQueue = "placeholder"

	maxRetry = 3
)

// GeneratePayload is the task body of TypeGenerate.
type GeneratePayload struct {
	JobID          string            `json:"job_id"`
	TemplateID     string            `json:"template_id"`
	Replacements   map[string]string `json:"replacements"`
	OutputFilename string            `json:"output_filename,omitempty"`
}

// NewGenerateTask encodes a generation request.
func NewGenerateTask(p GeneratePayload) (*asynq.Task, error) {
	if p.JobID == "" || p.TemplateID == "" {
		return nil, fmt.Errorf("job ID and template ID are required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate payload: %w", err)
	}
	return asynq.NewTask(TypeGenerate, data), nil
}

func decodeGeneratePayload(task *asynq.Task) (GeneratePayload, error) {
	var p GeneratePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal generate payload: %w", err)
	}
	if p.JobID == "" || p.TemplateID == "" {
		return p, fmt.Errorf("generate payload missing job or template ID")
	}
	return p, nil
}
