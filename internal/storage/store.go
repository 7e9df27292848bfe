package storage

import (
	"context"

	"github.com/adverant/nexus/pdfplaceholder/internal/model"
)

// Store persists document, template, artifact and job metadata.
// Lookups of unknown ids return a NOT_FOUND ServiceError.
type Store interface {
	CreateDocument(ctx context.Context, doc *model.StoredDocument) error
	GetDocument(ctx context.Context, id string) (*model.StoredDocument, error)
	ListDocuments(ctx context.Context) ([]model.StoredDocument, error)
	// DeleteDocument removes the document and every template built on it.
	DeleteDocument(ctx context.Context, id string) error

	CreateTemplate(ctx context.Context, t *model.Template) error
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
	ListTemplates(ctx context.Context) ([]model.Template, error)
	DeleteTemplate(ctx context.Context, id string) error

	CreateArtifact(ctx context.Context, a *model.Artifact) error
	GetArtifact(ctx context.Context, id string) (*model.Artifact, error)

	// SaveJob inserts or replaces a job record.
	SaveJob(ctx context.Context, job *model.GenerationJob) error
	GetJob(ctx context.Context, id string) (*model.GenerationJob, error)

	Ping(ctx context.Context) error
	Close() error
}
