/**
 * PostgreSQL store for the placeholder service
 *
 * Persists uploaded document metadata, templates (placeholders as JSONB),
 * generated artifacts and asynchronous generation jobs.
 */

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
)

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS placeholder;

CREATE TABLE IF NOT EXISTS placeholder.documents (
	id                TEXT PRIMARY KEY,
	filename          TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	blob_key          TEXT NOT NULL,
	file_size         BIGINT NOT NULL,
	page_count        INTEGER NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS placeholder.templates (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL REFERENCES placeholder.documents(id) ON DELETE CASCADE,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	placeholders JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS placeholder.artifacts (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	blob_key   TEXT NOT NULL,
	size       BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS placeholder.generation_jobs (
	id                    TEXT PRIMARY KEY,
	template_id           TEXT NOT NULL,
	status                TEXT NOT NULL,
	artifact_id           TEXT,
	placeholders_replaced INTEGER NOT NULL DEFAULT 0,
	warnings              TEXT[] NOT NULL DEFAULT '{}',
	error_message         TEXT,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStore opens the database, verifies connectivity and applies the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the schema and tables if they are missing.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return svcerrors.NewStorageFailedError("migrate", err)
	}
	return nil
}

func (p *PostgresStore) CreateDocument(ctx context.Context, doc *model.StoredDocument) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO placeholder.documents (
			id, filename, original_filename, blob_key, file_size, page_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID, doc.Filename, doc.OriginalFilename, doc.BlobKey, doc.FileSize, doc.PageCount, doc.CreatedAt,
	)
	if err != nil {
		return svcerrors.NewStorageFailedError("create document", err)
	}
	return nil
}

const documentColumns = `id, filename, original_filename, blob_key, file_size, page_count, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.StoredDocument, error) {
	var d model.StoredDocument
	err := row.Scan(&d.ID, &d.Filename, &d.OriginalFilename, &d.BlobKey, &d.FileSize, &d.PageCount, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (p *PostgresStore) GetDocument(ctx context.Context, id string) (*model.StoredDocument, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM placeholder.documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, svcerrors.NewNotFoundError("document", id)
	}
	if err != nil {
		return nil, svcerrors.NewStorageFailedError("get document", err)
	}
	return d, nil
}

func (p *PostgresStore) ListDocuments(ctx context.Context) ([]model.StoredDocument, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM placeholder.documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, svcerrors.NewStorageFailedError("list documents", err)
	}
	defer rows.Close()

	out := []model.StoredDocument{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, svcerrors.NewStorageFailedError("list documents", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, svcerrors.NewStorageFailedError("list documents", err)
	}
	return out, nil
}

// DeleteDocument relies on ON DELETE CASCADE to remove the document's templates.
func (p *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	return p.deleteByID(ctx, "placeholder.documents", "document", id)
}

func (p *PostgresStore) CreateTemplate(ctx context.Context, t *model.Template) error {
	placeholders, err := encodePlaceholders(t.Placeholders)
	if err != nil {
		return svcerrors.NewStorageFailedError("encode placeholders", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO placeholder.templates (
			id, document_id, name, description, placeholders, created_at
		) VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		t.ID, t.DocumentID, t.Name, t.Description, placeholders, t.CreatedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
		return svcerrors.NewNotFoundError("document", t.DocumentID)
	}
	if err != nil {
		return svcerrors.NewStorageFailedError("create template", err)
	}
	return nil
}

const templateColumns = `id, document_id, name, description, placeholders, created_at`

func scanTemplate(row rowScanner) (*model.Template, error) {
	var (
		t   model.Template
		raw []byte
	)
	if err := row.Scan(&t.ID, &t.DocumentID, &t.Name, &t.Description, &raw, &t.CreatedAt); err != nil {
		return nil, err
	}
	phs, err := decodePlaceholders(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal placeholders of template %s: %w", t.ID, err)
	}
	t.Placeholders = phs
	return &t, nil
}

func (p *PostgresStore) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM placeholder.templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, svcerrors.NewNotFoundError("template", id)
	}
	if err != nil {
		return nil, svcerrors.NewStorageFailedError("get template", err)
	}
	return t, nil
}

func (p *PostgresStore) ListTemplates(ctx context.Context) ([]model.Template, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM placeholder.templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, svcerrors.NewStorageFailedError("list templates", err)
	}
	defer rows.Close()

	out := []model.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, svcerrors.NewStorageFailedError("list templates", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, svcerrors.NewStorageFailedError("list templates", err)
	}
	return out, nil
}

func (p *PostgresStore) DeleteTemplate(ctx context.Context, id string) error {
	return p.deleteByID(ctx, "placeholder.templates", "template", id)
}

func (p *PostgresStore) CreateArtifact(ctx context.Context, a *model.Artifact) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO placeholder.artifacts (id, filename, blob_key, size, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Filename, a.BlobKey, a.Size, a.CreatedAt,
	)
	if err != nil {
		return svcerrors.NewStorageFailedError("create artifact", err)
	}
	return nil
}

func (p *PostgresStore) GetArtifact(ctx context.Context, id string) (*model.Artifact, error) {
	var a model.Artifact
	err := p.db.QueryRowContext(ctx, `
		SELECT id, filename, blob_key, size, created_at
		FROM placeholder.artifacts WHERE id = $1`, id,
	).Scan(&a.ID, &a.Filename, &a.BlobKey, &a.Size, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, svcerrors.NewNotFoundError("artifact", id)
	}
	if err != nil {
		return nil, svcerrors.NewStorageFailedError("get artifact", err)
	}
	return &a, nil
}

// SaveJob upserts the job so the worker can record progress whether or not
// the enqueueing side already inserted the row.
func (p *PostgresStore) SaveJob(ctx context.Context, job *model.GenerationJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	warnings := job.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO placeholder.generation_jobs (
			id, template_id, status, artifact_id, placeholders_replaced,
			warnings, error_message, created_at, updated_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			artifact_id = COALESCE(EXCLUDED.artifact_id, placeholder.generation_jobs.artifact_id),
			placeholders_replaced = EXCLUDED.placeholders_replaced,
			warnings = EXCLUDED.warnings,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at`,
		job.ID, job.TemplateID, string(job.Status), job.ArtifactID, job.PlaceholdersReplaced,
		pq.Array(warnings), job.Error, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return svcerrors.NewStorageFailedError(
			fmt.Sprintf("save job (job=%s, status=%s)", job.ID, job.Status), err)
	}
	return nil
}

func (p *PostgresStore) GetJob(ctx context.Context, id string) (*model.GenerationJob, error) {
	var (
		job        model.GenerationJob
		status     string
		artifactID sql.NullString
		errMsg     sql.NullString
		warnings   pq.StringArray
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, template_id, status, artifact_id, placeholders_replaced,
		       warnings, error_message, created_at, updated_at
		FROM placeholder.generation_jobs WHERE id = $1`, id,
	).Scan(&job.ID, &job.TemplateID, &status, &artifactID, &job.PlaceholdersReplaced,
		&warnings, &errMsg, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, svcerrors.NewNotFoundError("job", id)
	}
	if err != nil {
		return nil, svcerrors.NewStorageFailedError("get job", err)
	}
	job.Status = model.JobStatus(status)
	job.ArtifactID = artifactID.String
	job.Error = errMsg.String
	if len(warnings) > 0 {
		job.Warnings = []string(warnings)
	}
	return &job, nil
}

func (p *PostgresStore) deleteByID(ctx context.Context, table, kind, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return svcerrors.NewStorageFailedError("delete "+kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return svcerrors.NewStorageFailedError("delete "+kind, err)
	}
	if n == 0 {
		return svcerrors.NewNotFoundError(kind, id)
	}
	return nil
}

// Ping checks database connectivity
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// Stats returns connection pool statistics
func (p *PostgresStore) Stats() sql.DBStats {
	return p.db.Stats()
}
