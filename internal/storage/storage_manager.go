/**
 * Storage Manager for the placeholder service
 *
 * Coordinates metadata (Store) with file contents (BlobStore) for uploads
 * and generated artifacts. A metadata failure after a blob write removes the
 * blob again so neither side references something the other lacks.
 */

package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/pdfplaceholder/internal/logging"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
)

// Manager coordinates metadata and blob operations
type Manager struct {
	Store     Store
	uploads   BlobStore
	generated BlobStore
	logger    *logging.Logger
	now       func() time.Time
}

// NewManager wires a metadata store to the upload and generated-file blob stores.
func NewManager(store Store, uploads, generated BlobStore) *Manager {
	return &Manager{
		Store:     store,
		uploads:   uploads,
		generated: generated,
		logger:    logging.NewLogger("Storage"),
		now:       time.Now,
	}
}

// UploadInput describes a PDF to store. PageCount is determined by the caller.
type UploadInput struct {
	OriginalFilename string
	Data             []byte
	PageCount        int
}

// SaveUpload stores the bytes then the metadata, rolling back the blob on failure.
func (m *Manager) SaveUpload(ctx context.Context, in UploadInput) (*model.StoredDocument, error) {
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("upload is empty")
	}

	id := uuid.New().String()
	doc := &model.StoredDocument{
		ID:               id,
		Filename:         id + ".pdf",
		OriginalFilename: filepath.Base(in.OriginalFilename),
		BlobKey:          id + ".pdf",
		FileSize:         int64(len(in.Data)),
		PageCount:        in.PageCount,
		CreatedAt:        m.now().UTC(),
	}

	if err := m.uploads.Put(ctx, doc.BlobKey, in.Data); err != nil {
		return nil, err
	}
	if err := m.Store.CreateDocument(ctx, doc); err != nil {
		m.rollback(ctx, m.uploads, doc.BlobKey)
		return nil, err
	}
	return doc, nil
}

// LoadDocument returns a stored document's metadata and bytes.
func (m *Manager) LoadDocument(ctx context.Context, id string) (*model.StoredDocument, []byte, error) {
	doc, err := m.Store.GetDocument(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := m.uploads.Get(ctx, doc.BlobKey)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

// DeleteDocument removes the metadata (and its templates) first, then the file.
func (m *Manager) DeleteDocument(ctx context.Context, id string) error {
	doc, err := m.Store.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if err := m.Store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := m.uploads.Delete(ctx, doc.BlobKey); err != nil {
		m.logger.Warn("Orphaned upload blob", "key", doc.BlobKey, "error", err)
	}
	return nil
}

// SaveArtifact stores a generated file under a fresh id.
func (m *Manager) SaveArtifact(ctx context.Context, filename string, data []byte) (*model.Artifact, error) {
	id := uuid.New().String()
	a := &model.Artifact{
		ID:        id,
		Filename:  OutputFilename(filename, id),
		BlobKey:   id + ".pdf",
		Size:      int64(len(data)),
		CreatedAt: m.now().UTC(),
	}
	if err := m.generated.Put(ctx, a.BlobKey, data); err != nil {
		return nil, err
	}
	if err := m.Store.CreateArtifact(ctx, a); err != nil {
		m.rollback(ctx, m.generated, a.BlobKey)
		return nil, err
	}
	return a, nil
}

// LoadArtifact returns an artifact's metadata and bytes.
func (m *Manager) LoadArtifact(ctx context.Context, id string) (*model.Artifact, []byte, error) {
	a, err := m.Store.GetArtifact(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := m.generated.Get(ctx, a.BlobKey)
	if err != nil {
		return nil, nil, err
	}
	return a, data, nil
}

func (m *Manager) rollback(ctx context.Context, blobs BlobStore, key string) {
	if err := blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		m.logger.Error("Blob rollback failed", "key", key, "error", err)
	}
}

// OutputFilename sanitizes a requested download name, defaulting to generated_<id>.pdf.
func OutputFilename(requested, id string) string {
	name := strings.TrimSpace(filepath.Base(strings.ReplaceAll(requested, `\`, "/")))
	if name == "" || name == "." || name == "/" {
		short := id
		if len(short) > 8 {
			short = short[:8]
		}
		return "generated_" + short + ".pdf"
	}
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '"' || r == 0x7f {
			return '_'
		}
		return r
	}, name)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

// Stats reports connection pool usage when the store is PostgreSQL.
func (m *Manager) Stats() map[string]interface{} {
	pg, ok := m.Store.(*PostgresStore)
	if !ok {
		return map[string]interface{}{"store": "memory"}
	}
	s := pg.Stats()
	return map[string]interface{}{
		"store":                "postgres",
		"max_open_connections": s.MaxOpenConnections,
		"open_connections":     s.OpenConnections,
		"in_use":               s.InUse,
		"idle":                 s.Idle,
		"wait_count":           s.WaitCount,
		"wait_duration":        s.WaitDuration.String(),
	}
}

// Close closes the metadata store.
func (m *Manager) Close() error {
	return m.Store.Close()
}
