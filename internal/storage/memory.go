package storage

import (
	"context"
	"sort"
	"sync"

	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
)

// MemoryStore keeps metadata in process memory. It is used when no database
// is configured and in tests. Values are copied in and out.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]model.StoredDocument
	templates map[string]model.Template
	artifacts map[string]model.Artifact
	jobs      map[string]model.GenerationJob
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: map[string]model.StoredDocument{},
		templates: map[string]model.Template{},
		artifacts: map[string]model.Artifact{},
		jobs:      map[string]model.GenerationJob{},
	}
}

func (m *MemoryStore) CreateDocument(_ context.Context, doc *model.StoredDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[doc.ID] = *doc
	return nil
}

func (m *MemoryStore) GetDocument(_ context.Context, id string) (*model.StoredDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, svcerrors.NewNotFoundError("document", id)
	}
	return &doc, nil
}

func (m *MemoryStore) ListDocuments(context.Context) ([]model.StoredDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.StoredDocument, 0, len(m.documents))
	for _, d := range m.documents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[id]; !ok {
		return svcerrors.NewNotFoundError("document", id)
	}
	delete(m.documents, id)
	for tid, t := range m.templates {
		if t.DocumentID == id {
			delete(m.templates, tid)
		}
	}
	return nil
}

func (m *MemoryStore) CreateTemplate(_ context.Context, t *model.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[t.DocumentID]; !ok {
		return svcerrors.NewNotFoundError("document", t.DocumentID)
	}
	m.templates[t.ID] = cloneTemplate(*t)
	return nil
}

func (m *MemoryStore) GetTemplate(_ context.Context, id string) (*model.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, svcerrors.NewNotFoundError("template", id)
	}
	t = cloneTemplate(t)
	return &t, nil
}

func (m *MemoryStore) ListTemplates(context.Context) ([]model.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Template, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteTemplate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return svcerrors.NewNotFoundError("template", id)
	}
	delete(m.templates, id)
	return nil
}

func (m *MemoryStore) CreateArtifact(_ context.Context, a *model.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[a.ID] = *a
	return nil
}

func (m *MemoryStore) GetArtifact(_ context.Context, id string) (*model.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.artifacts[id]
	if !ok {
		return nil, svcerrors.NewNotFoundError("artifact", id)
	}
	return &a, nil
}

func (m *MemoryStore) SaveJob(_ context.Context, job *model.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := *job
	j.Warnings = append([]string(nil), job.Warnings...)
	m.jobs[job.ID] = j
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, id string) (*model.GenerationJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, svcerrors.NewNotFoundError("job", id)
	}
	j.Warnings = append([]string(nil), j.Warnings...)
	return &j, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func cloneTemplate(t model.Template) model.Template {
	phs := make([]model.Placeholder, len(t.Placeholders))
	for i, p := range t.Placeholders {
		p.Lines = append([]model.LineInfo(nil), p.Lines...)
		if p.Style != nil {
			s := *p.Style
			p.Style = &s
		}
		phs[i] = p
	}
	t.Placeholders = phs
	return t
}
