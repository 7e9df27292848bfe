// Package templates implements the document, template and generation
// operations the API and the worker expose. It ties detection, rendering,
// storage and per-document locking together.
package templates

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/pdfplaceholder/internal/detect"
	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
	"github.com/adverant/nexus/pdfplaceholder/internal/lock"
	"github.com/adverant/nexus/pdfplaceholder/internal/logging"
	"github.com/adverant/nexus/pdfplaceholder/internal/metrics"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
	"github.com/adverant/nexus/pdfplaceholder/internal/pdfdoc"
	"github.com/adverant/nexus/pdfplaceholder/internal/pdfwords"
	"github.com/adverant/nexus/pdfplaceholder/internal/render"
	"github.com/adverant/nexus/pdfplaceholder/internal/storage"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Files     *storage.Manager
	Cascade   *detect.Cascade
	Generator *render.Generator
	Locks     lock.Locker
	Metrics   *metrics.Metrics

	// GenerationTimeout bounds one generation including the lock wait; 0 disables it.
	GenerationTimeout time.Duration
	// MaxDecodedSize bounds a single decoded PDF stream; 0 means unlimited.
	MaxDecodedSize int64
}

// Service is safe for concurrent use.
type Service struct {
	files      *storage.Manager
	cascade    *detect.Cascade
	generator  *render.Generator
	locks      lock.Locker
	metrics    *metrics.Metrics
	timeout    time.Duration
	maxDecoded int64
	logger     *logging.Logger
	now        func() time.Time
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	m := d.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		files:      d.Files,
		cascade:    d.Cascade,
		generator:  d.Generator,
		locks:      d.Locks,
		metrics:    m,
		timeout:    d.GenerationTimeout,
		maxDecoded: d.MaxDecodedSize,
		logger:     logging.NewLogger("Templates"),
		now:        time.Now,
	}
}

// OCRAvailable reports whether detection may fall back to OCR.
func (s *Service) OCRAvailable() bool {
	return s.cascade.OCRAvailable()
}

// Files exposes the storage manager to the transport layers.
func (s *Service) Files() *storage.Manager {
	return s.files
}

func (s *Service) open(ctx context.Context, ref string, data []byte) (*pdfdoc.Document, error) {
	opts := []pdfdoc.Option{pdfdoc.WithRef(ref), pdfdoc.WithMetrics(s.metrics)}
	if s.maxDecoded > 0 {
		opts = append(opts, pdfdoc.WithMaxDecodedSize(s.maxDecoded))
	}
	return pdfdoc.Open(ctx, data, opts...)
}

// wordSource opens the independent word engine. A nil result disables the
// clustering step's primary path; it then falls back to the layout runs.
func (s *Service) wordSource(ref string, data []byte) detect.WordSource {
	rd, err := pdfwords.NewReader(data)
	if err != nil {
		s.logger.Debug("Word engine cannot read document", "document", ref, "error", err)
		return nil
	}
	return rd
}

// Upload validates that data is a readable PDF and stores it.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (*model.StoredDocument, error) {
	doc, err := s.open(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	pages := doc.PageCount()
	doc.Close()

	stored, err := s.files.SaveUpload(ctx, storage.UploadInput{
		OriginalFilename: filename,
		Data:             data,
		PageCount:        pages,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Document uploaded", "document", stored.ID, "pages", pages, "bytes", stored.FileSize)
	return stored, nil
}

// DocumentInfo is a stored document plus its first page size.
type DocumentInfo struct {
	model.StoredDocument
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Info returns metadata and the first page size of a document.
func (s *Service) Info(ctx context.Context, documentID string) (*DocumentInfo, error) {
	stored, data, err := s.files.LoadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	doc, err := s.open(ctx, stored.ID, data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	w, h, err := doc.PageSize(0)
	if err != nil {
		return nil, err
	}
	return &DocumentInfo{StoredDocument: *stored, Width: w, Height: h}, nil
}

// ListDocuments returns stored documents, newest first.
func (s *Service) ListDocuments(ctx context.Context) ([]model.StoredDocument, error) {
	return s.files.Store.ListDocuments(ctx)
}

// DeleteDocument removes a document and its templates.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.files.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	s.logger.Info("Document deleted", "document", documentID)
	return nil
}

// DetectText runs the cascade on one rectangle of a stored document. Each
// call opens its own read-only handle.
func (s *Service) DetectText(ctx context.Context, documentID string, page int, rect geometry.Rect) (model.DetectionResult, error) {
	stored, data, err := s.files.LoadDocument(ctx, documentID)
	if err != nil {
		return model.DetectionResult{}, err
	}
	doc, err := s.open(ctx, stored.ID, data)
	if err != nil {
		return model.DetectionResult{}, err
	}
	defer doc.Close()

	return s.cascade.Detect(ctx, detect.Query{
		Doc:   doc,
		Words: s.wordSource(stored.ID, data),
		Page:  page,
		Rect:  rect,
	})
}

// TemplateInput is the data needed to create a template.
type TemplateInput struct {
	DocumentID   string
	Name         string
	Description  string
	Placeholders []model.Placeholder
}

// CreateTemplate validates and stores a template for an uploaded document.
func (s *Service) CreateTemplate(ctx context.Context, in TemplateInput) (*model.Template, error) {
	stored, err := s.files.Store.GetDocument(ctx, in.DocumentID)
	if err != nil {
		return nil, err
	}
	if err := validateTemplate(in, stored.PageCount, s.generator); err != nil {
		return nil, err
	}

	t := &model.Template{
		ID:           uuid.New().String(),
		DocumentID:   stored.ID,
		Name:         in.Name,
		Description:  in.Description,
		Placeholders: in.Placeholders,
		CreatedAt:    s.now().UTC(),
	}
	if t.Placeholders == nil {
		t.Placeholders = []model.Placeholder{}
	}
	if err := s.files.Store.CreateTemplate(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("Template created", "template", t.ID, "document", t.DocumentID, "placeholders", len(t.Placeholders))
	return t, nil
}

// GetTemplate returns a template.
func (s *Service) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	return s.files.Store.GetTemplate(ctx, id)
}

// TemplateSummary is a list entry.
type TemplateSummary struct {
	ID               string    `json:"id"`
	DocumentID       string    `json:"pdf_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	PlaceholderCount int       `json:"placeholder_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// ListTemplates returns template summaries, newest first.
func (s *Service) ListTemplates(ctx context.Context) ([]TemplateSummary, error) {
	ts, err := s.files.Store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TemplateSummary, len(ts))
	for i, t := range ts {
		out[i] = TemplateSummary{
			ID:               t.ID,
			DocumentID:       t.DocumentID,
			Name:             t.Name,
			Description:      t.Description,
			PlaceholderCount: len(t.Placeholders),
			CreatedAt:        t.CreatedAt,
		}
	}
	return out, nil
}

// DeleteTemplate removes a template.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	if err := s.files.Store.DeleteTemplate(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Template deleted", "template", id)
	return nil
}

// Generation is a generated document held in memory.
type Generation struct {
	Template *model.Template
	Data     []byte
	Report   *render.Report
}

// Generate applies replacements to the template's own document.
func (s *Service) Generate(ctx context.Context, templateID string, replacements map[string]string) (*Generation, error) {
	t, err := s.files.Store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	data, report, err := s.withDocument(ctx, t.DocumentID, func(ctx context.Context, work *pdfdoc.Document, _ []byte) ([]byte, *render.Report, error) {
		return s.generator.Generate(ctx, work, t.Placeholders, replacements)
	})
	if err != nil {
		return nil, err
	}
	return &Generation{Template: t, Data: data, Report: report}, nil
}

// ArtifactResult describes a stored generated file.
type ArtifactResult struct {
	Artifact *model.Artifact
	Report   *render.Report
	// Detected maps labels to the text found before replacement (Apply with detection only).
	Detected map[string]string
}

// GenerateArtifact generates and stores the result under a new artifact id.
func (s *Service) GenerateArtifact(ctx context.Context, templateID string, replacements map[string]string, filename string) (*ArtifactResult, error) {
	g, err := s.Generate(ctx, templateID, replacements)
	if err != nil {
		return nil, err
	}
	a, err := s.files.SaveArtifact(ctx, filename, g.Data)
	if err != nil {
		return nil, err
	}
	return &ArtifactResult{Artifact: a, Report: g.Report}, nil
}

// ApplyInput applies a template to another document with the same layout.
type ApplyInput struct {
	TargetDocumentID string
	Replacements     map[string]string
	DetectAndReplace bool
	OutputFilename   string
}

// Apply redacts and redraws the template's placeholders on a target document.
// Placeholders on pages the target lacks are skipped with a warning.
func (s *Service) Apply(ctx context.Context, templateID string, in ApplyInput) (*ArtifactResult, error) {
	t, err := s.files.Store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	var detected map[string]string
	data, report, err := s.withDocument(ctx, in.TargetDocumentID, func(ctx context.Context, work *pdfdoc.Document, raw []byte) ([]byte, *render.Report, error) {
		kept, skipped := splitByPage(t.Placeholders, work.PageCount())

		if in.DetectAndReplace {
			var err error
			detected, err = s.detectAll(ctx, in.TargetDocumentID, raw, kept)
			if err != nil {
				work.Close()
				return nil, nil, err
			}
		}

		out, report, err := s.generator.Generate(ctx, work, kept, in.Replacements)
		if report != nil && len(skipped) > 0 {
			report.Warnings = append(skipped, report.Warnings...)
		}
		return out, report, err
	})
	if err != nil {
		return nil, err
	}

	filename := in.OutputFilename
	if filename == "" {
		filename = "applied_" + uuid.New().String()[:8] + ".pdf"
	}
	a, err := s.files.SaveArtifact(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	return &ArtifactResult{Artifact: a, Report: report, Detected: detected}, nil
}

// DetectAt reads the text at every placeholder position of a template in a
// target document. Placeholders on missing pages map to a marker string.
func (s *Service) DetectAt(ctx context.Context, templateID, targetDocumentID string) (map[string]string, error) {
	t, err := s.files.Store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	stored, data, err := s.files.LoadDocument(ctx, targetDocumentID)
	if err != nil {
		return nil, err
	}
	doc, err := s.open(ctx, stored.ID, data)
	if err != nil {
		return nil, err
	}
	pages := doc.PageCount()
	doc.Close()

	kept, _ := splitByPage(t.Placeholders, pages)
	values, err := s.detectAll(ctx, stored.ID, data, kept)
	if err != nil {
		return nil, err
	}
	for _, p := range t.Placeholders {
		if p.Page >= pages {
			values[p.Label] = fmt.Sprintf("[Page %d not found]", p.Page)
		}
	}
	return values, nil
}

// detectAll runs the cascade for each placeholder on one read-only handle.
func (s *Service) detectAll(ctx context.Context, ref string, data []byte, phs []model.Placeholder) (map[string]string, error) {
	doc, err := s.open(ctx, ref, data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	words := s.wordSource(ref, data)

	values := make(map[string]string, len(phs))
	for _, p := range phs {
		res, err := s.cascade.Detect(ctx, detect.Query{Doc: doc, Words: words, Page: p.Page, Rect: p.Rect})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			s.logger.Warn("Detection failed", "label", p.Label, "document", ref, "error", err)
			values[p.Label] = ""
			continue
		}
		values[p.Label] = res.Text
	}
	return values, nil
}

type generateFunc func(ctx context.Context, work *pdfdoc.Document, data []byte) ([]byte, *render.Report, error)

// withDocument holds the document's generation lock, opens a fresh working
// copy and hands it to fn, which takes ownership of the handle.
func (s *Service) withDocument(ctx context.Context, documentID string, fn generateFunc) ([]byte, *render.Report, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	release, err := s.locks.Acquire(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	stored, data, err := s.files.LoadDocument(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	work, err := s.open(ctx, stored.ID, data)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	out, report, err := fn(ctx, work, data)
	if err != nil {
		s.logger.Error("Generation failed", "document", documentID, "error", err)
		return nil, report, err
	}
	s.logger.Info("Generation finished", "document", documentID, "duration", time.Since(start))
	return out, report, nil
}

func splitByPage(phs []model.Placeholder, pages int) (kept []model.Placeholder, warnings []string) {
	for _, p := range phs {
		if p.Page >= pages {
			warnings = append(warnings, fmt.Sprintf("%s: page %d not in target document (%d pages)", p.Label, p.Page, pages))
			continue
		}
		kept = append(kept, p)
	}
	return kept, warnings
}
