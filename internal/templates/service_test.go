package templates

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adverant/nexus/pdfplaceholder/internal/config"
	"github.com/adverant/nexus/pdfplaceholder/internal/detect"
	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
	"github.com/adverant/nexus/pdfplaceholder/internal/lock"
	"github.com/adverant/nexus/pdfplaceholder/internal/metrics"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
	"github.com/adverant/nexus/pdfplaceholder/internal/pdfdoc"
	"github.com/adverant/nexus/pdfplaceholder/internal/render"
	"github.com/adverant/nexus/pdfplaceholder/internal/storage"
)

// invoicePDF is a one-page letter document showing "Invoice #4521" in 12pt
// Helvetica with its baseline at native y 215.5.
func invoicePDF() []byte {
	content := "BT /F1 12 Tf 100 576.5 Td (Invoice #4521) Tj ET"
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f\r\n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

var invoiceRect = geometry.NewRect(100, 200, 300, 250)

func newTestService(t *testing.T, locks lock.Locker) *Service {
	t.Helper()
	dir := t.TempDir()
	up, err := storage.NewFileBlobStore(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatal(err)
	}
	gen, err := storage.NewFileBlobStore(filepath.Join(dir, "generated"))
	if err != nil {
		t.Fatal(err)
	}
	if locks == nil {
		locks = lock.NewLocalLocker(time.Second)
	}
	m := metrics.New()
	return NewService(Deps{
		Files:     storage.NewManager(storage.NewMemoryStore(), up, gen),
		Cascade:   detect.NewCascade(detect.Options{}),
		Generator: render.NewGenerator(config.DefaultRenderPolicy(), m),
		Locks:     locks,
		Metrics:   m,
	})
}

func uploadInvoice(t *testing.T, s *Service) *model.StoredDocument {
	t.Helper()
	doc, err := s.Upload(context.Background(), "invoice.pdf", invoicePDF())
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func invoiceTemplate(t *testing.T, s *Service, docID string) *model.Template {
	t.Helper()
	tpl, err := s.CreateTemplate(context.Background(), TemplateInput{
		DocumentID: docID,
		Name:       "Invoice",
		Placeholders: []model.Placeholder{{
			Label: "number",
			Rect:  invoiceRect,
			Lines: []model.LineInfo{{Text: "Invoice #4521", Baseline: 215.5, Size: 12}},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return tpl
}

func TestUploadAndInfo(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, nil)

	if _, err := s.Upload(ctx, "junk.pdf", []byte("not a pdf")); svcerrors.CodeOf(err) != svcerrors.ErrorDocumentUnavailable {
		t.Fatalf("garbage upload: %v", err)
	}

	doc := uploadInvoice(t, s)
	if doc.PageCount != 1 || doc.OriginalFilename != "invoice.pdf" {
		t.Errorf("doc = %+v", doc)
	}

	info, err := s.Info(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Width != 612 || info.Height != 792 {
		t.Errorf("page size = %vx%v", info.Width, info.Height)
	}

	docs, err := s.ListDocuments(ctx)
	if err != nil || len(docs) != 1 {
		t.Errorf("list = %v, %v", docs, err)
	}
}

func TestDetectTextOnStoredDocument(t *testing.T) {
	s := newTestService(t, nil)
	doc := uploadInvoice(t, s)

	res, err := s.DetectText(context.Background(), doc.ID, 0, invoiceRect)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "Invoice #4521" || res.Source != model.SourcePreciseLayout {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Lines) != 1 || res.Lines[0].Baseline != 215.5 || res.Lines[0].Size != 12 {
		t.Errorf("lines = %+v", res.Lines)
	}

	empty, err := s.DetectText(context.Background(), doc.ID, 0, geometry.NewRect(400, 600, 500, 700))
	if err != nil {
		t.Fatal(err)
	}
	if empty.Text != "" || empty.Source != model.SourceNone || len(empty.Lines) != 0 {
		t.Errorf("empty region = %+v", empty)
	}

	if _, err := s.DetectText(context.Background(), "missing", 0, invoiceRect); svcerrors.CodeOf(err) != svcerrors.ErrorNotFound {
		t.Errorf("unknown document: %v", err)
	}
}

func TestCreateTemplateValidation(t *testing.T) {
	s := newTestService(t, nil)
	doc := uploadInvoice(t, s)
	ph := func(label string, page int, r geometry.Rect) model.Placeholder {
		return model.Placeholder{Label: label, Page: page, Rect: r}
	}

	tests := []struct {
		name string
		in   TemplateInput
		want svcerrors.ErrorCode
	}{
		{
			name: "unknown document",
			in:   TemplateInput{DocumentID: "nope", Name: "x"},
			want: svcerrors.ErrorNotFound,
		},
		{
			name: "blank name",
			in:   TemplateInput{DocumentID: doc.ID, Name: "  "},
			want: svcerrors.ErrorInvalidParameter,
		},
		{
			name: "duplicate label",
			in: TemplateInput{DocumentID: doc.ID, Name: "x", Placeholders: []model.Placeholder{
				ph("a", 0, invoiceRect), ph("a", 0, invoiceRect),
			}},
			want: svcerrors.ErrorDuplicateLabel,
		},
		{
			name: "empty label",
			in:   TemplateInput{DocumentID: doc.ID, Name: "x", Placeholders: []model.Placeholder{ph("", 0, invoiceRect)}},
			want: svcerrors.ErrorInvalidParameter,
		},
		{
			name: "page beyond document",
			in:   TemplateInput{DocumentID: doc.ID, Name: "x", Placeholders: []model.Placeholder{ph("a", 1, invoiceRect)}},
			want: svcerrors.ErrorInvalidRect,
		},
		{
			name: "inverted rect",
			in: TemplateInput{DocumentID: doc.ID, Name: "x", Placeholders: []model.Placeholder{
				ph("a", 0, geometry.Rect{X0: 10, Y0: 0, X1: 5, Y1: 10}),
			}},
			want: svcerrors.ErrorInvalidRect,
		},
		{
			name: "unknown source",
			in: TemplateInput{DocumentID: doc.ID, Name: "x", Placeholders: []model.Placeholder{
				{Label: "a", Rect: invoiceRect, DetectionSource: "Telepathy"},
			}},
			want: svcerrors.ErrorInvalidParameter,
		},
		{
			name: "unsupported font",
			in: TemplateInput{DocumentID: doc.ID, Name: "x", Placeholders: []model.Placeholder{
				{Label: "a", Rect: invoiceRect, Style: &model.PlaceholderStyle{FontName: "comic"}},
			}},
			want: svcerrors.ErrorInvalidParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateTemplate(context.Background(), tt.in)
			if got := svcerrors.CodeOf(err); got != tt.want {
				t.Errorf("code = %q (%v), want %q", got, err, tt.want)
			}
		})
	}

	tpls, _ := s.ListTemplates(context.Background())
	if len(tpls) != 0 {
		t.Errorf("invalid templates stored: %+v", tpls)
	}
}

func TestTemplateLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, nil)
	doc := uploadInvoice(t, s)
	tpl := invoiceTemplate(t, s, doc.ID)

	got, err := s.GetTemplate(ctx, tpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DocumentID != doc.ID || len(got.Placeholders) != 1 || got.Placeholders[0].Rect != invoiceRect {
		t.Errorf("template = %+v", got)
	}

	list, err := s.ListTemplates(ctx)
	if err != nil || len(list) != 1 || list[0].PlaceholderCount != 1 {
		t.Errorf("list = %+v, %v", list, err)
	}

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetTemplate(ctx, tpl.ID); svcerrors.CodeOf(err) != svcerrors.ErrorNotFound {
		t.Errorf("template outlived its document: %v", err)
	}
}

func runsOf(t *testing.T, data []byte) []pdfdoc.TextRun {
	t.Helper()
	doc, err := pdfdoc.Open(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()
	runs, err := doc.TextRuns(0)
	if err != nil {
		t.Fatal(err)
	}
	return runs
}

func TestGenerateReplacesText(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, nil)
	doc := uploadInvoice(t, s)
	tpl := invoiceTemplate(t, s, doc.ID)

	g, err := s.Generate(ctx, tpl.ID, map[string]string{"number": "Invoice #9000", "unknown": "ignored"})
	if err != nil {
		t.Fatal(err)
	}
	if g.Report.PlaceholdersReplaced != 1 {
		t.Errorf("report = %+v", g.Report)
	}
	if bytes.Contains(g.Data, []byte("#4521")) {
		t.Error("original text still present")
	}
	runs := runsOf(t, g.Data)
	if len(runs) != 1 || runs[0].Text != "Invoice #9000" {
		t.Fatalf("runs = %+v", runs)
	}

	// The stored source is untouched.
	_, data, err := s.Files().LoadDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, invoicePDF()) {
		t.Error("source document modified")
	}
}

func TestGenerateArtifact(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, nil)
	doc := uploadInvoice(t, s)
	tpl := invoiceTemplate(t, s, doc.ID)

	res, err := s.GenerateArtifact(ctx, tpl.ID, nil, "blank")
	if err != nil {
		t.Fatal(err)
	}
	if res.Artifact.Filename != "blank.pdf" || res.Report.PlaceholdersReplaced != 0 {
		t.Errorf("result = %+v / %+v", res.Artifact, res.Report)
	}
	_, data, err := s.Files().LoadArtifact(ctx, res.Artifact.ID)
	if err != nil {
		t.Fatal(err)
	}
	if runs := runsOf(t, data); len(runs) != 0 {
		t.Errorf("blank generation left text: %+v", runs)
	}
}

func TestApplyToTargetDocument(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, nil)
	src := uploadInvoice(t, s)
	target := uploadInvoice(t, s)

	tpl, err := s.CreateTemplate(ctx, TemplateInput{
		DocumentID: src.ID,
		Name:       "Invoice",
		Placeholders: []model.Placeholder{
			{Label: "number", Rect: invoiceRect},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.Apply(ctx, tpl.ID, ApplyInput{
		TargetDocumentID: target.ID,
		Replacements:     map[string]string{"number": "Invoice #1"},
		DetectAndReplace: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Detected["number"] != "Invoice #4521" {
		t.Errorf("detected = %v", res.Detected)
	}
	if !strings.HasPrefix(res.Artifact.Filename, "applied_") {
		t.Errorf("filename = %q", res.Artifact.Filename)
	}
	_, data, err := s.Files().LoadArtifact(ctx, res.Artifact.ID)
	if err != nil {
		t.Fatal(err)
	}
	if runs := runsOf(t, data); len(runs) != 1 || runs[0].Text != "Invoice #1" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestDetectAtMarksMissingPages(t *testing.T) {
	ph := []model.Placeholder{
		{Label: "number", Page: 0, Rect: invoiceRect},
		{Label: "later", Page: 2, Rect: invoiceRect},
	}
	kept, warnings := splitByPage(ph, 1)
	if len(kept) != 1 || kept[0].Label != "number" || len(warnings) != 1 {
		t.Fatalf("kept = %+v, warnings = %v", kept, warnings)
	}

	ctx := context.Background()
	s := newTestService(t, nil)
	doc := uploadInvoice(t, s)
	tpl := invoiceTemplate(t, s, doc.ID)

	values, err := s.DetectAt(ctx, tpl.ID, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if values["number"] != "Invoice #4521" {
		t.Errorf("values = %v", values)
	}
}

func TestGenerateWaitsForDocumentLock(t *testing.T) {
	ctx := context.Background()
	locks := lock.NewLocalLocker(20 * time.Millisecond)
	s := newTestService(t, locks)
	doc := uploadInvoice(t, s)
	tpl := invoiceTemplate(t, s, doc.ID)

	release, err := locks.Acquire(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Generate(ctx, tpl.ID, nil); svcerrors.CodeOf(err) != svcerrors.ErrorLockTimeout {
		t.Errorf("err = %v, want LOCK_TIMEOUT", err)
	}
	release()

	if _, err := s.Generate(ctx, tpl.ID, nil); err != nil {
		t.Errorf("generation after release: %v", err)
	}
}
