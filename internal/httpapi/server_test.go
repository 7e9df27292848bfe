package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adverant/nexus/pdfplaceholder/internal/config"
	"github.com/adverant/nexus/pdfplaceholder/internal/detect"
	"github.com/adverant/nexus/pdfplaceholder/internal/lock"
	"github.com/adverant/nexus/pdfplaceholder/internal/metrics"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
	"github.com/adverant/nexus/pdfplaceholder/internal/render"
	"github.com/adverant/nexus/pdfplaceholder/internal/storage"
	"github.com/adverant/nexus/pdfplaceholder/internal/templates"
)

// invoicePDF shows "Invoice #4521" in 12pt Helvetica at native baseline 215.5.
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

type fakeAsync struct {
	calls int
}

func (f *fakeAsync) EnqueueGeneration(_ context.Context, templateID string, _ map[string]string, _ string) (*model.GenerationJob, error) {
	f.calls++
	return &model.GenerationJob{ID: "job-1", TemplateID: templateID, Status: model.JobQueued}, nil
}

func newTestServer(t *testing.T, async AsyncGenerator) http.Handler {
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
	m := metrics.New()
	svc := templates.NewService(templates.Deps{
		Files:     storage.NewManager(storage.NewMemoryStore(), up, gen),
		Cascade:   detect.NewCascade(detect.Options{}),
		Generator: render.NewGenerator(config.DefaultRenderPolicy(), m),
		Locks:     lock.NewLocalLocker(time.Second),
		Metrics:   m,
	})
	opts := Options{Service: svc, MaxFileSize: 1 << 20, Health: map[string]interface{}{"ocr": map[string]interface{}{"available": false}}}
	if async != nil {
		opts.Async = async
	}
	return New(opts).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func upload(t *testing.T, h http.Handler, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/pdf/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func uploadInvoice(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := upload(t, h, "invoice.pdf", invoicePDF())
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body)
	}
	var doc model.StoredDocument
	decode(t, rec, &doc)
	return doc.ID
}

func createTemplate(t *testing.T, h http.Handler, docID string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/templates/create", map[string]interface{}{
		"pdf_id": docID,
		"name":   "Invoice",
		"placeholders": []map[string]interface{}{{
			"label":      "number",
			"page":       0,
			"rect":       []float64{100, 200, 300, 250},
			"lines_data": []map[string]interface{}{{"text": "Invoice #4521", "baseline": 215.5, "size": 12}},
		}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	var tpl templateJSON
	decode(t, rec, &tpl)
	return tpl.ID
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	decode(t, rec, &body)
	if body["status"] != "healthy" || body["ocr_available"] != false || body["async_generation"] != false {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["ocr"]; !ok {
		t.Errorf("extra health fields missing: %v", body)
	}
}

func TestDocumentEndpoints(t *testing.T) {
	h := newTestServer(t, nil)
	id := uploadInvoice(t, h)

	rec := do(t, h, http.MethodGet, "/api/pdf/list", nil)
	var list struct {
		PDFs  []model.StoredDocument `json:"pdfs"`
		Count int                    `json:"count"`
	}
	decode(t, rec, &list)
	if list.Count != 1 || list.PDFs[0].ID != id || list.PDFs[0].PageCount != 1 {
		t.Errorf("list = %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/api/pdf/"+id+"/info", nil)
	var info templates.DocumentInfo
	decode(t, rec, &info)
	if info.Width != 612 || info.Height != 792 {
		t.Errorf("info = %+v", info)
	}

	rec = do(t, h, http.MethodDelete, "/api/pdf/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/pdf/"+id+"/info", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("info after delete = %d", rec.Code)
	}
}

func TestUploadRejections(t *testing.T) {
	h := newTestServer(t, nil)
	tests := []struct {
		name     string
		filename string
		data     []byte
		status   int
		code     string
	}{
		{"not a pdf name", "notes.txt", invoicePDF(), http.StatusBadRequest, "INVALID_PARAMETER"},
		{"too large", "big.pdf", bytes.Repeat([]byte("x"), 2<<20), http.StatusBadRequest, "INVALID_PARAMETER"},
		{"unreadable", "broken.pdf", []byte("%PDF-1.4 garbage"), http.StatusUnprocessableEntity, "DOCUMENT_UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, h, tt.filename, tt.data)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
			var body errorBody
			decode(t, rec, &body)
			if body.ErrorCode != tt.code {
				t.Errorf("error_code = %q, want %q", body.ErrorCode, tt.code)
			}
		})
	}
}

func TestDetectTextWithZoom(t *testing.T) {
	h := newTestServer(t, nil)
	id := uploadInvoice(t, h)

	rec := do(t, h, http.MethodPost, "/api/pdf/"+id+"/detect-text", map[string]interface{}{
		"page": 0, "x0": 200, "y0": 400, "x1": 600, "y1": 500, "zoom": 2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var res detectTextResponse
	decode(t, rec, &res)
	if res.DetectedText != "Invoice #4521" || res.DetectionSource != model.SourcePreciseLayout {
		t.Errorf("res = %+v", res)
	}
	if res.Rect != [4]float64{100, 200, 300, 250} {
		t.Errorf("rect = %v", res.Rect)
	}

	rec = do(t, h, http.MethodPost, "/api/pdf/"+id+"/detect-text", map[string]interface{}{
		"page": 0, "x0": 10, "y0": 10, "x1": 10, "y1": 10,
	})
	decode(t, rec, &res)
	if res.DetectedText != "" || res.DetectionSource != model.SourceNone || res.Lines == nil {
		t.Errorf("zero-area res = %+v", res)
	}

	for name, body := range map[string]map[string]interface{}{
		"bad zoom":      {"page": 0, "x0": 0, "y0": 0, "x1": 1, "y1": 1, "zoom": 0},
		"inverted rect": {"page": 0, "x0": 5, "y0": 0, "x1": 1, "y1": 1},
		"missing page":  {"page": 3, "x0": 0, "y0": 0, "x1": 1, "y1": 1},
	} {
		rec := do(t, h, http.MethodPost, "/api/pdf/"+id+"/detect-text", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", name, rec.Code)
		}
	}
}

func TestCreateTemplateErrors(t *testing.T) {
	h := newTestServer(t, nil)
	id := uploadInvoice(t, h)

	rect := []float64{100, 200, 300, 250}
	tests := []struct {
		name string
		body map[string]interface{}
		code string
	}{
		{"duplicate label", map[string]interface{}{
			"pdf_id": id, "name": "T",
			"placeholders": []map[string]interface{}{
				{"label": "a", "page": 0, "rect": rect},
				{"label": "a", "page": 0, "rect": rect},
			},
		}, "DUPLICATE_LABEL"},
		{"short rect", map[string]interface{}{
			"pdf_id": id, "name": "T",
			"placeholders": []map[string]interface{}{{"label": "a", "page": 0, "rect": []float64{1, 2}}},
		}, "INVALID_PARAMETER"},
		{"missing pdf id", map[string]interface{}{"name": "T"}, "INVALID_PARAMETER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/templates/create", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body)
			}
			var body errorBody
			decode(t, rec, &body)
			if body.ErrorCode != tt.code {
				t.Errorf("error_code = %q, want %q", body.ErrorCode, tt.code)
			}
		})
	}

	rec := do(t, h, http.MethodPost, "/api/templates/create", map[string]interface{}{"pdf_id": "missing", "name": "T"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown document status = %d", rec.Code)
	}
}

func TestTemplateGeneration(t *testing.T) {
	h := newTestServer(t, nil)
	docID := uploadInvoice(t, h)
	tplID := createTemplate(t, h, docID)

	rec := do(t, h, http.MethodGet, "/api/templates/"+tplID, nil)
	var tpl templateJSON
	decode(t, rec, &tpl)
	if len(tpl.Placeholders) != 1 || len(tpl.Placeholders[0].Rect) != 4 || tpl.Placeholders[0].Rect[2] != 300 {
		t.Errorf("template = %+v", tpl)
	}

	rec = do(t, h, http.MethodGet, "/api/templates/list", nil)
	var list struct {
		Templates []templates.TemplateSummary `json:"templates"`
	}
	decode(t, rec, &list)
	if len(list.Templates) != 1 || list.Templates[0].PlaceholderCount != 1 {
		t.Errorf("list = %+v", list)
	}

	rec = do(t, h, http.MethodPost, "/api/templates/"+tplID+"/generate", map[string]interface{}{
		"replacements":    map[string]string{"number": "Invoice #9000"},
		"output_filename": "out.pdf",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if got := rec.Header().Get("X-Placeholders-Replaced"); got != "1" {
		t.Errorf("replaced header = %q", got)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="out.pdf"`) {
		t.Errorf("disposition = %q", cd)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Errorf("body is not a PDF")
	}

	rec = do(t, h, http.MethodPost, "/api/templates/"+tplID+"/generate-json", map[string]interface{}{
		"replacements": map[string]string{},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("generate-json status = %d: %s", rec.Code, rec.Body)
	}
	var art artifactResponse
	decode(t, rec, &art)
	if art.ArtifactID == "" || art.PlaceholdersReplaced != 0 || art.Warnings == nil {
		t.Errorf("artifact = %+v", art)
	}

	rec = do(t, h, http.MethodGet, art.DownloadURL, nil)
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Errorf("artifact download status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/api/templates/"+tplID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/templates/"+tplID+"/generate", map[string]interface{}{})
	if rec.Code != http.StatusNotFound {
		t.Errorf("generate after delete = %d", rec.Code)
	}
}

func TestApplyAndDetect(t *testing.T) {
	h := newTestServer(t, nil)
	tplID := createTemplate(t, h, uploadInvoice(t, h))
	target := uploadInvoice(t, h)

	rec := do(t, h, http.MethodPost, "/api/templates/"+tplID+"/detect", map[string]string{"target_pdf_id": target})
	if rec.Code != http.StatusOK {
		t.Fatalf("detect status = %d: %s", rec.Code, rec.Body)
	}
	var det detectAtResponse
	decode(t, rec, &det)
	if det.DetectedValues["number"] != "Invoice #4521" {
		t.Errorf("detected = %v", det.DetectedValues)
	}

	rec = do(t, h, http.MethodPost, "/api/templates/"+tplID+"/apply", map[string]interface{}{
		"target_pdf_id":      target,
		"replacements":       map[string]string{"number": "Invoice #1"},
		"detect_and_replace": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("apply status = %d: %s", rec.Code, rec.Body)
	}
	var art artifactResponse
	decode(t, rec, &art)
	if art.PlaceholdersReplaced != 1 || art.DetectedValues["number"] != "Invoice #4521" {
		t.Errorf("apply = %+v", art)
	}

	rec = do(t, h, http.MethodPost, "/api/templates/"+tplID+"/apply", map[string]interface{}{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("apply without target = %d", rec.Code)
	}
}

func TestGenerateAsync(t *testing.T) {
	h := newTestServer(t, nil)
	tplID := createTemplate(t, h, uploadInvoice(t, h))
	rec := do(t, h, http.MethodPost, "/api/templates/"+tplID+"/generate-async", map[string]interface{}{})
	var body errorBody
	decode(t, rec, &body)
	if rec.Code != http.StatusInternalServerError || body.ErrorCode != "QUEUE_FAILED" {
		t.Errorf("without queue: %d %+v", rec.Code, body)
	}

	async := &fakeAsync{}
	h = newTestServer(t, async)
	tplID = createTemplate(t, h, uploadInvoice(t, h))
	rec = do(t, h, http.MethodPost, "/api/templates/"+tplID+"/generate-async", map[string]interface{}{
		"replacements": map[string]string{"number": "x"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var accepted map[string]interface{}
	decode(t, rec, &accepted)
	if accepted["job_id"] != "job-1" || async.calls != 1 {
		t.Errorf("accepted = %v, calls = %d", accepted, async.calls)
	}

	rec = do(t, h, http.MethodPost, "/api/templates/unknown/generate-async", map[string]interface{}{})
	if rec.Code != http.StatusNotFound || async.calls != 1 {
		t.Errorf("unknown template: %d, calls = %d", rec.Code, async.calls)
	}

	rec = do(t, h, http.MethodGet, "/api/jobs/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing job = %d", rec.Code)
	}
}

func TestHeaderHelpers(t *testing.T) {
	got := headerJSON([]string{"café: shrunk", "tab\there"})
	want := `["caf\u00e9: shrunk","tab\there"]`
	if got != want {
		t.Errorf("headerJSON = %s, want %s", got, want)
	}
	var back []string
	if err := json.Unmarshal([]byte(got), &back); err != nil || back[0] != "café: shrunk" {
		t.Errorf("round trip = %v, %v", back, err)
	}

	cd := contentDisposition(`résumé "v2".pdf`)
	if !strings.Contains(cd, `filename="r_sum_ _v2_.pdf"`) || !strings.Contains(cd, "filename*=UTF-8''r%C3%A9sum%C3%A9%20%22v2%22.pdf") {
		t.Errorf("disposition = %s", cd)
	}
}
