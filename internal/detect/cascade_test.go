package detect

import (
	"context"
	"errors"
	"image"
	"reflect"
	"testing"

	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
	"github.com/adverant/nexus/pdfplaceholder/internal/pdfdoc"
	"github.com/adverant/nexus/pdfplaceholder/internal/pdfwords"
)

type fakeDoc struct {
	pages    int
	widgets  []pdfdoc.Widget
	runs     []pdfdoc.TextRun
	rendered int
}

func (f *fakeDoc) PageCount() int { return f.pages }

func (f *fakeDoc) Widgets(int) ([]pdfdoc.Widget, error) { return f.widgets, nil }

func (f *fakeDoc) TextRuns(int) ([]pdfdoc.TextRun, error) { return f.runs, nil }

func (f *fakeDoc) RenderRegion(_ int, r geometry.Rect, scale float64) (*image.Gray, error) {
	f.rendered++
	return image.NewGray(image.Rect(0, 0, int(r.Width()*scale), int(r.Height()*scale))), nil
}

type fakeWords struct {
	words []pdfwords.Word
	err   error
}

func (f fakeWords) Within(_ int, r geometry.Rect) ([]pdfwords.Word, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []pdfwords.Word
	for _, w := range f.words {
		if w.Box.Intersects(r) {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) Recognize(context.Context, image.Image) (string, error) {
	f.calls++
	return f.text, f.err
}

// run lays out text with uniform 6pt glyphs starting at x on the given baseline.
func run(text string, x, baseline, size float64) pdfdoc.TextRun {
	r := pdfdoc.TextRun{Text: text, X: x, Baseline: baseline, Size: size}
	for i, ch := range text {
		x0 := x + float64(i)*6
		box := geometry.NewRect(x0, baseline-0.75*size, x0+6, baseline+0.25*size)
		r.Glyphs = append(r.Glyphs, pdfdoc.Glyph{Text: string(ch), Box: box})
		r.Box = r.Box.Union(box)
	}
	return r
}

func word(text string, x, baseline, size float64) pdfwords.Word {
	return pdfwords.Word{
		Text:     text,
		Box:      geometry.NewRect(x, baseline-0.8*size, x+6*float64(len(text)), baseline+0.2*size),
		Baseline: baseline,
		Size:     size,
	}
}

var invoiceRect = geometry.NewRect(100, 200, 300, 250)

func TestPreciseLayoutInvoice(t *testing.T) {
	doc := &fakeDoc{pages: 1, runs: []pdfdoc.TextRun{run("Invoice #4521", 110, 215.5, 12)}}
	got, err := NewCascade(Options{}).Detect(context.Background(), Query{Doc: doc, Rect: invoiceRect})
	if err != nil {
		t.Fatal(err)
	}
	want := model.DetectionResult{
		Text:   "Invoice #4521",
		Source: model.SourcePreciseLayout,
		Lines:  []model.LineInfo{{Text: "Invoice #4521", Baseline: 215.5, Size: 12}},
		Rect:   invoiceRect,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestNoTextWithoutOCR(t *testing.T) {
	doc := &fakeDoc{pages: 1}
	got, err := NewCascade(Options{}).Detect(context.Background(), Query{Doc: doc, Rect: invoiceRect})
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "" || got.Source != model.SourceNone || len(got.Lines) != 0 || got.Lines == nil {
		t.Errorf("got %+v", got)
	}
	if doc.rendered != 0 {
		t.Error("page rendered although OCR is unavailable")
	}
}

func TestZeroAreaRect(t *testing.T) {
	doc := &fakeDoc{pages: 1, runs: []pdfdoc.TextRun{run("Invoice", 100, 215, 12)}}
	ocr := &fakeOCR{text: "x"}
	got, err := NewCascade(Options{Recognizer: ocr}).Detect(context.Background(),
		Query{Doc: doc, Rect: geometry.NewRect(120, 210, 120, 230)})
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != model.SourceNone || got.Text != "" {
		t.Errorf("got %+v", got)
	}
	if ocr.calls != 0 {
		t.Error("OCR called for a zero-area rect")
	}
}

func TestInvalidQueries(t *testing.T) {
	doc := &fakeDoc{pages: 1}
	c := NewCascade(Options{})
	tests := []struct {
		name string
		q    Query
	}{
		{"inverted", Query{Doc: doc, Rect: geometry.NewRect(300, 200, 100, 250)}},
		{"page past end", Query{Doc: doc, Page: 1, Rect: invoiceRect}},
		{"negative page", Query{Doc: doc, Page: -1, Rect: invoiceRect}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Detect(context.Background(), tt.q)
			if svcerrors.CodeOf(err) != svcerrors.ErrorInvalidRect {
				t.Errorf("err = %v, want INVALID_RECT", err)
			}
		})
	}
}

func TestFormFieldWins(t *testing.T) {
	doc := &fakeDoc{
		pages:   1,
		widgets: []pdfdoc.Widget{{Name: "name", Type: "Tx", Value: "Jane Roe", Rect: geometry.NewRect(90, 190, 310, 260)}},
		runs:    []pdfdoc.TextRun{run("Invoice #4521", 110, 215.5, 12)},
	}
	got, err := NewCascade(Options{}).Detect(context.Background(), Query{Doc: doc, Rect: invoiceRect})
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != model.SourceFormField || got.Text != "Jane Roe" || len(got.Lines) != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestButtonFormField(t *testing.T) {
	tests := []struct {
		name  string
		value string
		form  bool
	}{
		{"checked", "Yes", true},
		{"radio choice", "Express", true},
		{"unchecked", "Off", false},
		{"unset", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &fakeDoc{
				pages:   1,
				widgets: []pdfdoc.Widget{{Name: "agree", Type: "Btn", Value: tt.value, Rect: geometry.NewRect(90, 190, 310, 260)}},
				runs:    []pdfdoc.TextRun{run("Invoice #4521", 110, 215.5, 12)},
			}
			got, err := NewCascade(Options{}).Detect(context.Background(), Query{Doc: doc, Rect: invoiceRect})
			if err != nil {
				t.Fatal(err)
			}
			if tt.form {
				if got.Source != model.SourceFormField || got.Text != tt.value {
					t.Errorf("got %+v, want form field %q", got, tt.value)
				}
				return
			}
			if got.Source == model.SourceFormField {
				t.Errorf("button with value %q matched: %+v", tt.value, got)
			}
		})
	}
}

func TestFormFieldMustCoverRect(t *testing.T) {
	doc := &fakeDoc{
		pages:   1,
		widgets: []pdfdoc.Widget{{Type: "Tx", Value: "Jane Roe", Rect: geometry.NewRect(150, 190, 310, 260)}},
	}
	got, _ := NewCascade(Options{}).Detect(context.Background(), Query{Doc: doc, Rect: invoiceRect})
	if got.Source != model.SourceNone {
		t.Errorf("partially overlapping widget matched: %+v", got)
	}
}

func TestLayoutNeverFallsThrough(t *testing.T) {
	doc := &fakeDoc{pages: 1, runs: []pdfdoc.TextRun{run("Total", 110, 230, 10)}}
	words := fakeWords{words: []pdfwords.Word{word("Other", 110, 230, 10)}}
	ocr := &fakeOCR{text: "ocr"}
	got, _ := NewCascade(Options{Recognizer: ocr}).Detect(context.Background(),
		Query{Doc: doc, Words: words, Rect: invoiceRect})
	if got.Source != model.SourcePreciseLayout || got.Text != "Total" {
		t.Errorf("got %+v", got)
	}
	if ocr.calls != 0 {
		t.Error("OCR invoked after layout succeeded")
	}
}

func TestClusteringUsesWidenedRect(t *testing.T) {
	// The run sits just above the rect, so no glyph is half inside it.
	doc := &fakeDoc{pages: 1, runs: []pdfdoc.TextRun{run("Edge", 110, 200.5, 12)}}
	words := fakeWords{words: []pdfwords.Word{word("Edge", 110, 200.5, 12), word("text", 140, 200.5, 12)}}
	got, _ := NewCascade(Options{}).Detect(context.Background(),
		Query{Doc: doc, Words: words, Rect: invoiceRect})
	if got.Source != model.SourceWordClustering {
		t.Fatalf("got %+v", got)
	}
	if got.Text != "Edge text" {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Lines) != 1 || got.Lines[0].Baseline != 200.5 || got.Lines[0].Size != 12 {
		t.Errorf("Lines = %+v", got.Lines)
	}
}

func TestClusteringFallsBackToRunsWhenWordEngineFails(t *testing.T) {
	doc := &fakeDoc{pages: 1, runs: []pdfdoc.TextRun{run("Edge case", 110, 200.5, 12)}}
	got, _ := NewCascade(Options{}).Detect(context.Background(),
		Query{Doc: doc, Words: fakeWords{err: errors.New("broken")}, Rect: invoiceRect})
	if got.Source != model.SourceWordClustering || got.Text != "Edge case" {
		t.Errorf("got %+v", got)
	}
}

func TestOCRIsLastResort(t *testing.T) {
	doc := &fakeDoc{pages: 1}
	ocr := &fakeOCR{text: "  scanned text\n"}
	got, err := NewCascade(Options{Recognizer: ocr}).Detect(context.Background(), Query{Doc: doc, Rect: invoiceRect})
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != model.SourceOCR || got.Text != "scanned text" || len(got.Lines) != 0 {
		t.Errorf("got %+v", got)
	}
	if doc.rendered != 1 {
		t.Errorf("rendered %d times", doc.rendered)
	}
}

func TestOCRFailureYieldsNone(t *testing.T) {
	doc := &fakeDoc{pages: 1}
	ocr := &fakeOCR{err: context.DeadlineExceeded}
	got, err := NewCascade(Options{Recognizer: ocr}).Detect(context.Background(), Query{Doc: doc, Rect: invoiceRect})
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != model.SourceNone {
		t.Errorf("got %+v", got)
	}
}

func TestWhitespaceIsEmpty(t *testing.T) {
	doc := &fakeDoc{pages: 1, runs: []pdfdoc.TextRun{run("   ", 110, 220, 12)}}
	ocr := &fakeOCR{text: " \n "}
	got, _ := NewCascade(Options{Recognizer: ocr}).Detect(context.Background(), Query{Doc: doc, Rect: invoiceRect})
	if got.Source != model.SourceNone {
		t.Errorf("got %+v", got)
	}
	if ocr.calls != 1 {
		t.Errorf("OCR calls = %d, want 1", ocr.calls)
	}
}

func TestOCRAvailable(t *testing.T) {
	if NewCascade(Options{}).OCRAvailable() {
		t.Error("OCR reported without recognizer")
	}
	if !NewCascade(Options{Recognizer: &fakeOCR{}}).OCRAvailable() {
		t.Error("OCR not reported")
	}
}
