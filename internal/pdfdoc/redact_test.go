package pdfdoc

import (
	"bytes"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/wudi/pdfkit/ir/semantic"

	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
)

func grayAt(img image.Image, x, y int) uint8 {
	b := img.Bounds()
	return color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
}

func TestRedactBlanksImagePixels(t *testing.T) {
	doc := openFixture(t, imagePDF("", strings.Repeat("\x00", 16)))

	// Left half of the image, which spans native [100 92 200 192].
	if err := doc.Redact(0, geometry.NewRect(100, 92, 150, 192), White); err != nil {
		t.Fatalf("Redact: %v", err)
	}

	check := func(t *testing.T, doc *Document) {
		t.Helper()
		images, err := doc.Images(0)
		if err != nil {
			t.Fatal(err)
		}
		if len(images) != 1 {
			t.Fatalf("got %d images, want 1", len(images))
		}
		pi := images[0]
		if pi.Name == "Im1" {
			t.Errorf("image was not replaced")
		}
		if pi.Image == nil {
			t.Fatal("rewritten image does not decode")
		}
		if b := pi.Image.Bounds(); b.Dx() != 4 || b.Dy() != 4 {
			t.Fatalf("image size = %v", b)
		}
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				want := uint8(0)
				if x < 2 {
					want = 255
				}
				if got := grayAt(pi.Image, x, y); got != want {
					t.Errorf("pixel (%d,%d) = %d, want %d", x, y, got, want)
				}
			}
		}
	}
	check(t, doc)

	if names := resourceNames(t, doc, 0, "XObject"); names["Im1"] || len(names) != 1 {
		t.Errorf("XObject resources after redaction = %v", names)
	}

	out, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	check(t, openFixture(t, out))
}

func TestRedactLeavesDisjointImage(t *testing.T) {
	doc := openFixture(t, imagePDF("", strings.Repeat("\x00", 16)))

	if err := doc.Redact(0, geometry.NewRect(300, 300, 400, 400), White); err != nil {
		t.Fatal(err)
	}
	images, _ := doc.Images(0)
	if len(images) != 1 || images[0].Name != "Im1" {
		t.Fatalf("images = %+v", images)
	}
	if got := grayAt(images[0].Image, 0, 0); got != 0 {
		t.Errorf("pixel (0,0) = %d, want 0", got)
	}
}

func TestRedactDropsUndecodableImage(t *testing.T) {
	doc := openFixture(t, imagePDF("DCTDecode", "notajpeg"))

	if err := doc.Redact(0, geometry.NewRect(150, 150, 160, 160), White); err != nil {
		t.Fatalf("Redact: %v", err)
	}
	images, err := doc.Images(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 0 {
		t.Errorf("undecodable image still painted: %+v", images)
	}
	if names := resourceNames(t, doc, 0, "XObject"); len(names) != 0 {
		t.Errorf("XObject resources after redaction = %v", names)
	}

	out, err := doc.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out, []byte("notajpeg")) {
		t.Error("dropped image data still present in output")
	}
}

// rectOrigins returns the x operand of every re operation.
func rectOrigins(ops []semantic.Operation) map[float64]bool {
	out := map[float64]bool{}
	for _, op := range ops {
		if op.Operator != "re" || len(op.Operands) != 4 {
			continue
		}
		if n, ok := op.Operands[0].(semantic.NumberOperand); ok {
			out[n.Value] = true
		}
	}
	return out
}

func TestRedactRemovesEnclosedPaths(t *testing.T) {
	doc := openFixture(t, pathPDF())

	// Encloses the square at native [120 152 140 172] and crosses the bar at [130 157 230 162].
	if err := doc.Redact(0, geometry.NewRect(110, 140, 150, 180), White); err != nil {
		t.Fatalf("Redact: %v", err)
	}
	origins := rectOrigins(pageOps(t, doc, 0))
	if origins[120] {
		t.Error("enclosed path survived redaction")
	}
	if !origins[130] {
		t.Error("crossing path was removed")
	}
	if !origins[400] {
		t.Error("disjoint path was removed")
	}
	if !origins[110] {
		t.Error("fill rectangle not painted")
	}
}

func TestRedactInlinesFormXObject(t *testing.T) {
	doc := openFixture(t, formXObjectPDF())

	if got := pageText(t, doc, 0); !strings.Contains(got, "Secret") {
		t.Fatalf("fixture text = %q", got)
	}

	// Covers the S of "Secret" (native x 100..108, baseline 282) only.
	if err := doc.Redact(0, geometry.NewRect(99, 270, 105, 290), White); err != nil {
		t.Fatalf("Redact: %v", err)
	}

	check := func(t *testing.T, doc *Document) {
		t.Helper()
		got := pageText(t, doc, 0)
		if !strings.Contains(got, "Hello World") || !strings.Contains(got, "ecret") || strings.Contains(got, "Secret") {
			t.Errorf("text after redaction = %q", got)
		}
	}
	check(t, doc)

	if names := resourceNames(t, doc, 0, "XObject"); names["Fm1"] {
		t.Error("inlined form still listed in XObject resources")
	}
	fonts := resourceNames(t, doc, 0, "Font")
	if !fonts["F1"] || !fonts["I1_F1"] {
		t.Errorf("Font resources = %v, want the page font and the renamed form font", fonts)
	}
	tf := map[string]bool{}
	for _, op := range pageOps(t, doc, 0) {
		if op.Operator == "Tf" && len(op.Operands) > 0 {
			if n, ok := op.Operands[0].(semantic.NameOperand); ok {
				tf[n.Value] = true
			}
		}
	}
	if !tf["F1"] || !tf["I1_F1"] {
		t.Errorf("Tf operands = %v", tf)
	}

	out, err := doc.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out, []byte("Secret")) {
		t.Error("original form content still present in output")
	}
	check(t, openFixture(t, out))
}

func TestRedactDetachesEmptiedParentField(t *testing.T) {
	doc := openFixture(t, nestedFormPDF())

	widgets, err := doc.Widgets(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(widgets) != 2 || widgets[0].Name != "Applicant" || widgets[0].Value != "Jane Roe" {
		t.Fatalf("widgets = %+v", widgets)
	}

	if err := doc.Redact(0, geometry.NewRect(150, 175, 160, 185), White); err != nil {
		t.Fatal(err)
	}

	check := func(t *testing.T, doc *Document) {
		t.Helper()
		widgets, err := doc.Widgets(0)
		if err != nil {
			t.Fatal(err)
		}
		if len(widgets) != 1 || widgets[0].Name != "Other" || widgets[0].Value != "Keep me" {
			t.Errorf("widgets after redaction = %+v", widgets)
		}
	}
	check(t, doc)

	doc.mu.Lock()
	fields := doc.getArray(doc.getDict(doc.dict(doc.trailerEntry("Root")), "AcroForm"), "Fields")
	n := -1
	if fields != nil {
		n = len(fields.Items)
	}
	doc.mu.Unlock()
	if n != 1 {
		t.Errorf("AcroForm has %d fields, want 1", n)
	}

	out, err := doc.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out, []byte("Jane Roe")) || strings.Contains(string(out), hexOf("Jane Roe")) {
		t.Error("detached field value still present in output")
	}
	check(t, openFixture(t, out))
}
