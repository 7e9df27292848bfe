package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/wudi/pdfkit/ir/semantic"
)

// buildPDF assembles numbered objects (1-based, object 1 is the catalog) with a valid xref table.
func buildPDF(objs ...string) []byte {
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

func stream(content string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)
}

// helloPDF is a letter page showing "Hello World" in 12pt Helvetica at (72, 700).
func helloPDF() []byte {
	return buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		stream("BT /F1 12 Tf 72 700 Td (Hello World) Tj ET"),
	)
}

// formPDF adds a filled text field widget at [100 600 300 620].
func formPDF() []byte {
	return buildPDF(
		"<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [6 0 R] >> >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R /Annots [6 0 R] >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		stream("BT /F1 12 Tf 72 700 Td (Hello World) Tj ET"),
		"<< /Type /Annot /Subtype /Widget /FT /Tx /T (Name) /V (John Doe) /Rect [100 600 300 620] /P 3 0 R >>",
	)
}

func streamWith(dict, content string) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(content), content)
}

// imagePDF paints a 4x4 black DeviceGray image XObject over [100 600 200 700].
// A non-empty filter marks the image data as encoded with it.
func imagePDF(filter, data string) []byte {
	dict := "/Type /XObject /Subtype /Image /Width 4 /Height 4 /ColorSpace /DeviceGray /BitsPerComponent 8"
	if filter != "" {
		dict += " /Filter /" + filter
	}
	return buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /XObject << /Im1 4 0 R >> >> /Contents 5 0 R >>",
		streamWith(dict, data),
		stream("q 100 0 0 100 100 600 cm /Im1 Do Q"),
	)
}

// pathPDF fills three rectangles: [120 620 140 640], a bar [130 630 230 635]
// and [400 400 450 450].
func pathPDF() []byte {
	return buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R >>",
		stream("0 0 1 rg 120 620 20 20 re f 130 630 100 5 re f 400 400 50 50 re f"),
	)
}

// formXObjectPDF extends helloPDF with a form XObject drawing "Secret" at
// (100, 510). The form names its own font F1, clashing with the page's.
func formXObjectPDF() []byte {
	return buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> /XObject << /Fm1 6 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		stream("BT /F1 12 Tf 72 700 Td (Hello World) Tj ET /Fm1 Do"),
		streamWith("/Type /XObject /Subtype /Form /BBox [0 0 200 50] /Matrix [1 0 0 1 100 500] /Resources << /Font << /F1 7 0 R >> >>",
			"BT /F1 12 Tf 0 10 Td (Secret) Tj ET"),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
}

// nestedFormPDF has a kid widget at [100 600 300 620] whose value sits on its
// parent field "Applicant", plus a standalone field "Other" at [100 300 300 320].
func nestedFormPDF() []byte {
	return buildPDF(
		"<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [5 0 R 6 0 R] >> >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 7 0 R /Annots [4 0 R 6 0 R] >>",
		"<< /Type /Annot /Subtype /Widget /Parent 5 0 R /Rect [100 600 300 620] /P 3 0 R >>",
		"<< /FT /Tx /T (Applicant) /V (Jane Roe) /Kids [4 0 R] >>",
		"<< /Type /Annot /Subtype /Widget /FT /Tx /T (Other) /V (Keep me) /Rect [100 300 300 320] /P 3 0 R >>",
		stream(""),
	)
}

// buttonPDF has a checked check box "Agree" and an unchecked one "Opt".
func buttonPDF() []byte {
	return buildPDF(
		"<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [5 0 R 6 0 R] >> >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Annots [5 0 R 6 0 R] >>",
		stream(""),
		"<< /Type /Annot /Subtype /Widget /FT /Btn /T (Agree) /V /Yes /AS /Yes /Rect [100 600 112 612] /P 3 0 R >>",
		"<< /Type /Annot /Subtype /Widget /FT /Btn /T (Opt) /V /Off /AS /Off /Rect [100 500 112 512] /P 3 0 R >>",
	)
}

func openFixture(t *testing.T, data []byte) *Document {
	t.Helper()
	doc, err := Open(context.Background(), data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { doc.Close() })
	return doc
}

func pageText(t *testing.T, doc *Document, page int) string {
	t.Helper()
	runs, err := doc.TextRuns(page)
	if err != nil {
		t.Fatalf("TextRuns: %v", err)
	}
	var out string
	for _, r := range runs {
		out += r.Text
	}
	return out
}

// pageOps returns the current content operations of a page.
func pageOps(t *testing.T, doc *Document, page int) []semantic.Operation {
	t.Helper()
	doc.mu.Lock()
	defer doc.mu.Unlock()
	st, err := doc.page(page)
	if err != nil {
		t.Fatalf("page %d: %v", page, err)
	}
	return st.ops
}

// resourceNames lists the names in one resource category of a page.
func resourceNames(t *testing.T, doc *Document, page int, category string) map[string]bool {
	t.Helper()
	doc.mu.Lock()
	defer doc.mu.Unlock()
	st, err := doc.page(page)
	if err != nil {
		t.Fatalf("page %d: %v", page, err)
	}
	out := map[string]bool{}
	if sub := doc.getDict(st.resources, category); sub != nil {
		for name := range sub.KV {
			out[name] = true
		}
	}
	return out
}
