package pdfdoc

import (
	"fmt"
	"math"

	"github.com/wudi/pdfkit/ir/raw"
	"github.com/wudi/pdfkit/ir/semantic"

	"github.com/adverant/nexus/pdfplaceholder/internal/metrics"
)

// DrawText paints a single line of text in a standard font with its baseline
// origin at the native point (x, baseline). Text outside WinAnsi fails.
func (d *Document) DrawText(page int, x, baseline float64, text string, face metrics.Face, size float64, c RGB) error {
	encoded, err := metrics.Encode(text)
	if err != nil {
		return err
	}
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return fmt.Errorf("invalid font size %v", size)
	}
	if math.IsNaN(x) || math.IsNaN(baseline) || math.IsInf(x, 0) || math.IsInf(baseline, 0) {
		return fmt.Errorf("invalid text origin (%v, %v)", x, baseline)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	st, err := d.page(page)
	if err != nil {
		return err
	}
	if st.decodeErr != nil {
		return fmt.Errorf("page %d content cannot be rewritten: %w", page, st.decodeErr)
	}
	d.own(st)
	st.wrap()

	name := d.standardFont(st, face)
	px, py := st.entry.toPDF(x, baseline)
	st.ops = append(st.ops,
		semantic.Operation{Operator: "q"},
		c.ops("rg"),
		semantic.Operation{Operator: "BT"},
		semantic.Operation{Operator: "Tf", Operands: []semantic.Operand{semantic.NameOperand{Value: name}, num(size)}},
		semantic.Operation{Operator: "Tm", Operands: nums(1, 0, 0, 1, px, py)},
		semantic.Operation{Operator: "Tj", Operands: []semantic.Operand{semantic.StringOperand{Value: encoded}}},
		semantic.Operation{Operator: "ET"},
		semantic.Operation{Operator: "Q"},
	)
	st.dirty = true
	return nil
}

// standardFont returns the page resource name of a WinAnsi standard font,
// adding the font dictionary on first use.
func (d *Document) standardFont(st *pageState, face metrics.Face) string {
	base := face.BaseFont()
	if name, ok := st.stdFonts[base]; ok {
		return name
	}
	if d.stdFontRefs == nil {
		d.stdFontRefs = map[string]raw.RefObj{}
	}
	ref, ok := d.stdFontRefs[base]
	if !ok {
		dict := raw.Dict()
		dict.Set(raw.NameLiteral("Type"), raw.NameLiteral("Font"))
		dict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Type1"))
		dict.Set(raw.NameLiteral("BaseFont"), raw.NameLiteral(base))
		if face.Family != "symbol" && face.Family != "zapfdingbats" {
			dict.Set(raw.NameLiteral("Encoding"), raw.NameLiteral("WinAnsiEncoding"))
		}
		ref = d.newObject(dict)
		d.stdFontRefs[base] = ref
	}

	fonts := d.sub(st, "Font")
	name := uniqueName(fonts, "PHF")
	fonts.KV[name] = ref
	if st.stdFonts == nil {
		st.stdFonts = map[string]string{}
	}
	st.stdFonts[base] = name
	return name
}
