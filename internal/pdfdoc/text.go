package pdfdoc

import (
	"strings"

	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
)

// Glyph is one character of a text run.
type Glyph struct {
	Text string
	Box  geometry.Rect
}

// TextRun is the text painted by one text-show operation (or one segment of
// it when a TJ adjustment opens a word gap). Coordinates are page-native.
type TextRun struct {
	Text     string
	Glyphs   []Glyph
	Box      geometry.Rect
	X        float64 // origin of the first glyph
	Baseline float64
	Size     float64
}

// gapThreshold is the TJ adjustment (thousandths of an em) treated as a word break.
const gapThreshold = 200

// TextRuns returns the page's text runs in content order, including text painted by form XObjects.
func (d *Document) TextRuns(page int) ([]TextRun, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, err := d.page(page)
	if err != nil {
		return nil, err
	}

	var runs []TextRun
	for _, it := range d.interpret(st, true) {
		if it.kind != itemText || len(it.show.glyphs) == 0 {
			continue
		}
		runs = append(runs, splitRuns(st.entry, it.show)...)
	}
	return runs, nil
}

func splitRuns(e pageEntry, si *showItem) []TextRun {
	var (
		runs []TextRun
		cur  *TextRun
		text strings.Builder
	)
	flush := func() {
		if cur != nil && len(cur.Glyphs) > 0 {
			cur.Text = text.String()
			runs = append(runs, *cur)
		}
		cur = nil
		text.Reset()
	}

	for _, el := range si.elems {
		if el.isAdjust {
			if -el.adjust > gapThreshold {
				flush()
			}
			continue
		}
		g := si.glyphs[el.glyph]
		if cur == nil {
			x, y := e.toNative(g.origin.X, g.origin.Y)
			cur = &TextRun{X: x, Baseline: y, Size: si.size}
		}
		cur.Glyphs = append(cur.Glyphs, Glyph{Text: g.text, Box: g.box})
		cur.Box = cur.Box.Union(g.box)
		text.WriteString(g.text)
	}
	flush()
	return runs
}
