package detect

import (
	"context"
	"strings"
	"unicode"

	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
	"github.com/adverant/nexus/pdfplaceholder/internal/pdfdoc"
	"github.com/adverant/nexus/pdfplaceholder/internal/pdfwords"
)

const (
	// GlyphOverlap is the share of a glyph box that must lie inside the query
	// rect for the glyph to count. It excludes text merely touching the edge.
	GlyphOverlap = 0.5

	// ClusterMargin widens the rect for the clustering fallback.
	ClusterMargin = 2.0

	// DefaultOCRScale is the raster resolution multiplier over native units.
	DefaultOCRScale = 3.0
)

// FormField reports the value of a widget whose rect covers the query rect.
type FormField struct{}

func (FormField) Source() model.DetectionSource { return model.SourceFormField }

func (FormField) Detect(_ context.Context, q Query) (Outcome, error) {
	widgets, err := q.Doc.Widgets(q.Page)
	if err != nil {
		return Outcome{}, err
	}
	for _, w := range widgets {
		if w.Rect.Contains(q.Rect) && w.HasTextValue() {
			return Outcome{Text: w.Value}, nil
		}
	}
	return Outcome{}, nil
}

// PreciseLayout reads the page's text runs clipped to the rect at glyph granularity.
type PreciseLayout struct{}

func (PreciseLayout) Source() model.DetectionSource { return model.SourcePreciseLayout }

func (PreciseLayout) Detect(_ context.Context, q Query) (Outcome, error) {
	runs, err := q.Doc.TextRuns(q.Page)
	if err != nil {
		return Outcome{}, err
	}
	var frags []fragment
	for _, run := range runs {
		if f, ok := clipRun(run, q.Rect); ok {
			frags = append(frags, f)
		}
	}
	lines := buildLines(frags)
	return Outcome{Text: joinLines(lines), Lines: lines}, nil
}

// clipRun keeps the glyphs of run lying mostly inside r.
func clipRun(run pdfdoc.TextRun, r geometry.Rect) (fragment, bool) {
	var (
		b     strings.Builder
		kept  int
		first geometry.Rect
		last  geometry.Rect
	)
	for _, g := range run.Glyphs {
		if !glyphInside(g.Box, r) {
			continue
		}
		if kept == 0 {
			first = g.Box
		}
		last = g.Box
		b.WriteString(g.Text)
		kept++
	}
	if kept == 0 || run.Size <= 0 {
		return fragment{}, false
	}
	return fragment{
		text:     b.String(),
		x0:       first.X0,
		x1:       last.X1,
		baseline: run.Baseline,
		size:     run.Size,
		chars:    kept,
	}, true
}

func glyphInside(box, r geometry.Rect) bool {
	if box.Area() == 0 {
		c := box.Center()
		return c.X >= r.X0 && c.X <= r.X1 && c.Y >= r.Y0 && c.Y <= r.Y1
	}
	return box.OverlapFraction(r) >= GlyphOverlap
}

// WordClustering groups individual words around a slightly widened rect.
type WordClustering struct {
	Margin float64
}

func (WordClustering) Source() model.DetectionSource { return model.SourceWordClustering }

func (s WordClustering) Detect(_ context.Context, q Query) (Outcome, error) {
	area := q.Rect.Expand(s.Margin)

	var (
		words []pdfwords.Word
		read  bool
	)
	if q.Words != nil {
		found, err := q.Words.Within(q.Page, area)
		if err == nil {
			words, read = found, true
		}
	}
	if !read {
		runs, err := q.Doc.TextRuns(q.Page)
		if err != nil {
			return Outcome{}, err
		}
		for _, w := range wordsFromRuns(runs) {
			if w.Box.Intersects(area) {
				words = append(words, w)
			}
		}
	}

	frags := make([]fragment, 0, len(words))
	for _, w := range words {
		if w.Size <= 0 || strings.TrimSpace(w.Text) == "" {
			continue
		}
		frags = append(frags, fragment{
			text:     w.Text,
			x0:       w.Box.X0,
			x1:       w.Box.X1,
			baseline: w.Baseline,
			size:     w.Size,
			chars:    len([]rune(w.Text)),
		})
	}
	lines := buildLines(frags)
	return Outcome{Text: joinLines(lines), Lines: lines}, nil
}

// wordsFromRuns splits layout runs on whitespace. It stands in for the word
// engine when that engine cannot read the document.
func wordsFromRuns(runs []pdfdoc.TextRun) []pdfwords.Word {
	var words []pdfwords.Word
	for _, run := range runs {
		var cur *pdfwords.Word
		flush := func() {
			if cur != nil {
				words = append(words, *cur)
				cur = nil
			}
		}
		for _, g := range run.Glyphs {
			if strings.IndexFunc(g.Text, func(r rune) bool { return !unicode.IsSpace(r) }) < 0 {
				flush()
				continue
			}
			if cur == nil {
				cur = &pdfwords.Word{Box: g.Box, Baseline: run.Baseline, Size: run.Size}
			}
			cur.Text += g.Text
			cur.Box = cur.Box.Union(g.Box)
		}
		flush()
	}
	return words
}

// OCR rasterizes the rect and hands it to a recognizer. Failures yield no text.
type OCR struct {
	Recognizer Recognizer
	Scale      float64
}

func (OCR) Source() model.DetectionSource { return model.SourceOCR }

func (s OCR) Detect(ctx context.Context, q Query) (Outcome, error) {
	img, err := q.Doc.RenderRegion(q.Page, q.Rect, s.Scale)
	if err != nil {
		return Outcome{}, err
	}
	text, err := s.Recognizer.Recognize(ctx, img)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Text: strings.TrimSpace(text)}, nil
}
