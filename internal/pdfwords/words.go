// Package pdfwords extracts positioned words with github.com/ledongthuc/pdf.
//
// It is a second, independent reader of the document used by the clustering
// fallback: when the main content interpreter under-selects, this engine's
// character placement often still covers the rect.
package pdfwords

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
)

// Word is a run of adjacent non-space characters on one baseline, in page-native units.
type Word struct {
	Text     string
	Box      geometry.Rect
	Baseline float64
	Size     float64
}

// Approximate vertical extent of a glyph relative to its font size, used
// because this engine reports only the baseline origin of each character.
const (
	ascentRatio  = 0.8
	descentRatio = 0.2
)

// Reader holds a parsed document for repeated page queries.
type Reader struct {
	r *pdf.Reader
}

// NewReader parses data. The underlying library panics on some malformed
// files; those panics are returned as errors.
func NewReader(data []byte) (rd *Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			rd, err = nil, fmt.Errorf("word engine cannot read document: %v", p)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("word engine cannot read document: %w", err)
	}
	return &Reader{r: r}, nil
}

// NumPage returns the page count.
func (rd *Reader) NumPage() int {
	return rd.r.NumPage()
}

// Words returns the words of a 0-based page in reading order.
func (rd *Reader) Words(page int) (words []Word, err error) {
	if page < 0 || page >= rd.r.NumPage() {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	defer func() {
		if p := recover(); p != nil {
			words, err = nil, fmt.Errorf("word engine failed on page %d: %v", page, p)
		}
	}()

	p := rd.r.Page(page + 1)
	if p.V.IsNull() {
		return nil, fmt.Errorf("page %d has no dictionary", page)
	}
	llx, ury := mediaBoxOrigin(p.V)
	return buildWords(p.Content().Text, llx, ury), nil
}

// Within returns the words of a page whose boxes intersect r.
func (rd *Reader) Within(page int, r geometry.Rect) ([]Word, error) {
	all, err := rd.Words(page)
	if err != nil {
		return nil, err
	}
	var out []Word
	for _, w := range all {
		if w.Box.Intersects(r) {
			out = append(out, w)
		}
	}
	return out, nil
}

// mediaBoxOrigin returns the MediaBox's left edge and top edge in PDF space,
// following /Parent for inherited boxes. A missing box is treated as letter.
func mediaBoxOrigin(page pdf.Value) (llx, ury float64) {
	for v, depth := page, 0; !v.IsNull() && depth < 32; v, depth = v.Key("Parent"), depth+1 {
		box := v.Key("MediaBox")
		if box.Kind() != pdf.Array || box.Len() < 4 {
			continue
		}
		x0, y0 := box.Index(0).Float64(), box.Index(1).Float64()
		x1, y1 := box.Index(2).Float64(), box.Index(3).Float64()
		return math.Min(x0, x1), math.Max(y0, y1)
	}
	return 0, 792
}

type char struct {
	s          string
	x, y, w, h float64
}

// buildWords merges characters into words. Characters join when they share a
// baseline and the horizontal gap is under a fifth of the font size.
func buildWords(texts []pdf.Text, llx, ury float64) []Word {
	chars := make([]char, 0, len(texts))
	for _, t := range texts {
		if t.S == "" || t.FontSize <= 0 {
			continue
		}
		chars = append(chars, char{
			s: t.S,
			x: t.X - llx,
			y: ury - t.Y,
			w: t.W,
			h: t.FontSize,
		})
	}

	sort.SliceStable(chars, func(i, j int) bool {
		a, b := chars[i], chars[j]
		if a.y != b.y {
			return a.y < b.y
		}
		return a.x < b.x
	})

	var (
		words []Word
		cur   *Word
		end   float64
	)
	flush := func() {
		if cur != nil && strings.TrimSpace(cur.Text) != "" {
			words = append(words, *cur)
		}
		cur = nil
	}
	for _, c := range chars {
		if isBlank(c.s) {
			flush()
			continue
		}
		box := geometry.NewRect(c.x, c.y-ascentRatio*c.h, c.x+c.w, c.y+descentRatio*c.h)
		if cur != nil && math.Abs(c.y-cur.Baseline) <= 0.5*cur.Size && c.x-end <= 0.2*cur.Size && c.x >= end-0.5*cur.Size {
			cur.Text += c.s
			cur.Box = cur.Box.Union(box)
			end = c.x + c.w
			continue
		}
		flush()
		cur = &Word{Text: c.s, Box: box, Baseline: c.y, Size: c.h}
		end = c.x + c.w
	}
	flush()
	return words
}

func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
