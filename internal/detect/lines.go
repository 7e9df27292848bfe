package detect

import (
	"math"
	"sort"
	"strings"

	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
)

// spaceFraction of the average character width is the horizontal gap that
// separates two fragments with a space.
const spaceFraction = 0.25

// fragment is a positioned piece of text on one baseline: a clipped run or a word.
type fragment struct {
	text     string
	x0, x1   float64
	baseline float64
	size     float64
	chars    int
}

type line struct {
	frags []fragment
}

// groupLines clusters fragments into lines by baseline proximity and orders
// them top to bottom. A fragment joins a line when its baseline is within
// its own font size of the line's first fragment.
func groupLines(frags []fragment) []line {
	sorted := append([]fragment(nil), frags...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].baseline < sorted[j].baseline })

	var lines []line
	for _, f := range sorted {
		placed := false
		for i := range lines {
			if math.Abs(lines[i].frags[0].baseline-f.baseline) < f.size {
				lines[i].frags = append(lines[i].frags, f)
				placed = true
				break
			}
		}
		if !placed {
			lines = append(lines, line{frags: []fragment{f}})
		}
	}
	return lines
}

// info joins the line's fragments left to right and takes baseline and size
// from the fragment with the most characters.
func (l line) info() model.LineInfo {
	frags := append([]fragment(nil), l.frags...)
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].x0 < frags[j].x0 })

	var width float64
	chars := 0
	dominant := frags[0]
	for _, f := range frags {
		width += f.x1 - f.x0
		chars += f.chars
		if f.chars > dominant.chars {
			dominant = f
		}
	}
	avg := 0.0
	if chars > 0 {
		avg = width / float64(chars)
	}

	var b strings.Builder
	for i, f := range frags {
		if i > 0 {
			prev := frags[i-1]
			gap := f.x0 - prev.x1
			if gap > spaceFraction*avg && !endsWithSpace(b.String()) && !startsWithSpace(f.text) {
				b.WriteByte(' ')
			}
		}
		b.WriteString(f.text)
	}

	return model.LineInfo{
		Text:     strings.TrimSpace(b.String()),
		Baseline: geometry.Round2(dominant.baseline),
		Size:     geometry.Round2(dominant.size),
	}
}

// buildLines turns fragments into ordered, non-blank lines.
func buildLines(frags []fragment) []model.LineInfo {
	var out []model.LineInfo
	for _, l := range groupLines(frags) {
		li := l.info()
		if li.Text == "" {
			continue
		}
		out = append(out, li)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Baseline < out[j].Baseline })
	return out
}

func joinLines(lines []model.LineInfo) string {
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	return strings.Join(texts, "\n")
}

func endsWithSpace(s string) bool {
	return s != "" && s[len(s)-1] == ' '
}

func startsWithSpace(s string) bool {
	return s != "" && s[0] == ' '
}
