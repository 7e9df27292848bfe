package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/adverant/nexus/pdfplaceholder/internal/config"
	"github.com/adverant/nexus/pdfplaceholder/internal/metrics"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
	"github.com/adverant/nexus/pdfplaceholder/internal/pdfdoc"
)

type style struct {
	face       metrics.Face
	color      pdfdoc.RGB
	background pdfdoc.RGB
	padding    float64
	size       float64 // 0 when the placeholder does not set one
}

func rgb(c config.Color) pdfdoc.RGB {
	return pdfdoc.RGB{R: c.R, G: c.G, B: c.B}
}

// CheckStyle reports whether s can be rendered with this generator's policy.
func (g *Generator) CheckStyle(s *model.PlaceholderStyle) error {
	_, err := g.resolveStyle(s)
	return err
}

// resolveStyle merges a placeholder style over the policy.
func (g *Generator) resolveStyle(s *model.PlaceholderStyle) (style, error) {
	if s == nil {
		s = &model.PlaceholderStyle{}
	}

	name := s.FontName
	if name == "" {
		name = g.policy.FontName
	}
	var bold bool
	switch strings.ToLower(s.FontWeight) {
	case "", "normal":
	case "bold":
		bold = true
	default:
		return style{}, fmt.Errorf("unsupported font weight %q", s.FontWeight)
	}
	face, err := metrics.FaceByName(name, bold)
	if err != nil {
		return style{}, err
	}

	pick := func(v, fallback string) (pdfdoc.RGB, error) {
		if v == "" {
			v = fallback
		}
		c, err := config.ParseColor(v)
		return rgb(c), err
	}
	fg, err := pick(s.Color, g.policy.TextColor)
	if err != nil {
		return style{}, err
	}
	bg, err := pick(s.BackgroundColor, g.policy.BackgroundColor)
	if err != nil {
		return style{}, err
	}

	padding := g.policy.Padding
	if s.Padding > 0 {
		padding = s.Padding
	}
	if s.FontSize < 0 || math.IsNaN(s.FontSize) {
		return style{}, fmt.Errorf("invalid font size %v", s.FontSize)
	}

	return style{face: face, color: fg, background: bg, padding: padding, size: s.FontSize}, nil
}

type placedLine struct {
	text     string
	x        float64
	baseline float64
	size     float64
	err      error
}

// layout sizes and positions each replacement line. Line i reuses stored line
// i's baseline and size when present; later lines continue below the previous
// one at the policy's line spacing.
func (g *Generator) layout(ph model.Placeholder, st style, texts []string) []placedLine {
	p := g.policy
	avail := ph.Rect.Width() - 2*st.padding
	x := ph.Rect.X0 + st.padding

	lines := make([]placedLine, 0, len(texts))
	for i, text := range texts {
		var stored *model.LineInfo
		if i < len(ph.Lines) && ph.Lines[i].Size > 0 {
			stored = &ph.Lines[i]
		}

		size := p.DefaultFontSize
		switch {
		case stored != nil:
			size = stored.Size
		case i > 0:
			size = lines[i-1].size
		case st.size > 0:
			size = st.size
		}
		size = clamp(size, p.MinFontSize, p.MaxFontSize)

		ln := placedLine{text: text, x: x}
		if strings.TrimSpace(text) == "" {
			// Keeps the slot so following lines stay in place.
			ln.size = size
			ln.baseline = g.baselineFor(ph, st, stored, lines, size, len(texts))
			ln.err = errSkip
			lines = append(lines, ln)
			continue
		}

		ln.size, ln.err = g.fit(st.face, text, size, avail)
		ln.baseline = g.baselineFor(ph, st, stored, lines, ln.size, len(texts))
		if math.IsNaN(ln.baseline) || math.IsInf(ln.baseline, 0) {
			ln.err = fmt.Errorf("non-finite baseline for %q", text)
		}
		lines = append(lines, ln)
	}

	out := lines[:0]
	for _, ln := range lines {
		if ln.err != errSkip {
			out = append(out, ln)
		}
	}
	return out
}

var errSkip = fmt.Errorf("blank line")

func (g *Generator) baselineFor(ph model.Placeholder, st style, stored *model.LineInfo, prev []placedLine, size float64, count int) float64 {
	if stored != nil {
		return stored.Baseline
	}
	if n := len(prev); n > 0 {
		return prev[n-1].baseline + g.policy.LineSpacing*size
	}

	// Centre the block of lines vertically in the rect.
	ascent := st.face.Ascent() * size
	block := float64(count-1) * g.policy.LineSpacing * size
	h := ph.Rect.Height()
	if g.policy.Centering == config.CenterBox {
		descent := -st.face.Descent() * size
		return ph.Rect.Y0 + (h-block+ascent-descent)/2
	}
	return ph.Rect.Y0 + (h-block+ascent)/2
}

// fit shrinks size in policy steps until text fits avail or the minimum is
// reached. Text that still overflows is drawn anyway.
func (g *Generator) fit(face metrics.Face, text string, size, avail float64) (float64, error) {
	p := g.policy
	width, err := g.measure.StringWidth(face, text, size)
	if err != nil {
		return size, err
	}
	for step := 0; step < p.MaxShrinkSteps && width > avail && size > p.MinFontSize; step++ {
		size = math.Max(size-p.ShrinkStep, p.MinFontSize)
		if width, err = g.measure.StringWidth(face, text, size); err != nil {
			return size, err
		}
	}
	if math.IsNaN(width) || math.IsInf(width, 0) {
		return size, fmt.Errorf("non-finite width for %q", text)
	}
	return size, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
