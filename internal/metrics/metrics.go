// Package metrics measures text in the PDF standard 14 fonts using the fpdf core font tables.
package metrics

import (
	"fmt"
	"strings"
	"sync"

	"codeberg.org/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"
)

// Face identifies a standard font face.
type Face struct {
	Family string // helvetica, times, courier, symbol, zapfdingbats
	Bold   bool
	Italic bool
}

// Helvetica is the default face for redrawn text.
var Helvetica = Face{Family: "helvetica"}

// FaceByName resolves the short names accepted in placeholder styles ("helv", "times", "courier").
func FaceByName(name string, bold bool) (Face, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "helv", "helvetica", "arial", "sans":
		return Face{Family: "helvetica", Bold: bold}, nil
	case "times", "tiro", "times-roman", "serif":
		return Face{Family: "times", Bold: bold}, nil
	case "courier", "cour", "mono":
		return Face{Family: "courier", Bold: bold}, nil
	}
	return Face{}, fmt.Errorf("unsupported font %q", name)
}

// FaceForBaseFont maps a PDF /BaseFont name (subset prefix allowed) to a standard face.
func FaceForBaseFont(baseFont string) (Face, bool) {
	name := baseFont
	if i := strings.IndexByte(name, '+'); i == 6 {
		name = name[i+1:]
	}
	lower := strings.ToLower(name)
	bold := strings.Contains(lower, "bold")
	italic := strings.Contains(lower, "italic") || strings.Contains(lower, "oblique")

	switch {
	case strings.HasPrefix(lower, "helvetica"), strings.HasPrefix(lower, "arial"):
		return Face{Family: "helvetica", Bold: bold, Italic: italic}, true
	case strings.HasPrefix(lower, "times"):
		return Face{Family: "times", Bold: bold, Italic: italic}, true
	case strings.HasPrefix(lower, "courier"):
		return Face{Family: "courier", Bold: bold, Italic: italic}, true
	case lower == "symbol":
		return Face{Family: "symbol"}, true
	case lower == "zapfdingbats":
		return Face{Family: "zapfdingbats"}, true
	}
	return Face{}, false
}

// BaseFont returns the standard 14 PostScript name of the face.
func (f Face) BaseFont() string {
	switch f.Family {
	case "symbol":
		return "Symbol"
	case "zapfdingbats":
		return "ZapfDingbats"
	case "times":
		switch {
		case f.Bold && f.Italic:
			return "Times-BoldItalic"
		case f.Bold:
			return "Times-Bold"
		case f.Italic:
			return "Times-Italic"
		}
		return "Times-Roman"
	}
	base := "Helvetica"
	if f.Family == "courier" {
		base = "Courier"
	}
	switch {
	case f.Bold && f.Italic:
		return base + "-BoldOblique"
	case f.Bold:
		return base + "-Bold"
	case f.Italic:
		return base + "-Oblique"
	}
	return base
}

func (f Face) style() string {
	s := ""
	if f.Bold {
		s += "B"
	}
	if f.Italic {
		s += "I"
	}
	return s
}

// Ascent is the ascender height as a fraction of the font size.
func (f Face) Ascent() float64 {
	switch f.Family {
	case "times":
		return 0.683
	case "courier":
		return 0.629
	case "symbol", "zapfdingbats":
		return 0.7
	}
	return 0.718
}

// Descent is the (negative) descender depth as a fraction of the font size.
func (f Face) Descent() float64 {
	switch f.Family {
	case "times":
		return -0.217
	case "courier":
		return -0.157
	case "symbol", "zapfdingbats":
		return -0.2
	}
	return -0.207
}

// Metrics measures strings. fpdf documents are not safe for concurrent use,
// so calls are serialized.
type Metrics struct {
	mu   sync.Mutex
	pdf  *fpdf.Fpdf
	face Face
	set  bool
}

// New creates a Metrics backed by an unused fpdf document.
func New() *Metrics {
	return &Metrics{pdf: fpdf.New("P", "pt", "A4", "")}
}

func (m *Metrics) selectFace(face Face) error {
	if m.set && m.face == face {
		return nil
	}
	m.pdf.SetFont(face.Family, face.style(), 10)
	if err := m.pdf.Error(); err != nil {
		m.pdf.ClearError()
		return fmt.Errorf("select font %s: %w", face.BaseFont(), err)
	}
	m.face, m.set = face, true
	return nil
}

// CodeWidth returns the advance of a single-byte WinAnsi code in glyph units (1/1000 em).
func (m *Metrics) CodeWidth(face Face, code byte) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.selectFace(face); err != nil {
		return 0, err
	}
	return float64(m.pdf.GetStringSymbolWidth(string([]byte{code}))), nil
}

// Encode converts text to WinAnsi bytes, failing on characters the standard fonts cannot show.
func Encode(text string) ([]byte, error) {
	out, err := charmap.Windows1252.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("text %q is not representable in WinAnsi: %w", text, err)
	}
	return out, nil
}

// StringWidth returns the width of text at size, in points.
func (m *Metrics) StringWidth(face Face, text string, size float64) (float64, error) {
	encoded, err := Encode(text)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.selectFace(face); err != nil {
		return 0, err
	}
	units := m.pdf.GetStringSymbolWidth(string(encoded))
	return float64(units) * size / 1000, nil
}
