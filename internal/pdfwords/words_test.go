package pdfwords

import (
	"testing"

	"github.com/ledongthuc/pdf"

	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
)

func helv(s string, x, y float64) pdf.Text {
	return pdf.Text{Font: "Helvetica", FontSize: 10, X: x, Y: y, W: 5, S: s}
}

func TestBuildWords(t *testing.T) {
	texts := []pdf.Text{
		helv("H", 100, 700), helv("i", 105, 700), helv(" ", 110, 700),
		helv("y", 115, 700), helv("o", 120, 700),
		helv("N", 100, 680),
	}
	words := buildWords(texts, 0, 792)

	want := []string{"Hi", "yo", "N"}
	if len(words) != len(want) {
		t.Fatalf("got %d words: %+v", len(words), words)
	}
	for i, w := range want {
		if words[i].Text != w {
			t.Errorf("word %d = %q, want %q", i, words[i].Text, w)
		}
	}

	hi := words[0]
	if hi.Baseline != 92 || hi.Size != 10 {
		t.Errorf("baseline/size = %v/%v", hi.Baseline, hi.Size)
	}
	if want := geometry.NewRect(100, 84, 110, 94); hi.Box != want {
		t.Errorf("box = %v, want %v", hi.Box, want)
	}
}

func TestBuildWordsSplitsOnGap(t *testing.T) {
	words := buildWords([]pdf.Text{helv("a", 100, 700), helv("b", 130, 700)}, 0, 792)
	if len(words) != 2 {
		t.Fatalf("got %+v, want two words", words)
	}
}

func TestBuildWordsOffsetMediaBox(t *testing.T) {
	words := buildWords([]pdf.Text{helv("a", 150, 700)}, 50, 800)
	if len(words) != 1 || words[0].Box.X0 != 100 || words[0].Baseline != 100 {
		t.Errorf("words = %+v", words)
	}
}

func TestNewReaderRejectsGarbage(t *testing.T) {
	if _, err := NewReader([]byte("not a pdf")); err == nil {
		t.Error("expected error")
	}
}
