package metrics

import (
	"math"
	"testing"
)

func TestStringWidthHelvetica(t *testing.T) {
	m := New()

	// Helvetica "a" is 556 units, space is 278.
	w, err := m.StringWidth(Helvetica, "a a", 10)
	if err != nil {
		t.Fatal(err)
	}
	want := (556 + 278 + 556) * 10.0 / 1000
	if math.Abs(w-want) > 1e-9 {
		t.Errorf("StringWidth = %g, want %g", w, want)
	}

	cw, err := m.CodeWidth(Face{Family: "courier"}, 'W')
	if err != nil {
		t.Fatal(err)
	}
	if cw != 600 {
		t.Errorf("Courier W = %g, want 600", cw)
	}
}

func TestStringWidthScalesWithSize(t *testing.T) {
	m := New()
	w10, _ := m.StringWidth(Helvetica, "John Doe", 10)
	w20, _ := m.StringWidth(Helvetica, "John Doe", 20)
	if math.Abs(w20-2*w10) > 1e-9 {
		t.Errorf("width not linear in size: %g vs %g", w10, w20)
	}
}

func TestEncodeRejectsNonWinAnsi(t *testing.T) {
	if _, err := Encode("Café €5"); err != nil {
		t.Errorf("WinAnsi text rejected: %v", err)
	}
	if _, err := Encode("日本"); err == nil {
		t.Error("expected error for CJK text")
	}
}

func TestFaceForBaseFont(t *testing.T) {
	tests := []struct {
		base string
		want string
		ok   bool
	}{
		{"Helvetica", "Helvetica", true},
		{"ABCDEF+Helvetica-Bold", "Helvetica-Bold", true},
		{"Times-Italic", "Times-Italic", true},
		{"Courier-BoldOblique", "Courier-BoldOblique", true},
		{"ArialMT", "Helvetica", true},
		{"MinionPro-Regular", "", false},
	}

	for _, tt := range tests {
		face, ok := FaceForBaseFont(tt.base)
		if ok != tt.ok {
			t.Errorf("%s: ok = %v", tt.base, ok)
			continue
		}
		if ok && face.BaseFont() != tt.want {
			t.Errorf("%s: BaseFont() = %s, want %s", tt.base, face.BaseFont(), tt.want)
		}
	}
}

func TestFaceByName(t *testing.T) {
	f, err := FaceByName("times", true)
	if err != nil || f.BaseFont() != "Times-Bold" {
		t.Errorf("FaceByName(times, bold) = %v, %v", f.BaseFont(), err)
	}
	if _, err := FaceByName("comic", false); err == nil {
		t.Error("expected error for unknown family")
	}
}
