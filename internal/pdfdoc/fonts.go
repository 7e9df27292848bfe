package pdfdoc

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/wudi/pdfkit/ir/raw"
	"github.com/wudi/pdfkit/scanner"
	"golang.org/x/text/encoding/charmap"

	"github.com/adverant/nexus/pdfplaceholder/internal/metrics"
)

// font holds what text extraction needs from a font resource: how to split
// a string into character codes, what each code means, and how wide it is.
type font struct {
	baseFont   string
	subtype    string
	codeLen    int                // 1 for simple fonts, 2 for composite fonts
	toUnicode  map[uint32]string  // from the ToUnicode CMap
	encoding   *[256]rune         // simple-font fallback when ToUnicode misses
	widths     map[uint32]float64 // glyph units (1/1000 em)
	dflt       float64            // width for codes absent from widths
	ascent     float64            // fraction of size
	descent    float64            // fraction of size, negative
	std        *metrics.Face      // standard-14 face when widths come from core metrics
	widthScale float64            // Type3 FontMatrix scale, 1 otherwise
}

// code is one character code read from a string operand.
type code struct {
	value uint32
	bytes []byte
}

func (f *font) split(s []byte) []code {
	n := f.codeLen
	if n < 1 {
		n = 1
	}
	out := make([]code, 0, len(s)/n)
	for i := 0; i < len(s); i += n {
		end := i + n
		if end > len(s) {
			end = len(s)
		}
		var v uint32
		for _, b := range s[i:end] {
			v = v<<8 | uint32(b)
		}
		out = append(out, code{value: v, bytes: s[i:end]})
	}
	return out
}

func (f *font) text(c code) string {
	if s, ok := f.toUnicode[c.value]; ok {
		return s
	}
	if f.codeLen == 1 && f.encoding != nil && c.value < 256 {
		if r := f.encoding[c.value]; r != 0 {
			return string(r)
		}
	}
	if f.codeLen == 1 && c.value < 256 {
		return string(charmap.Windows1252.DecodeByte(byte(c.value)))
	}
	return "�"
}

// width returns the advance of c in glyph units.
func (f *font) width(c code, m *metrics.Metrics) float64 {
	if w, ok := f.widths[c.value]; ok {
		return w * f.widthScale
	}
	if f.std != nil && m != nil && c.value < 256 {
		if w, err := m.CodeWidth(*f.std, byte(c.value)); err == nil {
			return w
		}
	}
	return f.dflt * f.widthScale
}

// isSpace reports whether word spacing (Tw) applies to c.
func (f *font) isSpace(c code) bool {
	return len(c.bytes) == 1 && c.value == 32
}

var defaultFont = &font{codeLen: 1, dflt: 500, ascent: 0.8, descent: -0.2, widthScale: 1}

// loadFont builds a font from its resource dictionary.
func (d *Document) loadFont(obj raw.Object) *font {
	dict := d.dict(obj)
	if dict == nil {
		return defaultFont
	}

	f := &font{
		baseFont:   d.getName(dict, "BaseFont"),
		subtype:    d.getName(dict, "Subtype"),
		codeLen:    1,
		widths:     map[uint32]float64{},
		ascent:     0.8,
		descent:    -0.2,
		widthScale: 1,
	}

	descriptor := d.getDict(dict, "FontDescriptor")

	if f.subtype == "Type0" {
		f.codeLen = 2
		f.dflt = 1000
		if desc := d.getArray(dict, "DescendantFonts"); desc != nil && len(desc.Items) > 0 {
			cid := d.dict(desc.Items[0])
			if dw, ok := d.getNumber(cid, "DW"); ok {
				f.dflt = dw
			}
			d.loadCIDWidths(f, d.getArray(cid, "W"))
			descriptor = d.getDict(cid, "FontDescriptor")
		}
	} else {
		first, _ := d.getNumber(dict, "FirstChar")
		for i, w := range d.numbers(dict.KV["Widths"]) {
			f.widths[uint32(int(first)+i)] = w
		}
		if mw, ok := d.getNumber(descriptor, "MissingWidth"); ok {
			f.dflt = mw
		}
		if len(f.widths) == 0 {
			if face, ok := metrics.FaceForBaseFont(f.baseFont); ok {
				f.std = &face
				f.ascent, f.descent = face.Ascent(), face.Descent()
			} else if f.dflt == 0 {
				f.dflt = 500
			}
		}
		f.encoding = d.simpleEncoding(dict)
	}

	if f.subtype == "Type3" {
		if fm := d.numbers(dict.KV["FontMatrix"]); len(fm) == 6 && fm[0] != 0 {
			f.widthScale = fm[0] * 1000
		}
	}

	if asc, ok := d.getNumber(descriptor, "Ascent"); ok && asc > 0 {
		f.ascent = asc / 1000
	}
	if desc, ok := d.getNumber(descriptor, "Descent"); ok && desc < 0 {
		f.descent = desc / 1000
	}

	if tu, ok := dict.KV["ToUnicode"]; ok {
		if cmap, codeLen := parseToUnicode(d.streamData(tu)); len(cmap) > 0 {
			f.toUnicode = cmap
			if f.subtype == "Type0" && codeLen > 0 {
				f.codeLen = codeLen
			}
		}
	}
	return f
}

// loadCIDWidths reads a /W array: "c [w1 w2 ...]" or "cFirst cLast w".
func (d *Document) loadCIDWidths(f *font, w *raw.ArrayObj) {
	if w == nil {
		return
	}
	items := w.Items
	for i := 0; i < len(items); {
		start, ok := number(d.deref(items[i]))
		if !ok || i+1 >= len(items) {
			return
		}
		next := d.deref(items[i+1])
		if arr, ok := next.(*raw.ArrayObj); ok {
			for j, it := range arr.Items {
				if v, ok := number(d.deref(it)); ok {
					f.widths[uint32(int(start)+j)] = v
				}
			}
			i += 2
			continue
		}
		end, ok := number(next)
		if !ok || i+2 >= len(items) {
			return
		}
		v, _ := number(d.deref(items[i+2]))
		for c := int(start); c <= int(end) && c-int(start) < 65536; c++ {
			f.widths[uint32(c)] = v
		}
		i += 3
	}
}

// simpleEncoding resolves /Encoding into a code -> rune table.
func (d *Document) simpleEncoding(dict *raw.DictObj) *[256]rune {
	var table [256]rune
	base := "WinAnsiEncoding"
	var diffs *raw.ArrayObj

	switch enc := d.get(dict, "Encoding").(type) {
	case raw.NameObj:
		base = enc.Val
	case *raw.DictObj:
		if b := d.getName(enc, "BaseEncoding"); b != "" {
			base = b
		}
		diffs = d.getArray(enc, "Differences")
	}

	cm := charmap.Windows1252
	if base == "MacRomanEncoding" {
		cm = charmap.Macintosh
	}
	for i := 0; i < 256; i++ {
		table[i] = cm.DecodeByte(byte(i))
	}

	if diffs != nil {
		codeVal := 0
		for _, it := range diffs.Items {
			switch v := d.deref(it).(type) {
			case raw.NumberObj:
				n, _ := number(v)
				codeVal = int(n)
			case raw.NameObj:
				if codeVal >= 0 && codeVal < 256 {
					if r, ok := glyphRune(v.Val); ok {
						table[codeVal] = r
					}
				}
				codeVal++
			}
		}
	}
	return &table
}

var glyphNames = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
	"percent": '%', "ampersand": '&', "quotesingle": '\'', "quoteright": '’',
	"parenleft": '(', "parenright": ')', "asterisk": '*', "plus": '+', "comma": ',',
	"hyphen": '-', "period": '.', "slash": '/', "zero": '0', "one": '1', "two": '2',
	"three": '3', "four": '4', "five": '5', "six": '6', "seven": '7', "eight": '8',
	"nine": '9', "colon": ':', "semicolon": ';', "less": '<', "equal": '=',
	"greater": '>', "question": '?', "at": '@', "bracketleft": '[', "backslash": '\\',
	"bracketright": ']', "underscore": '_', "quoteleft": '‘', "braceleft": '{',
	"bar": '|', "braceright": '}', "asciitilde": '~', "bullet": '•',
	"endash": '–', "emdash": '—', "quotedblleft": '“',
	"quotedblright": '”', "Euro": '€', "fi": 'ﬁ', "fl": 'ﬂ',
	"eacute": 'é', "egrave": 'è', "agrave": 'à', "ccedilla": 'ç', "udieresis": 'ü',
	"odieresis": 'ö', "adieresis": 'ä', "germandbls": 'ß', "degree": '°',
}

// glyphRune maps an Adobe glyph name to a rune for the common cases.
func glyphRune(name string) (rune, bool) {
	if len(name) == 1 {
		return rune(name[0]), true
	}
	if r, ok := glyphNames[name]; ok {
		return r, true
	}
	if strings.HasPrefix(name, "uni") && len(name) == 7 {
		if v, err := strconv.ParseUint(name[3:], 16, 32); err == nil {
			return rune(v), true
		}
	}
	return 0, false
}

// parseToUnicode reads bfchar/bfrange mappings and the code length from codespacerange.
func parseToUnicode(data []byte) (map[uint32]string, int) {
	if len(data) == 0 {
		return nil, 0
	}
	sc := scanner.New(bytes.NewReader(data), scanner.Config{})
	out := map[uint32]string{}
	codeLen := 0

	var (
		section string
		pending [][]byte
		arr     [][]byte
		inArray bool
	)

	for {
		tok, err := sc.Next()
		if errors.Is(err, io.EOF) || err != nil {
			break
		}
		switch tok.Type {
		case scanner.TokenKeyword:
			kw, _ := tok.Value.(string)
			switch kw {
			case "begincodespacerange", "beginbfchar", "beginbfrange":
				section, pending = kw, nil
			case "endcodespacerange", "endbfchar", "endbfrange":
				section, pending = "", nil
			case "]":
				if inArray && section == "beginbfrange" && len(pending) == 2 {
					lo, hi := bytesToCode(pending[0]), bytesToCode(pending[1])
					for i, dst := range arr {
						if lo+uint32(i) > hi {
							break
						}
						out[lo+uint32(i)] = utf16BE(dst)
					}
					pending = nil
				}
				inArray, arr = false, nil
			}
		case scanner.TokenArray:
			inArray = true
		case scanner.TokenString:
			b, _ := tok.Value.([]byte)
			if inArray {
				arr = append(arr, b)
				continue
			}
			pending = append(pending, b)
			switch section {
			case "begincodespacerange":
				if len(pending) == 2 {
					if codeLen == 0 || len(pending[0]) > codeLen {
						codeLen = len(pending[0])
					}
					pending = nil
				}
			case "beginbfchar":
				if len(pending) == 2 {
					out[bytesToCode(pending[0])] = utf16BE(pending[1])
					pending = nil
				}
			case "beginbfrange":
				if len(pending) == 3 {
					lo, hi := bytesToCode(pending[0]), bytesToCode(pending[1])
					dst := pending[2]
					for c := lo; c <= hi && c-lo < 65536; c++ {
						out[c] = utf16BE(incrementLast(dst, c-lo))
					}
					pending = nil
				}
			}
		}
	}
	return out, codeLen
}

func bytesToCode(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

func incrementLast(b []byte, by uint32) []byte {
	out := append([]byte(nil), b...)
	if len(out) == 0 {
		return out
	}
	v := uint32(out[len(out)-1]) + by
	out[len(out)-1] = byte(v)
	if len(out) >= 2 {
		out[len(out)-2] += byte(v >> 8)
	}
	return out
}

func utf16BE(b []byte) string {
	if len(b)%2 == 1 {
		return string(b)
	}
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return string(utf16.Decode(u))
}
