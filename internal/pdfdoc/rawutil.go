package pdfdoc

import (
	"context"
	"unicode/utf16"

	"github.com/wudi/pdfkit/filters"
	"github.com/wudi/pdfkit/ir/raw"
	"golang.org/x/text/encoding/charmap"
)

// Helpers over pdfkit raw objects. All lookups dereference indirect objects.

func (d *Document) deref(obj raw.Object) raw.Object {
	for i := 0; i < 16; i++ {
		ref, ok := obj.(raw.RefObj)
		if !ok {
			return obj
		}
		next, ok := d.raw.Objects[ref.Ref()]
		if !ok {
			return raw.NullObj{}
		}
		obj = next
	}
	return raw.NullObj{}
}

func (d *Document) dict(obj raw.Object) *raw.DictObj {
	switch v := d.deref(obj).(type) {
	case *raw.DictObj:
		return v
	case *raw.StreamObj:
		return v.Dict
	}
	return nil
}

func (d *Document) array(obj raw.Object) *raw.ArrayObj {
	if a, ok := d.deref(obj).(*raw.ArrayObj); ok {
		return a
	}
	return nil
}

func (d *Document) get(dict *raw.DictObj, key string) raw.Object {
	if dict == nil {
		return nil
	}
	v, ok := dict.KV[key]
	if !ok {
		return nil
	}
	return d.deref(v)
}

func (d *Document) getDict(dict *raw.DictObj, key string) *raw.DictObj {
	if dict == nil {
		return nil
	}
	return d.dict(dict.KV[key])
}

func (d *Document) getArray(dict *raw.DictObj, key string) *raw.ArrayObj {
	if dict == nil {
		return nil
	}
	return d.array(dict.KV[key])
}

func (d *Document) getName(dict *raw.DictObj, key string) string {
	if n, ok := d.get(dict, key).(raw.NameObj); ok {
		return n.Val
	}
	return ""
}

func (d *Document) getNumber(dict *raw.DictObj, key string) (float64, bool) {
	return number(d.get(dict, key))
}

func (d *Document) getString(dict *raw.DictObj, key string) ([]byte, bool) {
	if s, ok := d.get(dict, key).(raw.StringObj); ok {
		return s.Bytes, true
	}
	return nil, false
}

// streamData returns the decoded bytes of a stream, or nil when a filter cannot be applied.
func (d *Document) streamData(obj raw.Object) []byte {
	ref, isRef := obj.(raw.RefObj)
	if isRef && d.streams != nil {
		if b, ok := d.streams[ref.Ref()]; ok {
			return b
		}
	}
	s, ok := d.deref(obj).(*raw.StreamObj)
	if !ok {
		return nil
	}
	data, err := d.decodeStream(s)
	if err != nil {
		data = nil
	}
	if isRef && d.streams != nil {
		d.streams[ref.Ref()] = data
	}
	return data
}

func (d *Document) decodeStream(s *raw.StreamObj) ([]byte, error) {
	names, params := filters.ExtractFilters(s.Dict)
	if len(names) == 0 {
		return s.Data, nil
	}
	return d.filters.Decode(context.Background(), s.Data, names, params)
}

func number(obj raw.Object) (float64, bool) {
	if n, ok := obj.(raw.NumberObj); ok {
		if n.IsInt {
			return float64(n.I), true
		}
		return n.F, true
	}
	return 0, false
}

func (d *Document) numbers(obj raw.Object) []float64 {
	arr := d.array(obj)
	if arr == nil {
		return nil
	}
	out := make([]float64, 0, len(arr.Items))
	for _, it := range arr.Items {
		if v, ok := number(d.deref(it)); ok {
			out = append(out, v)
		}
	}
	return out
}

// decodeTextString decodes a PDF text string (UTF-16BE with BOM, or PDFDocEncoding).
func decodeTextString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		u := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func copyDict(src *raw.DictObj) *raw.DictObj {
	out := raw.Dict()
	if src != nil {
		for k, v := range src.KV {
			out.KV[k] = v
		}
	}
	return out
}

func (d *Document) trailerEntry(key string) raw.Object {
	if d.raw.Trailer == nil {
		return nil
	}
	v, ok := d.raw.Trailer.Get(raw.NameLiteral(key))
	if !ok {
		return nil
	}
	return v
}

// pageEntry is one leaf of the page tree with its inheritable attributes resolved.
type pageEntry struct {
	ref       raw.ObjectRef
	dict      *raw.DictObj
	mediaBox  [4]float64
	resources *raw.DictObj
}

// collectPages walks /Root /Pages in document order.
func (d *Document) collectPages() []pageEntry {
	root := d.dict(d.trailerEntry("Root"))
	if root == nil {
		return nil
	}
	var pages []pageEntry
	seen := map[raw.ObjectRef]bool{}

	var walk func(node raw.Object, media []float64, res *raw.DictObj, depth int)
	walk = func(node raw.Object, media []float64, res *raw.DictObj, depth int) {
		if depth > 64 {
			return
		}
		ref, isRef := node.(raw.RefObj)
		if isRef {
			if seen[ref.Ref()] {
				return
			}
			seen[ref.Ref()] = true
		}
		dict := d.dict(node)
		if dict == nil {
			return
		}
		if mb := d.numbers(dict.KV["MediaBox"]); len(mb) == 4 {
			media = mb
		}
		if r := d.getDict(dict, "Resources"); r != nil {
			res = r
		}

		if kids := d.getArray(dict, "Kids"); kids != nil && d.getName(dict, "Type") != "Page" {
			for _, kid := range kids.Items {
				walk(kid, media, res, depth+1)
			}
			return
		}

		entry := pageEntry{dict: dict, resources: res}
		if isRef {
			entry.ref = ref.Ref()
		}
		if len(media) == 4 {
			entry.mediaBox = normalizeBox(media)
		} else {
			entry.mediaBox = [4]float64{0, 0, 612, 792}
		}
		pages = append(pages, entry)
	}

	walk(root.KV["Pages"], nil, nil, 0)
	return pages
}

func normalizeBox(b []float64) [4]float64 {
	llx, lly, urx, ury := b[0], b[1], b[2], b[3]
	if urx < llx {
		llx, urx = urx, llx
	}
	if ury < lly {
		lly, ury = ury, lly
	}
	return [4]float64{llx, lly, urx, ury}
}
