package pdfdoc

import (
	"strings"

	"github.com/wudi/pdfkit/ir/raw"
	"github.com/wudi/pdfkit/ir/semantic"

	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
)

// Widget is a form field widget annotation on a page.
type Widget struct {
	Name  string // fully qualified field name
	Type  string // Tx, Ch, Btn, Sig
	Value string
	Rect  geometry.Rect
}

// buttonOff is the appearance state name of an unchecked check box or radio button.
const buttonOff = "Off"

// HasTextValue reports whether the widget carries a value usable for detection.
// Checked buttons report their on-state name; unchecked buttons and signatures
// carry none.
func (w Widget) HasTextValue() bool {
	v := strings.TrimSpace(w.Value)
	switch w.Type {
	case "Sig":
		return false
	case "Btn":
		return v != "" && v != buttonOff
	}
	return v != ""
}

const maxFieldDepth = 8

// Widgets lists the page's form widgets with their field values.
func (d *Document) Widgets(page int) ([]Widget, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	e, err := d.pageEntry(page)
	if err != nil {
		return nil, err
	}

	fields := d.fieldsByRef()
	var out []Widget
	for _, annot := range d.widgetAnnots(e) {
		dict := d.dict(annot)
		llx, lly, urx, ury, ok := d.rectOf(dict)
		if !ok {
			continue
		}
		w := Widget{Rect: e.rectToNative(llx, lly, urx, ury)}
		w.Name, w.Type, w.Value = d.fieldInfo(annot, fields)
		out = append(out, w)
	}
	return out, nil
}

// widgetAnnots returns the /Annots entries of subtype Widget, as stored (refs kept).
func (d *Document) widgetAnnots(e pageEntry) []raw.Object {
	annots := d.getArray(e.dict, "Annots")
	if annots == nil {
		return nil
	}
	var out []raw.Object
	for _, a := range annots.Items {
		if d.getName(d.dict(a), "Subtype") == "Widget" {
			out = append(out, a)
		}
	}
	return out
}

func (d *Document) rectOf(dict *raw.DictObj) (llx, lly, urx, ury float64, ok bool) {
	r := d.numbers(dict.KV["Rect"])
	if len(r) != 4 {
		return 0, 0, 0, 0, false
	}
	b := normalizeBox(r)
	return b[0], b[1], b[2], b[3], true
}

// fieldsByRef indexes the AcroForm fields pdfkit extracted by object reference.
func (d *Document) fieldsByRef() map[raw.ObjectRef]semantic.FormField {
	if !d.formOK {
		d.formOK = true
		if form, err := d.ex.ExtractAcroForm(); err == nil {
			d.form = form
		}
	}
	out := map[raw.ObjectRef]semantic.FormField{}
	if d.form == nil {
		return out
	}
	for _, f := range d.form.Fields {
		out[f.Reference()] = f
	}
	return out
}

// fieldInfo resolves the qualified name, type and value of a widget by walking its /Parent chain.
func (d *Document) fieldInfo(annot raw.Object, fields map[raw.ObjectRef]semantic.FormField) (name, ft, value string) {
	var (
		parts    []string
		valueSet bool
	)
	node := annot
	for depth := 0; depth < maxFieldDepth && node != nil; depth++ {
		dict := d.dict(node)
		if dict == nil {
			break
		}
		if t, ok := d.getString(dict, "T"); ok {
			parts = append([]string{decodeTextString(t)}, parts...)
		}
		if ft == "" {
			ft = d.getName(dict, "FT")
		}
		if !valueSet {
			if ref, ok := node.(raw.RefObj); ok {
				if f, ok := fields[ref.Ref()]; ok {
					if v, ok := semanticValue(f); ok {
						value, valueSet = v, true
					}
				}
			}
		}
		if !valueSet {
			if v, ok := d.rawValue(dict); ok {
				value, valueSet = v, true
			}
		}
		parent, ok := dict.KV["Parent"]
		if !ok {
			break
		}
		node = parent
	}
	return strings.Join(parts, "."), ft, value
}

func semanticValue(f semantic.FormField) (string, bool) {
	switch v := f.(type) {
	case *semantic.TextFormField:
		if v.Value != "" {
			return decodeTextString([]byte(v.Value)), true
		}
	case *semantic.ChoiceFormField:
		if len(v.Selected) > 0 {
			vals := make([]string, len(v.Selected))
			for i, s := range v.Selected {
				vals[i] = decodeTextString([]byte(s))
			}
			return strings.Join(vals, ", "), true
		}
	case *semantic.ButtonFormField:
		if !v.IsPush && v.Checked && v.OnState != "" {
			return v.OnState, true
		}
	}
	return "", false
}

// rawValue reads /V when it is a string, a name (button states) or an array of
// strings (multi-select choices).
func (d *Document) rawValue(dict *raw.DictObj) (string, bool) {
	switch v := d.get(dict, "V").(type) {
	case raw.StringObj:
		return decodeTextString(v.Bytes), true
	case raw.NameObj:
		return v.Val, true
	case *raw.ArrayObj:
		var vals []string
		for _, it := range v.Items {
			if s, ok := d.deref(it).(raw.StringObj); ok {
				vals = append(vals, decodeTextString(s.Bytes))
			}
		}
		if len(vals) > 0 {
			return strings.Join(vals, ", "), true
		}
	}
	return "", false
}
