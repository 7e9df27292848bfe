package pdfdoc

import (
	"fmt"
	"image"
	"image/color"

	"github.com/wudi/pdfkit/ir/raw"
	"github.com/wudi/pdfkit/ir/semantic"
	"golang.org/x/image/draw"

	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
)

// RGB is a fill or text colour with components in [0,1].
type RGB struct {
	R, G, B float64
}

// White is the default redaction fill.
var White = RGB{1, 1, 1}

func (c RGB) color() color.RGBA {
	clamp := func(v float64) uint8 {
		switch {
		case v <= 0:
			return 0
		case v >= 1:
			return 255
		}
		return uint8(v*255 + 0.5)
	}
	return color.RGBA{R: clamp(c.R), G: clamp(c.G), B: clamp(c.B), A: 255}
}

func (c RGB) ops(op string) semantic.Operation {
	return semantic.Operation{Operator: op, Operands: nums(c.R, c.G, c.B)}
}

// Redact removes everything painted inside r on page and fills r with fill.
//
// Text is removed glyph by glyph, keeping the advance of removed glyphs so the
// surviving text does not move. Paths entirely inside r are dropped; paths that
// only cross r stay and are covered by the fill. Images under r have their
// pixels blanked, or are dropped when they cannot be decoded. Intersecting form
// XObjects are inlined first so their content gets the same treatment.
// Intersecting form widgets are removed from the page and the form.
func (d *Document) Redact(page int, r geometry.Rect, fill RGB) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := r.Validate(page); err != nil {
		return err
	}
	st, err := d.page(page)
	if err != nil {
		return err
	}
	if st.decodeErr != nil {
		return fmt.Errorf("page %d content cannot be rewritten: %w", page, st.decodeErr)
	}
	if r.IsEmpty() {
		return nil
	}

	d.own(st)
	st.wrap()

	for pass := 0; pass < maxFormDepth; pass++ {
		if !d.inlineForms(st, r) {
			break
		}
	}

	items := d.interpret(st, false)
	replace := map[int][]semantic.Operation{}
	remove := map[int]bool{}

	for _, it := range items {
		if !touches(it.box, r) {
			continue
		}
		switch it.kind {
		case itemText:
			if ops, changed := rewriteShow(st.ops[it.op], it.show, r); changed {
				replace[it.op] = ops
			}
		case itemPath:
			if !it.clip && r.Contains(it.box) {
				for k := it.start; k <= it.op; k++ {
					remove[k] = true
				}
			}
		case itemImage:
			name, err := d.blankImage(st, it, r, fill)
			if err != nil {
				remove[it.op] = true
				continue
			}
			if name != it.name {
				replace[it.op] = []semantic.Operation{{Operator: "Do", Operands: []semantic.Operand{semantic.NameOperand{Value: name}}}}
			}
		case itemInlineImage, itemForm:
			remove[it.op] = true
		}
	}

	out := make([]semantic.Operation, 0, len(st.ops)+8)
	for i, op := range st.ops {
		if remove[i] {
			continue
		}
		if rep, ok := replace[i]; ok {
			out = append(out, rep...)
			continue
		}
		out = append(out, op)
	}

	x, y := st.entry.toPDF(r.X0, r.Y1)
	out = append(out,
		semantic.Operation{Operator: "q"},
		fill.ops("rg"),
		semantic.Operation{Operator: "re", Operands: nums(x, y, r.Width(), r.Height())},
		semantic.Operation{Operator: "f"},
		semantic.Operation{Operator: "Q"},
	)
	st.ops = out
	st.dirty = true

	d.pruneXObjects(st)
	d.removeWidgets(st, r)
	return nil
}

// own gives the page a private copy of its resource dictionary.
func (d *Document) own(st *pageState) {
	if st.ownSubs != nil {
		return
	}
	st.resources = copyDict(d.dict(st.resources))
	st.ownSubs = map[string]bool{}
}

// sub returns a private, directly held copy of a resource category.
func (d *Document) sub(st *pageState, category string) *raw.DictObj {
	if st.ownSubs[category] {
		return st.resources.KV[category].(*raw.DictObj)
	}
	c := copyDict(d.getDict(st.resources, category))
	st.resources.KV[category] = c
	st.ownSubs[category] = true
	return c
}

// wrap isolates the original content's graphics state from appended operations.
func (st *pageState) wrap() {
	if st.wrapped {
		return
	}
	ops := make([]semantic.Operation, 0, len(st.ops)+2)
	ops = append(ops, semantic.Operation{Operator: "q"})
	ops = append(ops, st.ops...)
	ops = append(ops, semantic.Operation{Operator: "Q"})
	st.ops = ops
	st.wrapped = true
}

// rewriteShow drops the glyphs of a text-show operation that touch r and
// replaces each with a TJ adjustment of the same advance.
func rewriteShow(op semantic.Operation, si *showItem, r geometry.Rect) ([]semantic.Operation, bool) {
	removed := make([]bool, len(si.glyphs))
	hit := false
	for i, g := range si.glyphs {
		if touches(g.box, r) {
			removed[i], hit = true, true
		}
	}
	if !hit {
		return nil, false
	}

	var (
		arr []semantic.Operand
		cur []byte
	)
	flush := func() {
		if len(cur) > 0 {
			arr = append(arr, semantic.StringOperand{Value: cur})
			cur = nil
		}
	}
	addAdjust := func(v float64) {
		flush()
		if n := len(arr); n > 0 {
			if prev, ok := arr[n-1].(semantic.NumberOperand); ok {
				arr[n-1] = num(prev.Value + v)
				return
			}
		}
		arr = append(arr, num(v))
	}

	for _, el := range si.elems {
		if el.isAdjust {
			addAdjust(el.adjust)
			continue
		}
		g := si.glyphs[el.glyph]
		if !removed[el.glyph] {
			cur = append(cur, g.code.bytes...)
			continue
		}
		if si.tfs == 0 {
			continue
		}
		spacing := si.tc
		if si.font.isSpace(g.code) {
			spacing += si.tw
		}
		addAdjust(-(g.width + spacing*1000/si.tfs))
	}
	flush()

	tj := semantic.Operation{Operator: "TJ", Operands: []semantic.Operand{semantic.ArrayOperand{Values: arr}}}
	switch op.Operator {
	case "'":
		return []semantic.Operation{{Operator: "T*"}, tj}, true
	case "\"":
		if len(op.Operands) == 3 {
			return []semantic.Operation{
				{Operator: "Tw", Operands: op.Operands[0:1]},
				{Operator: "Tc", Operands: op.Operands[1:2]},
				{Operator: "T*"},
				tj,
			}, true
		}
	}
	return []semantic.Operation{tj}, true
}

// blankImage paints the pixels of an image XObject under r with fill and
// returns the resource name of the rewritten copy.
func (d *Document) blankImage(st *pageState, it item, r geometry.Rect, fill RGB) (string, error) {
	obj := d.xobject(st.resources, it.name)
	if obj == nil {
		return "", fmt.Errorf("image %s not found", it.name)
	}
	img, err := d.decodeImage(obj)
	if err != nil {
		return "", err
	}
	b := img.Bounds()
	pr, ok := pixelRect(st.entry, it.ctm, r, b.Dx(), b.Dy())
	if !ok {
		return "", fmt.Errorf("image %s is rotated", it.name)
	}
	if pr.Empty() {
		return it.name, nil
	}

	var canvas draw.Image
	if g, isGray := img.(*image.Gray); isGray && fill.R == fill.G && fill.G == fill.B {
		canvas = g
	} else {
		rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
		canvas = rgba
	}
	draw.Draw(canvas, pr.Add(canvas.Bounds().Min), image.NewUniform(fill.color()), image.Point{}, draw.Src)

	stream, err := d.encodeImage(canvas, d.dict(obj))
	if err != nil {
		return "", err
	}
	ref := d.newObject(stream)
	xobjs := d.sub(st, "XObject")
	name := uniqueName(xobjs, "RImg")
	xobjs.KV[name] = ref
	return name, nil
}

func uniqueName(dict *raw.DictObj, prefix string) string {
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s%d", prefix, i)
		if _, taken := dict.KV[name]; !taken {
			return name
		}
	}
}

// resourceOperands lists, per operator, which operand names a resource and in which category.
var resourceOperands = map[string]struct {
	category string
	index    int // -1 for the last operand
}{
	"Tf":  {"Font", 0},
	"Do":  {"XObject", 0},
	"gs":  {"ExtGState", 0},
	"cs":  {"ColorSpace", 0},
	"CS":  {"ColorSpace", 0},
	"scn": {"Pattern", -1},
	"SCN": {"Pattern", -1},
	"sh":  {"Shading", 0},
	"BDC": {"Properties", 1},
	"DP":  {"Properties", 1},
}

// inlineForms replaces each form XObject invocation touching r with the form's
// own operations. It reports whether anything was inlined.
func (d *Document) inlineForms(st *pageState, r geometry.Rect) bool {
	items := d.interpret(st, false)
	changed := false
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		if it.kind != itemForm || !touches(it.box, r) {
			continue
		}
		obj := d.xobject(st.resources, it.name)
		dict := d.dict(obj)
		ops, err := decodeOps(d.streamData(obj))
		if dict == nil || err != nil {
			continue
		}

		if formRes := d.getDict(dict, "Resources"); formRes != nil {
			st.inlineSeq++
			prefix := fmt.Sprintf("I%d_", st.inlineSeq)
			renamed := map[string]map[string]bool{}
			for category, v := range formRes.KV {
				src := d.dict(v)
				if src == nil || category == "ProcSet" {
					continue
				}
				dst := d.sub(st, category)
				renamed[category] = map[string]bool{}
				for name, res := range src.KV {
					dst.KV[prefix+name] = res
					renamed[category][name] = true
				}
			}
			for k, op := range ops {
				ops[k] = renameResource(op, prefix, renamed)
			}
		}

		body := []semantic.Operation{{Operator: "q"}}
		if m, ok := matrixFrom(d.numbers(dict.KV["Matrix"])); ok {
			body = append(body, semantic.Operation{Operator: "cm", Operands: nums(m[:]...)})
		}
		if bb := d.numbers(dict.KV["BBox"]); len(bb) == 4 {
			b := normalizeBox(bb)
			body = append(body,
				semantic.Operation{Operator: "re", Operands: nums(b[0], b[1], b[2]-b[0], b[3]-b[1])},
				semantic.Operation{Operator: "W"},
				semantic.Operation{Operator: "n"},
			)
		}
		body = append(body, ops...)
		body = append(body, semantic.Operation{Operator: "Q"})

		next := make([]semantic.Operation, 0, len(st.ops)+len(body))
		next = append(next, st.ops[:it.op]...)
		next = append(next, body...)
		next = append(next, st.ops[it.op+1:]...)
		st.ops = next
		changed = true
	}
	return changed
}

func renameResource(op semantic.Operation, prefix string, renamed map[string]map[string]bool) semantic.Operation {
	spec, ok := resourceOperands[op.Operator]
	if !ok || len(op.Operands) == 0 {
		return op
	}
	idx := spec.index
	if idx < 0 {
		idx = len(op.Operands) - 1
	}
	if idx >= len(op.Operands) {
		return op
	}
	name, ok := op.Operands[idx].(semantic.NameOperand)
	if !ok || !renamed[spec.category][name.Value] {
		return op
	}
	operands := append([]semantic.Operand(nil), op.Operands...)
	operands[idx] = semantic.NameOperand{Value: prefix + name.Value}
	return semantic.Operation{Operator: op.Operator, Operands: operands}
}

// pruneXObjects drops XObject resources no longer invoked by the page, so that
// replaced images and inlined forms are not written out with it.
func (d *Document) pruneXObjects(st *pageState) {
	used := map[string]bool{}
	for _, op := range st.ops {
		if op.Operator == "Do" && len(op.Operands) == 1 {
			if n, ok := op.Operands[0].(semantic.NameOperand); ok {
				used[n.Value] = true
			}
		}
	}
	if d.getDict(st.resources, "XObject") == nil {
		return
	}
	xobjs := d.sub(st, "XObject")
	for name := range xobjs.KV {
		if !used[name] {
			delete(xobjs.KV, name)
		}
	}
}

// removeWidgets deletes widget annotations touching r from the page and the form tree.
func (d *Document) removeWidgets(st *pageState, r geometry.Rect) {
	annots := d.getArray(st.entry.dict, "Annots")
	if annots == nil {
		return
	}
	var (
		kept    []raw.Object
		removed []raw.Object
	)
	for _, a := range annots.Items {
		dict := d.dict(a)
		if d.getName(dict, "Subtype") == "Widget" {
			if llx, lly, urx, ury, ok := d.rectOf(dict); ok && touches(st.entry.rectToNative(llx, lly, urx, ury), r) {
				removed = append(removed, a)
				continue
			}
		}
		kept = append(kept, a)
	}
	if len(removed) == 0 {
		return
	}
	st.entry.dict.KV["Annots"] = raw.NewArray(kept...)

	var fields *raw.ArrayObj
	if root := d.dict(d.trailerEntry("Root")); root != nil {
		fields = d.getArray(d.getDict(root, "AcroForm"), "Fields")
	}
	for _, w := range removed {
		d.detachField(w, fields, 0)
	}
	d.formOK = false
}

// detachField removes node from its parent's /Kids (or the form's /Fields) and
// detaches parents left without kids.
func (d *Document) detachField(node raw.Object, fields *raw.ArrayObj, depth int) {
	if depth > maxFieldDepth {
		return
	}
	ref, isRef := node.(raw.RefObj)
	if !isRef {
		return
	}
	dict := d.dict(node)
	if parent, ok := dict.KV["Parent"]; ok {
		if kids := d.getArray(d.dict(parent), "Kids"); kids != nil {
			kids.Items = withoutRef(kids.Items, ref.Ref())
			if len(kids.Items) == 0 {
				d.detachField(parent, fields, depth+1)
			}
		}
		return
	}
	if fields != nil {
		fields.Items = withoutRef(fields.Items, ref.Ref())
	}
}

func withoutRef(items []raw.Object, ref raw.ObjectRef) []raw.Object {
	out := items[:0]
	for _, it := range items {
		if r, ok := it.(raw.RefObj); ok && r.Ref() == ref {
			continue
		}
		out = append(out, it)
	}
	return out
}
