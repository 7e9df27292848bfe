package pdfdoc

import (
	"math"

	"github.com/wudi/pdfkit/coords"
	"github.com/wudi/pdfkit/ir/raw"
	"github.com/wudi/pdfkit/ir/semantic"

	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
)

const maxFormDepth = 8

type itemKind int

const (
	itemText itemKind = iota
	itemPath
	itemImage
	itemInlineImage
	itemForm
)

// item is one painted object found while interpreting a content stream.
// Boxes are page-native.
type item struct {
	kind   itemKind
	op     int // index of the painting or text-show operation
	start  int // first path construction operation (paths only)
	nested bool
	box    geometry.Rect
	clip   bool   // path range sets a clipping path
	name   string // XObject resource name (Do)
	ctm    coords.Matrix
	show   *showItem
}

// showItem is a decoded text-show operation.
type showItem struct {
	font          *font
	tfs, tc, tw   float64
	th, rise      float64
	size          float64
	elems         []showElem
	glyphs        []glyphInfo
	baselineStart coords.Point // device space origin of the first glyph
}

// showElem mirrors one element of the operand: a glyph or a TJ adjustment.
type showElem struct {
	adjust   float64
	isAdjust bool
	glyph    int
}

type glyphInfo struct {
	text   string
	code   code
	width  float64 // glyph units
	box    geometry.Rect
	origin coords.Point // device space
}

type textState struct {
	font     *font
	fontName string
	tfs      float64
	tc, tw   float64
	th       float64
	tl       float64
	rise     float64
}

type gstate struct {
	ctm       coords.Matrix
	text      textState
	lineWidth float64
}

// interpreter walks content operations, tracking graphics and text state.
type interpreter struct {
	d       *Document
	st      *pageState
	entry   pageEntry
	recurse bool
	items   []item
}

func (d *Document) interpret(st *pageState, recurse bool) []item {
	in := &interpreter{d: d, st: st, entry: st.entry, recurse: recurse}
	gs := gstate{ctm: coords.Identity(), text: textState{th: 1, font: defaultFont}, lineWidth: 1}
	in.run(st.ops, st.resources, gs, 0, false)
	return in.items
}

func (in *interpreter) deviceBox(pts ...coords.Point) geometry.Rect {
	if len(pts) == 0 {
		return geometry.Rect{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		x, y := in.entry.toNative(p.X, p.Y)
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return geometry.NewRect(minX, minY, maxX, maxY)
}

func (in *interpreter) transformedBox(m coords.Matrix, llx, lly, urx, ury float64) geometry.Rect {
	return in.deviceBox(
		m.Transform(coords.Point{X: llx, Y: lly}),
		m.Transform(coords.Point{X: urx, Y: lly}),
		m.Transform(coords.Point{X: llx, Y: ury}),
		m.Transform(coords.Point{X: urx, Y: ury}),
	)
}

func matrixFrom(vs []float64) (coords.Matrix, bool) {
	if len(vs) != 6 {
		return coords.Matrix{}, false
	}
	return coords.Matrix{vs[0], vs[1], vs[2], vs[3], vs[4], vs[5]}, true
}

func (in *interpreter) run(ops []semantic.Operation, res *raw.DictObj, gs gstate, depth int, nested bool) {
	var (
		stack     []gstate
		tm, tlm   = coords.Identity(), coords.Identity()
		path      []coords.Point
		pathStart = -1
		pathClip  bool
	)

	startPath := func(i int) {
		if pathStart < 0 {
			pathStart = i
		}
	}
	addPoint := func(x, y float64) {
		path = append(path, gs.ctm.Transform(coords.Point{X: x, Y: y}))
	}
	endPath := func(i int, painted bool) {
		if painted && len(path) > 0 && pathStart >= 0 {
			box := in.deviceBox(path...)
			if gs.lineWidth > 0 {
				scale := math.Sqrt(math.Abs(gs.ctm[0]*gs.ctm[3] - gs.ctm[1]*gs.ctm[2]))
				box = box.Expand(gs.lineWidth * scale / 2)
			}
			in.items = append(in.items, item{kind: itemPath, op: i, start: pathStart, nested: nested, box: box, clip: pathClip})
		} else if pathClip && pathStart >= 0 {
			in.items = append(in.items, item{kind: itemPath, op: i, start: pathStart, nested: nested, box: in.deviceBox(path...), clip: true})
		}
		path, pathStart, pathClip = nil, -1, false
	}

	for i, op := range ops {
		vals, _ := operandFloats(op.Operands)

		switch op.Operator {
		case "q":
			stack = append(stack, gs)
		case "Q":
			if n := len(stack); n > 0 {
				gs = stack[n-1]
				stack = stack[:n-1]
			}
		case "cm":
			if m, ok := matrixFrom(vals); ok {
				gs.ctm = m.Multiply(gs.ctm)
			}
		case "w":
			if len(vals) == 1 {
				gs.lineWidth = vals[0]
			}

		case "m":
			if len(vals) == 2 {
				startPath(i)
				addPoint(vals[0], vals[1])
			}
		case "l":
			if len(vals) == 2 {
				startPath(i)
				addPoint(vals[0], vals[1])
			}
		case "c":
			if len(vals) == 6 {
				startPath(i)
				for j := 0; j < 6; j += 2 {
					addPoint(vals[j], vals[j+1])
				}
			}
		case "v", "y":
			if len(vals) == 4 {
				startPath(i)
				addPoint(vals[0], vals[1])
				addPoint(vals[2], vals[3])
			}
		case "h":
			startPath(i)
		case "re":
			if len(vals) == 4 {
				startPath(i)
				x, y, w, h := vals[0], vals[1], vals[2], vals[3]
				addPoint(x, y)
				addPoint(x+w, y)
				addPoint(x+w, y+h)
				addPoint(x, y+h)
			}
		case "W", "W*":
			startPath(i)
			pathClip = true
		case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*":
			endPath(i, true)
		case "n":
			endPath(i, false)

		case "BT":
			tm, tlm = coords.Identity(), coords.Identity()
		case "ET":
		case "Tf":
			if len(op.Operands) == 2 {
				if name, ok := op.Operands[0].(semantic.NameOperand); ok {
					gs.text.fontName = name.Value
					gs.text.font = in.d.fontFor(in.st, res, name.Value)
				}
				if v, ok := operandFloat(op.Operands[1]); ok {
					gs.text.tfs = v
				}
			}
		case "Tc":
			if len(vals) == 1 {
				gs.text.tc = vals[0]
			}
		case "Tw":
			if len(vals) == 1 {
				gs.text.tw = vals[0]
			}
		case "Tz":
			if len(vals) == 1 {
				gs.text.th = vals[0] / 100
			}
		case "TL":
			if len(vals) == 1 {
				gs.text.tl = vals[0]
			}
		case "Ts":
			if len(vals) == 1 {
				gs.text.rise = vals[0]
			}
		case "Td":
			if len(vals) == 2 {
				tlm = coords.Translate(vals[0], vals[1]).Multiply(tlm)
				tm = tlm
			}
		case "TD":
			if len(vals) == 2 {
				gs.text.tl = -vals[1]
				tlm = coords.Translate(vals[0], vals[1]).Multiply(tlm)
				tm = tlm
			}
		case "Tm":
			if m, ok := matrixFrom(vals); ok {
				tm, tlm = m, m
			}
		case "T*":
			tlm = coords.Translate(0, -gs.text.tl).Multiply(tlm)
			tm = tlm
		case "Tj", "TJ":
			tm = in.show(i, op.Operands, gs, tm, nested)
		case "'":
			tlm = coords.Translate(0, -gs.text.tl).Multiply(tlm)
			tm = in.show(i, op.Operands, gs, tlm, nested)
		case "\"":
			if len(op.Operands) == 3 {
				if v, ok := operandFloat(op.Operands[0]); ok {
					gs.text.tw = v
				}
				if v, ok := operandFloat(op.Operands[1]); ok {
					gs.text.tc = v
				}
				tlm = coords.Translate(0, -gs.text.tl).Multiply(tlm)
				tm = in.show(i, op.Operands[2:], gs, tlm, nested)
			}

		case "BI":
			in.items = append(in.items, item{
				kind: itemInlineImage, op: i, nested: nested, ctm: gs.ctm,
				box: in.transformedBox(gs.ctm, 0, 0, 1, 1),
			})
		case "Do":
			if len(op.Operands) == 1 {
				if name, ok := op.Operands[0].(semantic.NameOperand); ok {
					in.doXObject(i, name.Value, res, gs, depth, nested)
				}
			}
		}
	}
}

func (in *interpreter) doXObject(i int, name string, res *raw.DictObj, gs gstate, depth int, nested bool) {
	xobjs := in.d.getDict(res, "XObject")
	if xobjs == nil {
		return
	}
	obj, ok := xobjs.KV[name]
	if !ok {
		return
	}
	dict := in.d.dict(obj)
	if dict == nil {
		return
	}

	switch in.d.getName(dict, "Subtype") {
	case "Image":
		in.items = append(in.items, item{
			kind: itemImage, op: i, nested: nested, name: name, ctm: gs.ctm,
			box: in.transformedBox(gs.ctm, 0, 0, 1, 1),
		})
	case "Form":
		m := coords.Identity()
		if fm, ok := matrixFrom(in.d.numbers(dict.KV["Matrix"])); ok {
			m = fm
		}
		ctm := m.Multiply(gs.ctm)
		box := geometry.Rect{}
		if bb := in.d.numbers(dict.KV["BBox"]); len(bb) == 4 {
			b := normalizeBox(bb)
			box = in.transformedBox(ctm, b[0], b[1], b[2], b[3])
		}
		in.items = append(in.items, item{kind: itemForm, op: i, nested: nested, name: name, ctm: ctm, box: box})

		if !in.recurse || depth >= maxFormDepth {
			return
		}
		formRes := in.d.getDict(dict, "Resources")
		if formRes == nil {
			formRes = res
		}
		ops, _ := decodeOps(in.d.streamData(obj))
		inner := gs
		inner.ctm = ctm
		in.run(ops, formRes, inner, depth+1, true)
	}
}

// show decodes a text-show operation and returns the text matrix after it.
func (in *interpreter) show(i int, operands []semantic.Operand, gs gstate, tm coords.Matrix, nested bool) coords.Matrix {
	t := gs.text
	f := t.font
	if f == nil {
		f = defaultFont
	}
	si := &showItem{font: f, tfs: t.tfs, tc: t.tc, tw: t.tw, th: t.th, rise: t.rise}

	trm := tm.Multiply(gs.ctm)
	si.size = math.Abs(t.tfs) * math.Hypot(trm[2], trm[3])
	si.baselineStart = trm.Transform(coords.Point{})

	addString := func(s []byte) {
		for _, c := range f.split(s) {
			w0 := f.width(c, in.d.metrics)
			m := tm.Multiply(gs.ctm)
			glyphW := w0 / 1000 * t.tfs * t.th
			box := in.transformedBox(m, 0, f.descent*t.tfs+t.rise, glyphW, f.ascent*t.tfs+t.rise)

			si.glyphs = append(si.glyphs, glyphInfo{
				text:   f.text(c),
				code:   c,
				width:  w0,
				box:    box,
				origin: m.Transform(coords.Point{}),
			})
			si.elems = append(si.elems, showElem{glyph: len(si.glyphs) - 1})

			tx := w0/1000*t.tfs + t.tc
			if f.isSpace(c) {
				tx += t.tw
			}
			tm = coords.Translate(tx*t.th, 0).Multiply(tm)
		}
	}

	for _, operand := range operands {
		switch v := operand.(type) {
		case semantic.StringOperand:
			addString(v.Value)
		case semantic.ArrayOperand:
			for _, el := range v.Values {
				switch e := el.(type) {
				case semantic.StringOperand:
					addString(e.Value)
				case semantic.NumberOperand:
					si.elems = append(si.elems, showElem{adjust: e.Value, isAdjust: true})
					tm = coords.Translate(-e.Value/1000*t.tfs*t.th, 0).Multiply(tm)
				}
			}
		}
	}

	box := geometry.Rect{}
	for _, g := range si.glyphs {
		box = box.Union(g.box)
	}
	in.items = append(in.items, item{kind: itemText, op: i, nested: nested, box: box, show: si, ctm: gs.ctm})
	return tm
}

// touches reports whether box overlaps r, treating degenerate boxes by their centre.
func touches(box, r geometry.Rect) bool {
	if box.IsEmpty() {
		c := box.Center()
		return c.X > r.X0 && c.X < r.X1 && c.Y > r.Y0 && c.Y < r.Y1
	}
	return box.Intersects(r)
}
