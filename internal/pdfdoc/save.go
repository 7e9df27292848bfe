package pdfdoc

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/wudi/pdfkit/ir/raw"
)

// WriteTo serializes the document as a complete, non-incremental PDF.
//
// Only objects reachable from the trailer's /Root and /Info are written, so
// content streams, images and forms replaced by redaction are gone from the
// output rather than left behind as unreferenced objects.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkOpen(); err != nil {
		return 0, err
	}
	if err := d.commitPages(); err != nil {
		return 0, err
	}

	roots := []raw.Object{d.trailerEntry("Root")}
	if info := d.trailerEntry("Info"); info != nil {
		roots = append(roots, info)
	}
	live := d.reachable(roots)

	cw := &countingWriter{w: bufio.NewWriter(w)}
	cw.WriteString("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")

	maxNum := 0
	for ref := range live {
		if ref.Num > maxNum {
			maxNum = ref.Num
		}
	}
	offsets := make(map[int]int64, len(live))
	gens := make(map[int]int, len(live))
	refs := make([]raw.ObjectRef, 0, len(live))
	for ref := range live {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Num < refs[j].Num })

	var body bytes.Buffer
	for _, ref := range refs {
		offsets[ref.Num] = cw.n
		gens[ref.Num] = ref.Gen
		body.Reset()
		fmt.Fprintf(&body, "%d %d obj\n", ref.Num, ref.Gen)
		writeObject(&body, d.raw.Objects[ref])
		body.WriteString("\nendobj\n")
		cw.Write(body.Bytes())
	}

	xrefAt := cw.n
	fmt.Fprintf(cw, "xref\n0 %d\n", maxNum+1)
	cw.WriteString("0000000000 65535 f\r\n")
	for n := 1; n <= maxNum; n++ {
		if off, ok := offsets[n]; ok {
			fmt.Fprintf(cw, "%010d %05d n\r\n", off, gens[n])
		} else {
			cw.WriteString("0000000000 00000 f\r\n")
		}
	}

	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(maxNum+1)))
	trailer.Set(raw.NameLiteral("Root"), d.trailerEntry("Root"))
	if info := d.trailerEntry("Info"); info != nil {
		trailer.Set(raw.NameLiteral("Info"), info)
	}
	if id := d.trailerEntry("ID"); id != nil {
		trailer.Set(raw.NameLiteral("ID"), id)
	}
	body.Reset()
	body.WriteString("trailer\n")
	writeObject(&body, trailer)
	fmt.Fprintf(&body, "\nstartxref\n%d\n%%%%EOF\n", xrefAt)
	cw.Write(body.Bytes())

	if cw.err != nil {
		return cw.n, cw.err
	}
	if err := cw.w.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// Bytes returns the serialized document.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// commitPages stores the rewritten content of modified pages as new streams.
func (d *Document) commitPages() error {
	for _, st := range d.state {
		if !st.dirty {
			continue
		}
		content := encodeOps(st.ops)
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(content); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		dict := raw.Dict()
		dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
		dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(buf.Len())))
		ref := d.newObject(raw.NewStream(dict, buf.Bytes()))

		st.entry.dict.KV["Contents"] = ref
		st.entry.dict.KV["Resources"] = st.resources
		st.dirty = false
	}
	return nil
}

// reachable returns the indirect objects referenced, directly or transitively, from roots.
func (d *Document) reachable(roots []raw.Object) map[raw.ObjectRef]bool {
	live := map[raw.ObjectRef]bool{}
	var stack []raw.Object
	stack = append(stack, roots...)
	for len(stack) > 0 {
		obj := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch v := obj.(type) {
		case raw.RefObj:
			ref := v.Ref()
			if live[ref] {
				continue
			}
			target, ok := d.raw.Objects[ref]
			if !ok {
				continue
			}
			live[ref] = true
			stack = append(stack, target)
		case *raw.ArrayObj:
			stack = append(stack, v.Items...)
		case *raw.DictObj:
			for _, it := range v.KV {
				stack = append(stack, it)
			}
		case *raw.StreamObj:
			if v.Dict != nil {
				stack = append(stack, v.Dict)
			}
		}
	}
	return live
}

func writeObject(buf *bytes.Buffer, obj raw.Object) {
	switch v := obj.(type) {
	case nil:
		buf.WriteString("null")
	case raw.NullObj:
		buf.WriteString("null")
	case raw.BoolObj:
		buf.WriteString(strconv.FormatBool(v.V))
	case raw.NumberObj:
		if v.IsInt {
			buf.WriteString(strconv.FormatInt(v.I, 10))
		} else {
			buf.WriteString(formatNumber(v.F))
		}
	case raw.NameObj:
		writeName(buf, v.Val)
	case raw.StringObj:
		writeHexString(buf, v.Bytes)
	case raw.RefObj:
		fmt.Fprintf(buf, "%d %d R", v.R.Num, v.R.Gen)
	case *raw.ArrayObj:
		buf.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeObject(buf, it)
		}
		buf.WriteByte(']')
	case *raw.DictObj:
		writeDict(buf, v, nil)
	case *raw.StreamObj:
		length := raw.NumberInt(int64(len(v.Data)))
		writeDict(buf, v.Dict, map[string]raw.Object{"Length": length})
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")
	default:
		buf.WriteString("null")
	}
}

// writeDict writes a dictionary with sorted keys; override replaces or adds entries.
func writeDict(buf *bytes.Buffer, d *raw.DictObj, override map[string]raw.Object) {
	keys := make([]string, 0, len(override))
	seen := map[string]bool{}
	if d != nil {
		for k := range d.KV {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	for k := range override {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	buf.WriteString("<<")
	for _, k := range keys {
		v, ok := override[k]
		if !ok {
			v = d.KV[k]
		}
		writeName(buf, k)
		buf.WriteByte(' ')
		writeObject(buf, v)
		buf.WriteByte(' ')
	}
	buf.WriteString(">>")
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

func (c *countingWriter) WriteString(s string) {
	c.Write([]byte(s))
}
