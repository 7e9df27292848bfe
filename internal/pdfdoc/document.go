// Package pdfdoc reads, redacts and rewrites PDF documents on top of the pdfkit object model.
//
// All geometry crossing the package boundary is page-native with a top-left origin.
package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/wudi/pdfkit/extractor"
	"github.com/wudi/pdfkit/filters"
	"github.com/wudi/pdfkit/ir/decoded"
	"github.com/wudi/pdfkit/ir/raw"
	"github.com/wudi/pdfkit/ir/semantic"
	"github.com/wudi/pdfkit/parser"

	serviceerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
	"github.com/adverant/nexus/pdfplaceholder/internal/metrics"
)

// Document is an open PDF. It is safe for concurrent readers, but redaction
// and drawing are meant for a single owner.
type Document struct {
	mu sync.Mutex

	ref      string
	raw      *raw.Document
	dec      *decoded.DecodedDocument
	ex       *extractor.Extractor
	filters  *filters.Pipeline
	streams  map[raw.ObjectRef][]byte
	metrics  *metrics.Metrics
	maxBytes int64

	pages  []pageEntry
	state  map[int]*pageState
	form   *semantic.AcroForm
	formOK bool

	stdFontRefs map[string]raw.RefObj

	nextNum int
	closed  bool
}

// pageState is the parsed, possibly modified content of one page.
type pageState struct {
	entry     pageEntry
	ops       []semantic.Operation
	decodeErr error
	resources *raw.DictObj
	ownSubs   map[string]bool // resource categories copied for this page; nil until resources are owned
	fonts     map[string]*font
	stdFonts  map[string]string // standard font BaseFont -> resource name
	wrapped   bool
	inlineSeq int
	dirty     bool
}

// Option configures Open.
type Option func(*Document)

// WithMetrics shares a standard-font metrics table between documents.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Document) { d.metrics = m }
}

// WithMaxDecodedSize bounds the decoded size of a single stream.
func WithMaxDecodedSize(n int64) Option {
	return func(d *Document) { d.maxBytes = n }
}

// WithRef labels the document in errors (usually the stored document id).
func WithRef(ref string) Option {
	return func(d *Document) { d.ref = ref }
}

// Open parses data into a Document. Encrypted and unparseable files fail with DOCUMENT_UNAVAILABLE.
func Open(ctx context.Context, data []byte, opts ...Option) (*Document, error) {
	d := &Document{state: map[int]*pageState{}}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = metrics.New()
	}

	if len(data) == 0 {
		return nil, serviceerrors.NewDocumentUnavailableError(d.ref, fmt.Errorf("empty document"))
	}

	rawDoc, err := parser.NewDocumentParser(parser.Config{}).Parse(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, serviceerrors.NewDocumentUnavailableError(d.ref, err)
	}
	if rawDoc.Encrypted {
		return nil, serviceerrors.NewDocumentUnavailableError(d.ref, fmt.Errorf("encrypted documents are not supported"))
	}

	// Streams are decoded lazily; the extractor only needs the object graph.
	dec := &decoded.DecodedDocument{Raw: rawDoc, Streams: map[raw.ObjectRef]decoded.Stream{}}
	ex, err := extractor.New(dec)
	if err != nil {
		return nil, serviceerrors.NewDocumentUnavailableError(d.ref, err)
	}

	d.raw, d.dec, d.ex = rawDoc, dec, ex
	d.streams = map[raw.ObjectRef][]byte{}
	d.filters = filters.NewPipeline(
		[]filters.Decoder{
			zlibDecoder{},
			filters.NewLZWDecoder(),
			filters.NewASCII85Decoder(),
			filters.NewASCIIHexDecoder(),
		},
		filters.Limits{MaxDecompressedSize: d.maxBytes},
	)
	for ref := range d.raw.Objects {
		if ref.Num >= d.nextNum {
			d.nextNum = ref.Num + 1
		}
	}

	d.pages = d.collectPages()
	if len(d.pages) == 0 {
		return nil, serviceerrors.NewDocumentUnavailableError(d.ref, fmt.Errorf("document has no pages"))
	}
	return d, nil
}

// Close releases the document. Further calls fail with DOCUMENT_UNAVAILABLE.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.raw, d.dec, d.ex, d.state, d.streams = nil, nil, nil, nil, nil
	return nil
}

func (d *Document) checkOpen() error {
	if d.closed {
		return serviceerrors.NewDocumentUnavailableError(d.ref, fmt.Errorf("document is closed"))
	}
	return nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pages)
}

// PageSize returns the width and height of a page's media box.
func (d *Document) PageSize(page int) (float64, float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return 0, 0, err
	}
	e, err := d.pageEntry(page)
	if err != nil {
		return 0, 0, err
	}
	return e.mediaBox[2] - e.mediaBox[0], e.mediaBox[3] - e.mediaBox[1], nil
}

// PageRect returns the page bounds in native coordinates.
func (d *Document) PageRect(page int) (geometry.Rect, error) {
	w, h, err := d.PageSize(page)
	if err != nil {
		return geometry.Rect{}, err
	}
	return geometry.NewRect(0, 0, w, h), nil
}

func (d *Document) pageEntry(page int) (pageEntry, error) {
	if page < 0 || page >= len(d.pages) {
		return pageEntry{}, serviceerrors.NewInvalidParameterError("page", page)
	}
	return d.pages[page], nil
}

// page returns the lazily decoded state of a page. Callers hold d.mu.
func (d *Document) page(page int) (*pageState, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if st, ok := d.state[page]; ok {
		return st, nil
	}
	e, err := d.pageEntry(page)
	if err != nil {
		return nil, err
	}

	st := &pageState{
		entry:     e,
		resources: e.resources,
		fonts:     map[string]*font{},
	}
	if st.resources == nil {
		st.resources = raw.Dict()
	}
	st.ops, st.decodeErr = decodeOps(d.pageContent(e.dict))
	d.state[page] = st
	return st, nil
}

// pageContent concatenates the page's content streams.
func (d *Document) pageContent(page *raw.DictObj) []byte {
	contents, ok := page.KV["Contents"]
	if !ok {
		return nil
	}
	if arr := d.array(contents); arr != nil {
		var buf bytes.Buffer
		for _, it := range arr.Items {
			buf.Write(d.streamData(it))
			buf.WriteByte('\n')
		}
		return buf.Bytes()
	}
	return d.streamData(contents)
}

// fontFor resolves a font resource name against a resource dictionary, caching per page.
func (d *Document) fontFor(st *pageState, res *raw.DictObj, name string) *font {
	fonts := d.getDict(res, "Font")
	obj, ok := raw.Object(nil), false
	if fonts != nil {
		obj, ok = fonts.KV[name]
	}
	if !ok {
		return defaultFont
	}
	key := name
	if ref, isRef := obj.(raw.RefObj); isRef {
		key = ref.Ref().String()
	}
	if f, ok := st.fonts[key]; ok {
		return f
	}
	f := d.loadFont(obj)
	st.fonts[key] = f
	return f
}

// newObject stores obj under a fresh object number.
func (d *Document) newObject(obj raw.Object) raw.RefObj {
	ref := raw.Ref(d.nextNum, 0)
	d.nextNum++
	d.raw.Objects[ref.Ref()] = obj
	return ref
}

// toPDF converts a native point to PDF user space on the given page.
func (e pageEntry) toPDF(x, y float64) (float64, float64) {
	return x + e.mediaBox[0], e.mediaBox[3] - y
}

// toNative converts a PDF user-space point to native coordinates.
func (e pageEntry) toNative(x, y float64) (float64, float64) {
	return x - e.mediaBox[0], e.mediaBox[3] - y
}

// rectToNative converts a PDF user-space box to a native rect.
func (e pageEntry) rectToNative(llx, lly, urx, ury float64) geometry.Rect {
	x0, y0 := e.toNative(llx, ury)
	x1, y1 := e.toNative(urx, lly)
	return geometry.NewRect(x0, y0, x1, y1)
}
