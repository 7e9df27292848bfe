// Package detect finds the text inside a page rectangle.
//
// Strategies run in a fixed order of increasing cost (form field, precise
// layout, word clustering, OCR) and the first one producing non-blank text
// wins. Exhausting every strategy is not an error: the result carries the
// None source and empty text.
package detect

import (
	"context"
	"image"
	"strings"
	"time"

	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
	"github.com/adverant/nexus/pdfplaceholder/internal/logging"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
	"github.com/adverant/nexus/pdfplaceholder/internal/pdfdoc"
	"github.com/adverant/nexus/pdfplaceholder/internal/pdfwords"
)

// Document is the read-only page access the strategies need.
// *pdfdoc.Document satisfies it.
type Document interface {
	PageCount() int
	Widgets(page int) ([]pdfdoc.Widget, error)
	TextRuns(page int) ([]pdfdoc.TextRun, error)
	RenderRegion(page int, r geometry.Rect, scale float64) (*image.Gray, error)
}

// WordSource is the independent word-level engine. *pdfwords.Reader satisfies it.
type WordSource interface {
	Within(page int, r geometry.Rect) ([]pdfwords.Word, error)
}

// Recognizer turns a raster into plain text.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// Query is one detection request against an open document.
type Query struct {
	Doc   Document
	Words WordSource // nil when the word engine could not read the file
	Page  int
	Rect  geometry.Rect
}

// Outcome is what a single strategy found.
type Outcome struct {
	Text  string
	Lines []model.LineInfo
}

// Empty reports whether the outcome carries no visible text.
func (o Outcome) Empty() bool {
	return strings.TrimSpace(o.Text) == ""
}

// Strategy is one step of the cascade.
type Strategy interface {
	Source() model.DetectionSource
	Detect(ctx context.Context, q Query) (Outcome, error)
}

// Cascade runs strategies in order until one finds text.
type Cascade struct {
	strategies []Strategy
	logger     *logging.Logger
}

// Options tune the cascade.
type Options struct {
	// Recognizer is nil when OCR was unavailable at startup; the OCR step is then never attempted.
	Recognizer Recognizer
	OCRScale   float64
}

// NewCascade builds the standard strategy list.
func NewCascade(opts Options) *Cascade {
	strategies := []Strategy{
		FormField{},
		PreciseLayout{},
		WordClustering{Margin: ClusterMargin},
	}
	if opts.Recognizer != nil {
		scale := opts.OCRScale
		if scale <= 0 {
			scale = DefaultOCRScale
		}
		strategies = append(strategies, OCR{Recognizer: opts.Recognizer, Scale: scale})
	}
	return NewCascadeWith(strategies...)
}

// NewCascadeWith builds a cascade from an explicit strategy list.
func NewCascadeWith(strategies ...Strategy) *Cascade {
	return &Cascade{
		strategies: strategies,
		logger:     logging.NewLogger("Detect"),
	}
}

// OCRAvailable reports whether an OCR strategy is configured.
func (c *Cascade) OCRAvailable() bool {
	for _, s := range c.strategies {
		if s.Source() == model.SourceOCR {
			return true
		}
	}
	return false
}

// Detect validates the query and runs the cascade.
func (c *Cascade) Detect(ctx context.Context, q Query) (model.DetectionResult, error) {
	if err := q.Rect.Validate(q.Page); err != nil {
		return model.DetectionResult{}, err
	}
	if q.Page < 0 || q.Page >= q.Doc.PageCount() {
		r := q.Rect
		return model.DetectionResult{}, svcerrors.NewInvalidRectError(q.Page, r.X0, r.Y0, r.X1, r.Y1, "page out of range")
	}
	if q.Rect.IsEmpty() {
		return model.NoText(q.Rect), nil
	}

	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return model.DetectionResult{}, err
		}

		start := time.Now()
		out, err := s.Detect(ctx, q)
		if err != nil {
			c.logger.Warn("Strategy failed, continuing",
				"strategy", s.Source(), "page", q.Page, "rect", q.Rect.String(), "error", err)
			continue
		}
		if out.Empty() {
			c.logger.Debug("Strategy found nothing",
				"strategy", s.Source(), "duration", time.Since(start))
			continue
		}

		lines := out.Lines
		if lines == nil {
			lines = []model.LineInfo{}
		}
		c.logger.Debug("Text detected",
			"strategy", s.Source(), "lines", len(lines), "duration", time.Since(start))
		return model.DetectionResult{
			Text:   out.Text,
			Source: s.Source(),
			Lines:  lines,
			Rect:   q.Rect,
		}, nil
	}
	return model.NoText(q.Rect), nil
}
