// Package render produces filled documents: every placeholder region is
// redacted and its replacement text drawn in a standard font sized and placed
// to approximate the original.
package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adverant/nexus/pdfplaceholder/internal/config"
	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
	"github.com/adverant/nexus/pdfplaceholder/internal/logging"
	"github.com/adverant/nexus/pdfplaceholder/internal/metrics"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
	"github.com/adverant/nexus/pdfplaceholder/internal/pdfdoc"
)

// Document is the mutable working copy a generation owns. *pdfdoc.Document satisfies it.
type Document interface {
	Redact(page int, r geometry.Rect, fill pdfdoc.RGB) error
	DrawText(page int, x, baseline float64, text string, face metrics.Face, size float64, c pdfdoc.RGB) error
	Bytes() ([]byte, error)
	Close() error
}

// Measurer returns the width of text at a size. *metrics.Metrics satisfies it.
type Measurer interface {
	StringWidth(face metrics.Face, text string, size float64) (float64, error)
}

// State is the progress of one placeholder through generation.
type State string

const (
	StatePending       State = "pending"
	StateRedacted      State = "redacted"
	StateDrawn         State = "drawn"
	StateRedactedBlank State = "redacted_blank"
)

// Outcome describes what happened to one placeholder.
type Outcome struct {
	Label   string    `json:"label"`
	State   State     `json:"state"`
	Sizes   []float64 `json:"sizes,omitempty"`
	Warning string    `json:"warning,omitempty"`
}

// Report summarizes a generation.
type Report struct {
	Outcomes             []Outcome `json:"placeholders"`
	PlaceholdersReplaced int       `json:"placeholders_replaced"`
	Warnings             []string  `json:"warnings"`
}

// Generator applies replacements to a working document.
type Generator struct {
	policy  config.RenderPolicy
	measure Measurer
	logger  *logging.Logger
}

// NewGenerator creates a generator with the given typography policy.
func NewGenerator(policy config.RenderPolicy, measure Measurer) *Generator {
	return &Generator{
		policy:  policy,
		measure: measure,
		logger:  logging.NewLogger("Render"),
	}
}

// Generate processes placeholders in order and returns the serialized
// document. It takes ownership of doc and closes it on every path.
//
// A redaction failure aborts the whole generation with REDACTION_FAILED and
// no output. Draw failures are reported as warnings and leave the region blank.
func (g *Generator) Generate(ctx context.Context, doc Document, placeholders []model.Placeholder, replacements map[string]string) ([]byte, *Report, error) {
	defer doc.Close()

	startTime := time.Now()
	report := &Report{Warnings: []string{}}

	for _, ph := range placeholders {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}

		out := g.apply(doc, ph, replacements[ph.Label])
		report.Outcomes = append(report.Outcomes, out.Outcome)
		if out.err != nil {
			g.logger.Error("Redaction failed, aborting generation", "label", ph.Label, "page", ph.Page, "error", out.err)
			return nil, report, out.err
		}
		if out.Warning != "" {
			report.Warnings = append(report.Warnings, out.Warning)
		}
		if out.State == StateDrawn {
			report.PlaceholdersReplaced++
		}
	}

	data, err := doc.Bytes()
	if err != nil {
		return nil, report, svcerrors.NewDocumentUnavailableError("generated document", fmt.Errorf("serialize: %w", err))
	}

	g.logger.Info("Document generated",
		"placeholders", len(placeholders),
		"replaced", report.PlaceholdersReplaced,
		"warnings", len(report.Warnings),
		"bytes", len(data),
		"duration", time.Since(startTime))
	return data, report, nil
}

type applied struct {
	Outcome
	err error
}

// apply walks one placeholder through Pending → Redacted → Drawn | RedactedBlank.
func (g *Generator) apply(doc Document, ph model.Placeholder, text string) applied {
	out := applied{Outcome: Outcome{Label: ph.Label, State: StatePending}}

	st, err := g.resolveStyle(ph.Style)
	if err != nil {
		// An unusable style never blocks redaction; fall back to the policy.
		out.Warning = fmt.Sprintf("%s: %v", ph.Label, err)
		st, _ = g.resolveStyle(nil)
	}

	if err := doc.Redact(ph.Page, ph.Rect, st.background); err != nil {
		out.err = svcerrors.NewRedactionFailedError(ph.Label, ph.Page, err)
		return out
	}
	out.State = StateRedacted

	text = strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\r", "\n")
	if strings.TrimSpace(text) == "" {
		out.State = StateRedactedBlank
		return out
	}

	drawn := 0
	for _, ln := range g.layout(ph, st, strings.Split(text, "\n")) {
		if ln.err == nil {
			ln.err = doc.DrawText(ph.Page, ln.x, ln.baseline, ln.text, st.face, ln.size, st.color)
		}
		if ln.err != nil {
			warning := svcerrors.NewDrawFailureError(ph.Label, ln.err).Error()
			g.logger.Warn("Replacement not drawn", "label", ph.Label, "error", ln.err)
			if out.Warning == "" {
				out.Warning = warning
			} else {
				out.Warning += "; " + warning
			}
			continue
		}
		out.Sizes = append(out.Sizes, ln.size)
		drawn++
	}
	if drawn > 0 {
		out.State = StateDrawn
	}
	return out
}
