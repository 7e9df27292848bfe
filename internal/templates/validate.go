package templates

import (
	"math"
	"strings"
	"unicode/utf8"

	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
)

const (
	maxNameLength  = 255
	maxLabelLength = 100
)

// StyleChecker reports whether a placeholder style can be rendered.
type StyleChecker interface {
	CheckStyle(s *model.PlaceholderStyle) error
}

func validateTemplate(in TemplateInput, pageCount int, styles StyleChecker) error {
	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(in.Name) > maxNameLength {
		return svcerrors.NewInvalidParameterError("name", in.Name)
	}

	seen := make(map[string]bool, len(in.Placeholders))
	for _, p := range in.Placeholders {
		if strings.TrimSpace(p.Label) == "" || utf8.RuneCountInString(p.Label) > maxLabelLength {
			return svcerrors.NewInvalidParameterError("label", p.Label)
		}
		if seen[p.Label] {
			return svcerrors.NewDuplicateLabelError(p.Label)
		}
		seen[p.Label] = true

		if err := p.Rect.Validate(p.Page); err != nil {
			return err
		}
		if p.Page < 0 || p.Page >= pageCount {
			r := p.Rect
			return svcerrors.NewInvalidRectError(p.Page, r.X0, r.Y0, r.X1, r.Y1, "page out of range")
		}
		if p.DetectionSource != "" && !p.DetectionSource.Valid() {
			return svcerrors.NewInvalidParameterError("detection_source", string(p.DetectionSource))
		}
		for _, l := range p.Lines {
			if !finite(l.Baseline) || !finite(l.Size) || l.Size < 0 {
				return svcerrors.NewInvalidParameterError("lines_data", l)
			}
		}
		if p.Style != nil && styles != nil {
			if err := styles.CheckStyle(p.Style); err != nil {
				return svcerrors.NewInvalidParameterError("style", err.Error())
			}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
