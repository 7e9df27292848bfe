package httpapi

import (
	"fmt"
	"time"

	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
)

// placeholderJSON carries the rect as [x0, y0, x1, y1] in page-native points.
type placeholderJSON struct {
	Label           string                  `json:"label"`
	Page            int                     `json:"page"`
	Rect            []float64               `json:"rect"`
	DetectedText    string                  `json:"detected_text,omitempty"`
	DetectionSource model.DetectionSource   `json:"detection_source,omitempty"`
	Lines           []model.LineInfo        `json:"lines_data,omitempty"`
	Style           *model.PlaceholderStyle `json:"style,omitempty"`
}

func (p placeholderJSON) toModel(i int) (model.Placeholder, error) {
	if len(p.Rect) != 4 {
		return model.Placeholder{}, svcerrors.NewInvalidParameterError(fmt.Sprintf("placeholders[%d].rect", i), p.Rect)
	}
	return model.Placeholder{
		Label:           p.Label,
		Page:            p.Page,
		Rect:            geometry.NewRect(p.Rect[0], p.Rect[1], p.Rect[2], p.Rect[3]),
		DetectedText:    p.DetectedText,
		DetectionSource: p.DetectionSource,
		Lines:           p.Lines,
		Style:           p.Style,
	}, nil
}

func placeholderFromModel(p model.Placeholder) placeholderJSON {
	r := p.Rect.Array()
	return placeholderJSON{
		Label:           p.Label,
		Page:            p.Page,
		Rect:            r[:],
		DetectedText:    p.DetectedText,
		DetectionSource: p.DetectionSource,
		Lines:           p.Lines,
		Style:           p.Style,
	}
}

type templateJSON struct {
	ID           string            `json:"id"`
	DocumentID   string            `json:"pdf_id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Placeholders []placeholderJSON `json:"placeholders"`
	CreatedAt    time.Time         `json:"created_at"`
}

func templateFromModel(t *model.Template) templateJSON {
	out := templateJSON{
		ID:           t.ID,
		DocumentID:   t.DocumentID,
		Name:         t.Name,
		Description:  t.Description,
		Placeholders: make([]placeholderJSON, len(t.Placeholders)),
		CreatedAt:    t.CreatedAt,
	}
	for i, p := range t.Placeholders {
		out.Placeholders[i] = placeholderFromModel(p)
	}
	return out
}

type createTemplateRequest struct {
	DocumentID   string            `json:"pdf_id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Placeholders []placeholderJSON `json:"placeholders"`
}

type detectTextRequest struct {
	Page int      `json:"page"`
	X0   float64  `json:"x0"`
	Y0   float64  `json:"y0"`
	X1   float64  `json:"x1"`
	Y1   float64  `json:"y1"`
	Zoom *float64 `json:"zoom,omitempty"`
}

// rect returns the request rect in page-native space.
func (d detectTextRequest) rect() (geometry.Rect, error) {
	r := geometry.NewRect(d.X0, d.Y0, d.X1, d.Y1)
	if d.Zoom == nil {
		return r, nil
	}
	return geometry.RectToNative(r, *d.Zoom)
}

type detectTextResponse struct {
	DetectedText    string                `json:"detected_text"`
	DetectionSource model.DetectionSource `json:"detection_source"`
	Lines           []model.LineInfo      `json:"lines_data"`
	Rect            [4]float64            `json:"rect"`
}

type generateRequest struct {
	Replacements   map[string]string `json:"replacements"`
	OutputFilename string            `json:"output_filename"`
}

type artifactResponse struct {
	ArtifactID           string            `json:"artifact_id"`
	Filename             string            `json:"filename"`
	Size                 int64             `json:"size"`
	PlaceholdersReplaced int               `json:"placeholders_replaced"`
	Warnings             []string          `json:"warnings"`
	DownloadURL          string            `json:"download_url"`
	DetectedValues       map[string]string `json:"detected_values,omitempty"`
}

type applyRequest struct {
	TargetDocumentID string            `json:"target_pdf_id"`
	Replacements     map[string]string `json:"replacements"`
	DetectAndReplace bool              `json:"detect_and_replace"`
	OutputFilename   string            `json:"output_filename"`
}

type detectAtRequest struct {
	TargetDocumentID string `json:"target_pdf_id"`
}

type detectAtResponse struct {
	TemplateID       string            `json:"template_id"`
	TargetDocumentID string            `json:"target_pdf_id"`
	DetectedValues   map[string]string `json:"detected_values"`
}
