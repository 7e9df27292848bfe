package storage

import (
	"encoding/json"
	"regexp"

	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
)

// placeholderRecord is the persisted form of a placeholder; the rect is stored
// as [x0, y0, x1, y1].
type placeholderRecord struct {
	Label           string                  `json:"label"`
	Page            int                     `json:"page"`
	Rect            [4]float64              `json:"rect"`
	DetectedText    string                  `json:"detected_text,omitempty"`
	DetectionSource model.DetectionSource   `json:"detection_source,omitempty"`
	Lines           []model.LineInfo        `json:"lines_data,omitempty"`
	Style           *model.PlaceholderStyle `json:"style,omitempty"`
}

func encodePlaceholders(phs []model.Placeholder) ([]byte, error) {
	recs := make([]placeholderRecord, len(phs))
	for i, p := range phs {
		recs[i] = placeholderRecord{
			Label:           p.Label,
			Page:            p.Page,
			Rect:            p.Rect.Array(),
			DetectedText:    p.DetectedText,
			DetectionSource: p.DetectionSource,
			Lines:           p.Lines,
			Style:           p.Style,
		}
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return nil, err
	}
	return sanitizeJSONForPostgres(data), nil
}

func decodePlaceholders(data []byte) ([]model.Placeholder, error) {
	var recs []placeholderRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	phs := make([]model.Placeholder, len(recs))
	for i, r := range recs {
		phs[i] = model.Placeholder{
			Label:           r.Label,
			Page:            r.Page,
			Rect:            geometry.NewRect(r.Rect[0], r.Rect[1], r.Rect[2], r.Rect[3]),
			DetectedText:    r.DetectedText,
			DetectionSource: r.DetectionSource,
			Lines:           r.Lines,
			Style:           r.Style,
		}
	}
	return phs, nil
}

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres strips escapes JSONB rejects. Text extracted from
// PDFs regularly carries NUL and other control characters.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}
