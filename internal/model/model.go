// Package model holds the records shared by detection, generation, storage and the API.
package model

import (
	"time"

	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
)

// DetectionSource names the cascade strategy that produced a result.
type DetectionSource string

const (
	SourceFormField      DetectionSource = "Form Field"
	SourcePreciseLayout  DetectionSource = "Precise Layout"
	SourceWordClustering DetectionSource = "Word Clustering"
	SourceOCR            DetectionSource = "OCR"
	SourceNone           DetectionSource = "None"
)

// Valid reports whether s is one of the known sources.
func (s DetectionSource) Valid() bool {
	switch s {
	case SourceFormField, SourcePreciseLayout, SourceWordClustering, SourceOCR, SourceNone:
		return true
	}
	return false
}

// LineInfo is one visual line of detected text. Baseline is in page-native units.
type LineInfo struct {
	Text     string  `json:"text"`
	Baseline float64 `json:"baseline"`
	Size     float64 `json:"size"`
}

// DetectionResult is the outcome of running the cascade on one rect.
type DetectionResult struct {
	Text   string          `json:"detected_text"`
	Source DetectionSource `json:"detection_source"`
	Lines  []LineInfo      `json:"lines_data"`
	Rect   geometry.Rect   `json:"-"`
}

// NoText is the result returned when nothing is found.
func NoText(r geometry.Rect) DetectionResult {
	return DetectionResult{Source: SourceNone, Lines: []LineInfo{}, Rect: r}
}

// PlaceholderStyle overrides the render policy for one placeholder. Zero values mean "use the policy".
type PlaceholderStyle struct {
	FontSize        float64 `json:"font_size,omitempty"`
	FontName        string  `json:"font_name,omitempty"`
	FontWeight      string  `json:"font_weight,omitempty"`
	Color           string  `json:"color,omitempty"`
	BackgroundColor string  `json:"background_color,omitempty"`
	Padding         float64 `json:"padding,omitempty"`
}

// Placeholder is a labeled region of a template page.
type Placeholder struct {
	Label           string            `json:"label"`
	Page            int               `json:"page"`
	Rect            geometry.Rect     `json:"-"`
	DetectedText    string            `json:"detected_text,omitempty"`
	DetectionSource DetectionSource   `json:"detection_source,omitempty"`
	Lines           []LineInfo        `json:"lines_data,omitempty"`
	Style           *PlaceholderStyle `json:"style,omitempty"`
}

// Template is an immutable set of placeholders over a source document.
type Template struct {
	ID           string        `json:"id"`
	DocumentID   string        `json:"pdf_id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Placeholders []Placeholder `json:"placeholders"`
	CreatedAt    time.Time     `json:"created_at"`
}

// StoredDocument is an uploaded PDF.
type StoredDocument struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	BlobKey          string    `json:"-"`
	FileSize         int64     `json:"file_size"`
	PageCount        int       `json:"page_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// Artifact is a generated output file.
type Artifact struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	BlobKey   string    `json:"-"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// JobStatus is the lifecycle state of an asynchronous generation.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// GenerationJob tracks an asynchronous generation.
type GenerationJob struct {
	ID                   string    `json:"id"`
	TemplateID           string    `json:"template_id"`
	Status               JobStatus `json:"status"`
	ArtifactID           string    `json:"artifact_id,omitempty"`
	PlaceholdersReplaced int       `json:"placeholders_replaced"`
	Warnings             []string  `json:"warnings,omitempty"`
	Error                string    `json:"error,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
