/**
 * OCR engines for the last step of the detection cascade
 *
 * Two backends share one interface: a local Tesseract (offline, free) and
 * Google Document AI (remote). Both receive a PNG of the clipped region and
 * return plain text without geometry.
 */

package ocr

import (
	"context"
	"time"
)

// Engine recognizes text in an encoded image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, png []byte) (*Result, error)
	// Probe verifies the engine can run at all. It is called once at startup.
	Probe(ctx context.Context) error
	Close() error
}

// Result is the outcome of one recognition.
type Result struct {
	Text       string
	Confidence float64 // 0..1, 0 when the engine reports none
	Engine     string
	Duration   time.Duration
}
