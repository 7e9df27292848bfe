package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine runs OCR locally through gosseract.
type TesseractEngine struct {
	languages []string
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Languages []string
}

// NewTesseractEngine creates a Tesseract engine. Languages default to English.
func NewTesseractEngine(cfg TesseractConfig) *TesseractEngine {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &TesseractEngine{languages: langs}
}

func (t *TesseractEngine) Name() string { return "tesseract" }

// Recognize treats the image as a single uniform block of text, which suits
// the small clipped regions the cascade sends.
func (t *TesseractEngine) Recognize(ctx context.Context, data []byte) (*Result, error) {
	startTime := time.Now()

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return nil, fmt.Errorf("failed to set languages: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return &Result{
		Text:       strings.TrimSpace(text),
		Confidence: wordConfidence(client),
		Engine:     t.Name(),
		Duration:   time.Since(startTime),
	}, nil
}

// wordConfidence averages Tesseract's per-word confidence.
func wordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes)) / 100
}

// Probe runs a recognition on a blank image so missing libraries or
// traineddata files are discovered at startup rather than per request.
func (t *TesseractEngine) Probe(ctx context.Context) error {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	if _, err := t.Recognize(ctx, buf.Bytes()); err != nil {
		return fmt.Errorf("tesseract %s unavailable: %w", gosseract.Version(), err)
	}
	return nil
}

func (t *TesseractEngine) Close() error { return nil }
