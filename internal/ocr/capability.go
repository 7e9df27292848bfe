package ocr

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/pdfplaceholder/internal/config"
	"github.com/adverant/nexus/pdfplaceholder/internal/logging"
)

// Capability records whether OCR can be used by this process. It is decided
// once at startup and never re-evaluated.
type Capability struct {
	Available bool   `json:"available"`
	Engine    string `json:"engine,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// probeTimeout bounds the startup check.
const probeTimeout = 15 * time.Second

// Setup builds and probes the configured engine. On any failure it returns a
// nil pool and a Capability explaining why; OCR is then skipped for the
// lifetime of the process.
func Setup(ctx context.Context, cfg *config.Config) (*Pool, Capability) {
	logger := logging.NewLogger("OCR")

	engine, err := newEngine(ctx, cfg)
	if err != nil {
		logger.Warn("OCR disabled", "engine", cfg.OCREngine, "reason", err)
		return nil, Capability{Engine: cfg.OCREngine, Reason: err.Error()}
	}
	if engine == nil {
		return nil, Capability{Engine: "none", Reason: "disabled by configuration"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := engine.Probe(probeCtx); err != nil {
		engine.Close()
		logger.Warn("OCR disabled", "engine", engine.Name(), "reason", err)
		return nil, Capability{Engine: engine.Name(), Reason: err.Error()}
	}

	logger.Info("OCR available", "engine", engine.Name(), "workers", cfg.OCRWorkers, "timeout", cfg.OCRTimeout)
	return NewPool(engine, cfg.OCRWorkers, cfg.OCRTimeout), Capability{Available: true, Engine: engine.Name()}
}

func newEngine(ctx context.Context, cfg *config.Config) (Engine, error) {
	switch cfg.OCREngine {
	case "none", "":
		return nil, nil
	case "tesseract":
		return NewTesseractEngine(TesseractConfig{Languages: cfg.TesseractLanguages}), nil
	case "documentai":
		return NewDocumentAIEngine(ctx, DocumentAIConfig{
			ProjectID:       cfg.DocumentAIProjectID,
			Location:        cfg.DocumentAILocation,
			ProcessorID:     cfg.DocumentAIProcessorID,
			CredentialsFile: cfg.GoogleCredentialsFile,
		})
	}
	return nil, fmt.Errorf("unknown OCR engine %q", cfg.OCREngine)
}
