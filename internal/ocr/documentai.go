package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
)

// DocumentAIConfig identifies a Document AI OCR processor.
type DocumentAIConfig struct {
	ProjectID       string
	Location        string
	ProcessorID     string
	CredentialsFile string
}

func (c DocumentAIConfig) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
}

// DocumentAIEngine sends regions to a Google Document AI processor.
type DocumentAIEngine struct {
	cfg    DocumentAIConfig
	client *documentai.DocumentProcessorClient
}

// NewDocumentAIEngine dials the regional endpoint. The client is shared by all calls.
func NewDocumentAIEngine(ctx context.Context, cfg DocumentAIConfig) (*DocumentAIEngine, error) {
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, fmt.Errorf("document AI project and processor are required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}

	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Document AI client: %w", err)
	}
	return &DocumentAIEngine{cfg: cfg, client: client}, nil
}

func (e *DocumentAIEngine) Name() string { return "documentai" }

func (e *DocumentAIEngine) Recognize(ctx context.Context, png []byte) (*Result, error) {
	startTime := time.Now()

	req := &documentaipb.ProcessRequest{
		Name: e.cfg.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  png,
				MimeType: "image/png",
			},
		},
		SkipHumanReview: true,
	}

	resp, err := e.client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to process region: %w", err)
	}

	doc := resp.GetDocument()
	return &Result{
		Text:       strings.TrimSpace(doc.GetText()),
		Confidence: pageConfidence(doc),
		Engine:     e.Name(),
		Duration:   time.Since(startTime),
	}, nil
}

// pageConfidence averages the layout confidence of the returned pages.
func pageConfidence(doc *documentaipb.Document) float64 {
	pages := doc.GetPages()
	if len(pages) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pages {
		sum += float64(p.GetLayout().GetConfidence())
	}
	return sum / float64(len(pages))
}

// Probe fetches the processor definition, which checks credentials and the processor id.
func (e *DocumentAIEngine) Probe(ctx context.Context) error {
	_, err := e.client.GetProcessor(ctx, &documentaipb.GetProcessorRequest{Name: e.cfg.processorName()})
	if err != nil {
		return fmt.Errorf("document AI processor %s unavailable: %w", e.cfg.ProcessorID, err)
	}
	return nil
}

func (e *DocumentAIEngine) Close() error {
	return e.client.Close()
}
