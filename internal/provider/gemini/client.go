package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/receipt-pipeline/internal/provider"
)

// Config for the Gemini-backed providers.
type Config struct {
	APIKey          string
	ExtractionModel string // vision-capable model for receipt extraction
	GenerationModel string // text model for enrichment
	Timeout         time.Duration
}

// Client implements both capability interfaces on top of the Gemini API.
// Extraction sends the image with a structured-output prompt; generation
// sends the summary prompt built by the enrichment stage.
type Client struct {
	client     *genai.Client
	extraction *genai.GenerativeModel
	generation *genai.GenerativeModel
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient creates a client for both capabilities.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.ExtractionModel == "" {
		cfg.ExtractionModel = "gemini-2.5-flash"
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = cfg.ExtractionModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Client{
		client:     client,
		extraction: client.GenerativeModel(cfg.ExtractionModel),
		generation: client.GenerativeModel(cfg.GenerationModel),
		timeout:    cfg.Timeout,
		logger:     logger,
	}, nil
}

// Extract implements provider.ExtractionProvider.
func (c *Client) Extract(ctx context.Context, image []byte, contentType string) (provider.ExtractionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()

	format := strings.TrimPrefix(contentType, "image/")
	if format == contentType {
		// genai.ImageData wants a bare format suffix; PDFs go through Blob.
		format = "png"
	}

	var parts []genai.Part
	if contentType == "application/pdf" {
		parts = []genai.Part{genai.Blob{MIMEType: contentType, Data: image}, genai.Text(extractionPrompt)}
	} else {
		parts = []genai.Part{genai.ImageData(format, image), genai.Text(extractionPrompt)}
	}

	resp, err := c.extraction.GenerateContent(ctx, parts...)
	if err != nil {
		c.logger.Error("gemini.extract.failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return provider.ExtractionResult{}, classify(err)
	}

	text, err := responseText(resp)
	if err != nil {
		return provider.ExtractionResult{}, provider.NewTransientError(err)
	}

	var payload extractionPayload
	cleaned := sliceJSONObject(stripFences(text))
	if cleaned == "" {
		// Nothing JSON-shaped at all; success with empty fields, the stage
		// records it as low confidence.
		c.logger.Warn("gemini.extract.empty_payload", "elapsed_ms", time.Since(start).Milliseconds())
		return provider.ExtractionResult{Raw: []byte(text)}, nil
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		c.logger.Warn("gemini.extract.unparseable", "error", err)
		return provider.ExtractionResult{Raw: []byte(text)}, nil
	}

	res := provider.ExtractionResult{
		Vendor: strings.TrimSpace(payload.Vendor),
		Date:   strings.TrimSpace(payload.Date),
		Total:  strings.TrimSpace(payload.Total),
		Items:  payload.Items,
		Raw:    []byte(text),
	}
	c.logger.Info("gemini.extract.ok",
		"vendor", res.Vendor, "total", res.Total, "items", len(res.Items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

type extractionPayload struct {
	Vendor string              `json:"vendor"`
	Date   string              `json:"date"`
	Total  string              `json:"total"`
	Items  []provider.LineItem `json:"items"`
}

// Generate implements provider.GenerationProvider.
func (c *Client) Generate(ctx context.Context, prompt string) (provider.GenerationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()

	resp, err := c.generation.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		c.logger.Error("gemini.generate.failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return provider.GenerationResult{}, classify(err)
	}

	text, err := responseText(resp)
	if err != nil {
		return provider.GenerationResult{}, provider.NewTransientError(err)
	}

	narrative, normalized := splitNarrativeJSON(text)
	c.logger.Info("gemini.generate.ok",
		"narrative_len", len(narrative), "json_len", len(normalized),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return provider.GenerationResult{
		Narrative:      narrative,
		NormalizedJSON: normalized,
		Raw:            []byte(text),
	}, nil
}

// Close closes the underlying Gemini client.
func (c *Client) Close() error {
	return c.client.Close()
}

// classify maps API errors onto the transient/permanent split the
// coordinator retries on. Throttling and server errors are transient;
// explicit rejections are not.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return provider.NewTransientError(err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests, gerr.Code >= 500:
			return provider.NewTransientError(err)
		default:
			return provider.NewPermanentError(err)
		}
	}
	// Network-level failures without a status code are worth a retry.
	return provider.NewTransientError(err)
}
