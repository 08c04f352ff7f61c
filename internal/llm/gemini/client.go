// Package gemini implements the fallback extractor on Google's Gemini API.
// The original document goes to the model inline next to the OCR text.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/joseph-ayodele/health-report-parser/internal/fallback"
	"github.com/joseph-ayodele/health-report-parser/internal/llm"
)

const DefaultModel = "gemini-2.5-flash"

// Config for the Gemini client.
type Config struct {
	APIKey      string // if empty, falls back to env GEMINI_API_KEY
	Model       string
	Temperature float32
	MaxFileSize int64 // documents above this are sent as text only
}

// generator is the slice of *genai.Models the client uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Client struct {
	cfg    Config
	models generator
	logger *slog.Logger
}

// NewClient connects to the Gemini API backend.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: GEMINI_API_KEY is not set")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newClient(cfg, gc.Models, logger), nil
}

func newClient(cfg Config, models generator, logger *slog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 100 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, models: models, logger: logger}
}

// Extract sends the prompt, the OCR text and, when small enough, the document
// bytes. It returns the model's text reply.
func (c *Client) Extract(ctx context.Context, in fallback.Input) ([]byte, error) {
	rid := uuid.NewString()
	start := time.Now()

	attach := len(in.Data) > 0 && in.MIMEType != "" && int64(len(in.Data)) <= c.cfg.MaxFileSize
	parts := []*genai.Part{{Text: llm.UserPrompt(in.Text, attach)}}
	if attach {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: in.Data, MIMEType: in.MIMEType}})
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	temp := c.cfg.Temperature
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: llm.SystemPrompt()}}},
		Temperature:       &temp,
		ResponseMIMEType:  "application/json",
	}

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"provider", "gemini",
		"model", c.cfg.Model,
		"temp", temp,
		"text_len", len(in.Text),
		"document_attached", attach,
	)

	result, err := c.models.GenerateContent(ctx, c.cfg.Model, contents, config)
	if err != nil {
		c.logger.Error("llm.extract.http_error", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		if se := statusError(err); se != nil {
			return nil, fmt.Errorf("gemini generate: %w: %w", se, err)
		}
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		c.logger.Error("llm.extract.empty", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, errors.New("gemini returned empty response")
	}

	c.logger.Info("llm.extract.ok", "req_id", rid, "content_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds())
	return []byte(text), nil
}

// statusError lifts a genai.APIError into an llm.StatusError so the fallback
// stops retrying on permanent 4xx replies.
func statusError(err error) *llm.StatusError {
	var ae genai.APIError
	if errors.As(err, &ae) {
		return &llm.StatusError{Code: ae.Code, Body: []byte(ae.Message)}
	}
	var aep *genai.APIError
	if errors.As(err, &aep) && aep != nil {
		return &llm.StatusError{Code: aep.Code, Body: []byte(aep.Message)}
	}
	return nil
}
