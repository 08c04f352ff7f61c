package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/health-report-parser/internal/fallback"
	"github.com/joseph-ayodele/health-report-parser/internal/llm"
)

// Extract sends the OCR text, plus the document itself when it is an image
// and AttachImages is set, and returns the model's message content.
func (c *Client) Extract(ctx context.Context, in fallback.Input) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New("openai: missing api key")
	}
	rid := uuid.NewString()
	start := time.Now()

	attach := c.shouldAttach(in)
	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"provider", "openai",
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(in.Text),
		"image_attached", attach,
	)

	var userContent any = llm.UserPrompt(in.Text, attach)
	if attach {
		userContent = []map[string]any{
			{"type": "text", "text": llm.UserPrompt(in.Text, true)},
			{"type": "image_url", "image_url": map[string]any{"url": dataURL(in.MIMEType, in.Data)}},
		}
	}
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.SystemPrompt()},
			{"role": "user", "content": userContent},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("openai: %w", err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.extract.no_choices", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, errors.New("no choices in openai response")
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return []byte(content), nil
}

func (c *Client) shouldAttach(in fallback.Input) bool {
	return c.cfg.AttachImages &&
		len(in.Data) > 0 &&
		int64(len(in.Data)) <= c.cfg.MaxImageSize &&
		strings.HasPrefix(in.MIMEType, "image/")
}

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
