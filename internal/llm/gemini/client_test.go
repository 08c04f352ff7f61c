package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/joseph-ayodele/health-report-parser/internal/fallback"
	"github.com/joseph-ayodele/health-report-parser/internal/llm"
)

type fakeModels struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	reply    string
	err      error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: f.reply}}},
		}},
	}, nil
}

func TestExtractSendsDocumentInline(t *testing.T) {
	fm := &fakeModels{reply: "```json\n{\"bmi\": 21}\n```"}
	c := newClient(Config{Temperature: 0.1}, fm, nil)

	out, err := c.Extract(context.Background(), fallback.Input{
		Text: "BMI 21", Data: []byte("%PDF-1.7"), MIMEType: "application/pdf",
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"bmi": 21`)

	assert.Equal(t, DefaultModel, fm.model)
	require.Len(t, fm.contents, 1)
	parts := fm.contents[0].Parts
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].Text, "BMI 21")
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "application/pdf", parts[1].InlineData.MIMEType)
	assert.Equal(t, "application/json", fm.config.ResponseMIMEType)
	require.NotNil(t, fm.config.Temperature)
	assert.InDelta(t, 0.1, *fm.config.Temperature, 1e-6)
}

func TestExtractTextOnlyWhenTooLarge(t *testing.T) {
	fm := &fakeModels{reply: `{"bmi": 21}`}
	c := newClient(Config{MaxFileSize: 2}, fm, nil)

	_, err := c.Extract(context.Background(), fallback.Input{Text: "x", Data: []byte("big"), MIMEType: "image/png"})
	require.NoError(t, err)
	assert.Len(t, fm.contents[0].Parts, 1)
}

func TestExtractErrors(t *testing.T) {
	c := newClient(Config{}, &fakeModels{err: errors.New("quota")}, nil)
	_, err := c.Extract(context.Background(), fallback.Input{Text: "x"})
	assert.ErrorContains(t, err, "quota")

	c = newClient(Config{}, &fakeModels{reply: "  "}, nil)
	_, err = c.Extract(context.Background(), fallback.Input{Text: "x"})
	assert.ErrorContains(t, err, "empty response")
}

func TestExtractMapsAPIErrorsToRetryable(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
	}{
		{400, false},
		{401, false},
		{403, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		c := newClient(Config{}, &fakeModels{err: genai.APIError{Code: tt.code, Message: "denied"}}, nil)
		_, err := c.Extract(context.Background(), fallback.Input{Text: "x"})
		require.Error(t, err)

		var se *llm.StatusError
		require.ErrorAs(t, err, &se, "code %d", tt.code)
		assert.Equal(t, tt.code, se.Code)
		assert.Equal(t, tt.retryable, se.Retryable(), "code %d", tt.code)
	}
}

func TestFallbackStopsOnPermanentGeminiError(t *testing.T) {
	fm := &countingModels{err: genai.APIError{Code: 403, Message: "API key invalid"}}
	c := newClient(Config{}, fm, nil)

	res := fallback.New(c, fallback.WithInitialBackoff(time.Millisecond)).Run(context.Background(), fallback.Input{Text: "x"})

	assert.True(t, res.Exhausted)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, fm.calls)
}

type countingModels struct {
	calls int
	err   error
}

func (f *countingModels) GenerateContent(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	return nil, f.err
}
