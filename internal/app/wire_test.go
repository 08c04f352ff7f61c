package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/ocr"
)

func testConfig() *common.Config {
	return &common.Config{
		Database: common.DatabaseConfig{
			Driver: "sqlite",
			DSN:    fmt.Sprintf("file:%s?mode=memory&_pragma=foreign_keys(1)", uuid.NewString()),
		},
		OCR:      common.OCRConfig{DPI: 300},
		LLM:      common.LLMConfig{Provider: "gemini"},
		Pipeline: common.PipelineConfig{FallbackEnabled: true, FallbackThreshold: 0.7, MaxRetries: 3, BatchConcurrency: 2},
	}
}

func TestFallbackExtractorWithoutKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	fx, err := FallbackExtractor(context.Background(), testConfig(), slog.Default())
	require.NoError(t, err)
	assert.Nil(t, fx)
}

func TestFallbackExtractorProviders(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.OpenAIAPIKey = "sk-test"
	fx, err := FallbackExtractor(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	assert.NotNil(t, fx)

	cfg.LLM.Provider = "claude"
	cfg.LLM.GeminiAPIKey = "k"
	_, err = FallbackExtractor(context.Background(), cfg, slog.Default())
	assert.ErrorIs(t, err, common.ErrConfig)

	cfg.Pipeline.FallbackEnabled = false
	fx, err = FallbackExtractor(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	assert.Nil(t, fx)
}

func TestNewPipelineDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	p, err := NewPipeline(context.Background(), testConfig(), slog.Default())
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestNewPipelineBadTemplatesFile(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.TemplatesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := NewPipeline(context.Background(), cfg, slog.Default())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Pipeline.GuidelinesFile = filepath.Join(t.TempDir(), "g.yaml")
	require.NoError(t, os.WriteFile(cfg.Pipeline.GuidelinesFile, []byte("metrics: ["), 0o600))
	_, err = NewPipeline(context.Background(), cfg, slog.Default())
	assert.Error(t, err)
}

func TestPreparerFollowsConfig(t *testing.T) {
	cfg := testConfig()
	assert.Nil(t, Preparer(cfg, slog.Default()))

	cfg.OCR.Preprocess = true
	assert.IsType(t, &ocr.Preprocessor{}, Preparer(cfg, slog.Default()))
}

func TestCacheNamespaceFollowsTemplates(t *testing.T) {
	def, err := CacheNamespace(testConfig())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(def, "2024.11:"), def)

	cfg := testConfig()
	cfg.Pipeline.TemplatesFile = filepath.Join(t.TempDir(), "t.yaml")
	require.NoError(t, os.WriteFile(cfg.Pipeline.TemplatesFile, []byte(`generic:
  id: generic
  name: Minimal
  threshold: 0.5
  fields:
    - name: heartRate
      pattern: '(?i)pulse\s*:?\s*(\d+)'
`), 0o600))
	custom, err := CacheNamespace(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, def, custom)
	assert.True(t, strings.HasPrefix(custom, "2024.11:"), custom)
}

func TestOpenStoreMigrates(t *testing.T) {
	db, err := OpenStore(context.Background(), testConfig(), slog.Default())
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, "sqlite3", db.Dialect())
}
