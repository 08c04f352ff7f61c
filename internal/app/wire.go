// Package app assembles the pipeline and its stores from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/extract"
	"github.com/joseph-ayodele/health-report-parser/internal/fallback"
	"github.com/joseph-ayodele/health-report-parser/internal/guideline"
	"github.com/joseph-ayodele/health-report-parser/internal/llm/gemini"
	"github.com/joseph-ayodele/health-report-parser/internal/llm/openai"
	"github.com/joseph-ayodele/health-report-parser/internal/ocr"
	"github.com/joseph-ayodele/health-report-parser/internal/pipeline"
	"github.com/joseph-ayodele/health-report-parser/internal/repository"
	"github.com/joseph-ayodele/health-report-parser/internal/template"
)

// Guidelines loads the configured guideline table or the built-in one.
func Guidelines(cfg *common.Config) (*guideline.Table, error) {
	if cfg.Pipeline.GuidelinesFile != "" {
		return guideline.LoadFile(cfg.Pipeline.GuidelinesFile)
	}
	return guideline.Default()
}

// Templates loads the configured template registry or the built-in one.
func Templates(cfg *common.Config) (*template.Registry, error) {
	if cfg.Pipeline.TemplatesFile != "" {
		return template.LoadFile(cfg.Pipeline.TemplatesFile)
	}
	return template.Default()
}

// CacheNamespace scopes cached reports to the guideline version and the
// template registry fingerprint, so editing either file invalidates them.
func CacheNamespace(cfg *common.Config) (string, error) {
	guidelines, err := Guidelines(cfg)
	if err != nil {
		return "", err
	}
	templates, err := Templates(cfg)
	if err != nil {
		return "", err
	}
	return guidelines.Version() + ":" + templates.Fingerprint()[:16], nil
}

// Preparer returns the photo preprocessor, or nil when OCR_PREPROCESS is off.
func Preparer(cfg *common.Config, logger *slog.Logger) ocr.Preparer {
	if !cfg.OCR.Preprocess {
		return nil
	}
	return ocr.NewPreprocessor(ocr.PreprocessConfig{
		MinEdge: cfg.OCR.MinEdge,
		MaxEdge: cfg.OCR.MaxEdge,
	}, logger)
}

// FallbackExtractor builds the model client for cfg.LLM.Provider. It returns
// nil without error when the provider has no API key, which leaves the
// fallback disabled.
func FallbackExtractor(ctx context.Context, cfg *common.Config, logger *slog.Logger) (fallback.Extractor, error) {
	if !cfg.Pipeline.FallbackEnabled {
		return nil, nil
	}
	if cfg.LLM.APIKey() == "" {
		logger.Warn("fallback.disabled", "provider", cfg.LLM.Provider, "reason", "no API key")
		return nil, nil
	}
	switch cfg.LLM.Provider {
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:       cfg.LLM.OpenAIAPIKey,
			BaseURL:      cfg.LLM.OpenAIBaseURL,
			Model:        cfg.LLM.OpenAIModel,
			Temperature:  cfg.LLM.Temperature,
			Timeout:      cfg.LLM.Timeout,
			AttachImages: true,
		}, logger), nil
	case "gemini", "":
		c, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.LLM.GeminiAPIKey,
			Model:       cfg.LLM.GeminiModel,
			Temperature: cfg.LLM.Temperature,
			MaxFileSize: cfg.Pipeline.MaxFileSize,
		}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, common.NewAppError(common.CodeConfigError, fmt.Sprintf("unknown fallback provider %q", cfg.LLM.Provider), nil)
}

// NewPipeline wires the OCR tools, templates, guidelines and the optional
// fallback into an orchestrator.
func NewPipeline(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	guidelines, err := Guidelines(cfg)
	if err != nil {
		return nil, fmt.Errorf("load guidelines: %w", err)
	}
	registry, err := Templates(cfg)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	fx, err := FallbackExtractor(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}

	ocrCfg := ocr.Config{
		Pdftoppm:      cfg.OCR.Pdftoppm,
		Tesseract:     cfg.OCR.Tesseract,
		TesseractLang: cfg.OCR.TesseractLang,
		TessdataDir:   cfg.OCR.TessdataDir,
		DPI:           cfg.OCR.DPI,
		MaxPages:      cfg.OCR.MaxPages,
		Timeout:       cfg.OCR.Timeout,
	}
	opts := []pipeline.Option{
		pipeline.WithConcurrency(cfg.Pipeline.BatchConcurrency),
		pipeline.WithDPI(cfg.OCR.DPI),
		pipeline.WithLogger(logger),
	}
	if prep := Preparer(cfg, logger); prep != nil {
		opts = append(opts, pipeline.WithPreparer(prep))
	}
	if fx != nil {
		opts = append(opts, pipeline.WithFallback(fallback.New(fx,
			fallback.WithEnabled(cfg.Pipeline.FallbackEnabled),
			fallback.WithThreshold(cfg.Pipeline.FallbackThreshold),
			fallback.WithMaxRetries(cfg.Pipeline.MaxRetries),
			fallback.WithInitialBackoff(cfg.Pipeline.InitialBackoff),
			fallback.WithAttemptTimeout(cfg.Pipeline.AttemptTimeout),
			fallback.WithLogger(logger),
		)))
	}

	logger.Info("pipeline.ready",
		"templates", registry.Len(),
		"guidelines", guidelines.Version(),
		"fallback", fx != nil,
		"preprocess", cfg.OCR.Preprocess,
		"provider", cfg.LLM.Provider,
	)
	return pipeline.New(
		template.NewMatcher(registry, logger),
		extract.New(guidelines, extract.WithLogger(logger)),
		ocr.NewTesseract(ocrCfg, ocr.WithLogger(logger)),
		ocr.NewPdftoppm(ocrCfg, ocr.WithLogger(logger)),
		opts...,
	), nil
}

// OpenStore connects to the job store and applies the schema.
func OpenStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*repository.DB, error) {
	db, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
