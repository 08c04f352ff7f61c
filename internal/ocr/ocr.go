// Package ocr adapts the external recognition and rasterization tools
// (tesseract, pdftoppm) to the pipeline's interfaces.
package ocr

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/health-report-parser/internal/entity"
)

// Image is one page to recognize. Path is used when set; otherwise Data is
// spilled to a temporary file for the engine.
type Image struct {
	Page int
	Path string
	Data []byte
}

// Recognizer turns an image into ordered text blocks. Failures are a single
// RECOGNITION_FAILED error, never partial output.
type Recognizer interface {
	Recognize(ctx context.Context, img Image) ([]entity.TextBlock, error)
}

// Rasterizer renders a PDF into page images. Zero pages is CONVERSION_FAILED.
type Rasterizer interface {
	ToImages(ctx context.Context, pdf []byte, dpi int) ([]Image, error)
}

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "chi_tra+eng"
	TessdataDir   string
	DPI           int // rasterization DPI, default 300
	MaxPages      int // 0 = no limit

	PSM int // page segmentation mode; 0 leaves tesseract's default
	OEM int // 1 = LSTM; 0 leaves tesseract's default

	Timeout time.Duration // per command; 0 = none
}

func (c Config) withDefaults() Config {
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.TesseractLang == "" {
		c.TesseractLang = "chi_tra+eng"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	return c
}

// Option configures the adapters.
type Option func(*options)

type options struct {
	runner Runner
	logger *slog.Logger
}

// WithRunner replaces the exec runner, mainly for tests.
func WithRunner(r Runner) Option { return func(o *options) { o.runner = r } }

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runner == nil {
		// one OpenMP thread per tesseract process; pages already run in parallel
		o.runner = ExecRunner{Logger: o.logger, Env: []string{"OMP_THREAD_LIMIT=1"}}
	}
	return o
}

func (c Config) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return context.WithCancel(ctx)
}
