package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"github.com/disintegration/imaging"

	"github.com/joseph-ayodele/health-report-parser/internal/common"
)

// Preprocessing defaults, tuned for phone photos of paper reports.
const (
	DefaultMinEdge     = 1000
	DefaultMaxEdge     = 2000
	DefaultDarkBelow   = 80
	DefaultBrightAbove = 180
	DefaultContrast    = 20
)

// Preparer rewrites a photographed page before recognition.
type Preparer interface {
	Prepare(ctx context.Context, img Image) (Image, error)
}

// PreprocessConfig bounds the resize window and the brightness band outside
// which contrast is corrected. Zero values take the defaults.
type PreprocessConfig struct {
	MinEdge     int
	MaxEdge     int
	DarkBelow   float64
	BrightAbove float64
	Contrast    float64
}

func (c PreprocessConfig) withDefaults() PreprocessConfig {
	if c.MinEdge <= 0 {
		c.MinEdge = DefaultMinEdge
	}
	if c.MaxEdge <= 0 {
		c.MaxEdge = DefaultMaxEdge
	}
	if c.DarkBelow <= 0 {
		c.DarkBelow = DefaultDarkBelow
	}
	if c.BrightAbove <= 0 {
		c.BrightAbove = DefaultBrightAbove
	}
	if c.Contrast <= 0 {
		c.Contrast = DefaultContrast
	}
	return c
}

// Preprocessor applies EXIF orientation, scales the shorter edge up to
// MinEdge or the longer edge down to MaxEdge, and corrects gamma and
// contrast for pages that are too dark or too bright. The result is PNG.
type Preprocessor struct {
	cfg    PreprocessConfig
	logger *slog.Logger
}

func NewPreprocessor(cfg PreprocessConfig, logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{cfg: cfg.withDefaults(), logger: logger}
}

func (p *Preprocessor) Prepare(ctx context.Context, img Image) (Image, error) {
	if err := ctx.Err(); err != nil {
		return img, err
	}
	start := time.Now()
	data := img.Data
	if len(data) == 0 {
		b, err := os.ReadFile(img.Path)
		if err != nil {
			return img, common.NewAppError(common.CodeRecognitionFailed, "read image", err)
		}
		data = b
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return img, common.NewAppError(common.CodeRecognitionFailed, "decode image", err)
	}
	b := src.Bounds()
	out := p.resize(src)
	brightness := MeanBrightness(out)
	switch {
	case brightness < p.cfg.DarkBelow:
		out = imaging.AdjustContrast(imaging.AdjustGamma(out, 1.5), p.cfg.Contrast)
	case brightness > p.cfg.BrightAbove:
		out = imaging.AdjustContrast(imaging.AdjustGamma(out, 0.7), p.cfg.Contrast)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return img, common.NewAppError(common.CodeRecognitionFailed, "encode image", err)
	}
	ob := out.Bounds()
	p.logger.Debug("ocr.preprocess.ok",
		"page", img.Page,
		"from", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		"to", fmt.Sprintf("%dx%d", ob.Dx(), ob.Dy()),
		"brightness", brightness,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Image{Page: img.Page, Data: buf.Bytes()}, nil
}

func (p *Preprocessor) resize(src image.Image) image.Image {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	short, long := min(w, h), max(w, h)
	if short == 0 {
		return src
	}
	var scale float64
	filter := imaging.CatmullRom
	switch {
	case short < p.cfg.MinEdge:
		scale = float64(p.cfg.MinEdge) / float64(short)
	case long > p.cfg.MaxEdge:
		scale = float64(p.cfg.MaxEdge) / float64(long)
		filter = imaging.Box
	default:
		return src
	}
	return imaging.Resize(src, int(float64(w)*scale), int(float64(h)*scale), filter)
}

// MeanBrightness is the mean luma of img on a 0..255 scale.
func MeanBrightness(img image.Image) float64 {
	g := imaging.Grayscale(img)
	if len(g.Pix) == 0 {
		return 0
	}
	var sum uint64
	for i := 0; i < len(g.Pix); i += 4 {
		sum += uint64(g.Pix[i])
	}
	return float64(sum) / float64(len(g.Pix)/4)
}
