package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/health-report-parser/internal/common"
)

// Pdftoppm rasterizes PDFs with poppler's pdftoppm into PNG pages.
type Pdftoppm struct {
	cfg  Config
	opts options
}

func NewPdftoppm(cfg Config, opts ...Option) *Pdftoppm {
	return &Pdftoppm{cfg: cfg.withDefaults(), opts: buildOptions(opts)}
}

// ToImages renders every page (up to MaxPages) at dpi; dpi <= 0 uses the
// configured default.
func (p *Pdftoppm) ToImages(ctx context.Context, pdf []byte, dpi int) ([]Image, error) {
	if dpi <= 0 {
		dpi = p.cfg.DPI
	}
	if len(pdf) == 0 {
		return nil, common.NewAppError(common.CodeConversionFailed, "empty PDF", nil)
	}

	tmpDir, err := os.MkdirTemp("", "hr-pp-*")
	if err != nil {
		return nil, common.NewAppError(common.CodeConversionFailed, "temp dir", err)
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			p.opts.logger.Warn("ocr.tempdir.cleanup_failed", "dir", path, "error", err)
		}
	}(tmpDir)

	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, common.NewAppError(common.CodeConversionFailed, "write pdf", err)
	}
	prefix := filepath.Join(tmpDir, "page")

	args := []string{"-r", strconv.Itoa(dpi), "-png"}
	if p.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(p.cfg.MaxPages))
	}
	args = append(args, in, prefix)

	cctx, cancel := p.cfg.commandContext(ctx)
	defer cancel()
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	if _, errb, err := p.opts.runner.Run(cctx, p.cfg.Pdftoppm, args...); err != nil {
		return nil, common.NewAppError(common.CodeConversionFailed,
			"pdftoppm: "+truncate(strings.TrimSpace(string(errb)), 200), err)
	}

	// collect generated pngs (page-1.png, page-2.png, ... or zero padded)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Slice(matches, func(i, j int) bool { return pageNumber(matches[i]) < pageNumber(matches[j]) })
	if p.cfg.MaxPages > 0 && len(matches) > p.cfg.MaxPages {
		matches = matches[:p.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, common.NewAppError(common.CodeConversionFailed, "no pages rendered", nil)
	}

	images := make([]Image, 0, len(matches))
	for i, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, common.NewAppError(common.CodeConversionFailed, fmt.Sprintf("read page %d", i+1), err)
		}
		images = append(images, Image{Page: i + 1, Data: data})
	}
	p.opts.logger.Debug("ocr.rasterize.ok", "pages", len(images), "dpi", dpi)
	return images, nil
}

func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	i := strings.LastIndexByte(base, '-')
	n, err := strconv.Atoi(base[i+1:])
	if err != nil {
		return 0
	}
	return n
}
