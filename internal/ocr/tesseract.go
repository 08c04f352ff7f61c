package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
)

// Line identifies a recognized line inside a page. It is the Region of every
// TextBlock produced by Tesseract.
type Line struct {
	Page, Block, Paragraph, Line int
}

// Tesseract recognizes text by running the tesseract CLI in TSV mode. Each
// output line becomes one TextBlock whose confidence is the mean word
// confidence scaled to 0..1.
type Tesseract struct {
	cfg  Config
	opts options
}

func NewTesseract(cfg Config, opts ...Option) *Tesseract {
	return &Tesseract{cfg: cfg.withDefaults(), opts: buildOptions(opts)}
}

func (t *Tesseract) Recognize(ctx context.Context, img Image) ([]entity.TextBlock, error) {
	path := img.Path
	if path == "" {
		if len(img.Data) == 0 {
			return nil, common.NewAppError(common.CodeRecognitionFailed, "empty image", nil)
		}
		dir, err := os.MkdirTemp("", "hr-ocr-*")
		if err != nil {
			return nil, common.NewAppError(common.CodeRecognitionFailed, "temp dir", err)
		}
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				t.opts.logger.Warn("ocr.tempdir.cleanup_failed", "dir", dir, "error", err)
			}
		}()
		path = filepath.Join(dir, fmt.Sprintf("page-%d.png", img.Page))
		if err := os.WriteFile(path, img.Data, 0o600); err != nil {
			return nil, common.NewAppError(common.CodeRecognitionFailed, "write image", err)
		}
	}

	args := []string{path, "stdout", "-l", t.cfg.TesseractLang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	cctx, cancel := t.cfg.commandContext(ctx)
	defer cancel()
	out, errb, err := t.opts.runner.Run(cctx, t.cfg.Tesseract, args...)
	if err != nil {
		return nil, common.NewAppError(common.CodeRecognitionFailed,
			fmt.Sprintf("tesseract page %d: %s", img.Page, truncate(strings.TrimSpace(string(errb)), 200)), err)
	}
	blocks, err := ParseTSV(out)
	if err != nil {
		return nil, common.NewAppError(common.CodeRecognitionFailed, "tesseract output", err)
	}
	t.opts.logger.Debug("ocr.recognize.ok", "page", img.Page, "blocks", len(blocks))
	return blocks, nil
}

type lineAcc struct {
	key   Line
	words []string
	sum   float64
	n     int
}

// ParseTSV groups tesseract TSV word rows into line blocks, in reading order.
func ParseTSV(tsv []byte) ([]entity.TextBlock, error) {
	rows := strings.Split(strings.ReplaceAll(string(tsv), "\r\n", "\n"), "\n")
	if len(rows) == 0 || !strings.HasPrefix(rows[0], "level") {
		return nil, fmt.Errorf("missing TSV header")
	}

	var lines []*lineAcc
	index := map[Line]*lineAcc{}
	for _, row := range rows[1:] {
		cols := strings.Split(row, "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}
		key := Line{Page: atoi(cols[1]), Block: atoi(cols[2]), Paragraph: atoi(cols[3]), Line: atoi(cols[4])}
		acc, ok := index[key]
		if !ok {
			acc = &lineAcc{key: key}
			index[key] = acc
			lines = append(lines, acc)
		}
		acc.words = append(acc.words, word)
		if conf, err := strconv.ParseFloat(cols[10], 64); err == nil && conf >= 0 {
			acc.sum += conf
			acc.n++
		}
	}

	blocks := make([]entity.TextBlock, 0, len(lines))
	for _, l := range lines {
		conf := 0.0
		if l.n > 0 {
			conf = l.sum / float64(l.n) / 100
		}
		blocks = append(blocks, entity.TextBlock{Text: joinWords(l.words), Confidence: conf, Region: l.key})
	}
	return blocks, nil
}

// joinWords puts a space between words unless either side of the gap is a
// Han character; tesseract splits CJK text into single-character words.
func joinWords(words []string) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			prev, _ := utf8.DecodeLastRuneInString(words[i-1])
			next, _ := utf8.DecodeRuneInString(w)
			if !isCJK(prev) && !isCJK(next) {
				b.WriteByte(' ')
			}
		}
		b.WriteString(w)
	}
	return b.String()
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.In(r, unicode.Hiragana, unicode.Katakana) ||
		(r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFFEF)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

// MeanConfidence averages block confidences; an empty slice scores 0.
func MeanConfidence(blocks []entity.TextBlock) float64 {
	if len(blocks) == 0 {
		return 0
	}
	var sum float64
	for _, b := range blocks {
		sum += b.Confidence
	}
	return sum / float64(len(blocks))
}

// Text joins block texts with newlines.
func Text(blocks []entity.TextBlock) string {
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		lines = append(lines, b.Text)
	}
	return strings.Join(lines, "\n")
}
