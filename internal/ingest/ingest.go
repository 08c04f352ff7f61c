// Package ingest turns files on disk into pipeline documents.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/pipeline"
)

// DefaultMaxFileSize caps a single document.
const DefaultMaxFileSize int64 = 100 << 20

// documentNamespace seeds content-derived document IDs.
var documentNamespace = uuid.MustParse("6f1c8d52-2a4e-4b7e-9d0a-3c5e8f1b7a90")

// Result is the per-file outcome of a directory scan.
type Result struct {
	Path         string
	Document     *pipeline.Document
	Deduplicated bool
	Err          string
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Loader reads documents from the local filesystem.
type Loader struct {
	MaxFileSize int64
	AllowedExts map[string]struct{} // lowercased sans '.'; nil -> constants.AllowedExtensions
	Logger      *slog.Logger
}

func NewLoader(maxFileSize int64, logger *slog.Logger) *Loader {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{MaxFileSize: maxFileSize, Logger: logger}
}

// AllowedExt reports whether ext is accepted by the loader.
func (l *Loader) AllowedExt(ext string) bool {
	allow := l.AllowedExts
	if allow == nil {
		allow = constants.AllowedExtensions
	}
	_, ok := allow[constants.NormalizeExt(ext)]
	return ok
}

// LoadFile reads one file. The document ID is derived from the content hash,
// so the same bytes always get the same ID.
func (l *Loader) LoadFile(path string) (*pipeline.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !l.AllowedExt(ext) {
		return nil, common.NewAppError(common.CodeUnsupportedFormat, fmt.Sprintf("unsupported or missing extension %q", ext), nil)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if info.Size() > l.MaxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), l.MaxFileSize)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	sum := sha256.Sum256(data)
	return &pipeline.Document{
		ID:     uuid.NewSHA1(documentNamespace, sum[:]).String(),
		Path:   abs,
		Data:   data,
		Ext:    ext,
		SHA256: hex.EncodeToString(sum[:]),
	}, nil
}

// ScanDirectory walks root and loads every allowed file, skipping hidden
// entries when asked. Files whose content was already seen in this scan are
// reported as deduplicated and carry no document. Per-file failures are
// recorded in the results; only a walk failure is returned as an error.
func (l *Loader) ScanDirectory(ctx context.Context, root string, skipHidden bool) ([]Result, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []Result
	var stats DirStats
	seen := map[string]struct{}{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, Result{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !l.AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		doc, err := l.LoadFile(path)
		if err != nil {
			l.Logger.Warn("ingest.file.failed", "path", path, "error", err)
			results = append(results, Result{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		if _, dup := seen[doc.SHA256]; dup {
			results = append(results, Result{Path: path, Deduplicated: true})
			stats.Deduplicated++
			return nil
		}
		seen[doc.SHA256] = struct{}{}
		results = append(results, Result{Path: path, Document: doc})
		stats.Succeeded++
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	l.Logger.Info("ingest.scan.done", "root", root,
		"scanned", stats.Scanned, "matched", stats.Matched, "succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated, "failed", stats.Failed)
	return results, stats, nil
}

// Documents returns the loaded documents of a scan in walk order.
func Documents(results []Result) []*pipeline.Document {
	var docs []*pipeline.Document
	for _, r := range results {
		if r.Document != nil {
			docs = append(docs, r.Document)
		}
	}
	return docs
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
