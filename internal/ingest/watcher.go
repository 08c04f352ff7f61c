package ingest

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Roots      []string // directories to watch (recursive)
	Debounce   time.Duration
	SkipHidden bool
}

// Watch emits paths of allowed files created, written or renamed under the
// roots. Bursts of events for the same path within Debounce are coalesced.
// Both channels close when ctx is done.
func (l *Loader) Watch(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !d.IsDir() {
				return nil
			}
			if cfg.SkipHidden && path != root && IsHidden(path) {
				return filepath.SkipDir
			}
			return w.Add(path)
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			_ = w.Close()
			return nil, nil, err
		}
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)
	go l.watchLoop(ctx, w, cfg, addDir, evCh, errCh)
	return evCh, errCh, nil
}

func (l *Loader) watchLoop(ctx context.Context, w *fsnotify.Watcher, cfg WatchConfig, addDir func(string) error, evCh chan<- string, errCh chan<- error) {
	defer close(evCh)
	defer close(errCh)
	defer func() {
		if err := w.Close(); err != nil {
			l.Logger.Warn("ingest.watch.close_failed", "error", err)
		}
	}()

	pending := map[string]struct{}{}
	var timer *time.Timer
	var fire <-chan time.Time

	flush := func() {
		for p := range pending {
			select {
			case evCh <- p:
			case <-ctx.Done():
				return
			}
			delete(pending, p)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case e, ok := <-w.Events:
			if !ok {
				return
			}
			if e.Has(fsnotify.Create) {
				// new subdirectories are watched too; Add fails harmlessly for files
				if err := addDir(e.Name); err != nil {
					l.Logger.Debug("ingest.watch.add_skipped", "path", e.Name, "error", err)
				}
			}
			if cfg.SkipHidden && IsHidden(e.Name) {
				continue
			}
			if !l.AllowedExt(filepath.Ext(e.Name)) || !(e.Has(fsnotify.Create) || e.Has(fsnotify.Write) || e.Has(fsnotify.Rename)) {
				continue
			}
			pending[e.Name] = struct{}{}
			if cfg.Debounce <= 0 {
				flush()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(cfg.Debounce)
			} else {
				timer.Reset(cfg.Debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			flush()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.Logger.Error("ingest.watch.error", "error", err)
			select {
			case errCh <- err:
			default:
			}
		}
	}
}
