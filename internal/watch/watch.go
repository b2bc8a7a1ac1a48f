// Package watch re-runs generation when source files change.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"py2md/internal/logging"
)

// RunFunc performs one generation pass.
type RunFunc func(ctx context.Context) error

// Watcher runs a RunFunc once, then again after every burst of relevant
// changes below root. Passes run on the calling goroutine and never overlap.
type Watcher struct {
	root       string
	debounce   time.Duration
	extensions []string
	skipDir    func(name string) bool
	run        RunFunc
	logger     zerolog.Logger
}

func New(root string, debounce time.Duration, extensions []string, skipDir func(string) bool, run RunFunc) *Watcher {
	return &Watcher{
		root:       root,
		debounce:   debounce,
		extensions: extensions,
		skipDir:    skipDir,
		run:        run,
		logger:     logging.GetLogger("watch"),
	}
}

// Run blocks until ctx is cancelled. Pass failures are logged and watching
// continues; only watcher setup errors are returned.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := w.addDirsRecursive(watcher, w.root); err != nil {
		return err
	}

	w.pass(ctx)

	// Stopped until the first relevant event; Reset discards any stale tick.
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() && !w.ignoredDir(ev.Name) {
					_ = w.addDirsRecursive(watcher, ev.Name)
				}
			}
			if !w.Relevant(ev.Name) {
				continue
			}
			w.logger.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("Source change detected")
			timer.Reset(w.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Watcher error")
		case <-timer.C:
			w.pass(ctx)
		}
	}
}

func (w *Watcher) pass(ctx context.Context) {
	if err := w.run(ctx); err != nil {
		w.logger.Error().Err(err).Msg("Generation failed")
	}
}

// Relevant reports whether a changed path should trigger a pass: a watched
// extension outside skipped directories, and not an editor temp file.
func (w *Watcher) Relevant(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "#") || strings.HasSuffix(base, "~") {
		return false
	}
	matched := false
	for _, ext := range w.extensions {
		if strings.HasSuffix(base, ext) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	return !w.ignoredDir(filepath.Dir(path))
}

// ignoredDir reports whether dir or any of its parents below root is skipped.
func (w *Watcher) ignoredDir(dir string) bool {
	rel, err := filepath.Rel(w.root, dir)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if w.skipDir(part) {
			return true
		}
	}
	return false
}

func (w *Watcher) addDirsRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			w.logger.Warn().Err(err).Str("dir", path).Msg("Watch add failed")
		}
		return nil
	})
}
