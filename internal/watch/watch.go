// Package watch reloads file-backed documents when their file changes on
// disk.
//
// The watcher listens on the parent directory of every watched file rather
// than the file itself, so editors that save by writing a temporary file
// and renaming it over the original are still seen. Bursts of events for
// one file are collapsed into a single callback after a quiet period.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JonMunkholm/jsonview/internal/core"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 250 * time.Millisecond

type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	onChange func(path string)
	logger   *slog.Logger

	mu     sync.Mutex
	files  map[string]int // absolute path -> reference count
	dirs   map[string]int // watched directory -> number of watched files in it
	timers map[string]*time.Timer
	closed bool
}

// New creates a watcher calling onChange with the absolute path of a
// watched file once it has been quiet for debounce after a change.
func New(debounce time.Duration, onChange func(path string), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Watcher{
		fs:       fw,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		files:    make(map[string]int),
		dirs:     make(map[string]int),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Add starts watching path. Adding the same path again only increments
// its reference count.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("watch %s: watcher closed", path)
	}

	if w.files[abs] > 0 {
		w.files[abs]++
		return nil
	}
	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[abs] = 1
	w.logger.Debug("watching file", "path", abs)
	return nil
}

// Remove drops one reference to path and stops watching it when none are
// left.
func (w *Watcher) Remove(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	n, ok := w.files[abs]
	if !ok {
		return
	}
	if n > 1 {
		w.files[abs] = n - 1
		return
	}
	delete(w.files, abs)
	if t, ok := w.timers[abs]; ok {
		t.Stop()
		delete(w.timers, abs)
	}

	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		if !w.closed {
			_ = w.fs.Remove(dir)
		}
	}
	w.logger.Debug("stopped watching file", "path", abs)
}

// Watching reports whether path is currently watched.
func (w *Watcher) Watching(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[abs] > 0
}

// Run delivers change callbacks until ctx is cancelled, then closes the
// watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule(filepath.Clean(event.Name))
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// schedule (re)starts the quiet-period timer for path if it is watched.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.files[path] == 0 {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		live := !w.closed && w.files[path] > 0
		w.mu.Unlock()

		if live {
			w.logger.Debug("file changed", "path", path)
			w.onChange(path)
		}
	})
}

// Close stops the watcher. Pending callbacks are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	return w.fs.Close()
}

// Hooks returns session hooks that watch the file of every file-backed
// session while it is open.
func (w *Watcher) Hooks() core.Hooks {
	return core.Hooks{
		Opened: func(s *core.Session) {
			if path, ok := s.Path(); ok {
				if err := w.Add(path); err != nil {
					w.logger.Warn("cannot watch document file", "document_id", s.ID, "path", path, "error", err)
				}
			}
		},
		Closed: func(s *core.Session) {
			if path, ok := s.Path(); ok {
				w.Remove(path)
			}
		},
	}
}

// ReloadSessions returns a change callback that reloads every session
// reading the changed file.
func ReloadSessions(ctx context.Context, svc *core.Service, logger *slog.Logger) func(path string) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(path string) {
		for _, s := range svc.SessionsForPath(path) {
			reloaded, err := svc.Reload(ctx, s.ID)
			switch {
			case err != nil:
				logger.Warn("reload failed", "document_id", s.ID, "path", path, "error", err)
			case reloaded:
				logger.Info("document file changed, reloading", "document_id", s.ID, "path", path)
			}
		}
	}
}
