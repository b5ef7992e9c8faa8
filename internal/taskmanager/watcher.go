package taskmanager

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a manager's graph when one of its source files changes.
// Bursts of events are collapsed into one reload.
type Watcher struct {
	manager  *Manager
	debounce time.Duration
	files    map[string]bool
	watcher  *fsnotify.Watcher
	done     chan struct{}
	started  atomic.Bool
}

// NewWatcher creates a watcher for the main and support sources of m.
func NewWatcher(m *Manager, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	d := m.Descriptor()
	files := make(map[string]bool)
	for _, loc := range append([]string{d.Source}, d.Support...) {
		if loc == "" {
			continue
		}
		abs, err := filepath.Abs(loc)
		if err != nil {
			fw.Close()
			return nil, err
		}
		files[abs] = true
	}
	return &Watcher{
		manager:  m,
		debounce: debounce,
		files:    files,
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// Start watches the directories holding the source files. Directories are
// watched rather than files so that editors replacing a file are noticed.
func (w *Watcher) Start(ctx context.Context) error {
	dirs := make(map[string]bool)
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
	}
	w.started.Store(true)
	go w.loop(ctx)
	return nil
}

// Stop closes the watcher and waits for its loop to exit, if Start got as
// far as running it.
func (w *Watcher) Stop() {
	w.watcher.Close()
	if w.started.Load() {
		<-w.done
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	var last time.Time
	pending := false
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = true
				last = time.Now()
			}

		case <-ticker.C:
			if !pending || time.Since(last) < w.debounce {
				continue
			}
			pending = false
			if err := w.manager.Reload(ctx); err != nil {
				w.manager.logger.Warn("reload after source change failed", "error", err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.manager.logger.Warn("source watcher error", "error", err)
		}
	}
}
