package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a config file's containing directory for changes and
// delivers validated Config snapshots to onChange. Grounded on the
// teacher's config/watcher.go: watching the directory (not the file)
// survives editors that write atomically via rename, and a short debounce
// collapses the burst of events one write can produce.
type Watcher struct {
	path     string
	onChange func(*Config) error
	onError  func(error)
	watcher  *fsnotify.Watcher
	debounce time.Duration
}

// NewWatcher creates a Watcher for path. onChange is invoked with each
// newly loaded, validated Config. onError is invoked for load/validate
// failures — spec.md §7's ConfigError propagation target — and may be nil.
func NewWatcher(path string, onChange func(*Config) error, onError func(error)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		path:     path,
		onChange: onChange,
		onError:  onError,
		watcher:  w,
		debounce: 500 * time.Millisecond,
	}, nil
}

// Start runs the watch loop until ctx is cancelled. It is meant to be
// launched as its own background activity (spec.md §4.7 step 2).
func (w *Watcher) Start(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	fire := func() {
		cfg, err := Load(w.path)
		if err != nil {
			if w.onError != nil {
				w.onError(err)
			}
			return
		}
		if err := w.onChange(cfg); err != nil && w.onError != nil {
			w.onError(err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if filepath.Base(ev.Name) != filepath.Base(w.path) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, fire)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}
