package app

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"finpal/pkg/logging"
)

const watcherSubsystem = "ConfigWatcher"

// ConfigWatcher calls onChange after the watched file settles.
//
// It watches the file's directory rather than the file itself so editors
// that replace the file on save are still seen.
type ConfigWatcher struct {
	mu sync.Mutex

	path     string
	debounce time.Duration
	onChange func()

	watcher *fsnotify.Watcher
	timer   *time.Timer
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewConfigWatcher creates a watcher for path. A zero debounce means
// DefaultReloadDebounce.
func NewConfigWatcher(path string, debounce time.Duration, onChange func()) *ConfigWatcher {
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &ConfigWatcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		onChange: onChange,
	}
}

// Start begins watching. It returns once the watch is in place.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	w.watcher = watcher
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	go w.processEvents(ctx, watcher, w.stopCh, w.doneCh)

	logging.Info(watcherSubsystem, "Watching %s for changes", w.path)
	return nil
}

// Stop ends the watch and drops any pending change.
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	<-done
}

func (w *ConfigWatcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	defer watcher.Close()
	defer w.cancelPending()

	for {
		select {
		case <-ctx.Done():
			return

		case <-stopCh:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error(watcherSubsystem, err, "File watcher error")
		}
	}
}

func (w *ConfigWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	logging.Debug(watcherSubsystem, "Event %s on %s", event.Op, event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *ConfigWatcher) fire() {
	w.mu.Lock()
	w.timer = nil
	running := w.running
	w.mu.Unlock()

	if running {
		w.onChange()
	}
}

func (w *ConfigWatcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
