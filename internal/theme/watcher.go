package theme

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StyleWatcher reloads a theme's stylesheet when it changes on disk.
type StyleWatcher struct {
	mu     sync.RWMutex
	logger *slog.Logger

	theme    *Descriptor
	debounce time.Duration

	onChangeCallback func(css string)

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}

	running bool
}

// NewStyleWatcher creates a watcher for the stylesheet of d.
func NewStyleWatcher(d *Descriptor, logger *slog.Logger) *StyleWatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &StyleWatcher{
		logger:   logger,
		theme:    d,
		debounce: 100 * time.Millisecond,
	}
}

// SetDebounce sets how long to wait for writes to settle before reloading.
func (w *StyleWatcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// SetChangeCallback sets the callback invoked with the expanded stylesheet.
func (w *StyleWatcher) SetChangeCallback(callback func(css string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChangeCallback = callback
}

// Start begins watching. Embedded themes and themes without a stylesheet
// are not watched.
func (w *StyleWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	if w.theme == nil || w.theme.Embedded || w.theme.Stylesheet == "" {
		w.mu.Unlock()
		w.logger.Debug("not watching stylesheet (embedded or absent)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}

	// Watch the directory; editors often replace the file instead of writing it
	if err := watcher.Add(filepath.Dir(w.theme.Stylesheet)); err != nil {
		w.mu.Unlock()
		_ = watcher.Close()
		return err
	}

	w.watcher = watcher
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.watchLoop(ctx)

	w.logger.Debug("style watcher started", "path", w.theme.Stylesheet)
	return nil
}

// Stop stops watching and waits for the watch loop to exit.
func (w *StyleWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh
	_ = w.watcher.Close()
	w.logger.Debug("style watcher stopped")
}

// IsRunning returns whether the watcher is currently running.
func (w *StyleWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *StyleWatcher) watchLoop(ctx context.Context) {
	defer close(w.doneCh)

	w.mu.RLock()
	filename := filepath.Base(w.theme.Stylesheet)
	debounce := w.debounce
	w.mu.RUnlock()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("style watcher error", "error", err)
		}
	}
}

func (w *StyleWatcher) reload() {
	w.mu.RLock()
	theme := w.theme
	callback := w.onChangeCallback
	w.mu.RUnlock()

	css, err := theme.ReadStylesheet()
	if err != nil {
		w.logger.Warn("failed to reload stylesheet", "path", theme.Stylesheet, "error", err)
		return
	}

	w.logger.Info("stylesheet changed, reloading", "path", theme.Stylesheet)
	if callback != nil {
		callback(css)
	}
}
