// Package configwatch reloads the refresh configuration when its file changes.
package configwatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/GoCodeAlone/modrefresh"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 250 * time.Millisecond

// ErrAlreadyStarted is returned by Start on a running watcher.
var ErrAlreadyStarted = errors.New("config watcher already started")

// ApplyFunc receives each successfully loaded configuration.
type ApplyFunc func(cfg *modrefresh.Config) error

// Watcher watches one config file and applies it after every change.
// Invalid files are logged and skipped; the last good config stays active.
type Watcher struct {
	path     string
	apply    ApplyFunc
	logger   modrefresh.Logger
	debounce time.Duration

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	timer   *time.Timer
	cancel  context.CancelFunc
	done    chan struct{}
	applied int
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(logger modrefresh.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher for path. Start begins watching.
func New(path string, apply ApplyFunc, opts ...Option) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		apply:    apply,
		logger:   modrefresh.NopLogger{},
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start watches the file's directory, so atomic replace-on-save is seen too.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fs != nil {
		return ErrAlreadyStarted
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(w.path)); err != nil {
		_ = fs.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.fs = fs
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.loop(ctx, fs, w.done)
	w.logger.Info("Watching config file", "path", w.path)
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fs, cancel, done := w.fs, w.cancel, w.done
	w.fs = nil
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if fs == nil {
		return nil
	}
	cancel()
	err := fs.Close()
	<-done
	return err
}

// Applied returns how many configs have been applied.
func (w *Watcher) Applied() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.applied
}

func (w *Watcher) loop(ctx context.Context, fs *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("Config file changed", "path", w.path, "op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := modrefresh.LoadConfig(w.path)
	if err != nil {
		w.logger.Error("Ignoring invalid config change", "path", w.path, "error", err)
		return
	}
	if err := w.apply(cfg); err != nil {
		w.logger.Error("Failed to apply config change", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	w.applied++
	w.mu.Unlock()
	w.logger.Info("Config reloaded", "path", w.path)
}
