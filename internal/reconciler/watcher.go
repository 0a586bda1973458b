package reconciler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"datacenter/internal/config"
	"datacenter/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for further writes before
// reloading.
const DefaultDebounce = 500 * time.Millisecond

// ApplyFunc applies a freshly loaded configuration.
type ApplyFunc func(ctx context.Context, cfg *config.DataCenterConfig) error

// LoadFunc reads and validates the configuration file.
type LoadFunc func(path string) (*config.DataCenterConfig, error)

// Watcher reloads the configuration file whenever it changes on disk and
// hands every valid result to an ApplyFunc. Invalid documents are logged and
// ignored; the running configuration stays in place.
type Watcher struct {
	path     string
	apply    ApplyFunc
	load     LoadFunc
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	running bool

	// reloads serializes reloads so two configurations never apply at once.
	reloads sync.Mutex
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLoader replaces config.LoadFile, e.g. to keep command line overrides.
func WithLoader(load LoadFunc) Option {
	return func(w *Watcher) { w.load = load }
}

// NewWatcher creates a watcher for the configuration file at path.
func NewWatcher(path string, apply ApplyFunc, opts ...Option) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		apply:    apply,
		debounce: DefaultDebounce,
		load: func(p string) (*config.DataCenterConfig, error) {
			return config.LoadFile(p)
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx ends. The parent directory is watched rather than
// the file so that editors replacing the file by rename are noticed.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	logging.Info("ConfigWatcher", "Watching %s for configuration changes", w.path)

	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(ctx)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.Error("ConfigWatcher", err, "File watcher error")
		}
	}
}

// schedule (re)arms the debounce timer.
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		if err := w.Reload(ctx); err != nil {
			logging.Error("ConfigWatcher", err, "Configuration reload failed")
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Reload reads the file once and applies it.
func (w *Watcher) Reload(ctx context.Context) error {
	w.reloads.Lock()
	defer w.reloads.Unlock()

	cfg, err := w.load(w.path)
	if err != nil {
		var ce *config.ConfigError
		if errors.As(err, &ce) {
			logging.Warn("ConfigWatcher", "Ignoring invalid configuration:\n%s", ce.DetailedError())
		}
		return err
	}
	logging.Info("ConfigWatcher", "Applying configuration with %d data sources", len(cfg.DataSources))
	return w.apply(ctx, cfg)
}
