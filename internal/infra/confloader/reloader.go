package confloader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultQuietPeriod is how long a file must stay unchanged before it is
// reloaded. Editors often write a file in several steps.
const DefaultQuietPeriod = 250 * time.Millisecond

type reloadOptions struct {
	logger *slog.Logger
	quiet  time.Duration
}

// ReloadOption configures a Reloader.
type ReloadOption func(*reloadOptions)

// WithReloadLogger sets the logger.
func WithReloadLogger(logger *slog.Logger) ReloadOption {
	return func(o *reloadOptions) {
		o.logger = logger
	}
}

// WithQuietPeriod overrides DefaultQuietPeriod.
func WithQuietPeriod(d time.Duration) ReloadOption {
	return func(o *reloadOptions) {
		o.quiet = d
	}
}

// Reloader re-reads a configuration file after it changes and passes the
// result to apply. A load error keeps the running configuration.
type Reloader[T any] struct {
	path  string
	load  func(path string) (T, error)
	apply func(T)
	opts  reloadOptions

	ready    chan struct{}
	reloads  atomic.Int64
	rejected atomic.Int64
}

// NewReloader creates a Reloader for path. Nothing is watched until Run.
func NewReloader[T any](path string, load func(string) (T, error), apply func(T), opts ...ReloadOption) *Reloader[T] {
	o := reloadOptions{logger: slog.Default(), quiet: DefaultQuietPeriod}
	for _, opt := range opts {
		opt(&o)
	}
	return &Reloader[T]{
		path:  filepath.Clean(path),
		load:  load,
		apply: apply,
		opts:  o,
		ready: make(chan struct{}),
	}
}

// Ready is closed once Run watches the file.
func (r *Reloader[T]) Ready() <-chan struct{} {
	return r.ready
}

// Reloads returns the number of applied reloads.
func (r *Reloader[T]) Reloads() int64 {
	return r.reloads.Load()
}

// Rejected returns the number of reloads whose load failed.
func (r *Reloader[T]) Rejected() int64 {
	return r.rejected.Load()
}

// Run watches the file's directory until ctx is done. The directory is
// watched so that files replaced by rename are still seen.
func (r *Reloader[T]) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("confloader: create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(r.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("confloader: watch %s: %w", dir, err)
	}
	close(r.ready)
	r.opts.logger.Info("config watcher started", "file", r.path)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.opts.logger.Info("config watcher stopped")
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(r.opts.quiet)
		case <-timer.C:
			r.reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			r.opts.logger.Error("config watcher error", "error", err)
		}
	}
}

func (r *Reloader[T]) reload() {
	cfg, err := r.load(r.path)
	if err != nil {
		r.rejected.Add(1)
		r.opts.logger.Warn("config reload rejected", "file", r.path, "error", err)
		return
	}
	r.apply(cfg)
	r.reloads.Add(1)
	r.opts.logger.Debug("config reloaded", "file", r.path)
}
