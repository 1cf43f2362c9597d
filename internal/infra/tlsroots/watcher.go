package tlsroots

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds the server key pair and reloads it when either file changes.
type Watcher struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.RWMutex
	cert    *tls.Certificate
	expires time.Time

	reloads    atomic.Int64
	lastReload time.Time
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets the minimum gap between two reloads.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher loads the key pair once and returns a watcher serving it.
func NewWatcher(certFile, keyFile string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		debounce: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}
	return w, nil
}

// ServerConfig returns a server TLS config that always presents the latest key pair.
func (w *Watcher) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: w.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// GetCertificate implements tls.Config.GetCertificate.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cert, nil
}

// NotAfter returns the expiry of the current leaf certificate.
func (w *Watcher) NotAfter() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.expires
}

// Reloads returns the number of successful loads, the initial one included.
func (w *Watcher) Reloads() int64 {
	return w.reloads.Load()
}

// Run watches the directories holding the key pair until ctx is done.
// Directories are watched rather than files so editor renames are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	defer fw.Close()

	names := map[string]struct{}{
		filepath.Clean(w.certFile): {},
		filepath.Clean(w.keyFile):  {},
	}
	dirs := map[string]struct{}{}
	for name := range names {
		dir := filepath.Dir(name)
		if _, ok := dirs[dir]; ok {
			continue
		}
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
		dirs[dir] = struct{}{}
	}

	w.logger.Info("certificate watcher started",
		"cert_file", w.certFile,
		"not_after", w.NotAfter(),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if _, ok := names[filepath.Clean(event.Name)]; !ok {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !w.due(time.Now()) {
				continue
			}
			if err := w.reload(); err != nil {
				// Keep serving the previous pair; the other file may not be written yet.
				w.logger.Warn("certificate reload failed", "error", err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("certificate watcher error", "error", err)
		}
	}
}

func (w *Watcher) due(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if now.Sub(w.lastReload) < w.debounce {
		return false
	}
	w.lastReload = now
	return true
}

func (w *Watcher) reload() error {
	pair, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	leaf := pair.Leaf
	if leaf == nil && len(pair.Certificate) > 0 {
		if leaf, err = x509.ParseCertificate(pair.Certificate[0]); err != nil {
			return fmt.Errorf("parse leaf: %w", err)
		}
	}

	var notAfter time.Time
	if leaf != nil {
		notAfter = leaf.NotAfter
	}

	w.mu.Lock()
	w.cert = &pair
	w.expires = notAfter
	w.mu.Unlock()

	w.reloads.Add(1)
	w.logger.Info("certificate loaded",
		"cert_file", w.certFile,
		"not_after", notAfter,
	)
	return nil
}
