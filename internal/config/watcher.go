package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Reload is one accepted change of the config file.
type Reload struct {
	Old, New *Config
	Diff     ConfigDiff
}

// Watcher polls a config file while [Watcher.Run] is active. Edits that
// validate and change at least one setting are passed to the callback;
// edits that only touch comments or formatting are absorbed silently.
// Environment overrides are re-applied on every read.
type Watcher struct {
	path     string
	interval time.Duration
	onReload func(Reload)
	onError  func(error)

	mu      sync.Mutex
	current *Config
	stamp   fileStamp

	// rejected is the hash of the last content that failed to load, so a
	// broken file is reported once rather than on every touch.
	rejected [sha256.Size]byte
}

// fileStamp identifies one version of the file on disk.
type fileStamp struct {
	mtime time.Time
	size  int64
	hash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithErrorHandler is called when changed content fails to load. The
// previous config stays current.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// NewWatcher loads path once and returns a watcher for it. Nothing is
// polled until Run is called.
func NewWatcher(path string, onReload func(Reload), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onReload: onReload,
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.stamp = stamp
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is done and returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.check()
		}
	}
}

// check re-reads the file when its mtime or size moved.
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	prev := w.stamp
	w.mu.Unlock()
	if info.ModTime().Equal(prev.mtime) && info.Size() == prev.size {
		return
	}

	cfg, stamp, err := w.read()
	if err != nil {
		w.reject(stamp, err)
		return
	}

	w.mu.Lock()
	w.stamp = stamp
	w.rejected = [sha256.Size]byte{}
	if stamp.hash == prev.hash {
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = cfg
	w.mu.Unlock()

	d := Diff(old, cfg)
	if !d.Changed() {
		slog.Debug("config watcher: file rewritten without setting changes", "path", w.path)
		return
	}
	slog.Info("config watcher: configuration reloaded",
		"path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"token_changed", d.TokenChanged,
		"restart_required", d.RestartRequired,
	)

	// Outside the lock so the callback may call Current.
	if w.onReload != nil {
		w.onReload(Reload{Old: old, New: cfg, Diff: d})
	}
}

func (w *Watcher) reject(stamp fileStamp, err error) {
	w.mu.Lock()
	seen := false
	if stamp.hash != ([sha256.Size]byte{}) {
		seen = stamp.hash == w.rejected
		w.rejected = stamp.hash
		// Remember the stamp so the same broken content is not re-read.
		w.stamp.mtime, w.stamp.size = stamp.mtime, stamp.size
	}
	w.mu.Unlock()
	if seen {
		return
	}

	slog.Warn("config watcher: failed to load config", "path", w.path, "err", err)
	if w.onError != nil {
		w.onError(err)
	}
}

// read loads and validates the file. The returned stamp is filled even when
// validation fails.
func (w *Watcher) read() (*Config, fileStamp, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	stamp := fileStamp{mtime: info.ModTime(), size: int64(len(data)), hash: sha256.Sum256(data)}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, stamp, err
	}
	return cfg, stamp, nil
}
