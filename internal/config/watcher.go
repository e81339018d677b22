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

// snapshot is one validated version of the file.
type snapshot struct {
	cfg *Config
	sum [sha256.Size]byte
	mod time.Time
}

func readSnapshot(path string) (snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, sum: sha256.Sum256(data), mod: info.ModTime()}, nil
}

// Watcher polls the config file and hands each new valid version to a
// callback. Edits that fail validation are logged and skipped; the last good
// config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu   sync.Mutex
	last snapshot
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the poll period. Default 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and fails if it is not a valid config.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: 5 * time.Second, onChange: onChange}
	for _, o := range opts {
		o(w)
	}
	snap, err := readSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.last = snap
	return w, nil
}

func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.cfg
}

// Run calls [Watcher.Check] every interval until ctx ends.
func (w *Watcher) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Check()
		}
	}
}

// Check reloads the file if its mtime moved and its content differs, and
// reports whether the callback ran.
func (w *Watcher) Check() bool {
	log := slog.With("path", w.path)

	info, err := os.Stat(w.path)
	if err != nil {
		log.Warn("config watcher: stat failed", "err", err)
		return false
	}
	w.mu.Lock()
	same := info.ModTime().Equal(w.last.mod)
	w.mu.Unlock()
	if same {
		return false
	}

	next, err := readSnapshot(w.path)
	if err != nil {
		log.Warn("config watcher: edit rejected, keeping previous config", "err", err)
		return false
	}

	w.mu.Lock()
	prev := w.last
	if next.sum == prev.sum {
		// Touched without an edit.
		w.last.mod = next.mod
		w.mu.Unlock()
		return false
	}
	w.last = next
	w.mu.Unlock()

	log.Info("config watcher: reloaded")
	if w.onChange != nil {
		w.onChange(prev.cfg, next.cfg)
	}
	return true
}
