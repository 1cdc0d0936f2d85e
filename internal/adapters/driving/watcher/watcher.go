// Package watcher feeds text files dropped into an inbox directory to the
// upload path.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/ternarybob/arbor"

	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
)

// Defaults.
const (
	DefaultSettle = 500 * time.Millisecond
)

// DefaultExtensions are the file types ingested from the inbox.
var DefaultExtensions = []string{".txt", ".text", ".md", ".markdown"}

// stamp identifies one version of a file.
type stamp struct {
	size    int64
	modTime time.Time
}

// Watcher ingests files created or written in a directory. A file is handed
// to the uploader once it has been quiet for the settle period, and again
// only after its size or modification time changes.
type Watcher struct {
	uploader   driving.UploadService
	extensions []string
	settle     time.Duration
	scan       bool
	clock      clockwork.Clock
	logger     arbor.ILogger

	mu        sync.Mutex
	pending   map[string]time.Time
	processed map[string]stamp
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithExtensions overrides the watched extensions.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		if len(exts) > 0 {
			w.extensions = exts
		}
	}
}

// WithSettle sets how long a file must be quiet before it is ingested.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithInitialScan ingests files already present when Run starts.
func WithInitialScan(enabled bool) Option {
	return func(w *Watcher) {
		w.scan = enabled
	}
}

// WithClock sets the clock used for settling.
func WithClock(c clockwork.Clock) Option {
	return func(w *Watcher) {
		if c != nil {
			w.clock = c
		}
	}
}

// New creates a watcher.
func New(uploader driving.UploadService, logger arbor.ILogger, opts ...Option) *Watcher {
	w := &Watcher{
		uploader:   uploader,
		extensions: DefaultExtensions,
		settle:     DefaultSettle,
		clock:      clockwork.NewRealClock(),
		logger:     logger,
		pending:    make(map[string]time.Time),
		processed:  make(map[string]stamp),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches dir until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.logger.Info().Str("dir", dir).Strs("extensions", w.extensions).Msg("Watching inbox")

	if w.scan {
		if err := w.scanExisting(dir); err != nil {
			return err
		}
	}

	ticker := w.clock.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Watcher error")

		case <-ticker.Chan():
			w.processSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.watched(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.pending[event.Name] = w.clock.Now()
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(w.pending, event.Name)
		delete(w.processed, event.Name)
	}
}

func (w *Watcher) scanExisting(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}

	now := w.clock.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.Type().IsRegular() && w.watched(path) {
			w.pending[path] = now
		}
	}
	return nil
}

// processSettled ingests pending files that have been quiet long enough.
func (w *Watcher) processSettled(ctx context.Context) {
	now := w.clock.Now()

	w.mu.Lock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	slices.Sort(ready)
	for _, path := range ready {
		w.ingest(ctx, path)
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	st := stamp{size: info.Size(), modTime: info.ModTime()}

	if !w.markProcessing(path, st) {
		w.logger.Debug().Str("path", path).Msg("File unchanged, skipping")
		return
	}

	result, err := w.uploader.IngestFile(ctx, path)
	if err != nil {
		w.forget(path)
		w.logger.Error().Err(err).Str("path", path).Msg("Failed to ingest file")
		return
	}

	w.logger.Info().
		Str("path", path).
		Int("chunks", result.Chunks).
		Int("written", result.Written).
		Int("failed", result.Failed).
		Msg("Ingested file")
}

// markProcessing records st for path and reports whether it differs from the
// last processed version.
func (w *Watcher) markProcessing(path string, st stamp) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.processed[path]; ok && prev.size == st.size && prev.modTime.Equal(st.modTime) {
		return false
	}
	w.processed[path] = st
	return true
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	delete(w.processed, path)
	w.mu.Unlock()
}

func (w *Watcher) watched(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.Contains(w.extensions, ext)
}
