package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

type fakeUploader struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (f *fakeUploader) IngestText(context.Context, string, domain.ChunkMetadata) (domain.IndexResult, error) {
	return domain.IndexResult{}, nil
}

func (f *fakeUploader) IngestFile(_ context.Context, path string) (domain.IndexResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	if f.err != nil {
		return domain.IndexResult{}, f.err
	}
	return domain.IndexResult{Chunks: 1, Written: 1}, nil
}

func (f *fakeUploader) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func startWatcher(t *testing.T, w *Watcher, dir string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, dir) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	// Give fsnotify a moment to register the directory.
	time.Sleep(50 * time.Millisecond)
}

func TestWatcher_IngestsNewTextFile(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{}
	w := New(up, logger.NoOp(), WithSettle(20*time.Millisecond))
	startWatcher(t, w, dir)

	path := filepath.Join(dir, "42_3_Dune.txt")
	require.NoError(t, os.WriteFile(path, []byte("CHAPTER I. Arrakis."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.log"), []byte("ignored"), 0o600))

	assert.Eventually(t, func() bool {
		return len(up.calls()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{path}, up.calls())

	assert.Never(t, func() bool {
		return len(up.calls()) > 1
	}, 150*time.Millisecond, 10*time.Millisecond)
}

func TestWatcher_InitialScan(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.md")
	require.NoError(t, os.WriteFile(existing, []byte("# Notes about a book"), 0o600))

	up := &fakeUploader{}
	w := New(up, logger.NoOp(), WithSettle(20*time.Millisecond), WithInitialScan(true))
	startWatcher(t, w, dir)

	assert.Eventually(t, func() bool {
		calls := up.calls()
		return len(calls) == 1 && calls[0] == existing
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_RunErrors(t *testing.T) {
	w := New(&fakeUploader{}, logger.NoOp())

	err := w.Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	err = w.Run(context.Background(), file)
	assert.ErrorContains(t, err, "not a directory")
}

func TestWatcher_SettleAndDedup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.txt")
	require.NoError(t, os.WriteFile(path, []byte("Some long enough text."), 0o600))

	clock := clockwork.NewFakeClock()
	up := &fakeUploader{}
	w := New(up, logger.NoOp(), WithSettle(time.Second), WithClock(clock))
	ctx := context.Background()

	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Create})
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})

	clock.Advance(500 * time.Millisecond)
	w.processSettled(ctx)
	assert.Empty(t, up.calls(), "not yet settled")

	clock.Advance(600 * time.Millisecond)
	w.processSettled(ctx)
	assert.Equal(t, []string{path}, up.calls())

	// A write event for an unchanged file is not ingested again.
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	clock.Advance(2 * time.Second)
	w.processSettled(ctx)
	assert.Len(t, up.calls(), 1)

	// Content change is.
	require.NoError(t, os.WriteFile(path, []byte("Some longer text that changed size."), 0o600))
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	clock.Advance(2 * time.Second)
	w.processSettled(ctx)
	assert.Len(t, up.calls(), 2)
}

func TestWatcher_RemoveForgetsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.txt")
	require.NoError(t, os.WriteFile(path, []byte("Some long enough text."), 0o600))

	clock := clockwork.NewFakeClock()
	up := &fakeUploader{}
	w := New(up, logger.NoOp(), WithSettle(time.Second), WithClock(clock))

	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Remove})
	clock.Advance(2 * time.Second)
	w.processSettled(context.Background())

	assert.Empty(t, up.calls())
}

func TestWatcher_FailedIngestIsRetried(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.txt")
	require.NoError(t, os.WriteFile(path, []byte("Some long enough text."), 0o600))

	clock := clockwork.NewFakeClock()
	up := &fakeUploader{err: errors.New("index down")}
	w := New(up, logger.NoOp(), WithSettle(time.Second), WithClock(clock))
	ctx := context.Background()

	for range 2 {
		w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
		clock.Advance(2 * time.Second)
		w.processSettled(ctx)
	}

	assert.Len(t, up.calls(), 2)
}

func TestWatched(t *testing.T) {
	w := New(&fakeUploader{}, logger.NoOp())
	assert.True(t, w.watched("/in/a.txt"))
	assert.True(t, w.watched("/in/a.MD"))
	assert.False(t, w.watched("/in/a.pdf"))
	assert.False(t, w.watched("/in/noext"))

	w = New(&fakeUploader{}, logger.NoOp(), WithExtensions(".csv"))
	assert.True(t, w.watched("b.csv"))
	assert.False(t, w.watched("b.txt"))
}
