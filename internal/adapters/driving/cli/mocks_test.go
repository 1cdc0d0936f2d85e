package cli

import (
	"context"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// mockConsumer implements driving.ConsumerService for testing.
type mockConsumer struct {
	mu      sync.Mutex
	runErr  error
	runs    int
	stopped bool
	stats   domain.ConsumerStats
}

func (m *mockConsumer) Run(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
	return m.runErr
}

func (m *mockConsumer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *mockConsumer) State() domain.PipelineState {
	return domain.StateStopped
}

func (m *mockConsumer) Stats() domain.ConsumerStats {
	return m.stats
}

// mockUpload implements driving.UploadService for testing.
type mockUpload struct {
	texts  []string
	metas  []domain.ChunkMetadata
	files  []string
	result domain.IndexResult
	err    error
}

func (m *mockUpload) IngestText(_ context.Context, text string, meta domain.ChunkMetadata) (domain.IndexResult, error) {
	m.texts = append(m.texts, text)
	m.metas = append(m.metas, meta)
	return m.result, m.err
}

func (m *mockUpload) IngestFile(_ context.Context, path string) (domain.IndexResult, error) {
	m.files = append(m.files, path)
	return m.result, m.err
}

// mockSearch implements driving.SearchService for testing.
type mockSearch struct {
	hits    []domain.SearchHit
	opts    domain.SearchOptions
	query   string
	stats   domain.IndexStats
	deleted []string
	books   []string
	err     error
}

func (m *mockSearch) Search(_ context.Context, query string, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	m.query = query
	m.opts = opts
	return m.hits, m.err
}

func (m *mockSearch) Stats(_ context.Context) (domain.IndexStats, error) {
	return m.stats, m.err
}

func (m *mockSearch) Delete(_ context.Context, expr string) error {
	m.deleted = append(m.deleted, expr)
	return m.err
}

func (m *mockSearch) DeleteBook(_ context.Context, bookID string) error {
	m.books = append(m.books, bookID)
	return m.err
}

type mocks struct {
	consumer *mockConsumer
	upload   *mockUpload
	search   *mockSearch
}

// setupServices injects mocks and restores globals and flags afterwards.
func setupServices(t *testing.T) *mocks {
	t.Helper()

	m := &mocks{
		consumer: &mockConsumer{},
		upload:   &mockUpload{},
		search:   &mockSearch{},
	}

	oldConsumer, oldUpload, oldSearch := consumerService, uploadService, searchService
	consumerService, uploadService, searchService = m.consumer, m.upload, m.search

	t.Cleanup(func() {
		consumerService, uploadService, searchService = oldConsumer, oldUpload, oldSearch
		resetCommands()
	})
	return m
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytesBuffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// resetCommands restores every flag to its default so package-level flag
// variables do not leak between tests.
func resetCommands() {
	var walk func(*cobra.Command)
	walk = func(c *cobra.Command) {
		reset := func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
}
