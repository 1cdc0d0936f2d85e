package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/vector/sqlite"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/filter"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/chunker"
	"github.com/custodia-labs/sercha-ingest/internal/retry"
)

const testDim = 3

var noRetry = retry.Policy{MaxAttempts: 1}

// --- Mock implementations ---

// memBackend is an in-memory driven.VectorBackend.
type memBackend struct {
	mu sync.Mutex

	connectErrs []error
	connects    int
	closed      bool

	exists  bool
	loaded  bool
	creates int
	indexes []domain.IndexParams

	docs      map[string]domain.IndexedDocument
	writes    [][]domain.IndexedDocument
	writeErrs []error
	deletes   []string
}

func newMemBackend() *memBackend {
	return &memBackend{docs: make(map[string]domain.IndexedDocument)}
}

func (m *memBackend) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if len(m.connectErrs) > 0 {
		err := m.connectErrs[0]
		m.connectErrs = m.connectErrs[1:]
		return err
	}
	return nil
}

func (m *memBackend) HasCollection(_ context.Context, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists, nil
}

func (m *memBackend) CreateCollection(_ context.Context, _ domain.CollectionSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	m.exists = true
	return nil
}

func (m *memBackend) CreateIndex(_ context.Context, _ string, params domain.IndexParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes = append(m.indexes, params)
	return nil
}

func (m *memBackend) Load(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = true
	return nil
}

func (m *memBackend) LoadState(_ context.Context, _ string) (domain.LoadState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return domain.LoadStateLoaded, nil
	}
	return domain.LoadStateNotLoad, nil
}

func (m *memBackend) nextWriteErr() error {
	if len(m.writeErrs) == 0 {
		return nil
	}
	err := m.writeErrs[0]
	m.writeErrs = m.writeErrs[1:]
	return err
}

func (m *memBackend) Insert(_ context.Context, _ string, docs []domain.IndexedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.nextWriteErr(); err != nil {
		return err
	}
	for _, d := range docs {
		if _, ok := m.docs[d.ID]; ok {
			return fmt.Errorf("id %s: %w", d.ID, domain.ErrAlreadyExists)
		}
	}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	m.writes = append(m.writes, docs)
	return nil
}

func (m *memBackend) Upsert(_ context.Context, _ string, docs []domain.IndexedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.nextWriteErr(); err != nil {
		return err
	}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	m.writes = append(m.writes, docs)
	return nil
}

func (m *memBackend) Search(_ context.Context, _ string, _ []float32, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	f, err := filter.Compile(opts.Filter)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var hits []domain.SearchHit
	for _, d := range m.docs {
		ok, err := f.Match(d)
		if err != nil {
			return nil, err
		}
		if ok {
			d.Vector = nil
			hits = append(hits, domain.SearchHit{ID: d.ID, Score: 1, Document: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })
	if len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}
	return hits, nil
}

func (m *memBackend) Delete(_ context.Context, _ string, expr string) error {
	f, err := filter.Compile(expr)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.nextWriteErr(); err != nil {
		return err
	}
	m.deletes = append(m.deletes, expr)
	for id, d := range m.docs {
		if ok, _ := f.Match(d); ok {
			delete(m.docs, id)
		}
	}
	return nil
}

func (m *memBackend) Count(_ context.Context, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.docs)), nil
}

func (m *memBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memBackend) allWritten() []domain.IndexedDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.IndexedDocument
	for _, w := range m.writes {
		out = append(out, w...)
	}
	return out
}

func (m *memBackend) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// stubEmbedder is a deterministic driven.EmbeddingService.
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
}

func vectorFor(text string) []float32 {
	var sum int
	for _, b := range []byte(text) {
		sum += int(b)
	}
	return []float32{1, float32(len(text)%10) / 10, float32(sum%10) / 10}
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	out := make([][]float32, len(texts))
	failed := 0
	for i, t := range texts {
		if s.fail[t] {
			failed++
			continue
		}
		out[i] = vectorFor(t)
	}
	if failed > 0 {
		return out, fmt.Errorf("%w: %d texts", domain.ErrEmbeddingUnavailable, failed)
	}
	return out, nil
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (s *stubEmbedder) Dimensions() int   { return testDim }
func (s *stubEmbedder) ModelName() string { return "stub" }

// fakeSource is an in-memory driven.EventSource fed through a channel.
type fakeSource struct {
	batches chan []domain.ChangeEvent

	mu          sync.Mutex
	connectErrs []error
	connects    int
	committed   []domain.ChangeEvent
	closed      bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{batches: make(chan []domain.ChangeEvent, 16)}
}

func (f *fakeSource) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		return err
	}
	return nil
}

func (f *fakeSource) Poll(ctx context.Context, _ int, timeout time.Duration) ([]domain.ChangeEvent, error) {
	select {
	case b := <-f.batches:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

func (f *fakeSource) Commit(_ context.Context, events []domain.ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, events...)
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) committedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

// --- Fixtures ---

func testLogger() arbor.ILogger {
	return logger.NoOp()
}

// newMemGateway returns an initialised gateway over an in-memory backend.
func newMemGateway(t *testing.T) (*IndexGateway, *memBackend) {
	t.Helper()
	backend := newMemBackend()
	gw := NewIndexGateway(backend, GatewayConfig{Dimension: testDim, Connect: noRetry, Write: noRetry}, testLogger())
	require.NoError(t, gw.Init(context.Background()))
	return gw, backend
}

// newSQLiteGateway returns an initialised gateway over a SQLite file in a temp dir.
func newSQLiteGateway(t *testing.T) *IndexGateway {
	t.Helper()
	backend := sqlite.New(filepath.Join(t.TempDir(), "vectors.db"))
	gw := NewIndexGateway(backend, GatewayConfig{Dimension: testDim, Connect: noRetry}, testLogger())
	require.NoError(t, gw.Init(context.Background()))
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

func newTestIndexer(gw *IndexGateway, embedder *stubEmbedder) *Indexer {
	return NewIndexer(chunker.New(), embedder, gw, testLogger())
}

func reviewEvent(t *testing.T, bookID, text string, rating int) domain.ChangeEvent {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"book_id":     bookID,
		"book_title":  "Book " + bookID,
		"author":      "Author",
		"review_text": text,
		"rating":      rating,
	})
	require.NoError(t, err)
	return domain.ChangeEvent{Topic: DefaultReviewTopic, Payload: payload}
}

var errUnreachable = fmt.Errorf("dial tcp: %w", domain.ErrConnection)

var errBoom = errors.New("boom")
