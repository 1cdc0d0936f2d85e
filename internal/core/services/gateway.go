package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/filter"
	"github.com/custodia-labs/sercha-ingest/internal/retry"
)

// Gateway defaults.
const (
	DefaultCollection     = "book_embeddings"
	DefaultDimension      = 1536
	DefaultHNSWM          = 16
	DefaultEfConstruction = 200
	DefaultTopK           = 5
)

// GatewayConfig configures the index gateway.
type GatewayConfig struct {
	Collection string
	Dimension  int
	Index      domain.IndexParams

	// Connect is applied to Init's connection attempts
	// (default: 5 attempts, 2s doubling).
	Connect retry.Policy

	// Write is applied to insert, upsert and delete calls
	// (default: 3 attempts on connection errors, 1s doubling).
	Write retry.Policy
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.Dimension <= 0 {
		c.Dimension = DefaultDimension
	}
	if c.Index.Type == "" {
		c.Index.Type = domain.IndexTypeHNSW
	}
	if c.Index.Metric == "" {
		c.Index.Metric = domain.MetricIP
	}
	if c.Index.M <= 0 {
		c.Index.M = DefaultHNSWM
	}
	if c.Index.EfConstruction <= 0 {
		c.Index.EfConstruction = DefaultEfConstruction
	}
	if c.Connect.MaxAttempts == 0 {
		c.Connect = retry.Policy{
			MaxAttempts: 5,
			Backoff:     retry.Exponential(2*time.Second, 2, 30*time.Second),
		}
	}
	if c.Write.MaxAttempts == 0 {
		c.Write = retry.Policy{
			MaxAttempts: 3,
			Backoff:     retry.Exponential(time.Second, 2, 10*time.Second),
		}
	}
	c.Write.Retryable = isConnectionError
	return c
}

func isConnectionError(err error) bool {
	return errors.Is(err, domain.ErrConnection)
}

// IndexGateway owns the collection schema and lifecycle and validates every
// write before it reaches the backend.
type IndexGateway struct {
	backend driven.VectorBackend
	cfg     GatewayConfig
	logger  arbor.ILogger

	mu          sync.RWMutex
	initialized bool
}

// NewIndexGateway creates a gateway. Call Init before any other operation.
func NewIndexGateway(backend driven.VectorBackend, cfg GatewayConfig, logger arbor.ILogger) *IndexGateway {
	return &IndexGateway{
		backend: backend,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Collection returns the collection name.
func (g *IndexGateway) Collection() string {
	return g.cfg.Collection
}

// Dimension returns the configured vector dimension.
func (g *IndexGateway) Dimension() int {
	return g.cfg.Dimension
}

// Init connects, creating and indexing the collection if missing, and loads it.
// Connection failures are retried; exhausting the attempts returns an error
// wrapping domain.ErrConnection.
func (g *IndexGateway) Init(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.initialized {
		return nil
	}

	policy := g.cfg.Connect
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		g.logger.Warn().
			Int("attempt", attempt).
			Str("delay", delay.String()).
			Err(err).
			Msg("Vector index unreachable, retrying")
	}
	if err := policy.Do(ctx, g.backend.Connect); err != nil {
		return fmt.Errorf("connect vector index: %w", err)
	}

	name := g.cfg.Collection
	exists, err := g.backend.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}

	if !exists {
		g.logger.Info().Str("collection", name).Int("dimension", g.cfg.Dimension).Msg("Creating collection")
		if err := g.backend.CreateCollection(ctx, domain.NewCollectionSchema(name, g.cfg.Dimension)); err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		if err := g.backend.CreateIndex(ctx, name, g.cfg.Index); err != nil {
			return fmt.Errorf("create index on %s: %w", name, err)
		}
	}

	if err := g.backend.Load(ctx, name); err != nil {
		return fmt.Errorf("load collection %s: %w", name, err)
	}

	g.initialized = true
	g.logger.Info().Str("collection", name).Bool("created", !exists).Msg("Vector index ready")
	return nil
}

func (g *IndexGateway) ready() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.initialized {
		return domain.ErrNotInitialized
	}
	return nil
}

// prepare checks dimensions and identity fields, and clips descriptive fields.
func (g *IndexGateway) prepare(docs []domain.IndexedDocument) ([]domain.IndexedDocument, error) {
	out := make([]domain.IndexedDocument, len(docs))
	for i, d := range docs {
		if len(d.Vector) != g.cfg.Dimension {
			return nil, fmt.Errorf("document %s: got %d dimensions, want %d: %w",
				d.ID, len(d.Vector), g.cfg.Dimension, domain.ErrDimensionMismatch)
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		out[i] = d.Truncated()
	}
	return out, nil
}

// Insert appends documents with new ids.
func (g *IndexGateway) Insert(ctx context.Context, docs []domain.IndexedDocument) error {
	return g.write(ctx, "insert", docs, g.backend.Insert)
}

// Upsert inserts or overwrites documents by id.
func (g *IndexGateway) Upsert(ctx context.Context, docs []domain.IndexedDocument) error {
	return g.write(ctx, "upsert", docs, g.backend.Upsert)
}

func (g *IndexGateway) write(
	ctx context.Context,
	op string,
	docs []domain.IndexedDocument,
	fn func(context.Context, string, []domain.IndexedDocument) error,
) error {
	if err := g.ready(); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	prepared, err := g.prepare(docs)
	if err != nil {
		return err
	}

	err = g.cfg.Write.Do(ctx, func(ctx context.Context) error {
		return fn(ctx, g.cfg.Collection, prepared)
	})
	if err != nil {
		return fmt.Errorf("%s %d documents: %w", op, len(prepared), err)
	}
	g.logger.Debug().Str("op", op).Int("documents", len(prepared)).Msg("Wrote documents")
	return nil
}

// Search returns the top hits for a query vector.
func (g *IndexGateway) Search(ctx context.Context, query []float32, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	if len(query) != g.cfg.Dimension {
		return nil, fmt.Errorf("query: got %d dimensions, want %d: %w",
			len(query), g.cfg.Dimension, domain.ErrDimensionMismatch)
	}
	if _, err := filter.Compile(opts.Filter); err != nil {
		return nil, err
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return g.backend.Search(ctx, g.cfg.Collection, query, opts)
}

// Delete removes documents matching a non-empty filter expression.
func (g *IndexGateway) Delete(ctx context.Context, expr string) error {
	if err := g.ready(); err != nil {
		return err
	}
	f, err := filter.Compile(expr)
	if err != nil {
		return err
	}
	if f.Empty() {
		return fmt.Errorf("%w: delete requires a filter", domain.ErrInvalidInput)
	}

	err = g.cfg.Write.Do(ctx, func(ctx context.Context) error {
		return g.backend.Delete(ctx, g.cfg.Collection, f.String())
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", f.String(), err)
	}
	g.logger.Info().Str("filter", f.String()).Msg("Deleted documents")
	return nil
}

// Stats returns the entity count and load state.
func (g *IndexGateway) Stats(ctx context.Context) (domain.IndexStats, error) {
	if err := g.ready(); err != nil {
		return domain.IndexStats{}, err
	}
	n, err := g.backend.Count(ctx, g.cfg.Collection)
	if err != nil {
		return domain.IndexStats{}, fmt.Errorf("count: %w", err)
	}
	state, err := g.backend.LoadState(ctx, g.cfg.Collection)
	if err != nil {
		return domain.IndexStats{}, fmt.Errorf("load state: %w", err)
	}
	return domain.IndexStats{
		Collection: g.cfg.Collection,
		Entities:   n,
		Loaded:     state == domain.LoadStateLoaded,
	}, nil
}

// Close releases the backend. The gateway must be re-initialised to be used again.
func (g *IndexGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialized = false
	return g.backend.Close()
}
