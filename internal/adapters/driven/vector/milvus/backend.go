// Package milvus provides the Milvus vector backend.
package milvus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.VectorBackend = (*Backend)(nil)

// Default configuration values.
const (
	DefaultAddress     = "localhost:19530"
	DefaultDialTimeout = 10 * time.Second
	DefaultSearchEf    = 64

	shardNum = 1
)

// Config holds Milvus connection settings.
type Config struct {
	// Address is host:port of the Milvus proxy (default: localhost:19530).
	Address string

	Username string
	Password string
	DBName   string

	// DialTimeout bounds Connect (default: 10s).
	DialTimeout time.Duration

	// SearchEf is the default HNSW search breadth (default: 64).
	SearchEf int

	// Metric is used to search collections this process did not index.
	Metric domain.Metric
}

// Backend talks to Milvus through the Go SDK.
type Backend struct {
	mu     sync.RWMutex
	cfg    Config
	client client.Client

	metricsMu sync.RWMutex
	metrics   map[string]entity.MetricType
}

// New creates a backend. Nothing is dialled until Connect.
func New(cfg Config) *Backend {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.SearchEf == 0 {
		cfg.SearchEf = DefaultSearchEf
	}
	return &Backend{cfg: cfg, metrics: make(map[string]entity.MetricType)}
}

// Connect dials Milvus.
func (b *Backend) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, b.cfg.DialTimeout)
	defer cancel()

	c, err := client.NewClient(dialCtx, client.Config{
		Address:  b.cfg.Address,
		Username: b.cfg.Username,
		Password: b.cfg.Password,
		DBName:   b.cfg.DBName,
	})
	if err != nil {
		return fmt.Errorf("milvus: connect %s: %v: %w", b.cfg.Address, err, domain.ErrConnection)
	}
	b.client = c
	return nil
}

// Close closes the client.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

func (b *Backend) conn() (client.Client, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.client == nil {
		return nil, fmt.Errorf("milvus: not connected: %w", domain.ErrConnection)
	}
	return b.client, nil
}

// HasCollection reports whether the collection exists.
func (b *Backend) HasCollection(ctx context.Context, name string) (bool, error) {
	c, err := b.conn()
	if err != nil {
		return false, err
	}
	ok, err := c.HasCollection(ctx, name)
	if err != nil {
		return false, wrap("has collection", err)
	}
	return ok, nil
}

// CreateCollection creates the collection from the domain schema.
func (b *Backend) CreateCollection(ctx context.Context, schema domain.CollectionSchema) error {
	c, err := b.conn()
	if err != nil {
		return err
	}
	if err := c.CreateCollection(ctx, toEntitySchema(schema), shardNum); err != nil {
		return wrap("create collection", err)
	}
	return nil
}

// CreateIndex builds an HNSW index on the vector field.
func (b *Backend) CreateIndex(ctx context.Context, collection string, params domain.IndexParams) error {
	c, err := b.conn()
	if err != nil {
		return err
	}

	metric := toMetricType(params.Metric)
	idx, err := entity.NewIndexHNSW(metric, params.M, params.EfConstruction)
	if err != nil {
		return fmt.Errorf("milvus: index params: %v: %w", err, domain.ErrInvalidInput)
	}
	if err := c.CreateIndex(ctx, collection, domain.FieldVector, idx, false); err != nil {
		return wrap("create index", err)
	}

	b.metricsMu.Lock()
	b.metrics[collection] = metric
	b.metricsMu.Unlock()
	return nil
}

// Load loads the collection into memory and waits until it is searchable.
func (b *Backend) Load(ctx context.Context, collection string) error {
	c, err := b.conn()
	if err != nil {
		return err
	}
	if err := c.LoadCollection(ctx, collection, false); err != nil {
		return wrap("load collection", err)
	}
	return nil
}

// LoadState returns the collection's load state.
func (b *Backend) LoadState(ctx context.Context, collection string) (domain.LoadState, error) {
	c, err := b.conn()
	if err != nil {
		return "", err
	}
	state, err := c.GetLoadState(ctx, collection, nil)
	if err != nil {
		return "", wrap("load state", err)
	}
	return fromLoadState(state), nil
}

// Insert appends documents and flushes them.
func (b *Backend) Insert(ctx context.Context, collection string, docs []domain.IndexedDocument) error {
	if len(docs) == 0 {
		return nil
	}
	c, err := b.conn()
	if err != nil {
		return err
	}
	cols, err := toColumns(docs)
	if err != nil {
		return err
	}
	if _, err := c.Insert(ctx, collection, "", cols...); err != nil {
		return wrap("insert", err)
	}
	if err := c.Flush(ctx, collection, false); err != nil {
		return wrap("flush", err)
	}
	return nil
}

// Upsert inserts or overwrites documents by primary key.
func (b *Backend) Upsert(ctx context.Context, collection string, docs []domain.IndexedDocument) error {
	if len(docs) == 0 {
		return nil
	}
	c, err := b.conn()
	if err != nil {
		return err
	}
	cols, err := toColumns(docs)
	if err != nil {
		return err
	}
	if _, err := c.Upsert(ctx, collection, "", cols...); err != nil {
		return wrap("upsert", err)
	}
	if err := c.Flush(ctx, collection, false); err != nil {
		return wrap("flush", err)
	}
	return nil
}

// Search runs an HNSW search and returns hits with scalar fields.
func (b *Backend) Search(ctx context.Context, collection string, query []float32, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	c, err := b.conn()
	if err != nil {
		return nil, err
	}

	ef := opts.Ef
	if ef == 0 {
		ef = b.cfg.SearchEf
	}
	if ef < opts.TopK {
		ef = opts.TopK
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		return nil, fmt.Errorf("milvus: search params: %v: %w", err, domain.ErrInvalidInput)
	}

	results, err := c.Search(ctx, collection, nil, opts.Filter, outputFields,
		[]entity.Vector{entity.FloatVector(query)}, domain.FieldVector,
		b.metricFor(collection), opts.TopK, sp)
	if err != nil {
		return nil, wrap("search", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return toHits(results[0])
}

// Delete removes documents matching expr.
func (b *Backend) Delete(ctx context.Context, collection, expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("%w: delete requires a filter", domain.ErrInvalidInput)
	}
	c, err := b.conn()
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, collection, "", expr); err != nil {
		return wrap("delete", err)
	}
	return nil
}

// Count returns the collection's row count statistic.
func (b *Backend) Count(ctx context.Context, collection string) (int64, error) {
	c, err := b.conn()
	if err != nil {
		return 0, err
	}
	stats, err := c.GetCollectionStatistics(ctx, collection)
	if err != nil {
		return 0, wrap("statistics", err)
	}
	n, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("milvus: parse row_count %q: %w", stats["row_count"], err)
	}
	return n, nil
}

func (b *Backend) metricFor(collection string) entity.MetricType {
	b.metricsMu.RLock()
	defer b.metricsMu.RUnlock()
	if m, ok := b.metrics[collection]; ok {
		return m
	}
	return toMetricType(b.cfg.Metric)
}

// wrap marks transport failures as connection errors. The SDK surfaces gRPC
// status text rather than typed errors.
func wrap(op string, err error) error {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"unavailable", "connection refused", "deadline exceeded", "transport"} {
		if strings.Contains(msg, s) {
			return fmt.Errorf("milvus: %s: %v: %w", op, err, domain.ErrConnection)
		}
	}
	return fmt.Errorf("milvus: %s: %w", op, err)
}
