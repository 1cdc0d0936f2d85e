// Package redis provides an embedding cache backed by Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/cache"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.EmbeddingCache = (*Cache)(nil)

// DefaultTimeout bounds each cache round trip.
const DefaultTimeout = 2 * time.Second

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

// Cache stores vectors as binary strings with SET EX.
type Cache struct {
	client *goredis.Client
}

// New creates a Redis cache. It does not connect until first use.
func New(cfg Config) *Cache {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Cache{
		client: goredis.NewClient(&goredis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.Timeout,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		}),
	}
}

// NewFromClient wraps an existing client.
func NewFromClient(client *goredis.Client) *Cache {
	return &Cache{client: client}
}

// Ping checks that Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %v: %w", err, domain.ErrConnection)
	}
	return nil
}

// Get returns the cached vector for key.
func (c *Cache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get: %v: %w", err, domain.ErrConnection)
	}
	vec, err := cache.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set stores vector under key for ttl.
func (c *Cache) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, cache.Encode(vector), ttl).Err(); err != nil {
		return fmt.Errorf("redis: set: %v: %w", err, domain.ErrConnection)
	}
	return nil
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
