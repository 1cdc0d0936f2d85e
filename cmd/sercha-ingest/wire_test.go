package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/cache"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/cache/badger"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/vector/milvus"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/vector/sqlite"
	"github.com/custodia-labs/sercha-ingest/internal/config"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.Dimensions = 8
	cfg.Cache.Backend = "badger"
	cfg.Vector.Backend = "sqlite"
	cfg.Vector.SQLite.Path = filepath.Join(t.TempDir(), "vectors.db")
	return cfg
}

func TestBuild_LocalStack(t *testing.T) {
	ctx := context.Background()

	svc, err := build(ctx, localConfig(t), logger.NoOp())
	require.NoError(t, err)
	require.NotNil(t, svc.Consumer)
	require.NotNil(t, svc.Upload)
	require.NotNil(t, svc.Search)

	stats, err := svc.Search.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "book_embeddings", stats.Collection)
	assert.Zero(t, stats.Entities)
	assert.Equal(t, domain.StateIdle, svc.Consumer.State())

	require.NoError(t, svc.Close())
}

func TestBuild_UnknownProvider(t *testing.T) {
	cfg := localConfig(t)
	cfg.Embedding.Provider = "bert"

	_, err := build(context.Background(), cfg, logger.NoOp())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBuild_OpenAIRequiresKey(t *testing.T) {
	cfg := localConfig(t)
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.APIKey = ""

	_, err := build(context.Background(), cfg, logger.NoOp())
	assert.ErrorContains(t, err, "API key is required")
}

func TestNewCache(t *testing.T) {
	ctx := context.Background()
	log := logger.NoOp()

	c, err := newCache(ctx, config.CacheConfig{Backend: "none"}, log)
	require.NoError(t, err)
	assert.IsType(t, cache.Disabled{}, c)

	c, err = newCache(ctx, config.CacheConfig{Backend: "badger"}, log)
	require.NoError(t, err)
	assert.IsType(t, &badger.Cache{}, c)
	require.NoError(t, c.Close())

	_, err = newCache(ctx, config.CacheConfig{Backend: "memcached"}, log)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewBackend(t *testing.T) {
	cfg := config.Default().Vector

	assert.IsType(t, &milvus.Backend{}, newBackend(cfg, domain.MetricIP))

	cfg.Backend = "sqlite"
	assert.IsType(t, &sqlite.Backend{}, newBackend(cfg, domain.MetricIP))
}

func TestClosers_ReverseOrderAndJoin(t *testing.T) {
	var order []int
	boom := errors.New("boom")
	cs := closers{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return boom },
		func() error { order = append(order, 3); return nil },
	}

	err := cs.close()

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{3, 2, 1}, order)
}
