package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/cache"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/cache/badger"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/cache/redis"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/embedding/cached"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/embedding/gemini"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/eventsource/kafka"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/vector/milvus"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/vector/sqlite"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-ingest/internal/config"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/core/services"
	"github.com/custodia-labs/sercha-ingest/internal/normalisers/markdown"
	"github.com/custodia-labs/sercha-ingest/internal/normalisers/plaintext"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/chunker"
	"github.com/custodia-labs/sercha-ingest/internal/retry"
)

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// build wires every adapter and service from cfg. The index gateway is
// initialised here so every command fails fast when the index is unreachable.
func build(ctx context.Context, cfg *config.Config, log arbor.ILogger) (_ *cli.Services, err error) {
	var cs closers
	defer func() {
		if err != nil {
			_ = cs.close()
		}
	}()

	provider, err := newProvider(ctx, cfg.Embedding)
	if err != nil {
		return nil, err
	}
	cs = append(cs, provider.Close)

	c, err := newCache(ctx, cfg.Cache, log)
	if err != nil {
		return nil, err
	}
	cs = append(cs, c.Close)

	embedder := cached.New(provider, c, cached.Config{
		MaxBatchSize: cfg.Embedding.MaxBatchSize,
		RateLimit:    cfg.Embedding.RateLimit,
		RatePeriod:   cfg.Embedding.RatePeriod.Std(),
		CacheTTL:     cfg.Cache.TTL.Std(),
		Retry: retry.Policy{
			MaxAttempts: cfg.Embedding.MaxAttempts,
			Backoff:     retry.Exponential(4*time.Second, 2, 10*time.Second),
			Retryable:   domain.IsRetryable,
		},
	}, log)

	metric, _ := domain.ParseMetric(cfg.Vector.Metric)
	gateway := services.NewIndexGateway(newBackend(cfg.Vector, metric), services.GatewayConfig{
		Collection: cfg.Vector.Collection,
		Dimension:  cfg.Embedding.Dimensions,
		Index: domain.IndexParams{
			Type:           domain.IndexTypeHNSW,
			Metric:         metric,
			M:              cfg.Vector.M,
			EfConstruction: cfg.Vector.EfConstruction,
		},
	}, log)
	if err := gateway.Init(ctx); err != nil {
		return nil, fmt.Errorf("initialise vector index: %w", err)
	}
	cs = append(cs, gateway.Close)

	textChunker := chunker.New(
		chunker.WithChunkSize(cfg.Chunker.Size),
		chunker.WithOverlap(cfg.Chunker.Overlap),
	)
	indexer := services.NewIndexer(textChunker, embedder, gateway, log)

	source := kafka.New(kafka.Config{
		Brokers:     cfg.Kafka.Brokers,
		GroupID:     cfg.Kafka.GroupID,
		Topics:      []string{cfg.Kafka.BookTopic, cfg.Kafka.ReviewTopic},
		StartOffset: cfg.Kafka.StartOffset,
	}, log)

	consumer := services.NewConsumer(source, indexer, gateway, services.ConsumerConfig{
		BookTopic:      cfg.Kafka.BookTopic,
		ReviewTopic:    cfg.Kafka.ReviewTopic,
		BatchSize:      cfg.Batch.Size,
		FlushTimeout:   cfg.Batch.Timeout.Std(),
		CheckInterval:  cfg.Batch.CheckInterval.Std(),
		PollTimeout:    cfg.Kafka.PollTimeout.Std(),
		MaxPollRecords: cfg.Kafka.MaxPollRecords,
		Connect: retry.Policy{
			MaxAttempts: cfg.Kafka.ConnectAttempts,
			Backoff:     retry.Exponential(2*time.Second, 2, 0),
		},
	}, nil, log)

	upload := services.NewUploadService(indexer, services.UploadConfig{
		MinTextLength: cfg.Upload.MinTextLength,
		Source:        cfg.Upload.Source,
		Normalisers:   []driven.Normaliser{plaintext.New(), markdown.New()},
	}, nil, log)

	return &cli.Services{
		Consumer: consumer,
		Upload:   upload,
		Search:   services.NewSearchService(embedder, gateway, log),
		Close:    cs.close,
	}, nil
}

func newProvider(ctx context.Context, cfg config.EmbeddingConfig) (driven.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.New(openai.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout.Std(),
			Dimensions: cfg.Dimensions,
		})
	case "ollama":
		return ollama.New(ollama.Config{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout.Std(),
			Dimensions: cfg.Dimensions,
		}), nil
	case "gemini":
		return gemini.New(ctx, gemini.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout.Std(),
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrInvalidInput, cfg.Provider)
	}
}

// newCache opens the embedding cache. An unreachable Redis is not fatal:
// the service treats cache failures as misses.
func newCache(ctx context.Context, cfg config.CacheConfig, log arbor.ILogger) (driven.EmbeddingCache, error) {
	switch cfg.Backend {
	case "redis":
		rc := redis.New(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Timeout:  cfg.Redis.Timeout.Std(),
		})
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Embedding cache unreachable, continuing without hits")
		}
		return rc, nil
	case "badger":
		return badger.Open(cfg.Badger.Path)
	case "none", "":
		return cache.Disabled{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown cache backend %q", domain.ErrInvalidInput, cfg.Backend)
	}
}

func newBackend(cfg config.VectorConfig, metric domain.Metric) driven.VectorBackend {
	if cfg.Backend == "sqlite" {
		return sqlite.New(cfg.SQLite.Path)
	}
	return milvus.New(milvus.Config{
		Address:  cfg.Milvus.Address,
		Username: cfg.Milvus.Username,
		Password: cfg.Milvus.Password,
		DBName:   cfg.Milvus.DBName,
		SearchEf: cfg.Ef,
		Metric:   metric,
	})
}
