// Package cached provides the pipeline's embedding service: a cache-first,
// deduplicating, rate-limited front for an embedding provider.
package cached

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/cache"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/retry"
)

// Ensure Service implements the interface.
var _ driven.EmbeddingService = (*Service)(nil)

// Default configuration values.
const (
	DefaultMaxBatchSize = 100
	DefaultRateLimit    = 50
	DefaultRatePeriod   = time.Second
	DefaultCacheTTL     = 7 * 24 * time.Hour
	DefaultMaxAttempts  = 3
)

// DefaultRetryPolicy retries transient failures three times with exponential
// backoff between 4s and 10s.
func DefaultRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     retry.Exponential(4*time.Second, 2, 10*time.Second),
		Retryable:   domain.IsRetryable,
	}
}

// Config holds the embedding service settings.
type Config struct {
	// MaxBatchSize caps texts per provider call (default: 100).
	MaxBatchSize int

	// RateLimit is the number of provider calls allowed per RatePeriod
	// (default: 50 per second). It also sizes the concurrency semaphore.
	RateLimit  int
	RatePeriod time.Duration

	// CacheTTL is how long written vectors live in the cache (default: 7 days).
	CacheTTL time.Duration

	// Retry is applied to every provider call. Zero value uses DefaultRetryPolicy.
	Retry retry.Policy
}

// Service embeds texts, consulting the cache before the provider.
type Service struct {
	provider driven.EmbeddingProvider
	cache    driven.EmbeddingCache
	limiter  *RateLimiter
	retry    retry.Policy
	cfg      Config
	logger   arbor.ILogger
}

// New creates an embedding service. A nil cache disables caching.
func New(provider driven.EmbeddingProvider, c driven.EmbeddingCache, cfg Config, logger arbor.ILogger) *Service {
	if c == nil {
		c = cache.Disabled{}
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.RatePeriod <= 0 {
		cfg.RatePeriod = DefaultRatePeriod
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy()
	}
	if policy.Retryable == nil {
		policy.Retryable = domain.IsRetryable
	}

	s := &Service{
		provider: provider,
		cache:    c,
		limiter:  NewRateLimiter(cfg.RateLimit, cfg.RatePeriod),
		cfg:      cfg,
		logger:   logger,
	}

	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			s.logger.Warn().
				Int("attempt", attempt).
				Str("delay", delay.String()).
				Err(err).
				Msg("Embedding call failed, retrying")
		}
	}
	s.retry = policy

	return s
}

// Limiter exposes the rate limiter, mainly for observability.
func (s *Service) Limiter() *RateLimiter {
	return s.limiter
}

// CacheKey returns the cache key for text under model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embedding:" + model + ":" + hex.EncodeToString(sum[:])
}

// Dimensions returns the provider's vector size.
func (s *Service) Dimensions() int {
	return s.provider.Dimensions()
}

// ModelName returns the provider's model.
func (s *Service) ModelName() string {
	return s.provider.ModelName()
}

// Embed returns the vector for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text in input order. Cache hits bypass the
// provider and the rate limiter. Identical texts are embedded once.
// Sub-batches that fail after retries leave nil vectors; the returned error
// then wraps domain.ErrEmbeddingUnavailable.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	model := s.provider.ModelName()

	// Group input positions by text so duplicates share one lookup and one call.
	positions := make(map[string][]int, len(texts))
	var unique []string
	for i, text := range texts {
		if _, ok := positions[text]; !ok {
			unique = append(unique, text)
		}
		positions[text] = append(positions[text], i)
	}

	var misses []string
	for _, text := range unique {
		vec, ok := s.cacheGet(ctx, CacheKey(model, text))
		if !ok {
			misses = append(misses, text)
			continue
		}
		for _, i := range positions[text] {
			out[i] = vec
		}
	}

	s.logger.Debug().
		Int("texts", len(texts)).
		Int("unique", len(unique)).
		Int("misses", len(misses)).
		Msg("Embedding batch")

	if len(misses) == 0 {
		return out, nil
	}

	var (
		mu     sync.Mutex
		errs   []error
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(misses); start += s.cfg.MaxBatchSize {
		end := min(start+s.cfg.MaxBatchSize, len(misses))
		batch := misses[start:end]

		g.Go(func() error {
			vecs, err := s.embedRemote(gctx, batch)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				failed += len(batch)
				mu.Unlock()
				s.logger.Error().Err(err).Int("texts", len(batch)).Msg("Embedding sub-batch dropped")
				return nil
			}
			for j, text := range batch {
				for _, i := range positions[text] {
					out[i] = vecs[j]
				}
				s.cacheSet(gctx, CacheKey(model, text), vecs[j])
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		return out, fmt.Errorf("%w: %d of %d texts: %w",
			domain.ErrEmbeddingUnavailable, failed, len(unique), errors.Join(errs...))
	}
	return out, nil
}

// embedRemote calls the provider through the limiter with retries.
func (s *Service) embedRemote(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		if err := s.limiter.Acquire(ctx); err != nil {
			return err
		}
		defer s.limiter.Release()

		v, err := s.provider.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(v) != len(texts) {
			return fmt.Errorf("provider returned %d vectors for %d texts", len(v), len(texts))
		}
		vecs = v
		return nil
	})
	return vecs, err
}

// cacheGet treats any cache failure as a miss.
func (s *Service) cacheGet(ctx context.Context, key string) ([]float32, bool) {
	vec, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("Embedding cache read failed")
		return nil, false
	}
	return vec, ok
}

// cacheSet ignores cache failures.
func (s *Service) cacheSet(ctx context.Context, key string, vec []float32) {
	if err := s.cache.Set(ctx, key, vec, s.cfg.CacheTTL); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("Embedding cache write failed")
	}
}
