package driven

import (
	"context"
	"time"
)

// EmbeddingProvider calls an external embedding model.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, all-minilm)
type EmbeddingProvider interface {
	// EmbedBatch returns one vector per text, in input order.
	// Rate-limit and 5xx answers wrap domain.ErrTransientProvider;
	// transport failures wrap domain.ErrConnection.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 768, 1536, 3072).
	Dimensions() int

	// ModelName returns the model identifier. It is part of the cache key.
	ModelName() string

	// Ping validates the provider is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// EmbeddingService is the deduplicating, cached, rate-limited embedder
// used by the pipeline.
type EmbeddingService interface {
	// EmbedBatch returns one vector per text, in input order. When some
	// provider calls fail after retries, their slots are nil and a non-nil
	// error describes the failures; the other slots are still valid.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Embed generates a vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string
}

// EmbeddingCache stores vectors keyed by a content hash.
// Entries expire by TTL only.
type EmbeddingCache interface {
	// Get returns the cached vector. A miss returns (nil, false, nil).
	Get(ctx context.Context, key string) ([]float32, bool, error)

	// Set stores a vector with the given time to live.
	Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error

	// Close releases resources.
	Close() error
}
