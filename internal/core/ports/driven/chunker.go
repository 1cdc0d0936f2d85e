package driven

import "github.com/custodia-labs/sercha-ingest/internal/core/domain"

// TextChunker splits text into ordered chunks carrying the given metadata.
// Implementations must be deterministic.
type TextChunker interface {
	Chunk(text string, meta domain.ChunkMetadata) []domain.Chunk
}
