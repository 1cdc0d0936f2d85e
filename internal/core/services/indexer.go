package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// WriteMode selects how the indexer writes documents.
type WriteMode int

const (
	// ModeUpsert overwrites documents with the same id.
	ModeUpsert WriteMode = iota
	// ModeInsert appends documents.
	ModeInsert
)

func (m WriteMode) String() string {
	if m == ModeInsert {
		return "insert"
	}
	return "upsert"
}

// DefaultWriteBatchSize caps documents per gateway write.
const DefaultWriteBatchSize = 500

// IndexRequest is one source text and its metadata.
type IndexRequest struct {
	Text string
	Meta domain.ChunkMetadata
}

// Indexer runs chunk → embed → write for a set of texts.
// It is shared by the consumer flush and the upload path.
type Indexer struct {
	chunker   driven.TextChunker
	embedder  driven.EmbeddingService
	gateway   *IndexGateway
	batchSize int
	logger    arbor.ILogger
}

// NewIndexer creates an indexer.
func NewIndexer(
	chunker driven.TextChunker,
	embedder driven.EmbeddingService,
	gateway *IndexGateway,
	logger arbor.ILogger,
) *Indexer {
	return &Indexer{
		chunker:   chunker,
		embedder:  embedder,
		gateway:   gateway,
		batchSize: DefaultWriteBatchSize,
		logger:    logger,
	}
}

// Index chunks every request in order, embeds all chunks in one batch and
// writes the documents that received a vector. A request with invalid
// metadata is skipped and counts as one failure. Chunks without a vector and
// documents whose write failed are counted in Failed. The returned error
// summarises failures; the result is valid either way.
func (ix *Indexer) Index(ctx context.Context, reqs []IndexRequest, mode WriteMode) (domain.IndexResult, error) {
	result := domain.IndexResult{Records: len(reqs)}

	var (
		chunks []domain.Chunk
		errs   []error
	)
	for _, r := range reqs {
		if err := r.Meta.Validate(); err != nil {
			result.Failed++
			errs = append(errs, err)
			ix.logger.Warn().Err(err).Msg("Skipping record")
			continue
		}
		chunks = append(chunks, ix.chunker.Chunk(r.Text, r.Meta)...)
	}
	result.Chunks = len(chunks)
	if len(chunks) == 0 {
		return result, summarise(result, errs)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		errs = append(errs, err)
		ix.logger.Error().Err(err).Int("chunks", len(chunks)).Msg("Embedding failed for some chunks")
	}

	docs := make([]domain.IndexedDocument, 0, len(chunks))
	for i, c := range chunks {
		if i >= len(vectors) || vectors[i] == nil {
			result.Failed++
			continue
		}
		docs = append(docs, domain.NewIndexedDocument(c, vectors[i]))
	}
	result.Embedded = len(docs)

	write := ix.gateway.Upsert
	if mode == ModeInsert {
		write = ix.gateway.Insert
	}

	for start := 0; start < len(docs); start += ix.batchSize {
		end := min(start+ix.batchSize, len(docs))
		batch := docs[start:end]
		if err := write(ctx, batch); err != nil {
			// Not initialised is a caller bug, not a per-batch failure.
			if errors.Is(err, domain.ErrNotInitialized) {
				return result, err
			}
			result.Failed += len(batch)
			errs = append(errs, err)
			ix.logger.Error().Err(err).Str("mode", mode.String()).Int("documents", len(batch)).Msg("Index write failed")
			continue
		}
		result.Written += len(batch)
	}

	return result, summarise(result, errs)
}

func summarise(result domain.IndexResult, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("indexed %d of %d chunks: %w", result.Written, result.Chunks, errors.Join(errs...))
}
