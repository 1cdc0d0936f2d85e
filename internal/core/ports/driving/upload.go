package driving

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// UploadService indexes extracted document text outside the event pipeline.
type UploadService interface {
	// IngestText chunks, embeds and indexes text. Text with chapter markers
	// is indexed per chapter. On partial failure the result carries the
	// counts and the error only its kind (domain.ErrEmbeddingUnavailable,
	// domain.ErrConnection, domain.ErrIndexIncomplete).
	IngestText(ctx context.Context, text string, meta domain.ChunkMetadata) (domain.IndexResult, error)

	// IngestFile reads a text file and indexes it using metadata parsed
	// from its name.
	IngestFile(ctx context.Context, path string) (domain.IndexResult, error)
}
