package driving

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// SearchService answers queries against the vector index.
type SearchService interface {
	// Search embeds the query and returns the nearest chunks.
	Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchHit, error)

	// Stats returns collection statistics.
	Stats(ctx context.Context) (domain.IndexStats, error)

	// Delete removes every chunk matching a filter expression.
	Delete(ctx context.Context, expr string) error

	// DeleteBook removes every chunk of a book.
	DeleteBook(ctx context.Context, bookID string) error
}
