package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-ingest/internal/filter"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// SearchService answers similarity queries for downstream consumers.
type SearchService struct {
	embedder driven.EmbeddingService
	gateway  *IndexGateway
	logger   arbor.ILogger
}

// NewSearchService creates a new search service.
func NewSearchService(embedder driven.EmbeddingService, gateway *IndexGateway, logger arbor.ILogger) *SearchService {
	return &SearchService{embedder: embedder, gateway: gateway, logger: logger}
}

// Search embeds the query and returns ranked hits. An empty query returns
// no hits.
func (s *SearchService) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SearchHit{}, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.gateway.Search(ctx, vector, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("query", query).Str("filter", opts.Filter).Int("hits", len(hits)).Msg("Search completed")
	return hits, nil
}

// Stats returns collection statistics.
func (s *SearchService) Stats(ctx context.Context) (domain.IndexStats, error) {
	return s.gateway.Stats(ctx)
}

// Delete removes every chunk matching a filter expression. A blank
// expression is rejected rather than deleting everything.
func (s *SearchService) Delete(ctx context.Context, expr string) error {
	return s.gateway.Delete(ctx, expr)
}

// DeleteBook removes every chunk of a book.
func (s *SearchService) DeleteBook(ctx context.Context, bookID string) error {
	if strings.TrimSpace(bookID) == "" {
		return fmt.Errorf("%w: book id is required", domain.ErrInvalidInput)
	}
	return s.gateway.Delete(ctx, filter.Equals(domain.FieldBookID, bookID))
}
