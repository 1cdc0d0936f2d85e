package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// VectorBackend is the storage engine behind the index gateway.
// The gateway owns schema, lifecycle and validation; backends only execute.
type VectorBackend interface {
	// Connect opens the connection. Failures wrap domain.ErrConnection.
	Connect(ctx context.Context) error

	// HasCollection reports whether the named collection exists.
	HasCollection(ctx context.Context, name string) (bool, error)

	// CreateCollection creates a collection with the given schema.
	CreateCollection(ctx context.Context, schema domain.CollectionSchema) error

	// CreateIndex builds the nearest-neighbour index over the vector field.
	CreateIndex(ctx context.Context, collection string, params domain.IndexParams) error

	// Load makes the collection searchable.
	Load(ctx context.Context, collection string) error

	// LoadState returns the collection's searchable state.
	LoadState(ctx context.Context, collection string) (domain.LoadState, error)

	// Insert appends documents. Ids are expected to be new.
	Insert(ctx context.Context, collection string, docs []domain.IndexedDocument) error

	// Upsert inserts or overwrites documents by id.
	Upsert(ctx context.Context, collection string, docs []domain.IndexedDocument) error

	// Search returns the top hits for a query vector.
	Search(ctx context.Context, collection string, query []float32, opts domain.SearchOptions) ([]domain.SearchHit, error)

	// Delete removes every document matching the filter expression.
	Delete(ctx context.Context, collection, filter string) error

	// Count returns the number of entities in the collection.
	Count(ctx context.Context, collection string) (int64, error)

	// Close releases resources.
	Close() error
}
