package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// EventSource delivers change events, ordered per partition.
type EventSource interface {
	// Connect establishes the connection to the broker.
	// Returns an error wrapping domain.ErrConnection when unreachable.
	Connect(ctx context.Context) error

	// Poll returns up to maxRecords events, waiting at most timeout.
	// An empty slice with nil error means nothing arrived in time.
	Poll(ctx context.Context, maxRecords int, timeout time.Duration) ([]domain.ChangeEvent, error)

	// Commit acknowledges events so they are not redelivered.
	Commit(ctx context.Context, events []domain.ChangeEvent) error

	// Close releases resources.
	Close() error
}
