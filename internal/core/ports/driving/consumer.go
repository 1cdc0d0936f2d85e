package driving

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// ConsumerService runs the change-event pipeline.
type ConsumerService interface {
	// Run consumes events until ctx is cancelled or Stop is called.
	// Returns domain.ErrConsumerRunning if already running.
	Run(ctx context.Context) error

	// Stop ends the loop. An in-flight flush is allowed to complete.
	Stop()

	// State returns the current pipeline state.
	State() domain.PipelineState

	// Stats returns counters for observability.
	Stats() domain.ConsumerStats
}
