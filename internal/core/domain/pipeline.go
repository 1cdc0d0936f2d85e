package domain

import "time"

// PipelineState is the consumer's lifecycle state.
type PipelineState string

const (
	StateIdle     PipelineState = "IDLE"
	StatePolling  PipelineState = "POLLING"
	StateFlushing PipelineState = "FLUSHING"
	StateStopped  PipelineState = "STOPPED"
)

// ConsumerStats summarises what a consumer has processed so far.
type ConsumerStats struct {
	State         PipelineState
	EventsSeen    int64
	EventsSkipped int64
	Flushes       int64
	FailedFlushes int64
	Buffered      int
	PendingDelete int
	LastFlush     time.Time
	Indexed       IndexResult
}
