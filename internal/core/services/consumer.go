package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/ternarybob/arbor"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-ingest/internal/filter"
	"github.com/custodia-labs/sercha-ingest/internal/retry"
)

// Ensure Consumer implements the interface.
var _ driving.ConsumerService = (*Consumer)(nil)

// Consumer defaults.
const (
	DefaultBookTopic      = "books.public.books"
	DefaultReviewTopic    = "reviews.books_reviews.reviews"
	DefaultBatchSize      = 50
	DefaultFlushTimeout   = 500 * time.Millisecond
	DefaultPollTimeout    = 100 * time.Millisecond
	DefaultMaxPollRecords = 100
)

// ConsumerConfig configures the change-event consumer.
type ConsumerConfig struct {
	// BookTopic and ReviewTopic are matched as substrings of the event topic.
	BookTopic   string
	ReviewTopic string

	// BatchSize flushes as soon as this many records are buffered (default: 50).
	BatchSize int

	// FlushTimeout flushes a non-empty buffer this long after the previous
	// flush (default: 500ms).
	FlushTimeout time.Duration

	// CheckInterval is how often the flush timeout is checked
	// (default: FlushTimeout/5).
	CheckInterval time.Duration

	// PollTimeout and MaxPollRecords bound each poll (default: 100ms, 100).
	PollTimeout    time.Duration
	MaxPollRecords int

	// Connect is applied to the startup connection (default: 10 attempts, 2s doubling).
	Connect retry.Policy
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.BookTopic == "" {
		c.BookTopic = DefaultBookTopic
	}
	if c.ReviewTopic == "" {
		c.ReviewTopic = DefaultReviewTopic
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = DefaultFlushTimeout
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = c.FlushTimeout / 5
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.MaxPollRecords <= 0 {
		c.MaxPollRecords = DefaultMaxPollRecords
	}
	if c.Connect.MaxAttempts == 0 {
		c.Connect = retry.Policy{
			MaxAttempts: 10,
			Backoff:     retry.Exponential(2*time.Second, 2, 0),
		}
	}
	return c
}

// pipelineState is everything the loop accumulates between flushes.
// Only the loop goroutine touches it.
type pipelineState struct {
	buffer    []domain.BufferedRecord
	deletes   []string
	events    []domain.ChangeEvent
	lastFlush time.Time
	lastStamp int64
}

// nextTimestamp returns a unix-ms timestamp strictly greater than the last one.
func (p *pipelineState) nextTimestamp(now time.Time) int64 {
	ts := now.UnixMilli()
	if ts <= p.lastStamp {
		ts = p.lastStamp + 1
	}
	p.lastStamp = ts
	return ts
}

func (p *pipelineState) reset(now time.Time) {
	p.buffer = nil
	p.deletes = nil
	p.events = nil
	p.lastFlush = now
}

// Consumer buffers change events and flushes them into the index by size or time.
type Consumer struct {
	source  driven.EventSource
	indexer *Indexer
	gateway *IndexGateway
	cfg     ConsumerConfig
	clock   clockwork.Clock
	logger  arbor.ILogger

	state *pipelineState

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	stats   domain.ConsumerStats
}

// NewConsumer creates a consumer. A nil clock uses the real clock.
func NewConsumer(
	source driven.EventSource,
	indexer *Indexer,
	gateway *IndexGateway,
	cfg ConsumerConfig,
	clock clockwork.Clock,
	logger arbor.ILogger,
) *Consumer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cfg = cfg.withDefaults()
	if cfg.Connect.Clock == nil {
		cfg.Connect.Clock = clock
	}
	return &Consumer{
		source:  source,
		indexer: indexer,
		gateway: gateway,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		state:   &pipelineState{},
		stats:   domain.ConsumerStats{State: domain.StateIdle},
	}
}

// Run connects to the event source and consumes until ctx is cancelled or
// Stop is called. Exhausting the connection attempts is fatal.
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return domain.ErrConsumerRunning
	}
	c.running = true
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.stats.State = domain.StateStopped
		c.mu.Unlock()
	}()

	policy := c.cfg.Connect
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Warn().
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Str("delay", delay.String()).
			Err(err).
			Msg("Event source connection failed, retrying")
	}
	if err := policy.Do(ctx, c.source.Connect); err != nil {
		return fmt.Errorf("connect event source: %w", err)
	}
	defer func() {
		if err := c.source.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to close event source")
		}
	}()

	c.logger.Info().
		Str("book_topic", c.cfg.BookTopic).
		Str("review_topic", c.cfg.ReviewTopic).
		Int("batch_size", c.cfg.BatchSize).
		Str("flush_timeout", c.cfg.FlushTimeout.String()).
		Msg("Starting change-event consumption")

	return c.loop(ctx, stopCh)
}

// Stop ends the loop. A flush in progress completes first; no new one starts.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.stopCh == nil {
		return
	}
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

// State returns the current pipeline state.
func (c *Consumer) State() domain.PipelineState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.State
}

// Stats returns a snapshot of the consumer counters.
func (c *Consumer) Stats() domain.ConsumerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Consumer) setState(s domain.PipelineState) {
	c.mu.Lock()
	c.stats.State = s
	c.stats.Buffered = len(c.state.buffer)
	c.stats.PendingDelete = len(c.state.deletes)
	c.mu.Unlock()
}

// loop multiplexes polled batches, the flush-check ticker and stop.
func (c *Consumer) loop(ctx context.Context, stopCh <-chan struct{}) error {
	pollCtx, cancelPoll := context.WithCancel(ctx)
	batches := make(chan []domain.ChangeEvent, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.poll(pollCtx, batches)
	}()
	defer func() {
		cancelPoll()
		wg.Wait()
	}()

	ticker := c.clock.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	c.state.lastFlush = c.clock.Now()
	c.setState(domain.StatePolling)

	for {
		if stopped(stopCh) {
			c.logger.Info().Int("buffered", len(c.state.buffer)).Msg("Consumer stopped")
			return nil
		}

		select {
		case <-ctx.Done():
			c.logger.Info().Int("buffered", len(c.state.buffer)).Msg("Consumer cancelled")
			return ctx.Err()

		case <-stopCh:
			c.logger.Info().Int("buffered", len(c.state.buffer)).Msg("Consumer stopped")
			return nil

		case events := <-batches:
			for _, ev := range events {
				c.route(ev)
			}
			if len(c.state.buffer) >= c.cfg.BatchSize && !stopped(stopCh) {
				c.flush(ctx)
			}
			c.setState(domain.StatePolling)

		case <-ticker.Chan():
			if !stopped(stopCh) {
				c.onTick(ctx)
			}
		}
	}
}

// stopped reports whether Stop has been called. Checked before each flush
// so none starts once stop is requested.
func stopped(stopCh <-chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

// poll feeds non-empty batches to the loop until ctx ends.
// Poll errors are logged and retried on the next iteration.
func (c *Consumer) poll(ctx context.Context, out chan<- []domain.ChangeEvent) {
	for ctx.Err() == nil {
		events, err := c.source.Poll(ctx, c.cfg.MaxPollRecords, c.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Msg("Poll failed")
			select {
			case <-ctx.Done():
				return
			case <-c.clock.After(c.cfg.PollTimeout):
			}
			continue
		}
		if len(events) == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case out <- events:
		}
	}
}

func (c *Consumer) onTick(ctx context.Context) {
	st := c.state
	pending := len(st.buffer) > 0 || len(st.deletes) > 0
	if pending && c.clock.Since(st.lastFlush) >= c.cfg.FlushTimeout {
		c.flush(ctx)
		c.setState(domain.StatePolling)
		return
	}
	// Only skipped events are outstanding; acknowledge them.
	if !pending && len(st.events) > 0 {
		c.commit(ctx, c.logger, st.events)
		st.events = nil
	}
}

// route normalises a change event into the buffer or the pending deletes.
func (c *Consumer) route(ev domain.ChangeEvent) {
	c.state.events = append(c.state.events, ev)

	c.mu.Lock()
	c.stats.EventsSeen++
	c.mu.Unlock()

	var buffered bool
	switch c.topicKind(ev.Topic) {
	case domain.TopicBook:
		buffered = c.handleBook(ev)
	case domain.TopicReview:
		buffered = c.handleReview(ev)
	default:
		c.logger.Warn().Str("topic", ev.Topic).Msg("Unknown topic, ignoring event")
	}

	if !buffered {
		c.mu.Lock()
		c.stats.EventsSkipped++
		c.mu.Unlock()
	}
}

func (c *Consumer) topicKind(topic string) domain.TopicKind {
	switch {
	case strings.Contains(topic, c.cfg.BookTopic):
		return domain.TopicBook
	case strings.Contains(topic, c.cfg.ReviewTopic):
		return domain.TopicReview
	default:
		return domain.TopicUnknown
	}
}

// handleBook queues deletes for removed books. Book rows themselves carry
// no indexable text.
func (c *Consumer) handleBook(ev domain.ChangeEvent) bool {
	row, deleted, err := decodeRow(ev.Payload)
	if err != nil {
		c.logger.Warn().Str("topic", ev.Topic).Err(err).Msg("Malformed book event")
		return false
	}
	id := stringValue(row["id"])
	if !deleted {
		c.logger.Debug().Str("book_id", id).Msg("Skipping book metadata event")
		return false
	}
	if id == "" {
		return false
	}
	c.state.deletes = append(c.state.deletes, id)

	// Deletes run before upserts at flush, so records buffered earlier for
	// this book must go now or they would outlive the delete.
	st := c.state
	kept := st.buffer[:0]
	for _, r := range st.buffer {
		if r.BookID != id {
			kept = append(kept, r)
		}
	}
	dropped := len(st.buffer) - len(kept)
	st.buffer = kept

	c.logger.Debug().Str("book_id", id).Int("dropped", dropped).Msg("Queued delete for removed book")
	return true
}

func (c *Consumer) handleReview(ev domain.ChangeEvent) bool {
	row, deleted, err := decodeRow(ev.Payload)
	if err != nil {
		c.logger.Warn().Str("topic", ev.Topic).Err(err).Msg("Malformed review event")
		return false
	}
	if deleted {
		return false
	}
	text := stringValue(row["review_text"])
	if text == "" {
		return false
	}
	rating := stringValue(row["rating"])
	if rating == "" {
		rating = "0"
	}

	rec := domain.BufferedRecord{
		BookID:    stringValue(row["book_id"]),
		Title:     stringValue(row["book_title"]),
		Author:    stringValue(row["author"]),
		Text:      fmt.Sprintf("Review (Rating: %s/5): %s", rating, text),
		Source:    domain.SourceMongo,
		Timestamp: c.state.nextTimestamp(c.clock.Now()),
	}
	c.state.buffer = append(c.state.buffer, rec)
	c.logger.Debug().Str("book_id", rec.BookID).Msg("Buffered review event")
	return true
}

// flush deletes removed books, indexes the buffer, commits the flushed
// events and resets the state whatever the outcome.
func (c *Consumer) flush(ctx context.Context) {
	st := c.state
	records, deletes, events := st.buffer, st.deletes, st.events
	st.reset(c.clock.Now())

	if len(records) == 0 && len(deletes) == 0 {
		c.commit(ctx, c.logger, events)
		return
	}

	c.setState(domain.StateFlushing)
	defer c.setState(domain.StateIdle)

	// An in-flight flush outlives cancellation of the loop.
	ctx = context.WithoutCancel(ctx)
	logger := c.logger.WithCorrelationId(uuid.NewString())
	start := c.clock.Now()

	logger.Info().Int("records", len(records)).Int("deletes", len(deletes)).Msg("Flushing buffer")

	failed := false
	for _, bookID := range deletes {
		if err := c.gateway.Delete(ctx, filter.Equals(domain.FieldBookID, bookID)); err != nil {
			failed = true
			logger.Error().Str("book_id", bookID).Err(err).Msg("Failed to delete book chunks")
		}
	}

	reqs := make([]IndexRequest, len(records))
	for i, r := range records {
		reqs[i] = IndexRequest{Text: r.Text, Meta: r.Metadata()}
	}
	result, err := c.indexer.Index(ctx, reqs, ModeUpsert)
	if err != nil {
		failed = true
		logger.Error().Err(err).Int("written", result.Written).Int("failed", result.Failed).Msg("Flush completed with failures")
	} else {
		logger.Info().
			Int("chunks", result.Chunks).
			Int("written", result.Written).
			Str("elapsed", c.clock.Since(start).String()).
			Msg("Flushed buffer")
	}

	c.commit(ctx, logger, events)

	c.mu.Lock()
	c.stats.Flushes++
	if failed {
		c.stats.FailedFlushes++
	}
	c.stats.LastFlush = c.clock.Now()
	c.stats.Indexed.Add(result)
	c.mu.Unlock()
}

func (c *Consumer) commit(ctx context.Context, logger arbor.ILogger, events []domain.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	if err := c.source.Commit(ctx, events); err != nil {
		logger.Warn().Err(err).Int("events", len(events)).Msg("Failed to commit offsets")
	}
}

// decodeRow extracts the row from a change-event payload. Flattened rows
// are used as is; Debezium envelopes are unwrapped to their after (or, for
// deletes, before) image. Rewrite-mode deletes carry __deleted "true".
func decodeRow(payload []byte) (map[string]any, bool, error) {
	if len(payload) == 0 {
		return nil, true, nil
	}
	var row map[string]any
	if err := json.Unmarshal(payload, &row); err != nil {
		return nil, false, err
	}
	if inner, ok := row["payload"].(map[string]any); ok {
		row = inner
	}

	if _, ok := row["op"]; ok {
		after := envelopeImage(row["after"])
		if row["op"] == "d" || after == nil {
			return envelopeImage(row["before"]), true, nil
		}
		return after, false, nil
	}

	deleted := strings.EqualFold(stringValue(row["__deleted"]), "true")
	return row, deleted, nil
}

// envelopeImage returns a row image; MongoDB connectors send it as a JSON string.
func envelopeImage(v any) map[string]any {
	switch img := v.(type) {
	case map[string]any:
		return img
	case string:
		var m map[string]any
		if json.Unmarshal([]byte(img), &m) == nil {
			return m
		}
	}
	return nil
}

// stringValue renders a decoded JSON scalar. Integral numbers print
// without a decimal point.
func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		// MongoDB extended JSON, e.g. {"$oid": "..."} or {"$numberInt": "5"}
		for _, k := range []string{"$oid", "$numberInt", "$numberLong", "$numberDouble"} {
			if s, ok := x[k].(string); ok {
				return s
			}
		}
	}
	return fmt.Sprint(v)
}
