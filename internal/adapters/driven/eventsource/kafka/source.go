// Package kafka provides a Kafka consumer-group event source for Debezium
// change streams.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/ternarybob/arbor"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.EventSource = (*Source)(nil)

// Default configuration values.
const (
	DefaultGroupID     = "rag-consumer-group"
	DefaultDialTimeout = 5 * time.Second
	DefaultMinBytes    = 1024
	DefaultMaxBytes    = 10 << 20
	DefaultMaxWait     = 500 * time.Millisecond

	OffsetEarliest = "earliest"
	OffsetLatest   = "latest"
)

// Config holds the consumer settings.
type Config struct {
	Brokers []string
	GroupID string
	Topics  []string

	// StartOffset is "earliest" or "latest" and applies when the group has
	// no committed offset (default: earliest).
	StartOffset string

	DialTimeout time.Duration
	MinBytes    int
	MaxBytes    int
	MaxWait     time.Duration
}

func (c Config) withDefaults() Config {
	if c.GroupID == "" {
		c.GroupID = DefaultGroupID
	}
	if c.StartOffset == "" {
		c.StartOffset = OffsetEarliest
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.MinBytes <= 0 {
		c.MinBytes = DefaultMinBytes
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.MaxWait <= 0 {
		c.MaxWait = DefaultMaxWait
	}
	return c
}

// Source reads change events from Kafka. Offsets are committed explicitly
// after the events have been flushed.
type Source struct {
	cfg    Config
	logger arbor.ILogger

	mu     sync.Mutex
	reader *kafka.Reader
}

// New creates a source. Nothing is dialled until Connect.
func New(cfg Config, logger arbor.ILogger) *Source {
	return &Source{cfg: cfg.withDefaults(), logger: logger}
}

// Connect probes a broker and starts the group reader.
func (s *Source) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reader != nil {
		return nil
	}
	if len(s.cfg.Brokers) == 0 {
		return fmt.Errorf("%w: no brokers configured", domain.ErrInvalidInput)
	}
	if len(s.cfg.Topics) == 0 {
		return fmt.Errorf("%w: no topics configured", domain.ErrInvalidInput)
	}

	if err := s.probe(ctx); err != nil {
		return err
	}

	startOffset := kafka.FirstOffset
	if strings.EqualFold(s.cfg.StartOffset, OffsetLatest) {
		startOffset = kafka.LastOffset
	}

	s.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     s.cfg.Brokers,
		GroupID:     s.cfg.GroupID,
		GroupTopics: s.cfg.Topics,
		MinBytes:    s.cfg.MinBytes,
		MaxBytes:    s.cfg.MaxBytes,
		MaxWait:     s.cfg.MaxWait,
		StartOffset: startOffset,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			s.logger.Warn().Msgf("kafka: "+msg, args...)
		}),
	})

	s.logger.Info().
		Strs("brokers", s.cfg.Brokers).
		Strs("topics", s.cfg.Topics).
		Str("group_id", s.cfg.GroupID).
		Msg("Connected to Kafka")
	return nil
}

// probe dials the brokers in turn until one answers.
func (s *Source) probe(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	var errs []error
	for _, broker := range s.cfg.Brokers {
		conn, err := kafka.DialContext(dialCtx, "tcp", broker)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("kafka: no broker reachable: %v: %w", errors.Join(errs...), domain.ErrConnection)
}

func (s *Source) current() (*kafka.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader == nil {
		return nil, fmt.Errorf("kafka: not connected: %w", domain.ErrConnection)
	}
	return s.reader, nil
}

// Poll fetches up to maxRecords messages, returning early when timeout
// elapses. Messages are not committed until Commit.
func (s *Source) Poll(ctx context.Context, maxRecords int, timeout time.Duration) ([]domain.ChangeEvent, error) {
	r, err := s.current()
	if err != nil {
		return nil, err
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var events []domain.ChangeEvent
	for len(events) < maxRecords {
		msg, err := r.FetchMessage(pollCtx)
		if err != nil {
			if ctx.Err() != nil {
				return events, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return events, nil
			}
			return events, fmt.Errorf("kafka: fetch: %v: %w", err, domain.ErrConnection)
		}
		events = append(events, toChangeEvent(msg, time.Now()))
	}
	return events, nil
}

// Commit acknowledges the events' offsets for the group.
func (s *Source) Commit(ctx context.Context, events []domain.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	r, err := s.current()
	if err != nil {
		return err
	}
	if err := r.CommitMessages(ctx, toMessages(events)...); err != nil {
		return fmt.Errorf("kafka: commit %d messages: %v: %w", len(events), err, domain.ErrConnection)
	}
	return nil
}

// Close stops the reader.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}

func toChangeEvent(msg kafka.Message, now time.Time) domain.ChangeEvent {
	return domain.ChangeEvent{
		Topic:      msg.Topic,
		Partition:  msg.Partition,
		Offset:     msg.Offset,
		Key:        msg.Key,
		Payload:    msg.Value,
		ReceivedAt: now,
	}
}

func toMessages(events []domain.ChangeEvent) []kafka.Message {
	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		msgs[i] = kafka.Message{Topic: ev.Topic, Partition: ev.Partition, Offset: ev.Offset}
	}
	return msgs
}
