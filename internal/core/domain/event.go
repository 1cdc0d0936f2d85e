package domain

import "time"

// ChangeEvent is a notification from the change-event source that a row or
// document in a system of record was created, modified or removed.
// It is transient: consumed into a BufferedRecord or discarded.
type ChangeEvent struct {
	// Topic identifies the originating stream (e.g. "books.public.books").
	Topic string

	// Partition and Offset locate the event within the source for acknowledgement.
	Partition int
	Offset    int64

	// Key is the optional message key.
	Key []byte

	// Payload is the operation payload, JSON encoded.
	Payload []byte

	// ReceivedAt is when the event was polled.
	ReceivedAt time.Time
}

// TopicKind classifies a change-event topic.
type TopicKind string

// Recognised topic kinds.
const (
	TopicUnknown TopicKind = "unknown"
	TopicBook    TopicKind = "book"
	TopicReview  TopicKind = "review"
)

// Record sources written into the index.
const (
	SourcePostgres = "postgres"
	SourceMongo    = "mongo"
	SourcePDF      = "pdf"
)

// BufferedRecord is a normalised change event held by the consumer until flush.
type BufferedRecord struct {
	BookID     string
	Title      string
	Author     string
	Text       string
	Source     string
	Chapter    int
	PageNumber int

	// Timestamp is the ingestion time in unix milliseconds.
	Timestamp int64
}

// Metadata returns the chunk metadata carried by the record.
func (r BufferedRecord) Metadata() ChunkMetadata {
	return ChunkMetadata{
		BookID:     r.BookID,
		Title:      r.Title,
		Author:     r.Author,
		Source:     r.Source,
		Chapter:    r.Chapter,
		PageNumber: r.PageNumber,
		Timestamp:  r.Timestamp,
	}
}
