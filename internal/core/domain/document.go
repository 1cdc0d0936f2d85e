package domain

import (
	"fmt"
	"unicode/utf8"
)

// Default chunk metadata values applied by ChunkMetadata.WithDefaults.
const (
	DefaultBookID = "unknown"
	DefaultTitle  = "Unknown"
	DefaultAuthor = "Unknown"
	DefaultSource = "unknown"
)

// ChunkMetadata describes where a chunk came from.
type ChunkMetadata struct {
	BookID     string
	Title      string
	Author     string
	Source     string
	Chapter    int
	PageNumber int
	Timestamp  int64
}

// WithDefaults returns a copy with every empty string field replaced by its
// default: book_id "unknown", title "Unknown", author "Unknown",
// source "unknown". Numeric fields default to zero.
func (m ChunkMetadata) WithDefaults() ChunkMetadata {
	if m.BookID == "" {
		m.BookID = DefaultBookID
	}
	if m.Title == "" {
		m.Title = DefaultTitle
	}
	if m.Author == "" {
		m.Author = DefaultAuthor
	}
	if m.Source == "" {
		m.Source = DefaultSource
	}
	return m
}

// Validate rejects metadata that cannot produce a unique document id.
// The book_id is part of every id and is stored unclipped, so it must fit
// the schema bound.
func (m ChunkMetadata) Validate() error {
	if len(m.BookID) > MaxBookIDLength {
		return fmt.Errorf("%w: book_id is %d bytes, limit %d", ErrInvalidInput, len(m.BookID), MaxBookIDLength)
	}
	return nil
}

// Chunk is a bounded text segment tagged with source metadata.
type Chunk struct {
	// Content is the chunk text.
	Content string

	// ChunkIndex is the ordinal position within the source document.
	ChunkIndex int

	// CharCount is the content length in characters.
	CharCount int

	ChunkMetadata
}

// NewChunk creates a chunk with defaulted metadata.
func NewChunk(content string, index int, meta ChunkMetadata) Chunk {
	return Chunk{
		Content:       content,
		ChunkIndex:    index,
		CharCount:     utf8.RuneCountInString(content),
		ChunkMetadata: meta.WithDefaults(),
	}
}

// IndexedDocument is a chunk with its vector, as stored in the vector index.
type IndexedDocument struct {
	ID         string
	Vector     []float32
	BookID     string
	Title      string
	Author     string
	Content    string
	Source     string
	Chapter    int
	PageNumber int
	Timestamp  int64
}

// DocumentID derives the index id of a chunk. Equal inputs always produce
// equal ids, so re-ingesting the same chunk overwrites it on upsert.
func DocumentID(bookID string, chapter, chunkIndex int, timestamp int64) string {
	return fmt.Sprintf("%s_ch%d_%d_%d", bookID, chapter, chunkIndex, timestamp)
}

// NewIndexedDocument builds the index entity for a chunk and its vector.
func NewIndexedDocument(c Chunk, vector []float32) IndexedDocument {
	return IndexedDocument{
		ID:         DocumentID(c.BookID, c.Chapter, c.ChunkIndex, c.Timestamp),
		Vector:     vector,
		BookID:     c.BookID,
		Title:      c.Title,
		Author:     c.Author,
		Content:    c.Content,
		Source:     c.Source,
		Chapter:    c.Chapter,
		PageNumber: c.PageNumber,
		Timestamp:  c.Timestamp,
	}
}

// Validate checks the identity fields, which are never clipped: a clipped
// id could collide with a sibling chunk's id.
func (d IndexedDocument) Validate() error {
	if len(d.ID) > MaxIDLength {
		return fmt.Errorf("%w: id %.32q... is %d bytes, limit %d", ErrInvalidInput, d.ID, len(d.ID), MaxIDLength)
	}
	if len(d.BookID) > MaxBookIDLength {
		return fmt.Errorf("%w: book_id is %d bytes, limit %d", ErrInvalidInput, len(d.BookID), MaxBookIDLength)
	}
	return nil
}

// Truncated returns a copy with descriptive string fields clipped to the
// schema maximum lengths. Clipping never splits a multi-byte character.
// ID and BookID are left alone; see Validate.
func (d IndexedDocument) Truncated() IndexedDocument {
	d.Title = truncate(d.Title, MaxTitleLength)
	d.Author = truncate(d.Author, MaxAuthorLength)
	d.Content = truncate(d.Content, MaxContentLength)
	d.Source = truncate(d.Source, MaxSourceLength)
	return d
}

// truncate clips s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
