package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestChunkMetadata_WithDefaults(t *testing.T) {
	t.Run("empty metadata gets every default", func(t *testing.T) {
		got := ChunkMetadata{}.WithDefaults()
		assert.Equal(t, ChunkMetadata{
			BookID: "unknown",
			Title:  "Unknown",
			Author: "Unknown",
			Source: "unknown",
		}, got)
	})

	t.Run("present values override defaults", func(t *testing.T) {
		in := ChunkMetadata{BookID: "42", Title: "Dune", Author: "Herbert", Source: "mongo", Chapter: 3, PageNumber: 7, Timestamp: 99}
		assert.Equal(t, in, in.WithDefaults())
	})

	t.Run("partial metadata", func(t *testing.T) {
		got := ChunkMetadata{BookID: "7", Chapter: 2}.WithDefaults()
		assert.Equal(t, "7", got.BookID)
		assert.Equal(t, "Unknown", got.Title)
		assert.Equal(t, 2, got.Chapter)
	})
}

func TestNewChunk(t *testing.T) {
	c := NewChunk("héllo", 3, ChunkMetadata{BookID: "1"})
	assert.Equal(t, "héllo", c.Content)
	assert.Equal(t, 3, c.ChunkIndex)
	assert.Equal(t, 5, c.CharCount)
	assert.Equal(t, "Unknown", c.Title)
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "42_ch0_0_1700000000000", DocumentID("42", 0, 0, 1700000000000))
	assert.Equal(t, DocumentID("b", 1, 2, 3), DocumentID("b", 1, 2, 3))
	assert.NotEqual(t, DocumentID("b", 1, 2, 3), DocumentID("b", 1, 3, 3))
	assert.NotEqual(t, DocumentID("b", 1, 2, 3), DocumentID("b", 2, 2, 3))
}

func TestNewIndexedDocument(t *testing.T) {
	c := NewChunk("text", 1, ChunkMetadata{BookID: "9", Chapter: 4, Timestamp: 10, Source: SourcePDF})
	doc := NewIndexedDocument(c, []float32{1, 2})
	assert.Equal(t, "9_ch4_1_10", doc.ID)
	assert.Equal(t, []float32{1, 2}, doc.Vector)
	assert.Equal(t, "pdf", doc.Source)
	assert.Equal(t, "text", doc.Content)
}

func TestIndexedDocument_Truncated(t *testing.T) {
	doc := IndexedDocument{
		ID:      strings.Repeat("i", 300),
		BookID:  strings.Repeat("b", 200),
		Title:   strings.Repeat("é", 400), // 800 bytes
		Content: strings.Repeat("c", 5000),
		Source:  "pdf",
	}
	got := doc.Truncated()

	assert.Equal(t, doc.ID, got.ID, "ids are never clipped")
	assert.Equal(t, doc.BookID, got.BookID)
	assert.LessOrEqual(t, len(got.Title), MaxTitleLength)
	assert.True(t, utf8.ValidString(got.Title))
	assert.Len(t, got.Content, MaxContentLength)
	assert.Equal(t, "pdf", got.Source)
}

func TestChunkMetadata_Validate(t *testing.T) {
	assert.NoError(t, ChunkMetadata{}.Validate())
	assert.NoError(t, ChunkMetadata{BookID: strings.Repeat("b", MaxBookIDLength)}.Validate())
	assert.ErrorIs(t, ChunkMetadata{BookID: strings.Repeat("b", MaxBookIDLength+1)}.Validate(), ErrInvalidInput)
}

func TestIndexedDocument_Validate(t *testing.T) {
	ok := NewIndexedDocument(NewChunk("x", 0, ChunkMetadata{BookID: strings.Repeat("b", MaxBookIDLength)}), nil)
	assert.NoError(t, ok.Validate())

	assert.ErrorIs(t, IndexedDocument{ID: strings.Repeat("i", MaxIDLength+1)}.Validate(), ErrInvalidInput)
	assert.ErrorIs(t, IndexedDocument{ID: "a", BookID: strings.Repeat("b", MaxBookIDLength+1)}.Validate(), ErrInvalidInput)
}

func TestDocumentID_MaxBookIDFitsSchema(t *testing.T) {
	id := DocumentID(strings.Repeat("b", MaxBookIDLength), 1<<31-1, 1<<31-1, 1<<62)
	assert.LessOrEqual(t, len(id), MaxIDLength)
}
