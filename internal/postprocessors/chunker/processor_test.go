package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		p := New()
		assert.Equal(t, DefaultChunkSize, p.ChunkSize())
		assert.Equal(t, DefaultChunkOverlap, p.Overlap())
	})

	t.Run("custom values", func(t *testing.T) {
		p := New(WithChunkSize(500), WithOverlap(50))
		assert.Equal(t, 500, p.ChunkSize())
		assert.Equal(t, 50, p.Overlap())
	})

	t.Run("overlap exceeds chunk size", func(t *testing.T) {
		p := New(WithChunkSize(100), WithOverlap(150))
		assert.Equal(t, 25, p.Overlap())
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		p := New(WithChunkSize(0), WithOverlap(-1))
		assert.Equal(t, DefaultChunkSize, p.ChunkSize())
		assert.Equal(t, DefaultChunkOverlap, p.Overlap())
	})
}

func TestProcessor_Name(t *testing.T) {
	assert.Equal(t, "chunker", New().Name())
}

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "a  b\n\tc", "a b c"},
		{"strips noise", "Hello @#$ world™!", "Hello world!"},
		{"keeps punctuation", `He said: "yes" (twice); ok-ish, it's fine?`, `He said: "yes" (twice); ok-ish, it's fine?`},
		{"keeps unicode letters", "Ça va, Zoë? 東京", "Ça va, Zoë? 東京"},
		{"keeps ratings", "Review (Rating: 5/5): Gripping.", "Review (Rating: 5/5): Gripping."},
		{"trims", "   padded   ", "padded"},
		{"non-breaking space", "a\u00a0b", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("One. Two! Three? Four...  Five 3.14 six")
	assert.Equal(t, []string{"One.", "Two!", "Three?", "Four...", "Five 3.14 six"}, got)

	assert.Empty(t, SplitSentences(""))
	assert.Equal(t, []string{"No terminal"}, SplitSentences("No terminal"))
}

func TestProcessor_Chunk_Empty(t *testing.T) {
	p := New()
	assert.Empty(t, p.Chunk("", domain.ChunkMetadata{}))
	assert.Empty(t, p.Chunk("   \n\t  ", domain.ChunkMetadata{}))
	assert.Empty(t, p.Chunk("@@@ ###", domain.ChunkMetadata{}))
}

func TestProcessor_Chunk_ShortTextIsOneChunk(t *testing.T) {
	p := New(WithChunkSize(200), WithOverlap(20))
	text := "  The quick   brown fox.\nIt jumps over the lazy dog!  Does it?  "

	chunks := p.Chunk(text, domain.ChunkMetadata{BookID: "7"})

	require.Len(t, chunks, 1)
	assert.Equal(t, Clean(text), chunks[0].Content)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, utf8.RuneCountInString(chunks[0].Content), chunks[0].CharCount)
}

func TestProcessor_Chunk_MetadataDefaults(t *testing.T) {
	p := New()

	chunks := p.Chunk("Some text.", domain.ChunkMetadata{Title: "Dune", Chapter: 3})

	require.Len(t, chunks, 1)
	c := chunks[0]
	assert.Equal(t, "unknown", c.BookID)
	assert.Equal(t, "Dune", c.Title)
	assert.Equal(t, "Unknown", c.Author)
	assert.Equal(t, "unknown", c.Source)
	assert.Equal(t, 3, c.Chapter)
	assert.Equal(t, 0, c.PageNumber)
	assert.Equal(t, int64(0), c.Timestamp)
}

func sentences(n int) string {
	words := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf"}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "Sentence " + words[i%len(words)] + " number " + strings.Repeat("x", i%5+1) + "."
	}
	return strings.Join(parts, " ")
}

func TestProcessor_Chunk_BoundsAndIndexes(t *testing.T) {
	p := New(WithChunkSize(120), WithOverlap(30))

	chunks := p.Chunk(sentences(40), domain.ChunkMetadata{})

	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.LessOrEqual(t, c.CharCount, 120, "chunk %d too long", i)
	}
}

func TestProcessor_Chunk_ReconstructsSentences(t *testing.T) {
	p := New(WithChunkSize(120), WithOverlap(30))
	text := sentences(40)

	chunks := p.Chunk(text, domain.ChunkMetadata{})
	require.Greater(t, len(chunks), 1)

	parts := []string{chunks[0].Content}
	for i := 1; i < len(chunks); i++ {
		prefix := strings.TrimLeft(lastRunes(chunks[i-1].Content, 30), " ") + " "
		require.True(t, strings.HasPrefix(chunks[i].Content, prefix), "chunk %d does not start with overlap", i)
		parts = append(parts, strings.TrimPrefix(chunks[i].Content, prefix))
	}

	assert.Equal(t, SplitSentences(Clean(text)), SplitSentences(strings.Join(parts, " ")))
}

func TestProcessor_Chunk_ZeroOverlap(t *testing.T) {
	p := New(WithChunkSize(120), WithOverlap(0))
	text := sentences(30)

	chunks := p.Chunk(text, domain.ChunkMetadata{})

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	assert.Equal(t, Clean(text), strings.Join(contents, " "))
}

func TestProcessor_Chunk_OverlapDroppedWhenItWouldOverflow(t *testing.T) {
	p := New(WithChunkSize(40), WithOverlap(10))

	// The 10-rune tail plus the 34-rune second sentence exceeds 40.
	chunks := p.Chunk("Alpha beta gamma. Delta epsilon zeta eta theta iota.", domain.ChunkMetadata{})

	require.Len(t, chunks, 2)
	assert.Equal(t, "Alpha beta gamma.", chunks[0].Content)
	assert.Equal(t, "Delta epsilon zeta eta theta iota.", chunks[1].Content)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.CharCount, 40)
	}
}

func TestProcessor_Chunk_LongSentence(t *testing.T) {
	p := New(WithChunkSize(50), WithOverlap(10))
	long := strings.TrimSpace(strings.Repeat("word ", 40)) + "."
	text := "Short intro. " + long + " Tail."

	chunks := p.Chunk(text, domain.ChunkMetadata{})

	require.GreaterOrEqual(t, len(chunks), 4)
	assert.Equal(t, "Short intro.", chunks[0].Content)
	assert.Equal(t, "Tail.", chunks[len(chunks)-1].Content)

	var rebuilt []string
	for _, c := range chunks[1 : len(chunks)-1] {
		assert.LessOrEqual(t, c.CharCount, 50)
		assert.False(t, strings.HasPrefix(c.Content, " "))
		rebuilt = append(rebuilt, c.Content)
	}
	assert.Equal(t, long, strings.Join(rebuilt, " "), "word pieces carry no overlap")
}

func TestProcessor_Chunk_OversizedWord(t *testing.T) {
	p := New(WithChunkSize(10), WithOverlap(2))
	word := strings.Repeat("z", 25)

	chunks := p.Chunk(word, domain.ChunkMetadata{})

	require.Len(t, chunks, 1)
	assert.Equal(t, word, chunks[0].Content)
}

func TestProcessor_Chunk_Deterministic(t *testing.T) {
	p := New(WithChunkSize(80), WithOverlap(20))
	text := sentences(25) + " Ünïcödé sentence, with - dashes… and emoji 🚀 here."
	meta := domain.ChunkMetadata{BookID: "1", Timestamp: 42}

	first := p.Chunk(text, meta)
	second := p.Chunk(text, meta)

	assert.Equal(t, first, second)
	assert.Equal(t, first, New(WithChunkSize(80), WithOverlap(20)).Chunk(text, meta))
}

func TestLastRunes(t *testing.T) {
	assert.Equal(t, "", lastRunes("abc", 0))
	assert.Equal(t, "abc", lastRunes("abc", 5))
	assert.Equal(t, "bc", lastRunes("abc", 2))
	assert.Equal(t, "öü", lastRunes("aöü", 2))
}
