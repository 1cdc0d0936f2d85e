// Package chunker provides a sentence-aware text chunker.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.TextChunker = (*Processor)(nil)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 600

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 100

var (
	whitespace = regexp.MustCompile(`[\s\p{Z}]+`)
	noise      = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:()/\-'"]+`)
)

// Processor splits text into bounded, overlapping, sentence-respecting chunks.
// It is pure: the same input and configuration always yield the same chunks.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkSize returns the configured maximum chunk length.
func (p *Processor) ChunkSize() int {
	return p.chunkSize
}

// Overlap returns the configured overlap length.
func (p *Processor) Overlap() int {
	return p.overlap
}

// Chunk cleans text, splits it into sentences and accumulates them into
// chunks of at most ChunkSize characters. Each chunk after the first starts
// with the trailing Overlap characters of the previous one. A sentence longer
// than ChunkSize is split on word boundaries without overlap.
// Empty or whitespace-only text yields no chunks.
func (p *Processor) Chunk(text string, meta domain.ChunkMetadata) []domain.Chunk {
	cleaned := Clean(text)
	if cleaned == "" {
		return nil
	}

	var (
		chunks  []domain.Chunk
		current []string
		length  int
	)

	emit := func(content string) {
		chunks = append(chunks, domain.NewChunk(content, len(chunks), meta))
	}

	for _, sentence := range SplitSentences(cleaned) {
		n := utf8.RuneCountInString(sentence)

		if n > p.chunkSize {
			if len(current) > 0 {
				emit(strings.Join(current, " "))
				current, length = nil, 0
			}
			for _, sub := range p.splitWords(sentence) {
				emit(sub)
			}
			continue
		}

		if len(current) == 0 {
			current, length = []string{sentence}, n
			continue
		}

		if length+1+n <= p.chunkSize {
			current = append(current, sentence)
			length += 1 + n
			continue
		}

		prev := strings.Join(current, " ")
		emit(prev)

		current, length = []string{sentence}, n
		if tail := strings.TrimLeft(lastRunes(prev, p.overlap), " "); tail != "" {
			tn := utf8.RuneCountInString(tail)
			if tn+1+n <= p.chunkSize {
				current = []string{tail, sentence}
				length = tn + 1 + n
			}
		}
	}

	if len(current) > 0 {
		emit(strings.Join(current, " "))
	}

	return chunks
}

// splitWords breaks an oversized sentence into word-bounded pieces.
// A single word longer than the chunk size becomes its own piece.
func (p *Processor) splitWords(sentence string) []string {
	var (
		pieces  []string
		current []string
		length  int
	)

	for _, word := range strings.Fields(sentence) {
		n := utf8.RuneCountInString(word)
		if len(current) > 0 && length+1+n > p.chunkSize {
			pieces = append(pieces, strings.Join(current, " "))
			current, length = nil, 0
		}
		if len(current) > 0 {
			length++
		}
		current = append(current, word)
		length += n
	}

	if len(current) > 0 {
		pieces = append(pieces, strings.Join(current, " "))
	}

	return pieces
}

// Clean collapses whitespace to single spaces and strips characters that are
// neither letters, digits, whitespace nor common punctuation.
func Clean(text string) string {
	text = whitespace.ReplaceAllString(text, " ")
	text = noise.ReplaceAllString(text, "")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// SplitSentences splits cleaned text after '.', '!' or '?' when followed by
// whitespace. Empty sentences are dropped.
func SplitSentences(text string) []string {
	var sentences []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}

	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
		default:
			continue
		}
		j := i + 1
		for j < len(text) && isSpace(text[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		add(text[start : i+1])
		start = j
		i = j - 1
	}
	add(text[start:])

	return sentences
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == '\v'
}

// lastRunes returns the trailing n characters of s.
func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := len(s)
	for ; n > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return s[i:]
}
