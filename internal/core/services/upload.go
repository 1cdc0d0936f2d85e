package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/ternarybob/arbor"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/chapters"
)

// Ensure UploadService implements the interface.
var _ driving.UploadService = (*UploadService)(nil)

// Upload defaults.
const (
	DefaultMinTextLength = 10
	DefaultUploadSource  = domain.SourcePDF
)

// UploadConfig configures the upload path.
type UploadConfig struct {
	// MinTextLength is the minimum number of non-space characters worth
	// indexing (default: 10).
	MinTextLength int

	// Source is written when the metadata has none (default: "pdf").
	Source string

	// Normalisers convert files by extension. Files with no matching
	// normaliser must be UTF-8 text and are indexed as-is.
	Normalisers []driven.Normaliser
}

// UploadService indexes extracted text directly, bypassing the consumer.
type UploadService struct {
	indexer *Indexer
	cfg     UploadConfig
	clock   clockwork.Clock
	logger  arbor.ILogger

	normalisers map[string]driven.Normaliser

	mu        sync.Mutex
	lastStamp int64
}

// NewUploadService creates an upload service. A nil clock uses the real clock.
func NewUploadService(indexer *Indexer, cfg UploadConfig, clock clockwork.Clock, logger arbor.ILogger) *UploadService {
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = DefaultMinTextLength
	}
	if cfg.Source == "" {
		cfg.Source = DefaultUploadSource
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	byExt := make(map[string]driven.Normaliser)
	for _, n := range cfg.Normalisers {
		for _, ext := range n.Extensions() {
			byExt[strings.ToLower(ext)] = n
		}
	}
	return &UploadService{indexer: indexer, cfg: cfg, clock: clock, logger: logger, normalisers: byExt}
}

// IngestText splits text by chapter markers when it has at least two, and
// indexes each chapter under its detected number. Otherwise the whole text is
// indexed under meta.Chapter. Too-short text yields an empty result.
func (s *UploadService) IngestText(ctx context.Context, text string, meta domain.ChunkMetadata) (domain.IndexResult, error) {
	if err := meta.Validate(); err != nil {
		return domain.IndexResult{}, err
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < s.cfg.MinTextLength {
		s.logger.Warn().Str("book_id", meta.BookID).Msg("Text too short to index")
		return domain.IndexResult{}, nil
	}
	if meta.Source == "" {
		meta.Source = s.cfg.Source
	}

	var reqs []IndexRequest
	if detected := chapters.Detect(text); len(detected) > 0 {
		s.logger.Info().Str("book_id", meta.BookID).Int("chapters", len(detected)).Msg("Detected chapters")
		for _, ch := range detected {
			m := meta
			m.Chapter = ch.Number
			m.Timestamp = s.timestamp(meta.Timestamp, len(reqs))
			reqs = append(reqs, IndexRequest{Text: ch.Text, Meta: m})
		}
	} else {
		meta.Timestamp = s.timestamp(meta.Timestamp, 0)
		reqs = append(reqs, IndexRequest{Text: text, Meta: meta})
	}

	result, err := s.indexer.Index(ctx, reqs, ModeInsert)
	if err != nil {
		s.logger.Error().
			Str("book_id", meta.BookID).
			Int("chunks", result.Chunks).
			Int("written", result.Written).
			Int("failed", result.Failed).
			Err(err).
			Msg("Upload indexed with failures")
		return result, uploadError(result, err)
	}
	s.logger.Info().
		Str("book_id", meta.BookID).
		Int("chunks", result.Chunks).
		Int("written", result.Written).
		Msg("Indexed upload")
	return result, nil
}

// uploadError reduces an indexing error to its kind and the failure counts.
// Provider and backend messages stay in the log.
func uploadError(result domain.IndexResult, err error) error {
	if errors.Is(err, domain.ErrNotInitialized) {
		return domain.ErrNotInitialized
	}
	kind := domain.ErrIndexIncomplete
	for _, k := range []error{domain.ErrEmbeddingUnavailable, domain.ErrConnection, domain.ErrAlreadyExists} {
		if errors.Is(err, k) {
			kind = k
			break
		}
	}
	return fmt.Errorf("%w: %d of %d chunks not indexed", kind, result.Failed, result.Chunks)
}

// IngestFile reads a text file, normalises it by extension and indexes it
// with metadata parsed from its name. A title found in the content is used
// when the name carries none.
func (s *UploadService) IngestFile(ctx context.Context, path string) (domain.IndexResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.IndexResult{}, fmt.Errorf("read %s: %w", path, err)
	}

	name := filepath.Base(path)
	meta := ParseUploadFilename(name)

	n, ok := s.normalisers[strings.ToLower(filepath.Ext(name))]
	if !ok {
		if !utf8.Valid(data) {
			return domain.IndexResult{}, fmt.Errorf("%w: %s is not UTF-8 text", domain.ErrInvalidInput, path)
		}
		return s.IngestText(ctx, string(data), meta)
	}

	res, err := n.Normalise(data)
	if err != nil {
		return domain.IndexResult{}, fmt.Errorf("normalise %s: %w", path, err)
	}
	if res.Title != "" && strings.Count(strings.TrimSuffix(name, filepath.Ext(name)), "_") < 2 {
		meta.Title = res.Title
	}
	return s.IngestText(ctx, res.Text, meta)
}

// timestamp returns base+offset when the caller supplied a timestamp, and
// otherwise a unix-ms value strictly greater than any handed out before.
func (s *UploadService) timestamp(base int64, offset int) int64 {
	if base != 0 {
		return base + int64(offset)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.clock.Now().UnixMilli()
	if ts <= s.lastStamp {
		ts = s.lastStamp + 1
	}
	s.lastStamp = ts
	return ts
}

// ParseUploadFilename derives metadata from "{book_id}_{chapter}_{title}.ext".
// A non-numeric chapter becomes 0 and a missing title falls back to the
// file name without extension.
func ParseUploadFilename(name string) domain.ChunkMetadata {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.SplitN(stem, "_", 3)

	meta := domain.ChunkMetadata{BookID: parts[0], Title: stem}
	if len(parts) > 1 {
		if n, err := strconv.Atoi(parts[1]); err == nil && n >= 0 && !strings.HasPrefix(parts[1], "+") {
			meta.Chapter = n
		}
	}
	if len(parts) > 2 {
		meta.Title = parts[2]
	}
	return meta
}
