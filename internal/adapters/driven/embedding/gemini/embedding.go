// Package gemini provides an embedding provider adapter using the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"google.golang.org/genai"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/embedding"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.EmbeddingProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultModel      = "gemini-embedding-001"
	DefaultDimensions = 1536
	DefaultTimeout    = 60 * time.Second
)

const providerName = "gemini"

// Config holds configuration for the Gemini embedding provider.
type Config struct {
	// APIKey is the Gemini API key (required).
	APIKey string

	// Model is the embedding model (default: gemini-embedding-001).
	Model string

	// Dimensions is the requested output dimensionality (default: 1536).
	Dimensions int

	// BaseURL overrides the API endpoint. Empty uses the SDK default.
	BaseURL string

	// Timeout bounds each request (default: 60s).
	Timeout time.Duration
}

// Provider generates embeddings with google.golang.org/genai.
type Provider struct {
	client     *genai.Client
	model      string
	dimensions int
	timeout    time.Duration
}

// New creates a new Gemini embedding provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to initialize client: %w", err)
	}

	return &Provider{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout,
	}, nil
}

// EmbedBatch embeds all texts in one batchEmbedContents call.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	outputDim := int32(p.dimensions)
	result, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		TaskType:             "RETRIEVAL_DOCUMENT",
		OutputDimensionality: &outputDim,
	})
	if err != nil {
		return nil, classify(err)
	}
	if result == nil || len(result.Embeddings) != len(texts) {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, fmt.Errorf("gemini: expected %d embeddings, got %d", len(texts), got)
	}

	vecs := make([][]float32, len(texts))
	for i, e := range result.Embeddings {
		if e == nil || len(e.Values) != p.dimensions {
			return nil, fmt.Errorf("gemini: embedding %d has unexpected dimension", i)
		}
		vecs[i] = e.Values
	}
	return vecs, nil
}

// Dimensions returns the embedding vector size.
func (p *Provider) Dimensions() int {
	return p.dimensions
}

// ModelName returns the name of the embedding model being used.
func (p *Provider) ModelName() string {
	return p.model
}

// Ping embeds a short probe text.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.EmbedBatch(ctx, []string{"ping"})
	return err
}

// Close releases resources. The genai client holds no connections of its own.
func (p *Provider) Close() error {
	return nil
}

// classify maps SDK errors onto the domain's retryable errors.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return embedding.StatusError(providerName, apiErr.Code, []byte(apiErr.Message))
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return embedding.TransportError(providerName, err)
	}

	return fmt.Errorf("gemini: %w", err)
}
