// Package openai provides an embedding provider adapter using the OpenAI API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/embedding"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.EmbeddingProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "text-embedding-3-small"
	DefaultTimeout    = 60 * time.Second
	DefaultDimensions = 1536
)

const providerName = "openai"

// Native vector sizes of the hosted embedding models.
var nativeDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds configuration for the OpenAI embedding provider.
type Config struct {
	// APIKey is required.
	APIKey string

	// BaseURL can point at Azure OpenAI or any compatible API
	// (default: https://api.openai.com/v1).
	BaseURL string

	// Model defaults to text-embedding-3-small.
	Model string

	Timeout time.Duration

	// Dimensions shortens text-embedding-3-* vectors. For other models it
	// only declares the size the model returns.
	Dimensions int
}

// Provider generates embeddings using the OpenAI API.
type Provider struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// New creates a new OpenAI embedding provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}

	p := &Provider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
	if p.baseURL == "" {
		p.baseURL = DefaultBaseURL
	}
	if p.model == "" {
		p.model = DefaultModel
	}
	if p.dimensions <= 0 {
		p.dimensions = DefaultDimensions
		if n, ok := nativeDimensions[p.model]; ok {
			p.dimensions = n
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p.client = &http.Client{Timeout: timeout}

	return p, nil
}

// shortenable reports whether the model accepts a dimensions parameter.
func (p *Provider) shortenable() bool {
	return strings.HasPrefix(p.model, "text-embedding-3-")
}

// EmbedBatch embeds texts in one request. The API may answer out of order;
// vectors are placed by their index so output order matches input order.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	in := embeddingRequest{Model: p.model, Input: texts}
	if p.shortenable() {
		in.Dimensions = p.dimensions
	}

	var out embeddingResponse
	if err := p.call(ctx, http.MethodPost, "/embeddings", in, &out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, fmt.Errorf("openai: %s", out.Error.Message)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("openai: asked for %d embeddings, got %d", len(texts), len(out.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// call sends body as JSON (when non-nil) and decodes the answer into out
// (when non-nil). Non-200 answers are classified by status.
func (p *Provider) call(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("openai: encode request: %w", err)
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return embedding.TransportError(providerName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return embedding.TransportError(providerName, err)
	}
	if resp.StatusCode != http.StatusOK {
		return embedding.StatusError(providerName, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openai: decode response: %w", err)
	}
	return nil
}

// Dimensions returns the embedding vector size.
func (p *Provider) Dimensions() int {
	return p.dimensions
}

// ModelName returns the model used for embedding.
func (p *Provider) ModelName() string {
	return p.model
}

// Ping lists models, which checks the key without spending tokens.
func (p *Provider) Ping(ctx context.Context) error {
	return p.call(ctx, http.MethodGet, "/models", nil, nil)
}

// Close drops idle connections.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
