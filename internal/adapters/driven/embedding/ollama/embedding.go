// Package ollama provides an embedding provider adapter using Ollama.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
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
	DefaultBaseURL    = "http://localhost:11434"
	DefaultModel      = "nomic-embed-text"
	DefaultTimeout    = 30 * time.Second
	DefaultDimensions = 768 // nomic-embed-text
)

const providerName = "ollama"

// Config holds configuration for the Ollama embedding provider.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration

	// Dimensions declares the model's vector size; Ollama cannot shorten vectors.
	Dimensions int
}

// Provider generates embeddings using a local Ollama server.
type Provider struct {
	client     *http.Client
	baseURL    string
	model      string
	dimensions int
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`

	// Truncate lets the server cut inputs longer than the model context
	// instead of failing the whole batch.
	Truncate bool `json:"truncate"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// New creates a new Ollama embedding provider.
func New(cfg Config) *Provider {
	p := &Provider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
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
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p.client = &http.Client{Timeout: timeout}
	return p
}

// EmbedBatch embeds all texts in a single /api/embed call.
// Ollama answers in input order.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var out embedResponse
	if err := p.call(ctx, http.MethodPost, "/api/embed", embedRequest{Model: p.model, Input: texts, Truncate: true}, &out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: asked for %d embeddings, got %d", len(texts), len(out.Embeddings))
	}
	return out.Embeddings, nil
}

func (p *Provider) call(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ollama: encode request: %w", err)
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("ollama: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return embedding.TransportError(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return embedding.StatusError(providerName, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama: decode response: %w", err)
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

// Ping lists local models, which checks the server without running inference.
func (p *Provider) Ping(ctx context.Context) error {
	return p.call(ctx, http.MethodGet, "/api/tags", nil, nil)
}

// Close drops idle connections.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
