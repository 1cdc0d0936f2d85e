package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	p, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.ModelName())
	assert.Equal(t, 1536, p.Dimensions())

	p, err = New(Config{APIKey: "k", Model: "text-embedding-3-large"})
	require.NoError(t, err)
	assert.Equal(t, 3072, p.Dimensions())

	p, err = New(Config{APIKey: "k", Model: "custom", Dimensions: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, p.Dimensions())
}

func TestProvider_EmbedBatch_ReordersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)
		assert.Equal(t, 2, req.Dimensions)

		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0.3,0.4]},
			{"index":0,"embedding":[0.1,0.2]}
		]}`))
	}))
	defer server.Close()

	p, err := New(Config{APIKey: "k", BaseURL: server.URL, Dimensions: 2})
	require.NoError(t, err)

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
}

func TestProvider_EmbedBatch_Empty(t *testing.T) {
	p, err := New(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	vecs, err := p.EmbedBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestProvider_EmbedBatch_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))
			defer server.Close()

			p, err := New(Config{APIKey: "k", BaseURL: server.URL})
			require.NoError(t, err)

			_, err = p.EmbedBatch(context.Background(), []string{"x"})
			require.Error(t, err)
			assert.Equal(t, tt.retryable, domain.IsRetryable(err))
		})
	}
}

func TestProvider_EmbedBatch_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	p, err := New(Config{APIKey: "k", BaseURL: url})
	require.NoError(t, err)

	_, err = p.EmbedBatch(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, domain.ErrConnection)
}

func TestProvider_EmbedBatch_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer server.Close()

	p, err := New(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestProvider_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, err := New(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)
	assert.NoError(t, p.Ping(context.Background()))
	assert.NoError(t, p.Close())
}
