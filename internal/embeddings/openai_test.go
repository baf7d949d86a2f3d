package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

func openAIServer(t *testing.T, calls *atomic.Int32, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
			return
		}

		var req openAIEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-embed", req.Model)

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i, in := range req.Input {
			data[i] = item{Embedding: []float32{float32(len(in)), 1}, Index: i}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOpenAIProvider_RequiresKeyForOfficialEndpoint(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: "http://localhost:11434/v1", Model: "nomic-ai/nomic-embed-text-v1.5"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 768, p.Dimension())
	assert.Equal(t, ProviderOpenAI, p.Name())
}

func TestOpenAIProvider_EmbedDocuments(t *testing.T) {
	var calls atomic.Int32
	srv := openAIServer(t, &calls, http.StatusOK)

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL + "/v1", Model: "test-embed", APIKey: "sk-test"}, nil)
	require.NoError(t, err)

	texts := []string{"one", "three\nlines", "x"}
	vectors, err := p.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(3), vectors[0][0])
	assert.Equal(t, float32(11), vectors[1][0])
	assert.Equal(t, float32(1), vectors[2][0])
	assert.Equal(t, "three\nlines", texts[1], "caller's slice is not modified")
	assert.Equal(t, 2, p.Dimension())
	assert.Equal(t, int32(1), calls.Load())

	v, err := p.EmbedQuery(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1}, v)
}

func TestOpenAIProvider_Classification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls atomic.Int32
			srv := openAIServer(t, &calls, tt.status)
			p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL + "/v1", Model: "test-embed", APIKey: "sk-test"}, nil)
			require.NoError(t, err)

			_, err = p.EmbedDocuments(context.Background(), []string{"a"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEmbeddingFailed)
			assert.Equal(t, tt.retryable, IsRetryable(err))

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.Code)
			assert.Contains(t, se.Body, "boom")
		})
	}
}

func TestOpenAIProvider_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: url + "/v1", APIKey: "sk-test"}, nil)
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestOpenAIProvider_EmptyInput(t *testing.T) {
	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: "http://localhost:1/v1"}, nil)
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}
