package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTEIBaseURL = "http://localhost:8080"
	defaultTimeout    = 30 * time.Second

	// maxErrorBody bounds how much of a failed response is kept in errors.
	maxErrorBody = 512
)

// TEIConfig configures a Text Embeddings Inference provider.
type TEIConfig struct {
	BaseURL string
	Model   string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Dimension overrides the model's known size.
	Dimension int

	// RequestsPerSecond throttles requests; zero disables throttling.
	RequestsPerSecond float64

	Timeout time.Duration

	// HTTPClient replaces the default client, mainly for tests.
	HTTPClient *http.Client
}

// Validate checks the configuration.
func (c TEIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: tei base URL required", ErrInvalidConfig)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests per second must not be negative", ErrInvalidConfig)
	}
	return nil
}

// TEIProvider calls POST {base}/embed on a TEI server.
type TEIProvider struct {
	config    TEIConfig
	client    *http.Client
	limiter   *rate.Limiter
	metrics   *Metrics
	dimension atomic.Int64
}

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// NewTEIProvider creates a TEI provider. metrics may be nil.
func NewTEIProvider(cfg TEIConfig, metrics *Metrics) (*TEIProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTEIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	p := &TEIProvider{
		config:  cfg,
		client:  client,
		limiter: newLimiter(cfg.RequestsPerSecond),
		metrics: metrics,
	}
	p.dimension.Store(int64(modelDimension(cfg.Model, cfg.Dimension)))
	return p, nil
}

// newLimiter returns nil for a non-positive rate.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Name implements Provider.
func (p *TEIProvider) Name() string { return ProviderTEI }

// Dimension implements Provider. An unknown model reports 0 until the
// first successful call.
func (p *TEIProvider) Dimension() int { return int(p.dimension.Load()) }

// Close implements Provider.
func (p *TEIProvider) Close() error { return nil }

// EmbedDocuments implements Provider.
func (p *TEIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := p.embed(ctx, texts)
	p.metrics.RecordGeneration(ctx, ProviderTEI, p.config.Model, "embed_documents", time.Since(start), len(texts), err)
	return vectors, err
}

// EmbedQuery implements Provider.
func (p *TEIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var vectors [][]float32
	var err error
	if text == "" {
		err = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	} else {
		vectors, err = p.embed(ctx, []string{text})
	}
	p.metrics.RecordGeneration(ctx, ProviderTEI, p.config.Model, "embed_query", time.Since(start), 1, err)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *TEIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", ErrEmbeddingFailed, err)
		}
	}

	body, err := json.Marshal(teiRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w: creating request: %w", ErrEmbeddingFailed, ErrTerminal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Provider: ProviderTEI,
			Code:     resp.StatusCode,
			Body:     strings.TrimSpace(string(respBody)),
		}
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrEmbeddingFailed, err)
	}
	if err := checkVectors(vectors, len(texts)); err != nil {
		return nil, err
	}
	p.dimension.CompareAndSwap(0, int64(len(vectors[0])))
	return vectors, nil
}

// checkVectors rejects responses that do not pair one vector with each
// input.
func checkVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: %w: got %d vectors for %d texts", ErrEmbeddingFailed, ErrTerminal, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: %w: empty vector at index %d", ErrEmbeddingFailed, ErrTerminal, i)
		}
	}
	return nil
}
