package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "text-embedding-3-small"
	openAIBatchSize      = 64

	// placeholderToken satisfies the client for self-hosted endpoints that
	// do not check credentials.
	placeholderToken = "unused"
)

// OpenAIConfig configures an OpenAI-compatible embeddings provider.
type OpenAIConfig struct {
	BaseURL string
	Model   string
	APIKey  string

	// Dimension overrides the model's known size.
	Dimension int

	RequestsPerSecond float64
	Timeout           time.Duration

	// HTTPClient replaces the default client, mainly for tests.
	HTTPClient *http.Client
}

// OpenAIProvider calls an OpenAI-compatible /embeddings endpoint through
// langchaingo.
type OpenAIProvider struct {
	model     string
	embedder  *lcembeddings.EmbedderImpl
	limiter   *rate.Limiter
	metrics   *Metrics
	dimension atomic.Int64
}

// NewOpenAIProvider creates the provider. The official endpoint requires an
// API key; self-hosted endpoints may omit it.
func NewOpenAIProvider(cfg OpenAIConfig, metrics *Metrics) (*OpenAIProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	token := cfg.APIKey
	if token == "" {
		if strings.Contains(cfg.BaseURL, "api.openai.com") {
			return nil, fmt.Errorf("validating config: %w: openai API key required", ErrInvalidConfig)
		}
		token = placeholderToken
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("validating config: %w: requests per second must not be negative", ErrInvalidConfig)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithHTTPClient(&statusRecorder{client: client}),
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating openai client: %w", ErrInvalidConfig, err)
	}

	p := &OpenAIProvider{
		model:   cfg.Model,
		limiter: newLimiter(cfg.RequestsPerSecond),
		metrics: metrics,
	}
	p.dimension.Store(int64(modelDimension(cfg.Model, cfg.Dimension)))

	// Each HTTP call waits on the limiter, including every batch of a
	// large EmbedDocuments call.
	p.embedder, err = lcembeddings.NewEmbedder(
		lcembeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					return nil, err
				}
			}
			return llm.CreateEmbedding(ctx, texts)
		}),
		lcembeddings.WithBatchSize(openAIBatchSize),
		lcembeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: creating embedder: %w", ErrInvalidConfig, err)
	}
	return p, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// Dimension implements Provider.
func (p *OpenAIProvider) Dimension() int { return int(p.dimension.Load()) }

// Close implements Provider.
func (p *OpenAIProvider) Close() error { return nil }

// EmbedDocuments implements Provider.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := p.embedDocuments(ctx, texts)
	p.metrics.RecordGeneration(ctx, ProviderOpenAI, p.model, "embed_documents", time.Since(start), len(texts), err)
	return vectors, err
}

func (p *OpenAIProvider) embedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	// The embedder rewrites newlines in place.
	in := append([]string(nil), texts...)

	ctx, call := withCallState(ctx)
	vectors, err := p.embedder.EmbedDocuments(ctx, in)
	if err != nil {
		return nil, call.classify(ctx, err)
	}
	if err := checkVectors(vectors, len(texts)); err != nil {
		return nil, err
	}
	p.dimension.CompareAndSwap(0, int64(len(vectors[0])))
	return vectors, nil
}

// EmbedQuery implements Provider.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := p.embedQuery(ctx, text)
	p.metrics.RecordGeneration(ctx, ProviderOpenAI, p.model, "embed_query", time.Since(start), 1, err)
	return vector, err
}

func (p *OpenAIProvider) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	ctx, call := withCallState(ctx)
	vector, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, call.classify(ctx, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: %w: empty vector", ErrEmbeddingFailed, ErrTerminal)
	}
	p.dimension.CompareAndSwap(0, int64(len(vector)))
	return vector, nil
}

// callState captures what the HTTP layer saw during one provider call.
// langchaingo flattens transport and status errors into plain strings, so
// classification relies on this instead.
type callState struct {
	status       atomic.Int32
	transportErr atomic.Bool
}

type callStateKey struct{}

func withCallState(ctx context.Context) (context.Context, *callState) {
	s := &callState{}
	return context.WithValue(ctx, callStateKey{}, s), s
}

func (s *callState) classify(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", ErrEmbeddingFailed, ctx.Err())
	case s.status.Load() != 0:
		return &StatusError{Provider: ProviderOpenAI, Code: int(s.status.Load()), Body: err.Error()}
	case s.transportErr.Load():
		return transportError(ctx, err)
	case errors.Is(err, openai.ErrEmptyResponse), errors.Is(err, openai.ErrUnexpectedResponseLength):
		return fmt.Errorf("%w: %w: %w", ErrEmbeddingFailed, ErrTerminal, err)
	default:
		return fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
}

// statusRecorder is the HTTP client handed to langchaingo. It records the
// outcome of each request on the call's state.
type statusRecorder struct {
	client *http.Client
}

func (r *statusRecorder) Do(req *http.Request) (*http.Response, error) {
	resp, err := r.client.Do(req)
	s, _ := req.Context().Value(callStateKey{}).(*callState)
	if s == nil {
		return resp, err
	}
	if err != nil {
		s.transportErr.Store(true)
		return resp, err
	}
	if resp.StatusCode != http.StatusOK {
		s.status.Store(int32(resp.StatusCode))
	}
	return resp, nil
}
