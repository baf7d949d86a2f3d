package embeddings

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coursectx/internal/config"
	"github.com/fyrsmithlabs/coursectx/internal/logging"
)

// Provider names accepted by NewProvider.
const (
	ProviderNone      = "none"
	ProviderTEI       = "tei"
	ProviderOpenAI    = "openai"
	ProviderFastEmbed = "fastembed"
)

// Provider generates embeddings for queries and document chunks.
type Provider interface {
	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments embeds texts and returns vectors in the same order.
	// A failure returns no vectors at all.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the vector length, or 0 when not yet known.
	Dimension() int

	// Name identifies the provider in logs and status output.
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// NewProvider builds the provider named by cfg.Provider. The "none"
// provider returns a nil Provider and a nil error.
func NewProvider(cfg config.EmbeddingsConfig, logger *logging.Logger) (Provider, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	metrics := NewMetrics(logger)

	var (
		p   Provider
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case ProviderNone, "":
		return nil, nil
	case ProviderTEI:
		p, err = NewTEIProvider(TEIConfig{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			APIKey:            cfg.APIKey.Value(),
			Dimension:         cfg.Dimension,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Timeout:           cfg.Timeout.Duration(),
		}, metrics)
	case ProviderOpenAI:
		p, err = NewOpenAIProvider(OpenAIConfig{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			APIKey:            cfg.APIKey.Value(),
			Dimension:         cfg.Dimension,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Timeout:           cfg.Timeout.Duration(),
		}, metrics)
	case ProviderFastEmbed:
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		}, metrics)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	fields := []zap.Field{
		zap.String("provider", p.Name()),
		zap.String("model", cfg.Model),
		zap.Int("dimension", p.Dimension()),
	}
	if cfg.APIKey.IsSet() {
		fields = append(fields, logging.Secret("api_key", cfg.APIKey))
	}
	logger.Info(context.Background(), "embedding provider ready", fields...)
	return p, nil
}

// knownDimensions lists output sizes of commonly deployed models.
var knownDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-large-en-v1.5":                 1024,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"nomic-ai/nomic-embed-text-v1.5":         768,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

// modelDimension returns the configured dimension, falling back to the
// known size of model. Zero means the dimension is learned from the first
// response.
func modelDimension(model string, configured int) int {
	if configured > 0 {
		return configured
	}
	return knownDimensions[model]
}
