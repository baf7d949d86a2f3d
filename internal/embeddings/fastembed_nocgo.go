//go:build !cgo

package embeddings

import (
	"context"
	"errors"
	"fmt"
)

// ErrFastEmbedNotAvailable is returned by binaries built without cgo.
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available in builds without cgo, use the tei or openai provider")

// FastEmbedConfig configures the local ONNX provider.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedProvider is unavailable without cgo.
type FastEmbedProvider struct{}

// NewFastEmbedProvider always fails without cgo.
func NewFastEmbedProvider(_ FastEmbedConfig, _ *Metrics) (*FastEmbedProvider, error) {
	return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, ErrFastEmbedNotAvailable)
}

func (p *FastEmbedProvider) Name() string { return ProviderFastEmbed }

func (p *FastEmbedProvider) Dimension() int { return 0 }

func (p *FastEmbedProvider) EmbedDocuments(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (p *FastEmbedProvider) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (p *FastEmbedProvider) Close() error { return nil }
