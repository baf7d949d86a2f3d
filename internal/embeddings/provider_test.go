package embeddings

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/coursectx/internal/config"
	"github.com/fyrsmithlabs/coursectx/internal/logging"
)

func TestNewProvider(t *testing.T) {
	base := config.Default().Embeddings

	t.Run("none", func(t *testing.T) {
		cfg := base
		cfg.Provider = "none"
		p, err := NewProvider(cfg, nil)
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("tei", func(t *testing.T) {
		log := logging.NewTestLogger()
		cfg := base
		cfg.Provider = "TEI"
		p, err := NewProvider(cfg, log.Logger)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, ProviderTEI, p.Name())
		assert.Equal(t, 384, p.Dimension())
		assert.Len(t, log.FilterMessage("embedding provider ready").All(), 1)
	})

	t.Run("api key is logged redacted", func(t *testing.T) {
		log := logging.NewTestLogger()
		cfg := base
		cfg.Provider = "tei"
		cfg.APIKey = config.Secret("hf_abcdef")
		_, err := NewProvider(cfg, log.Logger)
		require.NoError(t, err)
		log.AssertField(t, "embedding provider ready", "api_key", "[REDACTED:9]")
		for _, e := range log.All() {
			for _, v := range e.ContextMap() {
				assert.NotContains(t, fmt.Sprint(v), "hf_abcdef")
			}
		}
	})

	t.Run("openai self hosted", func(t *testing.T) {
		cfg := base
		cfg.Provider = "openai"
		cfg.BaseURL = "http://localhost:11434/v1"
		cfg.Model = "text-embedding-3-small"
		p, err := NewProvider(cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, p.Name())
		assert.Equal(t, 1536, p.Dimension())
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := base
		cfg.Provider = "word2vec"
		p, err := NewProvider(cfg, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Nil(t, p)
	})
}

func TestModelDimension(t *testing.T) {
	assert.Equal(t, 384, modelDimension("BAAI/bge-small-en-v1.5", 0))
	assert.Equal(t, 256, modelDimension("text-embedding-3-small", 256))
	assert.Equal(t, 0, modelDimension("someone/custom", 0))
}
