package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coursectx/internal/config"
	"github.com/fyrsmithlabs/coursectx/internal/logging"
)

// NewStore creates the store named by cfg.Provider and instruments it:
//   - "memory" (default): the in-process linear scan store
//   - "chromem": an in-process chromem-go collection
//   - "qdrant": a Qdrant server reached over gRPC
//   - "none": no store; NewStore returns (nil, nil)
func NewStore(cfg config.VectorStoreConfig, logger *logging.Logger) (Store, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.Named("vectorstore")

	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case ProviderNone:
		return nil, nil
	case ProviderMemory, "":
		s = NewMemoryStore(logger)
	case ProviderChromem:
		s, err = NewChromemStore(cfg.Collection, logger)
	case ProviderQdrant:
		s, err = NewQdrantStore(QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			Collection: cfg.Collection,
			UseTLS:     cfg.QdrantTLS,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: none, memory, chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info(context.Background(), "vector store ready",
		zap.String("store", s.Name()),
		zap.String("collection", cfg.Collection))
	return Instrument(s), nil
}
