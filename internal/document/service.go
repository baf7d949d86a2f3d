// Package document owns the chunk catalog of the current course document
// and orchestrates indexing and retrieval over it.
//
// A Service holds exactly one document at a time. UploadAndIndex replaces
// it; Retrieve reads it. The embedding provider and vector store are
// optional and may be swapped while the service runs. Each call reads the
// wiring once when it starts.
package document

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coursectx/internal/chunker"
	"github.com/fyrsmithlabs/coursectx/internal/config"
	"github.com/fyrsmithlabs/coursectx/internal/embeddings"
	"github.com/fyrsmithlabs/coursectx/internal/events"
	"github.com/fyrsmithlabs/coursectx/internal/logging"
	"github.com/fyrsmithlabs/coursectx/internal/vectorstore"
)

// Service indexes one document at a time and answers retrieval queries.
type Service struct {
	logger  *logging.Logger
	tracer  trace.Tracer
	metrics *metrics

	// indexMu serializes UploadAndIndex and Clear.
	indexMu sync.Mutex

	mu            sync.RWMutex
	cfg           *config.Config
	provider      embeddings.Provider
	store         vectorstore.Store
	publisher     events.Publisher
	document      string
	chunks        []chunker.Chunk
	byID          map[string]int
	lastIndexedAt time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEmbeddingProvider sets the initial embedding provider.
func WithEmbeddingProvider(p embeddings.Provider) Option {
	return func(s *Service) { s.provider = p }
}

// WithVectorStore sets the initial vector store.
func WithVectorStore(store vectorstore.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithPublisher sets the event publisher. The default discards events.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithInstrumentation routes spans and metrics to the given providers
// instead of the otel globals.
func WithInstrumentation(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
		if mp != nil {
			if m, err := newMetrics(mp.Meter(meterName)); err == nil {
				s.metrics = m
			}
		}
	}
}

// New creates a Service with an empty catalog. A nil cfg uses
// config.Default.
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Service{
		logger:    logger.Named("document"),
		tracer:    otel.Tracer(tracerName),
		metrics:   defaultMetrics(),
		cfg:       cfg,
		publisher: events.Noop{},
		byID:      map[string]int{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEmbeddingProvider swaps the embedding provider. Nil disables vector
// indexing and retrieval. The previous provider is returned so the caller
// can close it.
func (s *Service) SetEmbeddingProvider(p embeddings.Provider) embeddings.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.provider
	s.provider = p
	return prev
}

// SetVectorStore swaps the vector store and returns the previous one.
func (s *Service) SetVectorStore(store vectorstore.Store) vectorstore.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.store
	s.store = store
	return prev
}

// SetConfig replaces the upload, chunking, indexing and retry settings
// used by later calls.
func (s *Service) SetConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

type wiring struct {
	cfg      *config.Config
	provider embeddings.Provider
	store    vectorstore.Store
}

func (w wiring) vectorEnabled() bool {
	return w.provider != nil && w.store != nil
}

// current snapshots the live wiring for one call.
func (s *Service) current() wiring {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return wiring{cfg: s.cfg, provider: s.provider, store: s.store}
}

// UploadLimit returns the upload size limit currently in effect.
func (s *Service) UploadLimit() int64 {
	return s.current().cfg.Upload.MaxBytes
}

// Status describes the live wiring and the current document.
type Status struct {
	EmbeddingConfigured   bool      `json:"embedding_configured"`
	EmbeddingProvider     string    `json:"embedding_provider,omitempty"`
	VectorStoreConfigured bool      `json:"vector_store_configured"`
	VectorStore           string    `json:"vector_store,omitempty"`
	RAGEnabled            bool      `json:"rag_enabled"`
	ChunkCount            int       `json:"chunk_count"`
	Document              string    `json:"document,omitempty"`
	LastIndexedAt         time.Time `json:"last_indexed_at,omitzero"`
}

// Status reports the current wiring and catalog.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		EmbeddingConfigured:   s.provider != nil,
		VectorStoreConfigured: s.store != nil,
		ChunkCount:            len(s.chunks),
		Document:              s.document,
		LastIndexedAt:         s.lastIndexedAt,
	}
	if s.provider != nil {
		st.EmbeddingProvider = s.provider.Name()
	}
	if s.store != nil {
		st.VectorStore = s.store.Name()
	}
	st.RAGEnabled = st.EmbeddingConfigured && st.VectorStoreConfigured
	return st
}

// Chunks returns a copy of the catalog in document order.
func (s *Service) Chunks() []chunker.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chunker.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Document returns the name of the current document, or "".
func (s *Service) Document() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.document
}

// Clear drops the current document and resets the vector store.
func (s *Service) Clear(ctx context.Context) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	w := s.current()
	s.replaceCatalog("", nil)

	if w.store != nil {
		if err := w.store.Reset(ctx); err != nil {
			s.logger.Warn(ctx, "vector store reset failed", zap.String("store", w.store.Name()), zap.Error(err))
			return err
		}
	}
	s.logger.Info(ctx, "catalog cleared")
	return nil
}

// Close releases the provider, store and publisher.
func (s *Service) Close() error {
	s.mu.Lock()
	provider, store, publisher := s.provider, s.store, s.publisher
	s.provider, s.store = nil, nil
	s.mu.Unlock()

	var errs []error
	if provider != nil {
		errs = append(errs, provider.Close())
	}
	if store != nil {
		errs = append(errs, store.Close())
	}
	if publisher != nil {
		publisher.Close()
	}
	return errors.Join(errs...)
}

func (s *Service) replaceCatalog(document string, chunks []chunker.Chunk) {
	byID := make(map[string]int, len(chunks))
	for i, c := range chunks {
		byID[c.ID] = i
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.document = document
	s.chunks = chunks
	s.byID = byID
	if document != "" {
		s.lastIndexedAt = time.Now()
	}
}

func (s *Service) chunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// lookup returns the catalog chunk with id.
func (s *Service) lookup(id string) (chunker.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return chunker.Chunk{}, false
	}
	return s.chunks[i], true
}
