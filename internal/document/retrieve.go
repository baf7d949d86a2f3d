package document

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coursectx/internal/chunker"
	"github.com/fyrsmithlabs/coursectx/internal/vectorstore"
)

// Mode names the search path that produced a Retrieval.
type Mode string

const (
	ModeVector  Mode = "vector"
	ModeLexical Mode = "lexical"
	ModeNone    Mode = "none"
)

// Retrieval is the outcome of RetrieveWithMode.
type Retrieval struct {
	Chunks []chunker.Chunk `json:"chunks"`
	Mode   Mode            `json:"mode"`

	// FallbackReason explains why the vector path was not used.
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// Fallback reasons reported when the vector path is skipped.
const (
	ReasonNotConfigured = "embedding provider or vector store not configured"
	ReasonNoDocument    = "no document indexed"
)

var errNoVectorResults = errors.New("vector store returned no results")

// Retrieve returns up to topK chunks relevant to query. It never fails.
func (s *Service) Retrieve(ctx context.Context, query string, topK int) []chunker.Chunk {
	return s.RetrieveWithMode(ctx, query, topK).Chunks
}

// RetrieveWithMode searches the vector store when one is wired and falls
// back to lexical Jaccard ranking of the catalog on any failure.
func (s *Service) RetrieveWithMode(ctx context.Context, query string, topK int) Retrieval {
	ctx, span := s.tracer.Start(ctx, "document.retrieve",
		trace.WithAttributes(attribute.Int("top_k", topK)),
	)
	defer span.End()

	if strings.TrimSpace(query) == "" || topK <= 0 {
		return Retrieval{Chunks: []chunker.Chunk{}, Mode: ModeNone}
	}

	w := s.current()
	reason := ReasonNotConfigured
	if s.chunkCount() == 0 {
		span.SetAttributes(attribute.String("mode", string(ModeLexical)), attribute.Int("results", 0))
		s.metrics.recordRetrieval(ctx, ModeLexical, false)
		return Retrieval{Chunks: []chunker.Chunk{}, Mode: ModeLexical, FallbackReason: ReasonNoDocument}
	}
	if w.vectorEnabled() {
		chunks, err := s.vectorSearch(ctx, w, query, topK)
		if err == nil {
			span.SetAttributes(attribute.String("mode", string(ModeVector)), attribute.Int("results", len(chunks)))
			s.metrics.recordRetrieval(ctx, ModeVector, false)
			return Retrieval{Chunks: chunks, Mode: ModeVector}
		}
		reason = err.Error()
		span.RecordError(err)
		s.logger.Warn(ctx, "vector retrieval failed, using lexical search",
			zap.String("provider", w.provider.Name()),
			zap.String("store", w.store.Name()),
			zap.Error(err),
		)
	}

	chunks := rankLexical(s.Chunks(), query, topK)
	span.SetAttributes(attribute.String("mode", string(ModeLexical)), attribute.Int("results", len(chunks)))
	s.metrics.recordRetrieval(ctx, ModeLexical, w.vectorEnabled())
	return Retrieval{Chunks: chunks, Mode: ModeLexical, FallbackReason: reason}
}

// vectorSearch embeds query and resolves store hits to catalog chunks.
// Hits that are not in the catalog belong to another document and are
// dropped. A panic anywhere below is returned as an error.
func (s *Service) vectorSearch(ctx context.Context, w wiring, query string, topK int) (chunks []chunker.Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = fmt.Errorf("vector search panicked: %v", r)
		}
	}()

	vector, err := w.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := w.store.QueryByVector(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", w.store.Name(), err)
	}

	chunks = make([]chunker.Chunk, 0, len(results))
	foreign := 0
	for _, r := range results {
		id := vectorstore.MetadataString(r.Metadata, vectorstore.KeyID)
		if id == "" {
			id = r.ID
		}
		if c, ok := s.lookup(id); ok {
			chunks = append(chunks, c)
			continue
		}
		foreign++
	}
	if foreign > 0 {
		s.logger.Debug(ctx, "dropped hits outside the catalog", zap.Int("dropped", foreign))
	}
	if len(chunks) == 0 {
		return nil, errNoVectorResults
	}
	return chunks, nil
}
