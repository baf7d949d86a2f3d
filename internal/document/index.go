package document

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coursectx/internal/chunker"
	"github.com/fyrsmithlabs/coursectx/internal/config"
	"github.com/fyrsmithlabs/coursectx/internal/embeddings"
	"github.com/fyrsmithlabs/coursectx/internal/events"
	"github.com/fyrsmithlabs/coursectx/internal/extract"
	"github.com/fyrsmithlabs/coursectx/internal/logging"
	"github.com/fyrsmithlabs/coursectx/internal/retry"
	"github.com/fyrsmithlabs/coursectx/internal/vectorstore"
)

// IndexResult summarizes an upload. On an IndexError it is returned
// alongside the error with the batches completed so far.
type IndexResult struct {
	Document   string        `json:"document"`
	Pages      int           `json:"pages"`
	Chunks     int           `json:"chunks"`
	Dropped    int           `json:"dropped"`
	Batches    int           `json:"batches"`
	RAGIndexed bool          `json:"rag_indexed"`
	Duration   time.Duration `json:"duration_ns"`
}

// UploadAndIndex replaces the catalog with the chunks of filename and, when
// a provider and store are wired, embeds and stores them batch by batch.
//
// Validation failures return a *ValidationError before anything changes.
// Otherwise the catalog is emptied and the vector store reset before
// extraction, so a parse failure leaves no document indexed. An embedding or store failure
// returns a *IndexError together with the result; the chunks stay in the
// catalog for lexical retrieval.
func (s *Service) UploadAndIndex(ctx context.Context, filename string, data []byte) (*IndexResult, error) {
	ctx = logging.WithDocument(ctx, filename)
	ctx, span := s.tracer.Start(ctx, "document.upload_and_index",
		trace.WithAttributes(
			attribute.String("document", filename),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	start := time.Now()

	if err := validateUpload(s.current().cfg.Upload, filename, data); err != nil {
		s.fail(ctx, span, start, "validation", err)
		return nil, err
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	// Read the wiring only once the lock is held; a reload may have
	// swapped the provider or store while this call waited.
	w := s.current()

	s.replaceCatalog("", nil)
	if w.store != nil {
		if err := w.store.Reset(ctx); err != nil {
			s.logger.Warn(ctx, "vector store reset failed, old vectors stay until the next upload",
				zap.String("store", w.store.Name()), zap.Error(err))
		}
	}

	pages, err := extract.Extract(ctx, filename, data)
	if err != nil {
		s.fail(ctx, span, start, "parse", err)
		return nil, err
	}

	ck, err := chunker.New(w.cfg.Chunking.Size, w.cfg.Chunking.Overlap)
	if err != nil {
		s.fail(ctx, span, start, "chunk", err)
		return nil, err
	}
	chunks, err := ck.ChunkPages(filename, pages)
	if err != nil {
		s.fail(ctx, span, start, "chunk", err)
		return nil, err
	}

	kept, dropped := chunker.Limit(chunks, w.cfg.Chunking.MaxTotalChars)
	if dropped > 0 {
		s.logger.Warn(ctx, "character budget exceeded, dropping trailing chunks",
			zap.Int("kept", len(kept)),
			zap.Int("dropped", dropped),
			zap.Int("max_total_chars", w.cfg.Chunking.MaxTotalChars),
		)
	}
	s.replaceCatalog(filename, kept)

	result := &IndexResult{
		Document: filename,
		Pages:    len(pages),
		Chunks:   len(kept),
		Dropped:  dropped,
	}
	span.SetAttributes(
		attribute.Int("pages", result.Pages),
		attribute.Int("chunks", result.Chunks),
	)

	if !w.vectorEnabled() || len(kept) == 0 {
		result.Duration = time.Since(start)
		s.logger.Info(ctx, "document indexed for lexical search",
			zap.Int("pages", result.Pages),
			zap.Int("chunks", result.Chunks),
			zap.Bool("embedding_configured", w.provider != nil),
			zap.Bool("vector_store_configured", w.store != nil),
		)
		s.metrics.recordIndex(ctx, result.Duration, result.Chunks, "ok")
		s.publish(ctx, result, w)
		return result, nil
	}

	batches, err := s.indexBatches(ctx, w, filename, kept)
	result.Batches = batches
	result.Duration = time.Since(start)
	if err != nil {
		s.fail(ctx, span, start, "index", err)
		return result, err
	}

	result.RAGIndexed = true
	s.logger.Info(ctx, "document indexed",
		zap.Int("pages", result.Pages),
		zap.Int("chunks", result.Chunks),
		zap.Int("batches", result.Batches),
		zap.String("provider", w.provider.Name()),
		zap.String("store", w.store.Name()),
		zap.Duration("duration", result.Duration),
	)
	s.metrics.recordIndex(ctx, result.Duration, result.Chunks, "ok")
	s.publish(ctx, result, w)
	return result, nil
}

// Reindex clears the vector store and embeds the current catalog again
// with the current wiring. It is used after the provider or store changes.
// It returns the number of batches written.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	w := s.current()
	if w.store == nil {
		return 0, nil
	}
	if err := w.store.Reset(ctx); err != nil {
		return 0, fmt.Errorf("reset %s: %w", w.store.Name(), err)
	}

	doc, chunks := s.Document(), s.Chunks()
	if !w.vectorEnabled() || len(chunks) == 0 {
		return 0, nil
	}

	ctx = logging.WithDocument(ctx, doc)
	batches, err := s.indexBatches(ctx, w, doc, chunks)
	if err != nil {
		s.logger.Warn(ctx, "reindex failed", zap.Error(err))
		return batches, err
	}
	s.logger.Info(ctx, "catalog reindexed",
		zap.Int("chunks", len(chunks)),
		zap.Int("batches", batches),
		zap.String("provider", w.provider.Name()),
		zap.String("store", w.store.Name()),
	)
	return batches, nil
}

func validateUpload(cfg config.UploadConfig, filename string, data []byte) error {
	ext := filepath.Ext(filename)
	if ext == "" || !cfg.ExtensionAllowed(ext) {
		return &ValidationError{Filename: filename, Reason: fmt.Sprintf("extension %q is not allowed", ext)}
	}
	if _, err := extract.DetectType(filename); err != nil {
		return &ValidationError{Filename: filename, Reason: err.Error()}
	}
	if len(data) == 0 {
		return &ValidationError{Filename: filename, Reason: "file is empty"}
	}
	if int64(len(data)) > cfg.MaxBytes {
		return &ValidationError{
			Filename: filename,
			Reason:   fmt.Sprintf("file is %d bytes, limit is %d", len(data), cfg.MaxBytes),
		}
	}
	return nil
}

// indexBatches embeds and upserts chunks in sequential batches and returns
// the number of batches completed.
func (s *Service) indexBatches(ctx context.Context, w wiring, document string, chunks []chunker.Chunk) (int, error) {
	size := w.cfg.Indexing.BatchSize
	if size <= 0 {
		size = len(chunks)
	}

	embedPolicy := retry.FromConfig(w.cfg.Retry, s.logger)
	embedPolicy.Retryable = embeddings.IsRetryable

	storePolicy := retry.FromConfig(w.cfg.Retry, s.logger)
	storePolicy.Retryable = storeRetryable

	completed := 0
	for start := 0; start < len(chunks); start += size {
		batch := chunks[start:min(start+size, len(chunks))]
		n := start / size

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := retry.DoValue(ctx, embedPolicy, "embed batch", func(ctx context.Context) ([][]float32, error) {
			return w.provider.EmbedDocuments(ctx, texts)
		})
		if err == nil && len(vectors) != len(batch) {
			err = fmt.Errorf("%w: %d vectors for %d chunks", embeddings.ErrTerminal, len(vectors), len(batch))
		}
		if err != nil {
			return completed, &IndexError{Document: document, Stage: StageEmbed, Batch: n, Batches: completed, Err: err}
		}

		items := buildItems(batch, vectors, w.cfg.Indexing.PreviewChars)
		if err := storePolicy.Do(ctx, "upsert batch", func(ctx context.Context) error {
			return w.store.Upsert(ctx, items)
		}); err != nil {
			return completed, &IndexError{Document: document, Stage: StageUpsert, Batch: n, Batches: completed, Err: err}
		}

		completed++
		s.logger.Debug(ctx, "batch indexed",
			zap.Int("batch", n),
			zap.Int("size", len(batch)),
		)
	}
	return completed, nil
}

// storeRetryable gives up on errors another attempt cannot fix.
func storeRetryable(err error) bool {
	switch {
	case errors.Is(err, vectorstore.ErrInvalidItem),
		errors.Is(err, vectorstore.ErrDimensionMismatch),
		errors.Is(err, vectorstore.ErrClosed):
		return false
	}
	return true
}

func buildItems(batch []chunker.Chunk, vectors [][]float32, previewChars int) []vectorstore.Item {
	items := make([]vectorstore.Item, len(batch))
	for i, c := range batch {
		items[i] = vectorstore.Item{
			ID:     c.ID,
			Vector: vectors[i],
			Metadata: map[string]any{
				vectorstore.KeyID:          c.ID,
				vectorstore.KeySource:      c.Source,
				vectorstore.KeyPageNumber:  c.PageNumber,
				vectorstore.KeyChunkIndex:  c.ChunkIndex,
				vectorstore.KeyLength:      c.Length,
				vectorstore.KeyTextPreview: chunker.Preview(c.Content, previewChars),
			},
		}
	}
	return items
}

func (s *Service) fail(ctx context.Context, span trace.Span, start time.Time, kind string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, kind)
	s.metrics.recordIndex(ctx, time.Since(start), 0, kind)

	if kind == "validation" {
		s.logger.Info(ctx, "upload rejected", zap.Error(err))
		return
	}
	s.logger.Warn(ctx, "indexing failed", zap.String("stage", kind), zap.Error(err))
}

func (s *Service) publish(ctx context.Context, result *IndexResult, w wiring) {
	s.mu.RLock()
	publisher := s.publisher
	s.mu.RUnlock()

	ev := events.IndexedEvent{
		Document:   result.Document,
		Pages:      result.Pages,
		Chunks:     result.Chunks,
		Dropped:    result.Dropped,
		Batches:    result.Batches,
		RAGIndexed: result.RAGIndexed,
		IndexedAt:  time.Now().UTC(),
	}
	if w.provider != nil {
		ev.Provider = w.provider.Name()
	}
	if w.store != nil {
		ev.Store = w.store.Name()
	}
	if err := publisher.PublishIndexed(ctx, ev); err != nil {
		s.logger.Warn(ctx, "publish indexed event failed", zap.Error(err))
	}
}
