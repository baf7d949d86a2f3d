package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coursectx/internal/logging"
)

// ErrEmbeddingRequired is returned by the collection's embedding function.
// Callers must always supply precomputed vectors.
var ErrEmbeddingRequired = errors.New("chromem store requires precomputed embeddings")

// intMetadataKeys are stringified by chromem and parsed back on query.
var intMetadataKeys = map[string]bool{
	KeyPageNumber: true,
	KeyChunkIndex: true,
	KeyLength:     true,
}

// ChromemStore keeps vectors in an in-process chromem-go collection.
// Equal scores rank in insertion order.
type ChromemStore struct {
	db         *chromem.DB
	collection string
	logger     *logging.Logger

	mu        sync.RWMutex
	coll      *chromem.Collection
	dimension int
	closed    bool

	// order holds each id's first insertion sequence.
	order map[string]int
	next  int
}

// NewChromemStore creates a store backed by a non-persistent chromem DB.
func NewChromemStore(collection string, logger *logging.Logger) (*ChromemStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	s := &ChromemStore{
		db:         chromem.NewDB(),
		collection: collection,
		logger:     logger,
	}
	if err := s.createCollection(); err != nil {
		return nil, err
	}
	return s, nil
}

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, ErrEmbeddingRequired
}

func (s *ChromemStore) createCollection() error {
	coll, err := s.db.GetOrCreateCollection(s.collection, nil, refuseEmbedding)
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}
	s.coll = coll
	s.dimension = 0
	s.order = map[string]int{}
	s.next = 0
	return nil
}

// Name implements Store.
func (s *ChromemStore) Name() string { return ProviderChromem }

// Upsert implements Store. All vectors must share one dimension.
func (s *ChromemStore) Upsert(ctx context.Context, items []Item) error {
	if err := validateItems(items); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	dim := s.dimension
	docs := make([]chromem.Document, len(items))
	for i, it := range items {
		if dim == 0 {
			dim = len(it.Vector)
		}
		if len(it.Vector) != dim {
			DimensionMismatches.WithLabelValues(ProviderChromem).Inc()
			return fmt.Errorf("%w: item %q has %d dimensions, collection has %d", ErrDimensionMismatch, it.ID, len(it.Vector), dim)
		}
		docs[i] = chromem.Document{
			ID:        it.ID,
			Metadata:  metadataToStrings(it.Metadata),
			Embedding: append([]float32(nil), it.Vector...),
			Content:   MetadataString(it.Metadata, KeyTextPreview),
		}
	}

	if err := s.coll.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents to %s: %w", s.collection, err)
	}
	s.dimension = dim
	for _, it := range items {
		if _, ok := s.order[it.ID]; !ok {
			s.order[it.ID] = s.next
			s.next++
		}
	}
	return nil
}

// QueryByVector implements Store. Zero-norm vectors score 0.
func (s *ChromemStore) QueryByVector(ctx context.Context, vector []float32, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		return []SearchResult{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	count := s.coll.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if len(vector) != s.dimension {
		DimensionMismatches.WithLabelValues(ProviderChromem).Add(float64(count))
		s.logger.Warn(ctx, "dimension mismatch",
			zap.Int("query_dimension", len(vector)),
			zap.Int("store_dimension", s.dimension))
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d", ErrDimensionMismatch, len(vector), s.dimension)
	}

	// chromem orders ties arbitrarily, so rank the whole collection here.
	res, err := s.coll.QueryEmbedding(ctx, append([]float32(nil), vector...), count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.collection, err)
	}

	results := make([]SearchResult, len(res))
	for i, r := range res {
		score := r.Similarity
		if math.IsNaN(float64(score)) {
			score = 0
		}
		results[i] = SearchResult{
			ID:       r.ID,
			Score:    score,
			Metadata: metadataFromStrings(r.Metadata),
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return s.order[results[i].ID] < s.order[results[j].ID]
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count implements Store.
func (s *ChromemStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.coll.Count(), nil
}

// Reset implements Store by recreating the collection.
func (s *ChromemStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.db.DeleteCollection(s.collection); err != nil {
		return fmt.Errorf("deleting collection %s: %w", s.collection, err)
	}
	return s.createCollection()
}

// Close implements Store.
func (s *ChromemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func metadataToStrings(md map[string]any) map[string]string {
	if md == nil {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		switch val := v.(type) {
		case string:
			out[k] = val
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

func metadataFromStrings(md map[string]string) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		if intMetadataKeys[k] {
			if n, err := strconv.Atoi(v); err == nil {
				out[k] = n
				continue
			}
		}
		out[k] = v
	}
	return out
}

var _ Store = (*ChromemStore)(nil)
