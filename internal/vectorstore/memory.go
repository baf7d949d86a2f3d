package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coursectx/internal/logging"
)

// MemoryStore keeps vectors in process and scans all of them per query.
type MemoryStore struct {
	logger *logging.Logger

	mu     sync.RWMutex
	index  map[string]int
	items  []Item
	closed bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(logger *logging.Logger) *MemoryStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &MemoryStore{
		logger: logger,
		index:  make(map[string]int),
	}
}

// Name implements Store.
func (s *MemoryStore) Name() string { return ProviderMemory }

// Upsert implements Store. A replaced item keeps its insertion position.
func (s *MemoryStore) Upsert(ctx context.Context, items []Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateItems(items); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, it := range items {
		stored := Item{
			ID:       it.ID,
			Vector:   append([]float32(nil), it.Vector...),
			Metadata: cloneMetadata(it.Metadata),
		}
		if i, ok := s.index[it.ID]; ok {
			s.items[i] = stored
			continue
		}
		s.index[it.ID] = len(s.items)
		s.items = append(s.items, stored)
	}
	return nil
}

// QueryByVector implements Store. Ties keep insertion order.
func (s *MemoryStore) QueryByVector(ctx context.Context, vector []float32, topK int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []SearchResult{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	results := make([]SearchResult, 0, len(s.items))
	mismatched := 0
	for _, it := range s.items {
		if len(it.Vector) != len(vector) {
			mismatched++
		}
		results = append(results, SearchResult{
			ID:       it.ID,
			Score:    Cosine(vector, it.Vector),
			Metadata: cloneMetadata(it.Metadata),
		})
	}
	if mismatched > 0 {
		DimensionMismatches.WithLabelValues(ProviderMemory).Add(float64(mismatched))
		s.logger.Warn(ctx, "dimension mismatch",
			zap.Int("query_dimension", len(vector)),
			zap.Int("mismatched_items", mismatched),
			zap.Int("items", len(s.items)))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = make(map[string]int)
	s.items = nil
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.index = nil
	s.items = nil
	return nil
}

// Cosine returns the cosine similarity of a and b over their common
// prefix. A zero-norm operand scores 0.
func Cosine(a, b []float32) float32 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ Store = (*MemoryStore)(nil)
