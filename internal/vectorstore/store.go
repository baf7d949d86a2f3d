package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Store provider names accepted by NewStore.
const (
	ProviderNone    = "none"
	ProviderMemory  = "memory"
	ProviderChromem = "chromem"
	ProviderQdrant  = "qdrant"
)

// Metadata keys written for every chunk vector.
const (
	KeyID          = "id"
	KeySource      = "source"
	KeyPageNumber  = "pageNumber"
	KeyChunkIndex  = "chunkIndex"
	KeyLength      = "length"
	KeyTextPreview = "textPreview"
)

var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid vector store configuration")

	// ErrInvalidItem is returned for items without an id or vector.
	ErrInvalidItem = errors.New("invalid vector item")

	// ErrDimensionMismatch is returned by stores that cannot compare
	// vectors of different lengths.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrConnectionFailed indicates the remote store could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("vector store closed")
)

// Item is one vector to store. Upserting an existing ID replaces it.
type Item struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// SearchResult is one match from QueryByVector.
type SearchResult struct {
	ID string

	// Score is the cosine similarity in [-1, 1].
	Score float32

	Metadata map[string]any
}

// Store holds vectors for the currently indexed document.
type Store interface {
	// Upsert inserts or replaces items by ID.
	Upsert(ctx context.Context, items []Item) error

	// QueryByVector returns at most topK items ordered by descending score.
	QueryByVector(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)

	// Count returns the number of stored items.
	Count(ctx context.Context) (int, error)

	// Reset removes every item.
	Reset(ctx context.Context) error

	// Name identifies the store in logs and status output.
	Name() string

	Close() error
}

func validateItems(items []Item) error {
	for i, it := range items {
		if it.ID == "" {
			return fmt.Errorf("%w: item %d has no id", ErrInvalidItem, i)
		}
		if len(it.Vector) == 0 {
			return fmt.Errorf("%w: item %q has no vector", ErrInvalidItem, it.ID)
		}
	}
	return nil
}

// MetadataInt reads an integer metadata value regardless of how the store
// encoded it.
func MetadataInt(md map[string]any, key string) (int, bool) {
	switch v := md[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// MetadataString reads a string metadata value.
func MetadataString(md map[string]any, key string) string {
	switch v := md[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func cloneMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
