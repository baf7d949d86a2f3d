package vectorstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkItem(id string, vec ...float32) Item {
	return Item{
		ID:     id,
		Vector: vec,
		Metadata: map[string]any{
			KeyID:          id,
			KeySource:      "lecture.pdf",
			KeyPageNumber:  2,
			KeyChunkIndex:  1,
			KeyLength:      42,
			KeyTextPreview: "preview of " + id,
		},
	}
}

// runStoreSuite checks the behaviour every Store must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("self similarity ranks first", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, []Item{
			chunkItem("a", 1, 0, 0),
			chunkItem("b", 0, 1, 0),
			chunkItem("c", 0.7, 0.7, 0),
		}))

		res, err := s.QueryByVector(ctx, []float32{0, 1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, res, 3)
		assert.Equal(t, "b", res[0].ID)
		assert.InDelta(t, 1.0, res[0].Score, 1e-5)
		assert.Equal(t, "c", res[1].ID)
		assert.Equal(t, "a", res[2].ID)
		assert.InDelta(t, 0.0, res[2].Score, 1e-5)
	})

	t.Run("topK caps results", func(t *testing.T) {
		s := newStore(t)
		var items []Item
		for i := 0; i < 5; i++ {
			items = append(items, chunkItem(fmt.Sprintf("id-%d", i), float32(i+1), 1))
		}
		require.NoError(t, s.Upsert(ctx, items))

		res, err := s.QueryByVector(ctx, []float32{1, 1}, 2)
		require.NoError(t, err)
		assert.Len(t, res, 2)

		res, err = s.QueryByVector(ctx, []float32{1, 1}, 10)
		require.NoError(t, err)
		assert.Len(t, res, 5, "fewer only when the store holds fewer")

		res, err = s.QueryByVector(ctx, []float32{1, 1}, 0)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("upsert is last write wins", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, []Item{chunkItem("a", 1, 0)}))
		require.NoError(t, s.Upsert(ctx, []Item{chunkItem("a", 0, 1)}))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		res, err := s.QueryByVector(ctx, []float32{0, 1}, 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.InDelta(t, 1.0, res[0].Score, 1e-5)
	})

	t.Run("metadata round trips", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, []Item{chunkItem("a", 1, 2, 3)}))

		res, err := s.QueryByVector(ctx, []float32{1, 2, 3}, 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		md := res[0].Metadata
		assert.Equal(t, "lecture.pdf", MetadataString(md, KeySource))
		assert.Equal(t, "preview of a", MetadataString(md, KeyTextPreview))
		page, ok := MetadataInt(md, KeyPageNumber)
		require.True(t, ok)
		assert.Equal(t, 2, page)
	})

	t.Run("reset empties the store", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, []Item{chunkItem("a", 1, 0), chunkItem("b", 0, 1)}))
		require.NoError(t, s.Reset(ctx))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		res, err := s.QueryByVector(ctx, []float32{1, 0}, 3)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("rejects invalid items", func(t *testing.T) {
		s := newStore(t)
		assert.ErrorIs(t, s.Upsert(ctx, []Item{{ID: "", Vector: []float32{1}}}), ErrInvalidItem)
		assert.ErrorIs(t, s.Upsert(ctx, []Item{{ID: "x"}}), ErrInvalidItem)
	})
}

func TestMemoryStore_Suite(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s := NewMemoryStore(nil)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestChromemStore_Suite(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewChromemStore("test_chunks", nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestChromemStore_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s, err := NewChromemStore("test_chunks", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ids := []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	for _, id := range ids {
		require.NoError(t, s.Upsert(ctx, []Item{chunkItem(id, 1, 0)}))
	}
	require.NoError(t, s.Upsert(ctx, []Item{chunkItem("other", 0, 1)}))

	for range 5 {
		res, err := s.QueryByVector(ctx, []float32{1, 0}, 4)
		require.NoError(t, err)
		require.Len(t, res, 4)
		assert.Equal(t, ids[:4], []string{res[0].ID, res[1].ID, res[2].ID, res[3].ID})
	}

	// Replacing keeps the original position; reset starts over.
	require.NoError(t, s.Upsert(ctx, []Item{chunkItem("p1", 2, 0)}))
	res, err := s.QueryByVector(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "p1", res[0].ID)

	require.NoError(t, s.Reset(ctx))
	require.NoError(t, s.Upsert(ctx, []Item{chunkItem("p6", 1, 0), chunkItem("p1", 1, 0)}))
	res, err = s.QueryByVector(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"p6", "p1"}, []string{res[0].ID, res[1].ID})
}

func TestInstrumentedStore_Suite(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return Instrument(NewMemoryStore(nil))
	})
}

func TestMetadataHelpers(t *testing.T) {
	md := map[string]any{"i": 3, "i64": int64(4), "f": 5.0, "s": "6", "bad": "x", "name": "deck"}
	for key, want := range map[string]int{"i": 3, "i64": 4, "f": 5, "s": 6} {
		got, ok := MetadataInt(md, key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
	_, ok := MetadataInt(md, "bad")
	assert.False(t, ok)
	_, ok = MetadataInt(md, "missing")
	assert.False(t, ok)

	assert.Equal(t, "deck", MetadataString(md, "name"))
	assert.Equal(t, "3", MetadataString(md, "i"))
	assert.Equal(t, "", MetadataString(md, "missing"))
}
