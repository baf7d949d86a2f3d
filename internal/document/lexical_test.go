package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/coursectx/internal/chunker"
)

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "cell membrane transport", "cell membrane transport", 1},
		{"case and spacing ignored", "Cell  MEMBRANE", "cell membrane", 1},
		{"disjoint", "cell membrane", "graph theory", 0},
		{"partial", "a b c", "b c d", 0.5},
		{"duplicates collapse", "a a a b", "a b", 1},
		{"empty left", "", "a b", 0},
		{"empty right", "a b", "   ", 0},
		{"both empty", "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Jaccard(Tokens(tt.a), Tokens(tt.b)), 1e-9)
			assert.InDelta(t, tt.want, Jaccard(Tokens(tt.b), Tokens(tt.a)), 1e-9, "symmetric")
		})
	}
}

func TestRankLexical(t *testing.T) {
	chunks := []chunker.Chunk{
		{ID: "1", Content: "graphs and trees"},
		{ID: "2", Content: "binary search trees"},
		{ID: "3", Content: "hash tables"},
		{ID: "4", Content: "search trees"},
		{ID: "5", Content: "heaps"},
	}

	got := rankLexical(chunks, "search trees", 3)
	require.Len(t, got, 3)
	assert.Equal(t, "4", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
	assert.Equal(t, "1", got[2].ID)

	t.Run("ties keep catalog order", func(t *testing.T) {
		got := rankLexical(chunks, "nothing matches", 5)
		require.Len(t, got, 5)
		for i, c := range got {
			assert.Equal(t, chunks[i].ID, c.ID)
		}
	})

	t.Run("topK larger than catalog", func(t *testing.T) {
		assert.Len(t, rankLexical(chunks, "heaps", 50), 5)
	})

	t.Run("empty inputs", func(t *testing.T) {
		assert.Empty(t, rankLexical(nil, "heaps", 3))
		assert.Empty(t, rankLexical(chunks, "heaps", 0))
	})
}
