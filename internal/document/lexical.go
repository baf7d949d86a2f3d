package document

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/coursectx/internal/chunker"
)

// Tokens returns the set of lowercased whitespace-separated tokens in text.
func Tokens(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard is |a∩b| / |a∪b|, or 0 when either set is empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if _, ok := large[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

type scoredChunk struct {
	chunk chunker.Chunk
	score float64
}

// rankLexical scores every chunk against query and returns the best topK.
// Equal scores keep catalog order.
func rankLexical(chunks []chunker.Chunk, query string, topK int) []chunker.Chunk {
	if topK <= 0 || len(chunks) == 0 {
		return []chunker.Chunk{}
	}

	q := Tokens(query)
	scored := make([]scoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = scoredChunk{chunk: c, score: Jaccard(q, Tokens(c.Content))}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	n := min(topK, len(scored))
	out := make([]chunker.Chunk, n)
	for i := range out {
		out[i] = scored[i].chunk
	}
	return out
}
