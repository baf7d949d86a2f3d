package document

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fyrsmithlabs/coursectx/internal/config"
	"github.com/fyrsmithlabs/coursectx/internal/embeddings"
	"github.com/fyrsmithlabs/coursectx/internal/events"
	"github.com/fyrsmithlabs/coursectx/internal/vectorstore"
)

const hashDim = 256

// hashProvider embeds text as a bag of hashed lowercase tokens.
type hashProvider struct {
	calls atomic.Int32
}

func hashVector(text string) []float32 {
	v := make([]float32, hashDim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		v[h.Sum32()%hashDim]++
	}
	return v
}

func (p *hashProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	return hashVector(text), nil
}

func (p *hashProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	p.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t)
	}
	return out, nil
}

func (p *hashProvider) Dimension() int { return hashDim }
func (p *hashProvider) Name() string   { return "hash" }
func (p *hashProvider) Close() error   { return nil }

// failingProvider returns err from every call.
type failingProvider struct {
	err   error
	calls atomic.Int32
}

func (p *failingProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	p.calls.Add(1)
	return nil, p.err
}

func (p *failingProvider) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	p.calls.Add(1)
	return nil, p.err
}

func (p *failingProvider) Dimension() int { return 0 }
func (p *failingProvider) Name() string   { return "failing" }
func (p *failingProvider) Close() error   { return nil }

// panicProvider panics on query embedding.
type panicProvider struct{ hashProvider }

func (p *panicProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	panic("index out of range")
}

func (p *panicProvider) Name() string { return "panicky" }

// shortProvider returns one vector fewer than requested.
type shortProvider struct{ hashProvider }

func (p *shortProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, _ := p.hashProvider.EmbedDocuments(ctx, texts)
	return vecs[:len(vecs)-1], nil
}

// gatedProvider blocks document embedding until release is called and
// signals entered on the first call.
type gatedProvider struct {
	hashProvider
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{entered: make(chan struct{}), gate: make(chan struct{})}
}

func (p *gatedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	p.once.Do(func() { close(p.entered) })
	select {
	case <-p.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return p.hashProvider.EmbedDocuments(ctx, texts)
}

func (p *gatedProvider) release() { close(p.gate) }

// erroringStore wraps a memory store and fails upserts with err.
type erroringStore struct {
	*vectorstore.MemoryStore
	err     error
	upserts atomic.Int32
}

func (s *erroringStore) Upsert(context.Context, []vectorstore.Item) error {
	s.upserts.Add(1)
	return s.err
}

// recordingPublisher keeps every event it is given.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.IndexedEvent
	err    error
	closed bool
}

func (p *recordingPublisher) PublishIndexed(_ context.Context, ev events.IndexedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *recordingPublisher) Events() []events.IndexedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.IndexedEvent(nil), p.events...)
}

// testConfig returns the default config with millisecond retry delays.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Retry.InitialDelay = config.Duration(time.Millisecond)
	return cfg
}

// uniqueText returns n characters of distinct tokens.
func uniqueText(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		fmt.Fprintf(&b, "t%04d ", i)
	}
	return b.String()[:n]
}

var (
	_ embeddings.Provider = (*hashProvider)(nil)
	_ embeddings.Provider = (*failingProvider)(nil)
	_ vectorstore.Store   = (*erroringStore)(nil)
	_ events.Publisher    = (*recordingPublisher)(nil)
)
