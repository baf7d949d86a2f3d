package vectorstore

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/coursectx/internal/config"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		provider string
		want     string
		wantNil  bool
		wantErr  bool
	}{
		{provider: "memory", want: ProviderMemory},
		{provider: "", want: ProviderMemory},
		{provider: "Chromem", want: ProviderChromem},
		{provider: "none", wantNil: true},
		{provider: "pinecone", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := config.Default().VectorStore
			cfg.Provider = tt.provider

			s, err := NewStore(cfg, nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, s)
				return
			}
			require.NotNil(t, s)
			t.Cleanup(func() { _ = s.Close() })
			assert.Equal(t, tt.want, s.Name())
			_, ok := s.(*instrumented)
			assert.True(t, ok, "factory stores are instrumented")
		})
	}
}

func TestNewStore_QdrantInvalidConfig(t *testing.T) {
	cfg := config.Default().VectorStore
	cfg.Provider = "qdrant"
	cfg.QdrantHost = ""
	_, err := NewStore(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestInstrument_RecordsMetricsAndSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := context.Background()
	s := Instrument(NewMemoryStore(nil))
	assert.Same(t, s, Instrument(s), "wrapping is idempotent")
	assert.Nil(t, Instrument(nil))

	upserts := testutil.ToFloat64(Operations.WithLabelValues(ProviderMemory, "upsert", "success"))
	failures := testutil.ToFloat64(Operations.WithLabelValues(ProviderMemory, "upsert", "error"))

	require.NoError(t, s.Upsert(ctx, []Item{chunkItem("a", 1, 0), chunkItem("b", 0, 1)}))
	assert.Error(t, s.Upsert(ctx, []Item{{ID: "bad"}}))
	_, err := s.QueryByVector(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)

	assert.Equal(t, upserts+1, testutil.ToFloat64(Operations.WithLabelValues(ProviderMemory, "upsert", "success")))
	assert.Equal(t, failures+1, testutil.ToFloat64(Operations.WithLabelValues(ProviderMemory, "upsert", "error")))
	assert.Equal(t, float64(2), testutil.ToFloat64(Items.WithLabelValues(ProviderMemory)))

	require.NoError(t, s.Reset(ctx))
	assert.Zero(t, testutil.ToFloat64(Items.WithLabelValues(ProviderMemory)))

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "vectorstore.upsert")
	assert.Contains(t, names, "vectorstore.query")
	assert.Contains(t, names, "vectorstore.reset")
}
