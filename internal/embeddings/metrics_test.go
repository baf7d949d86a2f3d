package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_RecordGeneration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newMetrics(mp.Meter(instrumentationName), nil)

	ctx := context.Background()
	m.RecordGeneration(ctx, "tei", "BAAI/bge-small-en-v1.5", "embed_documents", 100*time.Millisecond, 16, nil)
	m.RecordGeneration(ctx, "tei", "BAAI/bge-small-en-v1.5", "embed_query", 50*time.Millisecond, 1, nil)
	m.RecordGeneration(ctx, "tei", "BAAI/bge-small-en-v1.5", "embed_documents", 25*time.Millisecond, 4, errors.New("generation failed"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	found := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = m
		}
	}

	require.Contains(t, found, "coursectx.embedding.generation.duration")
	require.Contains(t, found, "coursectx.embedding.batch.size")
	require.Contains(t, found, "coursectx.embedding.errors")

	errs, ok := found["coursectx.embedding.errors"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, errs.DataPoints, 1)
	assert.Equal(t, int64(1), errs.DataPoints[0].Value)
	retryable, ok := errs.DataPoints[0].Attributes.Value("retryable")
	require.True(t, ok)
	assert.True(t, retryable.AsBool())

	dur, ok := found["coursectx.embedding.generation.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var total uint64
	for _, dp := range dur.DataPoints {
		total += dp.Count
	}
	assert.Equal(t, uint64(3), total)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordGeneration(context.Background(), "tei", "m", "embed_query", time.Millisecond, 1, nil)
	})
}
