package document

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	tracerName = "github.com/fyrsmithlabs/coursectx/internal/document"
	meterName  = "coursectx.document"
)

type metrics struct {
	indexDuration metric.Float64Histogram
	indexErrors   metric.Int64Counter
	chunksIndexed metric.Int64Counter
	retrievals    metric.Int64Counter
	fallbacks     metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	m.indexDuration, err = meter.Float64Histogram(
		"coursectx.document.index.duration",
		metric.WithDescription("Duration of upload and index operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create index duration histogram: %w", err)
	}

	m.indexErrors, err = meter.Int64Counter(
		"coursectx.document.index.errors",
		metric.WithDescription("Failed upload and index operations by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("create index error counter: %w", err)
	}

	m.chunksIndexed, err = meter.Int64Counter(
		"coursectx.document.chunks",
		metric.WithDescription("Chunks published to the catalog"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chunk counter: %w", err)
	}

	m.retrievals, err = meter.Int64Counter(
		"coursectx.document.retrievals",
		metric.WithDescription("Retrieval calls by mode"),
	)
	if err != nil {
		return nil, fmt.Errorf("create retrieval counter: %w", err)
	}

	m.fallbacks, err = meter.Int64Counter(
		"coursectx.document.retrieval.fallbacks",
		metric.WithDescription("Vector retrievals that fell back to lexical search"),
	)
	if err != nil {
		return nil, fmt.Errorf("create fallback counter: %w", err)
	}

	return m, nil
}

func defaultMetrics() *metrics {
	m, err := newMetrics(otel.Meter(meterName))
	if err != nil {
		return nil
	}
	return m
}

func (m *metrics) recordIndex(ctx context.Context, dur time.Duration, chunks int, kind string) {
	if m == nil {
		return
	}
	m.indexDuration.Record(ctx, dur.Seconds(), metric.WithAttributes(attribute.String("result", kind)))
	if kind != "ok" {
		m.indexErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
	if chunks > 0 {
		m.chunksIndexed.Add(ctx, int64(chunks))
	}
}

func (m *metrics) recordRetrieval(ctx context.Context, mode Mode, fellBack bool) {
	if m == nil {
		return
	}
	m.retrievals.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", string(mode))))
	if fellBack {
		m.fallbacks.Add(ctx, 1)
	}
}
