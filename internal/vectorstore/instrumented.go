package vectorstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fyrsmithlabs/coursectx/internal/vectorstore"

// instrumented records a span and Prometheus metrics around every call of
// the wrapped store.
type instrumented struct {
	Store
}

// Instrument wraps s with tracing and metrics.
func Instrument(s Store) Store {
	if s == nil {
		return nil
	}
	if _, ok := s.(*instrumented); ok {
		return s
	}
	return &instrumented{Store: s}
}

func (i *instrumented) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "vectorstore."+op, trace.WithAttributes(
		append(attrs, attribute.String("vectorstore.name", i.Name()))...,
	))
	return ctx, func(err error) {
		OperationDuration.WithLabelValues(i.Name(), op).Observe(time.Since(start).Seconds())
		Operations.WithLabelValues(i.Name(), op, resultLabel(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

func (i *instrumented) Upsert(ctx context.Context, items []Item) (err error) {
	ctx, done := i.observe(ctx, "upsert", attribute.Int("vectorstore.items", len(items)))
	defer func() { done(err) }()

	if err = i.Store.Upsert(ctx, items); err != nil {
		return err
	}
	if n, cerr := i.Store.Count(ctx); cerr == nil {
		Items.WithLabelValues(i.Name()).Set(float64(n))
	}
	return nil
}

func (i *instrumented) QueryByVector(ctx context.Context, vector []float32, topK int) (res []SearchResult, err error) {
	ctx, done := i.observe(ctx, "query",
		attribute.Int("vectorstore.top_k", topK),
		attribute.Int("vectorstore.dimension", len(vector)))
	defer func() { done(err) }()

	return i.Store.QueryByVector(ctx, vector, topK)
}

func (i *instrumented) Count(ctx context.Context) (n int, err error) {
	ctx, done := i.observe(ctx, "count")
	defer func() { done(err) }()

	return i.Store.Count(ctx)
}

func (i *instrumented) Reset(ctx context.Context) (err error) {
	ctx, done := i.observe(ctx, "reset")
	defer func() { done(err) }()

	if err = i.Store.Reset(ctx); err == nil {
		Items.WithLabelValues(i.Name()).Set(0)
	}
	return err
}
