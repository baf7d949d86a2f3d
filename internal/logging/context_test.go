package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func fieldMap(ctx context.Context) map[string]string {
	out := map[string]string{}
	for _, f := range ContextFields(ctx) {
		out[f.Key] = f.String
	}
	return out
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_Trace(t *testing.T) {
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(tracetest.NewInMemoryExporter()),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	ctx, span := provider.Tracer("test").Start(context.Background(), "index")
	defer span.End()

	fields := fieldMap(ctx)
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
}

func TestContextFields_RequestAndDocument(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	ctx = WithDocument(ctx, "slides.pptx")

	fields := fieldMap(ctx)
	assert.Equal(t, "req-42", fields["request.id"])
	assert.Equal(t, "slides.pptx", fields["document"])
}

func TestWithRequestID_IgnoresInvalid(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithRequestID(ctx, ""))
	assert.Equal(t, ctx, WithRequestID(ctx, strings.Repeat("x", maxIDLen+1)))
	assert.Equal(t, ctx, WithDocument(ctx, ""))
}

func TestTestLogger_AssertField(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithDocument(context.Background(), "a.pdf")
	tl.Info(ctx, "indexed")

	tl.AssertField(t, "indexed", "document", "a.pdf")
	tl.AssertNotLogged(t, TraceLevel, "indexed")

	tl.Reset()
	require.Empty(t, tl.All())
}
