// Package logging provides structured logging with OpenTelemetry integration.
//
// Logger wraps zap with:
//   - a Trace level below Debug
//   - stdout and/or OTEL log bridge output
//   - context fields (trace_id, span_id, request.id, document)
//   - key and pattern based secret redaction
//   - per-level sampling (errors never sampled)
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithDocument(ctx, "lecture-03.pdf")
//	logger.Info(ctx, "document indexed", zap.Int("chunks", n))
//
// Tests use NewTestLogger and its Assert helpers.
package logging
