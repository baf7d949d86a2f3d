// Package telemetry sets up OpenTelemetry tracing and metrics export.
//
// # Usage
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Once New returns, the otel global providers export over OTLP, so packages
// that call otel.Tracer or otel.Meter are instrumented without holding a
// reference to the Telemetry value.
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc   # or http
//	  insecure: true   # only allowed for loopback endpoints
//	  service_name: "coursectx"
//	  sample_rate: 1.0
//
// # Error Handling
//
// Exporter setup failures mark the instance degraded and leave no-op
// providers in place. Health reports the last failure.
//
// # Testing
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "document.retrieve")
//	span.End()
//	tt.AssertSpanExists(t, "document.retrieve")
package telemetry
