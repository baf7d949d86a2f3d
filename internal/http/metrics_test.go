package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/coursectx/internal/logging"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := &HTTPMetrics{
		meter:  mp.Meter(httpInstrumentationName),
		logger: logging.Nop(),
	}
	m.init()

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/v1/search", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	})
	e.POST("/api/v1/documents", func(c echo.Context) error {
		m.RecordUpload(c.Request().Context(), 2048)
		return errors.New("boom")
	})

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/api/v1/search"},
		{http.MethodPost, "/api/v1/documents"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.path, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	statuses := map[string]int64{}
	var durations uint64
	var uploads uint64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch md.Name {
			case "coursectx.http.requests_total":
				sum, ok := md.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					endpoint, _ := dp.Attributes.Value(attribute.Key("endpoint"))
					status, _ := dp.Attributes.Value(attribute.Key("status"))
					statuses[endpoint.AsString()] = status.AsInt64()
				}
			case "coursectx.http.request_duration_seconds":
				hist, ok := md.Data.(metricdata.Histogram[float64])
				require.True(t, ok)
				for _, dp := range hist.DataPoints {
					durations += dp.Count
				}
			case "coursectx.http.upload_size_bytes":
				hist, ok := md.Data.(metricdata.Histogram[int64])
				require.True(t, ok)
				for _, dp := range hist.DataPoints {
					uploads += dp.Count
				}
			}
		}
	}

	assert.Equal(t, map[string]int64{
		"/health":           http.StatusOK,
		"/api/v1/search":    http.StatusBadRequest,
		"/api/v1/documents": http.StatusInternalServerError,
	}, statuses, "errors are recorded with their final status")
	assert.EqualValues(t, 3, durations)
	assert.EqualValues(t, 1, uploads)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/health", "/health"},
		{"/api/v1/documents", "/api/v1/documents"},
		{"/api/v1/search", "/api/v1/search"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizePath(tt.input))
	}
}
