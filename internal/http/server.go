// Package http serves the coursectx document API.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coursectx/internal/document"
	"github.com/fyrsmithlabs/coursectx/internal/extract"
	"github.com/fyrsmithlabs/coursectx/internal/logging"
)

// DefaultTopK is used when a search request has no k parameter.
const DefaultTopK = 5

// maxTopK caps the k parameter of a search request.
const maxTopK = 100

// DocumentService is the part of document.Service the server needs.
type DocumentService interface {
	UploadAndIndex(ctx context.Context, filename string, data []byte) (*document.IndexResult, error)
	RetrieveWithMode(ctx context.Context, query string, topK int) document.Retrieval
	Status() document.Status
	Clear(ctx context.Context) error

	// UploadLimit is read per request so a config reload applies at once.
	UploadLimit() int64
}

// Server provides HTTP endpoints for coursectx.
type Server struct {
	echo    *echo.Echo
	svc     DocumentService
	logger  *logging.Logger
	metrics *HTTPMetrics
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// NewServer creates a new HTTP server.
func NewServer(svc DocumentService, logger *logging.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("document service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  logger.Named("http"),
		metrics: NewHTTPMetrics(logger),
		config:  cfg,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(s.requestLogger)
	e.Use(s.metrics.MetricsMiddleware())

	s.registerRoutes()
	return s, nil
}

// requestLogger puts the request id on the context and logs each request.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(req.Context(), rid)
		c.SetRequest(req.WithContext(ctx))

		err := next(c)

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleUpload)
	v1.DELETE("/documents", s.handleClear)
	v1.GET("/search", s.handleSearch)
	v1.GET("/status", s.handleStatus)
}

// multipartOverhead is the room left for multipart framing around the file.
const multipartOverhead = 1 << 20

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", RAG: s.svc.Status()})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Status:   "ok",
		Version:  s.config.Version,
		Document: s.svc.Status(),
	})
}

// handleUpload indexes the multipart "file" field. A body larger than the
// live upload limit plus framing is rejected with 413.
func (s *Server) handleUpload(c echo.Context) error {
	limit := s.svc.UploadLimit()
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, limit+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: fmt.Sprintf("upload exceeds the %d byte limit", limit),
				Kind:  "validation",
			})
		}
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}

	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read uploaded file")
	}
	defer f.Close()

	// One byte past the limit is enough for the service to reject it.
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read uploaded file")
	}

	ctx := c.Request().Context()
	s.metrics.RecordUpload(ctx, int64(len(data)))

	res, err := s.svc.UploadAndIndex(ctx, fh.Filename, data)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, res)
	case errors.Is(err, document.ErrValidation):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
	case errors.Is(err, extract.ErrParse):
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Kind: "parse"})
	case errors.Is(err, document.ErrIndexing):
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error(), Kind: "indexing", Result: res})
	}

	s.logger.Error(ctx, "upload failed", zap.String("document", fh.Filename), zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "upload failed")
}

func (s *Server) handleClear(c echo.Context) error {
	if err := s.svc.Clear(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "clear failed: "+err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// handleSearch serves GET /api/v1/search?q=...&k=...
func (s *Server) handleSearch(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter q is required")
	}

	topK := DefaultTopK
	if raw := c.QueryParam("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "k must be a positive integer")
		}
		topK = min(k, maxTopK)
	}

	r := s.svc.RetrieveWithMode(c.Request().Context(), query, topK)
	return c.JSON(http.StatusOK, SearchResponse{Query: query, TopK: topK, Retrieval: r})
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
