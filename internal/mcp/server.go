package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/coursectx/internal/document"
	"github.com/fyrsmithlabs/coursectx/internal/logging"
)

// DocumentService is the part of document.Service the tools call.
type DocumentService interface {
	UploadAndIndex(ctx context.Context, filename string, data []byte) (*document.IndexResult, error)
	RetrieveWithMode(ctx context.Context, query string, topK int) document.Retrieval
	Status() document.Status
}

// Server is an MCP server backed by a DocumentService.
type Server struct {
	mcp     *mcp.Server
	svc     DocumentService
	metrics *Metrics
	logger  *logging.Logger
	config  *Config
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "coursectx").
	Name string

	// Version is the server version (default: "dev").
	Version string

	// MaxFileBytes stops index_document from reading huge files. The
	// service applies its own upload limit as well.
	MaxFileBytes int64

	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:         "coursectx",
		Version:      "dev",
		MaxFileBytes: 10 << 20,
		Logger:       logging.Nop(),
	}
}

// NewServer creates an MCP server and registers its tools.
func NewServer(cfg *Config, svc DocumentService) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if svc == nil {
		return nil, errors.New("document service is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultConfig().MaxFileBytes
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		svc:     svc,
		metrics: NewMetrics(cfg.Logger),
		logger:  cfg.Logger.Named("mcp"),
		config:  cfg,
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP over stdio until ctx is cancelled or the client leaves.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session on t. Tests use it with in-memory
// transports.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
