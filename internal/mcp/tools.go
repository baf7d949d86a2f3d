package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coursectx/internal/document"
	"github.com/fyrsmithlabs/coursectx/internal/logging"
)

const (
	defaultTopK = 5
	maxTopK     = 50
)

var errInvalidArgument = errors.New("invalid argument")

type indexDocumentInput struct {
	Path string `json:"path" jsonschema:"Absolute or relative path to a .pdf or .pptx file"`
}

type indexDocumentOutput struct {
	Document   string `json:"document" jsonschema:"Indexed file name"`
	Pages      int    `json:"pages" jsonschema:"Pages or slides with text"`
	Chunks     int    `json:"chunks" jsonschema:"Chunks in the catalog"`
	Dropped    int    `json:"dropped" jsonschema:"Chunks dropped by the character budget"`
	Batches    int    `json:"batches" jsonschema:"Embedding batches stored"`
	RAGIndexed bool   `json:"rag_indexed" jsonschema:"Whether vectors were stored"`
	DurationMs int64  `json:"duration_ms" jsonschema:"Indexing time in milliseconds"`
}

type retrieveChunksInput struct {
	Query string `json:"query" jsonschema:"Topic or question to search for"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"Maximum chunks to return (default: 5)"`
}

type chunkOutput struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	PageNumber int    `json:"page_number"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

type retrieveChunksOutput struct {
	Mode           string        `json:"mode" jsonschema:"vector, lexical or none"`
	FallbackReason string        `json:"fallback_reason,omitempty" jsonschema:"Why vector search was not used"`
	Chunks         []chunkOutput `json:"chunks" jsonschema:"Most relevant chunks first"`
}

type ragStatusInput struct{}

type ragStatusOutput struct {
	RAGEnabled        bool   `json:"rag_enabled" jsonschema:"Whether vector search is active"`
	EmbeddingProvider string `json:"embedding_provider,omitempty" jsonschema:"Configured embedding provider"`
	VectorStore       string `json:"vector_store,omitempty" jsonschema:"Configured vector store"`
	Document          string `json:"document,omitempty" jsonschema:"Indexed document name"`
	ChunkCount        int    `json:"chunk_count" jsonschema:"Chunks in the catalog"`
	LastIndexedAt     string `json:"last_indexed_at,omitempty" jsonschema:"RFC 3339 time of the last upload"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_document",
		Description: "Index a course document (PDF or PPTX) so its passages can be retrieved. Replaces the previously indexed document.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args indexDocumentInput) (*mcp.CallToolResult, indexDocumentOutput, error) {
		var toolErr error
		done := s.track(ctx, "index_document")
		defer func() { done(toolErr) }()

		out, err := s.indexDocument(ctx, args)
		if err != nil {
			toolErr = err
			return nil, indexDocumentOutput{}, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Indexed %s: %d pages, %d chunks (vector index: %t)",
					out.Document, out.Pages, out.Chunks, out.RAGIndexed)},
			},
		}, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "retrieve_chunks",
		Description: "Return the passages of the indexed course document most relevant to a topic or question.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args retrieveChunksInput) (*mcp.CallToolResult, retrieveChunksOutput, error) {
		var toolErr error
		done := s.track(ctx, "retrieve_chunks")
		defer func() { done(toolErr) }()

		if strings.TrimSpace(args.Query) == "" {
			toolErr = fmt.Errorf("%w: query is required", errInvalidArgument)
			return nil, retrieveChunksOutput{}, toolErr
		}
		topK := args.TopK
		if topK <= 0 {
			topK = defaultTopK
		}
		topK = min(topK, maxTopK)

		r := s.svc.RetrieveWithMode(ctx, args.Query, topK)
		out := retrieveChunksOutput{
			Mode:           string(r.Mode),
			FallbackReason: r.FallbackReason,
			Chunks:         make([]chunkOutput, len(r.Chunks)),
		}
		var text strings.Builder
		for i, c := range r.Chunks {
			out.Chunks[i] = chunkOutput{
				ID:         c.ID,
				Source:     c.Source,
				PageNumber: c.PageNumber,
				ChunkIndex: c.ChunkIndex,
				Content:    c.Content,
			}
			fmt.Fprintf(&text, "[%s p.%d] %s\n\n", c.Source, c.PageNumber, c.Content)
		}
		if len(r.Chunks) == 0 {
			text.WriteString("No indexed content matched.")
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: strings.TrimSpace(text.String())}},
		}, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_status",
		Description: "Report whether vector search is enabled and which document is indexed.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ ragStatusInput) (*mcp.CallToolResult, ragStatusOutput, error) {
		done := s.track(ctx, "rag_status")
		defer done(nil)

		st := s.svc.Status()
		out := ragStatusOutput{
			RAGEnabled:        st.RAGEnabled,
			EmbeddingProvider: st.EmbeddingProvider,
			VectorStore:       st.VectorStore,
			Document:          st.Document,
			ChunkCount:        st.ChunkCount,
		}
		if !st.LastIndexedAt.IsZero() {
			out.LastIndexedAt = st.LastIndexedAt.UTC().Format(time.RFC3339)
		}

		mode := "basic search"
		if st.RAGEnabled {
			mode = "RAG enabled"
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("%s; %d chunks indexed", mode, st.ChunkCount)},
			},
		}, out, nil
	})
}

func (s *Server) indexDocument(ctx context.Context, args indexDocumentInput) (indexDocumentOutput, error) {
	if strings.TrimSpace(args.Path) == "" {
		return indexDocumentOutput{}, fmt.Errorf("%w: path is required", errInvalidArgument)
	}
	path := filepath.Clean(args.Path)

	info, err := os.Stat(path)
	if err != nil {
		return indexDocumentOutput{}, fmt.Errorf("%w: %v", errInvalidArgument, err)
	}
	if info.IsDir() {
		return indexDocumentOutput{}, fmt.Errorf("%w: %s is a directory", errInvalidArgument, path)
	}
	if info.Size() > s.config.MaxFileBytes {
		return indexDocumentOutput{}, fmt.Errorf("%w: %s is %d bytes, limit is %d",
			errInvalidArgument, path, info.Size(), s.config.MaxFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return indexDocumentOutput{}, fmt.Errorf("read %s: %w", path, err)
	}

	name := filepath.Base(path)
	ctx = logging.WithDocument(ctx, name)
	res, err := s.svc.UploadAndIndex(ctx, name, data)
	if err != nil {
		if errors.Is(err, document.ErrIndexing) {
			return indexDocumentOutput{}, fmt.Errorf("%w; the text is still searchable without vectors", err)
		}
		return indexDocumentOutput{}, err
	}

	return indexDocumentOutput{
		Document:   res.Document,
		Pages:      res.Pages,
		Chunks:     res.Chunks,
		Dropped:    res.Dropped,
		Batches:    res.Batches,
		RAGIndexed: res.RAGIndexed,
		DurationMs: res.Duration.Milliseconds(),
	}, nil
}

// track starts metrics for one tool call and returns its completion func.
func (s *Server) track(ctx context.Context, tool string) func(error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, tool)
	return func(err error) {
		s.metrics.DecrementActive(ctx, tool)
		s.metrics.RecordInvocation(ctx, tool, time.Since(start), err)
		if err != nil {
			s.logger.Warn(ctx, "tool call failed", zap.String("tool", tool), zap.Error(err))
		}
	}
}
