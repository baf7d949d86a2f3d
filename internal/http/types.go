package http

import (
	"github.com/fyrsmithlabs/coursectx/internal/document"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string          `json:"status"`
	RAG    document.Status `json:"rag"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status   string          `json:"status"`
	Version  string          `json:"version,omitempty"`
	Document document.Status `json:"document"`
}

// SearchResponse is the response body for GET /api/v1/search.
type SearchResponse struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
	document.Retrieval
}

// ErrorResponse is returned for failed uploads. Result is set when
// indexing failed after the document was chunked.
type ErrorResponse struct {
	Error  string                `json:"error"`
	Kind   string                `json:"kind"`
	Result *document.IndexResult `json:"result,omitempty"`
}
