package document

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("upload rejected")

	// ErrIndexing is wrapped by every IndexError.
	ErrIndexing = errors.New("indexing failed")
)

// ValidationError rejects an upload before any parsing happens.
type ValidationError struct {
	Filename string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Filename, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Stage names the pipeline step that failed.
type Stage string

const (
	StageEmbed  Stage = "embed"
	StageUpsert Stage = "upsert"
)

// IndexError reports a batch that could not be embedded or stored after
// retries. Chunks stay in the catalog for lexical retrieval.
type IndexError struct {
	Document string
	Stage    Stage

	// Batch is the 0-based index of the failed batch.
	Batch int

	// Batches is the number of batches completed before the failure.
	Batches int

	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s: %s batch %d (%d completed): %v", e.Document, e.Stage, e.Batch, e.Batches, e.Err)
}

func (e *IndexError) Unwrap() []error {
	return []error{ErrIndexing, e.Err}
}
