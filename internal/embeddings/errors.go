package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid embedding configuration")

	// ErrEmbeddingFailed is wrapped by every failed provider call.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrRetryable marks transient failures: throttling, 5xx, timeouts and
	// network errors.
	ErrRetryable = errors.New("retryable embedding failure")

	// ErrTerminal marks failures that will not succeed on retry, such as
	// authentication or malformed requests.
	ErrTerminal = errors.New("terminal embedding failure")
)

// StatusError is returned when a provider answers with a non-success HTTP
// status.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Body)
}

func (e *StatusError) Unwrap() []error {
	return []error{ErrEmbeddingFailed, classifyStatus(e.Code)}
}

// classifyStatus maps an HTTP status to ErrRetryable or ErrTerminal.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusTooManyRequests,
		code == http.StatusRequestTimeout,
		code >= 500:
		return ErrRetryable
	default:
		return ErrTerminal
	}
}

// transportError wraps a failure that happened before a response arrived.
// A client-side timeout is transient; the caller's own cancellation is not.
func transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrEmbeddingFailed, ctx.Err())
	}
	return fmt.Errorf("%w: %w: %w", ErrEmbeddingFailed, ErrRetryable, err)
}

// IsRetryable reports whether err is worth another attempt. Unclassified
// provider failures are treated as transient; context cancellation,
// configuration problems and terminal statuses are not.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrTerminal),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrEmptyInput):
		return false
	case errors.Is(err, ErrRetryable):
		return true
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
