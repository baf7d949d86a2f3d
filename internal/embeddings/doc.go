// Package embeddings turns text into dense vectors.
//
// Three providers are available: tei (Text Embeddings Inference over
// HTTP), openai (any OpenAI-compatible /embeddings endpoint) and
// fastembed (local ONNX models, cgo builds only). NewProvider selects one
// from configuration.
//
// Every provider failure wraps ErrEmbeddingFailed and, where the cause is
// known, either ErrRetryable or ErrTerminal. Callers decide whether to try
// again with IsRetryable.
package embeddings
