// Package config provides configuration loading for coursectx.
//
// Values come from built-in defaults, then an optional YAML file, then
// COURSECTX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete coursectx configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Upload      UploadConfig      `koanf:"upload"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Indexing    IndexingConfig    `koanf:"indexing"`
	Retry       RetryConfig       `koanf:"retry"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Events      EventsConfig      `koanf:"events"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig selects log level, encoding and outputs.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	OTEL     bool   `koanf:"otel"`
	Sampling bool   `koanf:"sampling"`
}

// UploadConfig bounds what the upload boundary accepts.
type UploadConfig struct {
	MaxBytes          int64    `koanf:"max_bytes"`
	AllowedExtensions []string `koanf:"allowed_extensions"`
}

// ChunkingConfig controls the sliding-window chunker and document budget.
type ChunkingConfig struct {
	Size          int `koanf:"size"`
	Overlap       int `koanf:"overlap"`
	MaxTotalChars int `koanf:"max_total_chars"`
}

// IndexingConfig controls the embed-and-upsert pipeline.
type IndexingConfig struct {
	BatchSize    int `koanf:"batch_size"`
	PreviewChars int `koanf:"preview_chars"`
}

// RetryConfig configures exponential backoff for remote calls.
type RetryConfig struct {
	MaxAttempts  int      `koanf:"max_attempts"`
	InitialDelay Duration `koanf:"initial_delay"`
	Multiplier   float64  `koanf:"multiplier"`
}

// EmbeddingsConfig selects and configures the embedding provider.
// Provider is one of none, tei, openai or fastembed.
type EmbeddingsConfig struct {
	Provider          string   `koanf:"provider"`
	BaseURL           string   `koanf:"base_url"`
	Model             string   `koanf:"model"`
	APIKey            Secret   `koanf:"api_key"`
	Dimension         int      `koanf:"dimension"`
	RequestsPerSecond float64  `koanf:"requests_per_second"`
	Timeout           Duration `koanf:"timeout"`
	CacheDir          string   `koanf:"cache_dir"`
}

// VectorStoreConfig selects and configures the vector store.
// Provider is one of none, memory, chromem or qdrant.
type VectorStoreConfig struct {
	Provider   string `koanf:"provider"`
	Collection string `koanf:"collection"`
	QdrantHost string `koanf:"qdrant_host"`
	QdrantPort int    `koanf:"qdrant_port"`
	QdrantTLS  bool   `koanf:"qdrant_tls"`
}

// EventsConfig configures the indexed-document event publisher.
// An empty NATSURL disables publishing.
type EventsConfig struct {
	NATSURL string `koanf:"nats_url"`
	Subject string `koanf:"subject"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Sampling: true,
		},
		Upload: UploadConfig{
			MaxBytes:          10 * 1024 * 1024,
			AllowedExtensions: []string{"pdf", "pptx"},
		},
		Chunking: ChunkingConfig{
			Size:          1000,
			Overlap:       200,
			MaxTotalChars: 20000,
		},
		Indexing: IndexingConfig{
			BatchSize:    16,
			PreviewChars: 200,
		},
		Retry: RetryConfig{
			MaxAttempts:  5,
			InitialDelay: Duration(500 * time.Millisecond),
			Multiplier:   2.0,
		},
		Embeddings: EmbeddingsConfig{
			Provider:          "none",
			BaseURL:           "http://localhost:8080",
			Model:             "BAAI/bge-small-en-v1.5",
			RequestsPerSecond: 5,
			Timeout:           Duration(30 * time.Second),
		},
		VectorStore: VectorStoreConfig{
			Provider:   "memory",
			Collection: "coursectx_chunks",
			QdrantHost: "localhost",
			QdrantPort: 6334,
		},
		Events: EventsConfig{
			Subject: "coursectx.document.indexed",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "coursectx",
			SampleRate:  1.0,
		},
	}
}

var collectionPattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.http_port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		add("server.shutdown_timeout must be positive")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		add("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Upload.MaxBytes <= 0 {
		add("upload.max_bytes must be positive")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		add("upload.allowed_extensions cannot be empty")
	}

	if c.Chunking.Size <= 0 {
		add("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		add("chunking.overlap must satisfy 0 <= overlap < size, got %d (size %d)", c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Chunking.MaxTotalChars <= 0 {
		add("chunking.max_total_chars must be positive")
	}

	if c.Indexing.BatchSize <= 0 {
		add("indexing.batch_size must be positive, got %d", c.Indexing.BatchSize)
	}
	if c.Indexing.PreviewChars <= 0 {
		add("indexing.preview_chars must be positive")
	}

	if c.Retry.MaxAttempts < 1 {
		add("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialDelay.Duration() <= 0 {
		add("retry.initial_delay must be positive")
	}
	if c.Retry.Multiplier < 1 {
		add("retry.multiplier must be >= 1, got %g", c.Retry.Multiplier)
	}

	switch c.Embeddings.Provider {
	case "none", "fastembed":
	case "tei", "openai":
		if c.Embeddings.BaseURL == "" && c.Embeddings.Provider == "tei" {
			add("embeddings.base_url is required for tei")
		}
		if c.Embeddings.RequestsPerSecond < 0 {
			add("embeddings.requests_per_second cannot be negative")
		}
	default:
		add("embeddings.provider must be none, tei, openai or fastembed, got %q", c.Embeddings.Provider)
	}

	switch c.VectorStore.Provider {
	case "none", "memory":
	case "chromem", "qdrant":
		if !collectionPattern.MatchString(c.VectorStore.Collection) {
			add("vectorstore.collection %q must match %s", c.VectorStore.Collection, collectionPattern)
		}
		if c.VectorStore.Provider == "qdrant" && (c.VectorStore.QdrantHost == "" || c.VectorStore.QdrantPort <= 0) {
			add("vectorstore.qdrant_host and qdrant_port are required for qdrant")
		}
	default:
		add("vectorstore.provider must be none, memory, chromem or qdrant, got %q", c.VectorStore.Provider)
	}

	if c.Events.NATSURL != "" && c.Events.Subject == "" {
		add("events.subject is required when events.nats_url is set")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		add("telemetry.sample_rate must be between 0 and 1, got %g", c.Telemetry.SampleRate)
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.Protocol {
		case "grpc", "http":
		default:
			add("telemetry.protocol must be grpc or http, got %q", c.Telemetry.Protocol)
		}
	}

	return errors.Join(errs...)
}

// ExtensionAllowed reports whether ext (with or without a leading dot) is
// on the upload allow-list. Matching is case-insensitive.
func (u UploadConfig) ExtensionAllowed(ext string) bool {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	for _, allowed := range u.AllowedExtensions {
		if strings.TrimPrefix(strings.ToLower(allowed), ".") == ext {
			return true
		}
	}
	return false
}
