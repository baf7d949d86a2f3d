package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "COURSECTX_"

	maxConfigFileSize = 1024 * 1024
)

// listKeys are decoded from comma-separated env values.
var listKeys = map[string]bool{
	"upload.allowed_extensions": true,
}

// DefaultPath returns ~/.config/coursectx/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "coursectx", "config.yaml"), nil
}

// Load reads configuration with precedence env > file > defaults.
//
// An empty path uses DefaultPath and tolerates a missing file. An explicit
// path must exist.
//
// Environment variables split on the first underscore after the prefix:
//
//	COURSECTX_CHUNKING_MAX_TOTAL_CHARS -> chunking.max_total_chars
//	COURSECTX_EMBEDDINGS_API_KEY       -> embeddings.api_key
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	content, err := readConfigFile(path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envTransform maps COURSECTX_SECTION_FIELD_NAME to section.field_name.
func envTransform(key, value string) (string, interface{}) {
	lower := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower, value
	}
	name := parts[0] + "." + parts[1]
	if listKeys[name] {
		items := strings.Split(value, ",")
		out := make([]string, 0, len(items))
		for _, item := range items {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return name, out
	}
	return name, value
}

// readConfigFile opens once and checks size and permissions on the open
// descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: config path %s is a directory", ErrInvalidConfig, path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("%w: config file too large: %d bytes (max %d)", ErrInvalidConfig, info.Size(), maxConfigFileSize)
	}
	if info.Mode().Perm()&0o002 != 0 {
		return nil, fmt.Errorf("%w: config file %s is world-writable", ErrInvalidConfig, path)
	}

	return io.ReadAll(io.LimitReader(f, maxConfigFileSize))
}

// applyDefaults fills values that decoding may have blanked.
func applyDefaults(cfg *Config) {
	if len(cfg.Upload.AllowedExtensions) == 0 {
		cfg.Upload.AllowedExtensions = Default().Upload.AllowedExtensions
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "coursectx"
	}
	cfg.Embeddings.Provider = strings.ToLower(strings.TrimSpace(cfg.Embeddings.Provider))
	cfg.VectorStore.Provider = strings.ToLower(strings.TrimSpace(cfg.VectorStore.Provider))
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "none"
	}
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "none"
	}
}
