package logging

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/coursectx/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedaction_SensitiveKeysAndPatterns(t *testing.T) {
	buf := captureStdout(t)

	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)

	logger.Info(context.Background(), "provider configured",
		zap.String("api_key", "sk-abcdefghijklmnopqrstuv"),
		zap.String("header", "Bearer eyJhbGciOi"),
		zap.String("model", "bge-small"),
		Secret("credential", config.Secret("hunter2")),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED]", lines[0]["api_key"])
	assert.Equal(t, "[REDACTED:pattern]", lines[0]["header"])
	assert.Equal(t, "bge-small", lines[0]["model"])
	assert.Equal(t, "[REDACTED]", lines[0]["credential"])
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestRedaction_ChildFields(t *testing.T) {
	buf := captureStdout(t)

	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)

	logger.With(zap.String("token", "abc")).Info(context.Background(), "child")
	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED]", lines[0]["token"])
}

func TestRedaction_Disabled(t *testing.T) {
	buf := captureStdout(t)

	cfg := NewDefaultConfig()
	cfg.Redaction.Enabled = false
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)

	logger.Info(context.Background(), "raw", zap.String("token", "abc"))
	assert.Contains(t, buf.String(), `"token":"abc"`)
}

func TestSecretField(t *testing.T) {
	f := Secret("api_key", config.Secret("12345"))
	assert.Equal(t, "[REDACTED:5]", f.String)
}

func TestNewRedactingEncoder_BadPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{"("}})
	require.Error(t, err)
}
