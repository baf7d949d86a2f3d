package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/coursectx/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// captureStdout redirects the stdout core to a buffer for one test.
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = orig })
	return &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNewLogger_WritesJSON(t *testing.T) {
	buf := captureStdout(t)

	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)

	ctx := WithDocument(WithRequestID(context.Background(), "req-1"), "week1.pdf")
	logger.Info(ctx, "document indexed", zap.Int("chunks", 3))
	require.NoError(t, logger.Sync())

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "document indexed", lines[0]["msg"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "coursectx", lines[0]["service"])
	assert.Equal(t, "req-1", lines[0]["request.id"])
	assert.Equal(t, "week1.pdf", lines[0]["document"])
	assert.EqualValues(t, 3, lines[0]["chunks"])
	assert.Contains(t, lines[0]["caller"], "logger_test.go")
}

func TestNewLogger_StderrKeepsStdoutClean(t *testing.T) {
	out := captureStdout(t)
	var errBuf bytes.Buffer
	orig := stderr
	stderr = &errBuf
	t.Cleanup(func() { stderr = orig })

	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.Stderr = true
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)

	logger.Info(context.Background(), "mcp server started")
	require.NoError(t, logger.Sync())

	assert.Empty(t, out.String())
	lines := decodeLines(t, &errBuf)
	require.Len(t, lines, 1)
	assert.Equal(t, "mcp server started", lines[0]["msg"])
}

func TestNewLogger_RejectsInvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	require.Error(t, err)

	cfg = NewDefaultConfig()
	cfg.Output.Stdout = false
	_, err = NewLogger(cfg, nil)
	require.Error(t, err)
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := captureStdout(t)

	cfg := NewDefaultConfig()
	cfg.Level = zapcore.WarnLevel
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()
	logger.Debug(ctx, "hidden debug")
	logger.Info(ctx, "hidden info")
	logger.Warn(ctx, "visible warn")
	logger.Error(ctx, "visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warn")
	assert.Contains(t, out, "visible error")
	assert.False(t, logger.Enabled(zapcore.InfoLevel))
}

func TestLogger_TraceLevelName(t *testing.T) {
	buf := captureStdout(t)

	cfg := NewDefaultConfig()
	cfg.Level = TraceLevel
	cfg.Sampling.Enabled = false
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)

	logger.Trace(context.Background(), "vector scored")
	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "trace", lines[0]["level"])
}

func TestLogger_ChildLoggers(t *testing.T) {
	tl := NewTestLogger()
	child := tl.Named("indexer").With(zap.String("component", "pipeline"))

	child.Info(context.Background(), "batch done")

	entries := tl.FilterMessage("batch done").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "indexer", entries[0].LoggerName)
	assert.Equal(t, "pipeline", entries[0].ContextMap()["component"])
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{Level: "trace", Format: "console"})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.False(t, cfg.Sampling.Enabled)

	_, err = FromSettings(config.LoggingConfig{Level: "loud"})
	require.Error(t, err)
}

func TestLevelFromString(t *testing.T) {
	tests := map[string]zapcore.Level{
		"trace": TraceLevel,
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := LevelFromString(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Warn(ctx, "from context")
	tl.AssertLogged(t, zapcore.WarnLevel, "from context")
}
