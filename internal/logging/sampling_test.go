package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Equal(t, core, newSampledCore(core, SamplingConfig{Enabled: false}))
}

func TestNewSampledCore_ErrorsNeverSampled(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled: true,
		Tick:    time.Minute,
		Levels:  map[zapcore.Level]LevelSampling{zapcore.InfoLevel: {Initial: 1}},
	})
	logger := New(zap.New(sampled))

	for i := 0; i < 50; i++ {
		logger.Error(context.Background(), "embedding failed")
	}
	assert.Len(t, observed.FilterMessage("embedding failed").All(), 50)
}

func TestNewSampledCore_PerLevelBudget(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled: true,
		Tick:    time.Minute,
		Levels: map[zapcore.Level]LevelSampling{
			zapcore.InfoLevel: {Initial: 3, Thereafter: 0},
			zapcore.WarnLevel: {Initial: 10, Thereafter: 0},
		},
	})
	logger := New(zap.New(sampled))
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		logger.Info(ctx, "info repeat")
		logger.Warn(ctx, "warn repeat")
		logger.Debug(ctx, "debug unsampled")
	}

	assert.Len(t, observed.FilterMessage("info repeat").All(), 3)
	assert.Len(t, observed.FilterMessage("warn repeat").All(), 10)
	assert.Len(t, observed.FilterMessage("debug unsampled").All(), 20, "levels without a budget pass through")
}

func TestLevelFilterCore(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	filtered := &levelFilterCore{Core: core, minLevel: zapcore.InfoLevel, maxLevel: zapcore.WarnLevel}

	assert.False(t, filtered.Enabled(zapcore.DebugLevel))
	assert.True(t, filtered.Enabled(zapcore.InfoLevel))
	assert.False(t, filtered.Enabled(zapcore.ErrorLevel))

	zl := zap.New(filtered).With(zap.String("k", "v"))
	zl.Info("kept")
	zl.Error("dropped")
	assert.Len(t, observed.All(), 1)
	assert.Equal(t, "v", observed.All()[0].ContextMap()["k"])
}
