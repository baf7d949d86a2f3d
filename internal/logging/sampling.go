package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore gives each level below error its own sampler budget.
// Error and above always pass through.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	cores := []zapcore.Core{&levelFilterCore{
		Core:     core,
		minLevel: zapcore.ErrorLevel,
		maxLevel: zapcore.FatalLevel,
	}}

	for lvl := TraceLevel; lvl < zapcore.ErrorLevel; lvl++ {
		exact := zapcore.Core(&levelFilterCore{Core: core, minLevel: lvl, maxLevel: lvl})
		if s, ok := cfg.Levels[lvl]; ok && s.Initial > 0 {
			exact = zapcore.NewSamplerWithOptions(exact, cfg.Tick, s.Initial, s.Thereafter)
		}
		cores = append(cores, exact)
	}
	return zapcore.NewTee(cores...)
}

// levelFilterCore passes only entries within [minLevel, maxLevel].
type levelFilterCore struct {
	zapcore.Core
	minLevel zapcore.Level
	maxLevel zapcore.Level
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	if lvl < c.minLevel || lvl > c.maxLevel {
		return false
	}
	return c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{
		Core:     c.Core.With(fields),
		minLevel: c.minLevel,
		maxLevel: c.maxLevel,
	}
}
