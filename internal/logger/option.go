package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// levelCore filters a core by its own level instead of the one it was built with.
// It can both raise and lower the threshold of the wrapped core.
type levelCore struct {
	zapcore.Core

	enabler zapcore.LevelEnabler
}

func (c *levelCore) Enabled(l zapcore.Level) bool {
	return c.enabler.Enabled(l)
}

//nolint:gocritic // AddCore requires ent to be passed by value.
func (c *levelCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(ent.Level) {
		return ce
	}

	return ce.AddCore(ent, c)
}

//nolint:ireturn,nolintlint // Returning zapcore.Core is intended for zap integration.
func (c *levelCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelCore{Core: c.Core.With(fields), enabler: c.enabler}
}

// WithLevel returns an option that replaces the logger's level filter with enabler.
//
//nolint:ireturn,nolintlint // Returning zap.Option is intended for zap integration.
func WithLevel(enabler zapcore.LevelEnabler) zap.Option {
	return zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &levelCore{Core: core, enabler: enabler}
	})
}

// WithLevelName returns ctx whose logger filters by the named level, so one
// component can be quieter or noisier than the rest. An empty name keeps ctx as is.
func WithLevelName(ctx context.Context, name string) (context.Context, error) {
	if name == "" {
		return ctx, nil
	}

	level, ok := ParseLogLevel(name)
	if !ok {
		return ctx, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
	}

	return ToContext(ctx, FromContext(ctx).WithOptions(WithLevel(level))), nil
}
