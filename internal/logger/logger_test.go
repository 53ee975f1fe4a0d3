package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" INFO ":  zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"panic":   zapcore.PanicLevel,
		"fatal":   zapcore.FatalLevel,
		"dpanic":  zapcore.DPanicLevel,
		"Warn\t":  zapcore.WarnLevel,
		"debug\n": zapcore.DebugLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestContextHelpers checks that named loggers and fields travel through the context.
func TestContextHelpers(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	base := NewWithEncoder(newJSONEncoder(), &buf, zapcore.DebugLevel)

	ctx := ToContext(context.Background(), base)
	ctx = WithName(ctx, "monitor")
	ctx = WithKV(ctx, "session_id", "abc")
	ctx = WithFields(ctx, "tick", 7)

	InfoKV(ctx, "tick processed", "state", "awake")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "monitor", entry["logger"])
	require.Equal(t, "abc", entry["session_id"])
	require.InDelta(t, 7, entry["tick"], 0)
	require.Equal(t, "awake", entry["state"])
	require.Equal(t, "tick processed", entry["message"])
}

// TestFromContext_FallsBackToGlobal ensures a bare context yields the global logger.
func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestWithLevel ensures the option filters entries below the wrapped level.
func TestWithLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	l := NewWithEncoder(newJSONEncoder(), &buf, zapcore.DebugLevel, WithLevel(zapcore.WarnLevel))
	l.Info("dropped")
	require.Zero(t, buf.Len())

	l.Warn("kept")
	require.Contains(t, buf.String(), "kept")
}

// TestWithLevelName checks a context can be made both quieter and noisier than its parent.
func TestWithLevelName(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	base := NewWithEncoder(newJSONEncoder(), &buf, zapcore.InfoLevel)
	ctx := ToContext(context.Background(), base)

	same, err := WithLevelName(ctx, "")
	require.NoError(t, err)
	require.Same(t, base, FromContext(same))

	_, err = WithLevelName(ctx, "verbose")
	require.ErrorIs(t, err, ErrUnknownLevel)

	noisy, err := WithLevelName(ctx, "debug")
	require.NoError(t, err)

	Debug(noisy, "worker detail")
	require.Contains(t, buf.String(), "worker detail")

	buf.Reset()

	quiet, err := WithLevelName(ctx, "error")
	require.NoError(t, err)

	Warn(quiet, "worker warning")
	require.Zero(t, buf.Len())

	Info(ctx, "parent info")
	require.Contains(t, buf.String(), "parent info")
}
