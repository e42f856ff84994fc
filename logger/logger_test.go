package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level slog.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})
	return New(slog.New(handler)), &buf
}

func TestNoFloodLogsOncePerKey(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelDebug)

	for i := 0; i < 5; i++ {
		l.NoFloodWarn("missing-block", "missing block state", "block", "minecraft:stone")
	}
	l.NoFloodWarn("other", "missing block state", "block", "minecraft:dirt")

	assert.Equal(t, 2, strings.Count(buf.String(), "missing block state"))
}

func TestNoFloodEmptyKeyUsesMessage(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelDebug)

	l.NoFloodInfo("", "hello")
	l.NoFloodInfo("", "hello")
	l.NoFloodInfo("", "world")

	assert.Equal(t, 1, strings.Count(buf.String(), "hello"))
	assert.Equal(t, 1, strings.Count(buf.String(), "world"))
}

func TestRemoveNoFloodKey(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelDebug)

	l.NoFloodError("k", "render failed", errors.New("boom"))
	l.NoFloodError("k", "render failed", errors.New("boom"))
	l.RemoveNoFloodKey("k")
	l.NoFloodError("k", "render failed", errors.New("boom"))

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "render failed"))
	assert.Contains(t, out, "error=boom")
}

func TestClearNoFloodSharedWithDerived(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelDebug)
	child := l.With("component", "worker")

	child.NoFloodDebug("k", "first")
	l.NoFloodDebug("k", "second")
	require.NotContains(t, buf.String(), "second")

	l.ClearNoFlood()
	child.NoFloodDebug("k", "third")

	out := buf.String()
	assert.Contains(t, out, "first")
	assert.Contains(t, out, "third")
	assert.Contains(t, out, "component=worker")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	} {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
