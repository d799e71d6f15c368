package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesToConfiguredOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelInfo, Output: &buf})

	l.Info("driver initialised", "disk_count", 4)

	out := buf.String()
	assert.Contains(t, out, "driver initialised")
	assert.Contains(t, out, "disk_count=4")
}

func TestLoggerRespectsLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	l.Debug("should be suppressed")
	l.Info("should also be suppressed")
	l.Warn("should appear")

	out := buf.String()
	assert.False(t, strings.Contains(out, "suppressed"))
	assert.Contains(t, out, "should appear")
}

func TestDefaultIsLazyAndSettable(t *testing.T) {
	first := Default()
	require.NotNil(t, first)
	assert.Same(t, first, Default())

	var buf bytes.Buffer
	custom := NewLogger(&Config{Level: LevelInfo, Output: &buf})
	SetDefault(custom)
	assert.Same(t, custom, Default())

	Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "hello")

	SetDefault(first)
}

func TestFieldsIgnoresOddTrailingArg(t *testing.T) {
	f := fields([]any{"a", 1, "b"})
	assert.Equal(t, 1, f["a"])
	_, ok := f["b"]
	assert.False(t, ok)
}
