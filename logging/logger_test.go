package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newBufferLogger(level LogLevel) (*PipelineLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	cfg := DefaultLoggerConfig()
	cfg.Output = &buf
	cfg.Level = level
	return NewLogger(cfg), &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLevel("nonsense"))
}

func TestPipelineLogger_ContextFields(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.WithComponent("guard").WithRequest("req-1", "user-1").Info("screen finished", "verdict", "pass")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "guard", lines[0]["component"])
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.Equal(t, "user-1", lines[0]["user_id"])
	assert.Equal(t, "pass", lines[0]["verdict"])
}

func TestPipelineLogger_WithDoesNotMutateParent(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	_ = l.WithContext("tenant", "a")
	l.Info("plain")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	_, ok := lines[0]["tenant"]
	assert.False(t, ok)
}

func TestPipelineLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)
	l.Debug("hidden")
	l.Info("hidden")
	l.LogStage("pending", "cache_check")
	l.Warn("shown")
	assert.Len(t, decodeLines(t, buf), 1)
}

func TestPipelineLogger_LogModelCall(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	l.LogModelCall("openai", 2, 150*time.Millisecond, false, errors.New("timeout"))
	l.LogModelCall("openai", 3, 10*time.Millisecond, true, nil)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "timeout", lines[0]["error"])
	assert.Equal(t, "INFO", lines[1]["level"])
	assert.Equal(t, float64(3), lines[1]["attempt"])
}

func TestPipelineLogger_LogOutcome(t *testing.T) {
	l, buf := newBufferLogger(LogLevelError)
	l.LogOutcome("approved", time.Second, nil)
	l.LogOutcome("failed", time.Second, map[string]any{"error_kind": "timeout"})

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "failed", lines[0]["status"])
	assert.Equal(t, "timeout", lines[0]["error_kind"])
}

func TestZapAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapAdapter(zap.New(core))

	l.Info("cache hit", "fingerprint", "abc")
	l.Error("audit failed", "error", "boom")

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "cache hit", entry.Message)
	assert.Equal(t, "abc", entry.ContextMap()["fingerprint"])
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
}
