package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.level.String())
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.SlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogLevel(999).SlogLevel())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   LogLevel
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"verbose", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestInitForCLI(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)

	Info("test-subsystem", "hello %s", "world")
	Debug("test-subsystem", "hidden")
	Error("test-subsystem", errors.New("boom"), "failed")

	out := buf.String()
	assert.Contains(t, out, "hello world")
	assert.Contains(t, out, "subsystem=test-subsystem")
	assert.Contains(t, out, "error=boom")
	assert.NotContains(t, out, "hidden")
}

func TestInit_JSON(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, FormatJSON, &buf)

	Warn("Worker/orders", "slow query")

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "Worker/orders", entry["subsystem"])
	assert.Equal(t, "slow query", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
}
