package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestDispatcherLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(*DispatcherLogger)
		level string
	}{
		{"debug", func(l *DispatcherLogger) { l.Debug("msg", "k", "v") }, "debug"},
		{"info", func(l *DispatcherLogger) { l.Info("msg", "k", "v") }, "info"},
		{"warn", func(l *DispatcherLogger) { l.Warn("msg", "k", "v") }, "warn"},
		{"error", func(l *DispatcherLogger) { l.Error("msg", "k", "v") }, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(NewDispatcherLogger(NewZerolog(&buf, "debug")))

			entry := decodeLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "msg", entry["message"])
			assert.Equal(t, "v", entry["k"])
			assert.Equal(t, "dispatcher", entry["component"])
			assert.Contains(t, entry, "time")
		})
	}
}

func TestNewZerolog_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewDispatcherLogger(NewZerolog(&buf, "warning"))

	l.Info("quiet")
	assert.Empty(t, buf.String())

	l.Warn("loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestNewZerolog_UnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewDispatcherLogger(NewZerolog(&buf, "chatty"))

	l.Debug("hidden")
	l.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestPairs(t *testing.T) {
	fields := pairs([]any{"a", 1, 2, "skipped", "tail"})
	assert.Equal(t, map[string]any{"a": 1, "tail": nil}, fields)
	assert.Empty(t, pairs(nil))
}
