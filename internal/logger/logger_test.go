package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log
	log = New(NewJSONHandler(&buf, &slog.HandlerOptions{Level: level}))
	t.Cleanup(func() { log = prev })
	return &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestInit(t *testing.T) {
	Init()
	assert.NotNil(t, log)
}

func TestInfo_StructuredFields(t *testing.T) {
	buf := capture(t, slog.LevelInfo)

	Info("task claimed", "task_id", 42, "agent", "agent-1")

	entry := decode(t, buf)
	assert.Equal(t, "task claimed", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, float64(42), entry["task_id"])
	assert.Equal(t, "agent-1", entry["agent"])
}

func TestErrorf(t *testing.T) {
	buf := capture(t, slog.LevelInfo)

	Errorf("sweep failed after %d tasks", 3)

	entry := decode(t, buf)
	assert.Equal(t, "sweep failed after 3 tasks", entry["msg"])
	assert.Equal(t, "ERROR", entry["level"])
}

func TestDebug_FilteredByLevel(t *testing.T) {
	buf := capture(t, slog.LevelInfo)
	Debug("hidden")
	assert.Empty(t, buf.String())

	buf = capture(t, slog.LevelDebug)
	Debug("visible debug")
	assert.Contains(t, buf.String(), "visible debug")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "DEBUG", want: slog.LevelDebug},
		{in: " warn ", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "verbose", want: slog.LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInit_LogLevelFromEnv(t *testing.T) {
	prev := log
	t.Cleanup(func() {
		log = prev
		level.Set(slog.LevelInfo)
	})

	t.Setenv("LOG_LEVEL", "debug")
	Init()
	assert.True(t, log.Enabled(context.Background(), slog.LevelDebug))

	require.NoError(t, SetLevel("warn"))
	assert.False(t, log.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, log.Enabled(context.Background(), slog.LevelWarn))

	assert.Error(t, SetLevel("loud"))
	assert.False(t, log.Enabled(context.Background(), slog.LevelInfo))
}

func TestInit_BadLogLevelFallsBackToInfo(t *testing.T) {
	prev := log
	t.Cleanup(func() { log = prev })

	t.Setenv("LOG_LEVEL", "chatty")
	Init()
	assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, log.Enabled(context.Background(), slog.LevelInfo))
}

func TestWarn(t *testing.T) {
	buf := capture(t, slog.LevelInfo)

	Warn("signature rejected", "reason", "expired")

	entry := decode(t, buf)
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "expired", entry["reason"])
}

func TestWithError(t *testing.T) {
	buf := capture(t, slog.LevelInfo)

	WithError(assert.AnError).Info("refund failed")

	output := buf.String()
	assert.Contains(t, output, "refund failed")
	assert.Contains(t, output, assert.AnError.Error())
}

func TestWithFields(t *testing.T) {
	buf := capture(t, slog.LevelInfo)

	WithFields(map[string]interface{}{
		"account_id": 7,
		"kind":       "refund_partial",
	}).Info("ledger credit")

	entry := decode(t, buf)
	assert.Equal(t, "ledger credit", entry["msg"])
	assert.Equal(t, float64(7), entry["account_id"])
	assert.Equal(t, "refund_partial", entry["kind"])
}
