package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHelpersWriteToCurrentLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetForTest(t, zap.New(core))

	Debug("debug message")
	Info("scan decided", zap.Int64("lab_id", 1))
	Warning("invalid region")
	Error("audit failed", zap.String("reason", "disk full"))

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, int64(1), entries[1].ContextMap()["lab_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "disk full", entries[3].ContextMap()["reason"])
}

func TestInit(t *testing.T) {
	SetForTest(t, zap.NewNop())

	require.NoError(t, Init("debug", "json"))
	require.NoError(t, Init("info", "console"))
	assert.Error(t, Init("loud", "console"))
}
