package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"device-rpc/internal/config"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)

	_, err = ParseLevel("shout")
	assert.Error(t, err)
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rpc.log")
	logger, err := NewLogger(&config.LoggingConfig{
		Level:   "debug",
		Format:  "json",
		Output:  path,
		MaxSize: 1,
	})
	require.NoError(t, err)

	logger.Info("hello")
	require.NoError(t, logger.Sync())

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"message":"hello"`)
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := NewLogger(&config.LoggingConfig{Level: "loud", Output: "stderr"})
	assert.Error(t, err)
}
