package telemetry

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("debug"))
	require.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	require.Equal(t, slog.LevelInfo, parseLevel(""))
	require.Equal(t, slog.LevelInfo, parseLevel("loud"))
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwtrack.log")

	var out bytes.Buffer
	logger, closer := NewLogger(&out, LogConfig{Level: "info", Json: true, File: path})
	logger.Debug("hidden")
	logger.Info("visible", "account", "hash")
	require.NoError(t, closer.Close())

	require.NotContains(t, out.String(), "hidden")
	require.True(t, strings.Contains(out.String(), `"msg":"visible"`))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, out.String(), string(contents))
}

func TestNewLoggerTextFileHasNoColor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwtrack.log")

	var out bytes.Buffer
	logger, closer := NewLogger(&out, LogConfig{Level: "warn", File: path})
	logger.Info("hidden")
	logger.Warn("refresh failed", "account", "hash")
	require.NoError(t, closer.Close())

	require.NotContains(t, out.String(), "hidden")
	require.Contains(t, out.String(), "refresh failed")
	require.NotContains(t, out.String(), "\x1b[")
}
