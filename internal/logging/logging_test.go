package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevelRecognizesValidLevels(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	require.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	require.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
}

func TestParseLevelFallsBackToInfoOnGarbage(t *testing.T) {
	require.Equal(t, zap.InfoLevel, parseLevel("not-a-level"))
	require.Equal(t, zap.InfoLevel, parseLevel(""))
}

func TestNewWithFileWithoutLogPathBuildsPlainLogger(t *testing.T) {
	log, err := NewWithFile("info", "")
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNewWithFileTeesOutputToLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "bridge.log")

	log, err := NewWithFile("info", logPath)
	require.NoError(t, err)

	log.Info("hello from the bridge")
	require.NoError(t, log.Sync())

	contents, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(contents), "hello from the bridge")
}
