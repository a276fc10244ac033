package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelNone, ParseLevel("none"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestLoggerWritesLeveledLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "bridge.log")

	l, err := New(LevelInfo, logPath, "bridge")
	require.NoError(t, err)

	l.Debug("should be filtered")
	l.Info("hello %s", "world")
	l.Error("boom")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	content := string(data)

	assert.NotContains(t, content, "should be filtered")
	assert.Contains(t, content, "[INFO] [bridge] hello world")
	assert.Contains(t, content, "[ERROR] [bridge] boom")
}

func TestWithPrefixChains(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "bridge.log")

	l, err := New(LevelDebug, logPath, "bridge")
	require.NoError(t, err)
	l.WithPrefix("checkpoint").Info("created")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[bridge:checkpoint] created"))
}

func TestDisabledLogger(t *testing.T) {
	l, err := New(LevelNone, "", "")
	require.NoError(t, err)
	// Must not panic or create files.
	l.Info("into the void")
	assert.NoError(t, l.Close())
}
