package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, 9301, cfg.Socket.Port)
	assert.Equal(t, "127.0.0.1:9301", cfg.Socket.Addr())
	assert.Equal(t, TerminalModeSubprocess, cfg.Terminal.Mode)
	assert.Equal(t, 2, cfg.Diagnostics.IntervalSeconds)
}

func TestLoadPartialConfigFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"socket":{"port":7000}}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Socket.Port)
	assert.Equal(t, "127.0.0.1", cfg.Socket.Host)
	assert.Equal(t, "/bin/bash", cfg.Terminal.Shell)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadRejectsMalformedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg := Default()
	cfg.WorkspaceRoot = "/workspace"
	cfg.Terminal.Mode = TerminalModePTY
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/workspace", loaded.WorkspaceRoot)
	assert.Equal(t, TerminalModePTY, loaded.Terminal.Mode)
}
