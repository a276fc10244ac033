// Package config loads and persists the bridge daemon configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Terminal execution strategies. The structured subprocess is the
// default: it gives a real exit code and deterministic stream capture.
// The pty mode keeps the command visible in an interactive terminal at
// the cost of exit-code detection.
const (
	TerminalModeSubprocess = "subprocess"
	TerminalModePTY        = "pty"
)

// SocketConfig holds the RPC listener settings.
type SocketConfig struct {
	// Port is the fixed well-known TCP port the bridge listens on.
	Port int `json:"port"`
	// Host defaults to loopback; the bridge performs no authentication.
	Host           string `json:"host"`
	MaxConnections int    `json:"max_connections"`
}

// Addr returns the listen address in host:port form.
func (s SocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DiagnosticsConfig holds the collector settings.
type DiagnosticsConfig struct {
	// FilePath is the shared diagnostics file rewritten every cycle,
	// for consumers that cannot reach the socket.
	FilePath string `json:"file_path"`
	// IntervalSeconds is the fixed collection interval.
	IntervalSeconds int `json:"interval_seconds"`
	// WatchPath, when set, is additionally watched for analyzer change
	// notifications; a change triggers an immediate collection cycle.
	WatchPath string `json:"watch_path,omitempty"`
}

// TerminalConfig holds terminal session settings.
type TerminalConfig struct {
	// Mode selects the execution strategy, subprocess or pty.
	Mode string `json:"mode"`
	// Shell is the shell binary used to run commands.
	Shell string `json:"shell"`
}

// Config represents the bridge daemon configuration.
type Config struct {
	// WorkspaceRoot is the single active workspace all handlers run
	// against.
	WorkspaceRoot string            `json:"workspace_root"`
	Socket        SocketConfig      `json:"socket"`
	Diagnostics   DiagnosticsConfig `json:"diagnostics"`
	Terminal      TerminalConfig    `json:"terminal"`
	LogLevel      string            `json:"log_level"`
	LogPath       string            `json:"log_path,omitempty"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return &Config{
		WorkspaceRoot: wd,
		Socket: SocketConfig{
			Port:           9301,
			Host:           "127.0.0.1",
			MaxConnections: 16,
		},
		Diagnostics: DiagnosticsConfig{
			FilePath:        filepath.Join(os.TempDir(), "agentbridge-diagnostics.json"),
			IntervalSeconds: 2,
		},
		Terminal: TerminalConfig{
			Mode:  TerminalModeSubprocess,
			Shell: "/bin/bash",
		},
		LogLevel: "info",
	}
}

// Load reads a config file and fills unset fields with defaults. A
// missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	def := Default()
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = def.WorkspaceRoot
	}
	if c.Socket.Port == 0 {
		c.Socket.Port = def.Socket.Port
	}
	if c.Socket.Host == "" {
		c.Socket.Host = def.Socket.Host
	}
	if c.Socket.MaxConnections == 0 {
		c.Socket.MaxConnections = def.Socket.MaxConnections
	}
	if c.Diagnostics.FilePath == "" {
		c.Diagnostics.FilePath = def.Diagnostics.FilePath
	}
	if c.Diagnostics.IntervalSeconds == 0 {
		c.Diagnostics.IntervalSeconds = def.Diagnostics.IntervalSeconds
	}
	if c.Terminal.Mode == "" {
		c.Terminal.Mode = def.Terminal.Mode
	}
	if c.Terminal.Shell == "" {
		c.Terminal.Shell = def.Terminal.Shell
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}
