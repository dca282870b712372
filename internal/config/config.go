package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	RuntimeDir string `toml:"runtime_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
}

// Converter contains configuration for the external CAD converter binary.
type Converter struct {
	Binary         string `toml:"binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	OutputVersion  string `toml:"output_version"`
	Audit          bool   `toml:"audit"`
}

// Display contains configuration for virtual display provisioning.
type Display struct {
	XvfbBinary         string `toml:"xvfb_binary"`
	RangeMin           int    `toml:"range_min"`
	RangeMax           int    `toml:"range_max"`
	Screen             string `toml:"screen"`
	StartupWaitSeconds int    `toml:"startup_wait_seconds"`
	StopGraceSeconds   int    `toml:"stop_grace_seconds"`
}

// Admission contains configuration for the conversion concurrency gate.
type Admission struct {
	Limit              int `toml:"limit"`
	WaitTimeoutSeconds int `toml:"wait_timeout_seconds"`
}

// Workspace contains configuration for per-job workspace housekeeping and
// input sizing.
type Workspace struct {
	StaleAgeMinutes      int `toml:"stale_age_minutes"`
	SweepIntervalMinutes int `toml:"sweep_interval_minutes"`
	MaxInputMB           int `toml:"max_input_mb"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for caddis.
//
// Sections by subsystem:
//   - Paths: runtime dir (locks, sockets, job registry), staging dir, log dir, API bind
//   - Converter: external converter binary and per-job timeout
//   - Display: Xvfb binary and the candidate display-number range
//   - Admission: concurrency limit and bounded admission wait
//   - Workspace: stale workspace sweeping
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Converter Converter `toml:"converter"`
	Display   Display   `toml:"display"`
	Admission Admission `toml:"admission"`
	Workspace Workspace `toml:"workspace"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/caddis/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("caddis.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.RuntimeDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ConversionTimeout returns the per-job wall-clock timeout.
func (c *Config) ConversionTimeout() time.Duration {
	return time.Duration(c.Converter.TimeoutSeconds) * time.Second
}

// AdmissionWait returns the bounded admission wait.
func (c *Config) AdmissionWait() time.Duration {
	return time.Duration(c.Admission.WaitTimeoutSeconds) * time.Second
}

// DisplayStartupWait returns how long to wait for Xvfb to come up on a candidate.
func (c *Config) DisplayStartupWait() time.Duration {
	return time.Duration(c.Display.StartupWaitSeconds) * time.Second
}

// DisplayStopGrace returns the SIGTERM-to-SIGKILL grace for display teardown.
func (c *Config) DisplayStopGrace() time.Duration {
	return time.Duration(c.Display.StopGraceSeconds) * time.Second
}

// WorkspaceStaleAge returns the age past which an orphaned workspace is swept.
func (c *Config) WorkspaceStaleAge() time.Duration {
	return time.Duration(c.Workspace.StaleAgeMinutes) * time.Minute
}

// WorkspaceSweepInterval returns the cadence of the stale workspace sweeper.
func (c *Config) WorkspaceSweepInterval() time.Duration {
	return time.Duration(c.Workspace.SweepIntervalMinutes) * time.Minute
}

// SocketPath returns the control socket location inside the runtime dir.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "caddisd.sock")
}

// MaxInputBytes returns the largest accepted input drawing size.
func (c *Config) MaxInputBytes() int64 {
	return int64(c.Workspace.MaxInputMB) << 20
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
