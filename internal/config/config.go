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

	"github.com/kknaks/study-timelapse/internal/overlay"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// Capture controls session planning, buffering, and frame storage.
type Capture struct {
	DurationMinutes float64 `toml:"duration_minutes"`
	OutputSeconds   float64 `toml:"output_seconds"`
	FlushThreshold  int     `toml:"flush_threshold"`
	MaxBuffered     int     `toml:"max_buffered"`
	JPEGQuality     int     `toml:"jpeg_quality"`
	StallFrames     int     `toml:"stall_frames"`
	MinFreeMiB      int     `toml:"min_free_mib"`
	Durable         bool    `toml:"durable"`
	KeepFrames      bool    `toml:"keep_frames"`
}

// Assembly contains encoder settings.
type Assembly struct {
	FFmpegBinary string `toml:"ffmpeg_binary"`
	Codec        string `toml:"codec"`
	Preset       string `toml:"preset"`
	CRF          int    `toml:"crf"`
	Realtime     bool   `toml:"realtime"`
}

// Overlay selects the time overlay drawn onto every output frame.
type Overlay struct {
	Theme  string `toml:"theme"`
	Anchor string `toml:"anchor"`
	Color  string `toml:"color"`
	Size   string `toml:"size"`
}

// Conversion configures the optional remote upload/convert/poll service.
type Conversion struct {
	Enabled             bool   `toml:"enabled"`
	BaseURL             string `toml:"base_url"`
	APIToken            string `toml:"api_token"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	MaxWaitSeconds      int    `toml:"max_wait_seconds"`
}

// Notifications configures ntfy push messages for finished sessions.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	NotifyFailures        bool   `toml:"notify_failures"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the timelapse engine.
//
// Configuration sections by subsystem:
//   - Paths: data, output, and log directories
//   - Capture: planned session length, buffer sizes, frame storage
//   - Assembly: ffmpeg encoder settings
//   - Overlay: theme, anchor, color, and size of the time overlay
//   - Conversion: remote conversion service endpoint and polling
//   - Notifications: ntfy push messages
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Capture       Capture       `toml:"capture"`
	Assembly      Assembly      `toml:"assembly"`
	Overlay       Overlay       `toml:"overlay"`
	Conversion    Conversion    `toml:"conversion"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
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

// EnsureDirectories creates the data, session, and log directories. The
// output directory is created on a best-effort basis so recording can start
// while removable storage is offline.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.SessionsDir(), c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		_ = os.MkdirAll(c.Paths.OutputDir, 0o755)
	}
	return nil
}

// SessionsDir is where durable frame namespaces are created.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.Paths.DataDir, "sessions")
}

// JobsDBPath is the SQLite ledger of processing runs.
func (c *Config) JobsDBPath() string {
	return filepath.Join(c.Paths.DataDir, "jobs.db")
}

// PlannedDuration is the default session length used when a caller does not supply one.
func (c *Config) PlannedDuration() time.Duration {
	return time.Duration(c.Capture.DurationMinutes * float64(time.Minute))
}

// PollInterval returns the conversion status poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Conversion.PollIntervalSeconds) * time.Second
}

// MaxConversionWait returns the wall-clock ceiling applied to the poll loop.
func (c *Config) MaxConversionWait() time.Duration {
	return time.Duration(c.Conversion.MaxWaitSeconds) * time.Second
}

// NotificationTimeout bounds one ntfy request.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeoutSeconds) * time.Second
}

// RequestTimeout returns the per-request timeout for the conversion service.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Conversion.TimeoutSeconds) * time.Second
}

// OverlayConfig parses the overlay section into a renderer configuration.
func (c *Config) OverlayConfig() (overlay.Config, error) {
	return overlay.ParseConfig(c.Overlay.Theme, c.Overlay.Anchor, c.Overlay.Color, c.Overlay.Size)
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
