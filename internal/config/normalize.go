package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCapture()
	c.normalizeAssembly()
	c.normalizeOverlay()
	c.normalizeConversion()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCapture() {
	if c.Capture.FlushThreshold <= 0 {
		c.Capture.FlushThreshold = defaultFlushThreshold
	}
	if c.Capture.MaxBuffered <= 0 {
		c.Capture.MaxBuffered = defaultMaxBuffered
	}
	if c.Capture.JPEGQuality <= 0 {
		c.Capture.JPEGQuality = defaultJPEGQuality
	}
	if c.Capture.StallFrames < 0 {
		c.Capture.StallFrames = 0
	}
	if c.Capture.MinFreeMiB < 0 {
		c.Capture.MinFreeMiB = 0
	}
}

func (c *Config) normalizeAssembly() {
	c.Assembly.FFmpegBinary = strings.TrimSpace(c.Assembly.FFmpegBinary)
	if c.Assembly.FFmpegBinary == "" {
		c.Assembly.FFmpegBinary = defaultFFmpegBinary
	}
	c.Assembly.Codec = strings.TrimSpace(c.Assembly.Codec)
	if c.Assembly.Codec == "" {
		c.Assembly.Codec = defaultCodec
	}
	c.Assembly.Preset = strings.ToLower(strings.TrimSpace(c.Assembly.Preset))
	if c.Assembly.Preset == "" {
		c.Assembly.Preset = defaultPreset
	}
}

func (c *Config) normalizeOverlay() {
	c.Overlay.Theme = strings.ToLower(strings.TrimSpace(c.Overlay.Theme))
	if c.Overlay.Theme == "" {
		c.Overlay.Theme = "none"
	}
	c.Overlay.Anchor = strings.ToLower(strings.TrimSpace(c.Overlay.Anchor))
	if c.Overlay.Anchor == "" {
		c.Overlay.Anchor = defaultOverlayAnchor
	}
	c.Overlay.Color = strings.ToLower(strings.TrimSpace(c.Overlay.Color))
	if c.Overlay.Color == "" {
		c.Overlay.Color = defaultOverlayColor
	}
	c.Overlay.Size = strings.ToLower(strings.TrimSpace(c.Overlay.Size))
	if c.Overlay.Size == "" {
		c.Overlay.Size = defaultOverlaySize
	}
}

func (c *Config) normalizeConversion() {
	c.Conversion.BaseURL = strings.TrimRight(strings.TrimSpace(c.Conversion.BaseURL), "/")
	c.Conversion.APIToken = strings.TrimSpace(c.Conversion.APIToken)
	if c.Conversion.APIToken == "" {
		if value, ok := os.LookupEnv(apiTokenEnv); ok {
			c.Conversion.APIToken = strings.TrimSpace(value)
		}
	}
	if c.Conversion.TimeoutSeconds <= 0 {
		c.Conversion.TimeoutSeconds = defaultConversionTimeout
	}
	if c.Conversion.PollIntervalSeconds <= 0 {
		c.Conversion.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Conversion.MaxWaitSeconds <= 0 {
		c.Conversion.MaxWaitSeconds = defaultMaxWaitSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
