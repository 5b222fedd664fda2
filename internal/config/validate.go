package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateAssembly(); err != nil {
		return err
	}
	if _, err := c.OverlayConfig(); err != nil {
		return fmt.Errorf("overlay: %w", err)
	}
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCapture() error {
	if c.Capture.DurationMinutes <= 0 {
		return errors.New("capture.duration_minutes must be positive")
	}
	if c.Capture.OutputSeconds <= 0 {
		return errors.New("capture.output_seconds must be positive")
	}
	if c.Capture.FlushThreshold <= 0 {
		return errors.New("capture.flush_threshold must be positive")
	}
	if c.Capture.MaxBuffered < c.Capture.FlushThreshold {
		return fmt.Errorf("capture.max_buffered (%d) must be at least capture.flush_threshold (%d)", c.Capture.MaxBuffered, c.Capture.FlushThreshold)
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return errors.New("capture.jpeg_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateAssembly() error {
	if c.Assembly.CRF < 0 || c.Assembly.CRF > 51 {
		return errors.New("assembly.crf must be between 0 and 51")
	}
	return nil
}

func (c *Config) validateConversion() error {
	if !c.Conversion.Enabled {
		return nil
	}
	if c.Conversion.BaseURL == "" {
		return errors.New("conversion.base_url is required when conversion is enabled")
	}
	parsed, err := url.Parse(c.Conversion.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("conversion.base_url %q is not an absolute URL", c.Conversion.BaseURL)
	}
	if c.Conversion.MaxWaitSeconds < c.Conversion.PollIntervalSeconds {
		return errors.New("conversion.max_wait_seconds must be at least conversion.poll_interval_seconds")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.NtfyTopic)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic %q must be a full topic URL", c.Notifications.NtfyTopic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
}
