package config

const (
	defaultConfigPath          = "~/.config/study-timelapse/config.toml"
	projectConfigName          = "timelapse.toml"
	defaultDataDir             = "~/.local/share/study-timelapse"
	defaultOutputDir           = "~/Videos/timelapse"
	defaultLogDir              = "~/.local/share/study-timelapse/logs"
	defaultDurationMinutes     = 60
	defaultOutputSeconds       = 60
	defaultFlushThreshold      = 10
	defaultMaxBuffered         = 300
	defaultJPEGQuality         = 85
	defaultStallFrames         = 30
	defaultMinFreeMiB          = 256
	defaultFFmpegBinary        = "ffmpeg"
	defaultCodec               = "libx264"
	defaultPreset              = "fast"
	defaultCRF                 = 23
	defaultOverlayTheme        = "digital_timer"
	defaultOverlayAnchor       = "bottom-right"
	defaultOverlayColor        = "#ffffff"
	defaultOverlaySize         = "medium"
	defaultConversionTimeout   = 60
	defaultPollIntervalSeconds = 2
	defaultMaxWaitSeconds      = 1800
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"

	apiTokenEnv = "STUDY_TIMELAPSE_API_TOKEN"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Capture: Capture{
			DurationMinutes: defaultDurationMinutes,
			OutputSeconds:   defaultOutputSeconds,
			FlushThreshold:  defaultFlushThreshold,
			MaxBuffered:     defaultMaxBuffered,
			JPEGQuality:     defaultJPEGQuality,
			StallFrames:     defaultStallFrames,
			MinFreeMiB:      defaultMinFreeMiB,
			Durable:         true,
		},
		Assembly: Assembly{
			FFmpegBinary: defaultFFmpegBinary,
			Codec:        defaultCodec,
			Preset:       defaultPreset,
			CRF:          defaultCRF,
		},
		Overlay: Overlay{
			Theme:  defaultOverlayTheme,
			Anchor: defaultOverlayAnchor,
			Color:  defaultOverlayColor,
			Size:   defaultOverlaySize,
		},
		Conversion: Conversion{
			TimeoutSeconds:      defaultConversionTimeout,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			MaxWaitSeconds:      defaultMaxWaitSeconds,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeout,
			NotifyFailures:        true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
