package workflow

import (
	"log/slog"
	"os/exec"
	"path/filepath"

	"github.com/kknaks/study-timelapse/internal/assembly"
	"github.com/kknaks/study-timelapse/internal/capture"
	"github.com/kknaks/study-timelapse/internal/config"
	"github.com/kknaks/study-timelapse/internal/conversion"
	"github.com/kknaks/study-timelapse/internal/encoding"
	"github.com/kknaks/study-timelapse/internal/framestore"
)

// OptionsFromConfig maps the configuration onto Manager options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		Capture: capture.Options{
			FlushThreshold: cfg.Capture.FlushThreshold,
			MaxBuffered:    cfg.Capture.MaxBuffered,
			JPEGQuality:    cfg.Capture.JPEGQuality,
			StallFrames:    cfg.Capture.StallFrames,
		},
		Store: framestore.Options{
			Root:         cfg.SessionsDir(),
			Durable:      cfg.Capture.Durable,
			MinFreeBytes: uint64(max(cfg.Capture.MinFreeMiB, 0)) << 20,
			Logger:       logger,
		},
		Assembly:     assembly.Options{Realtime: cfg.Assembly.Realtime},
		PollInterval: cfg.PollInterval(),
		MaxWait:      cfg.MaxConversionWait(),
		KeepFrames:   cfg.Capture.KeepFrames,
	}
}

// ArtifactPath is where the timelapse for sessionID is written.
func ArtifactPath(cfg *config.Config, sessionID string) string {
	return filepath.Join(cfg.Paths.OutputDir, "timelapse-"+sessionID+".mp4")
}

// FFmpegEncoders returns an EncoderFactory writing one MP4 per session into
// the configured output directory. ffprobe verification is enabled when
// ffprobe is on PATH.
func FFmpegEncoders(cfg *config.Config, logger *slog.Logger) EncoderFactory {
	probe, _ := exec.LookPath("ffprobe")
	return func(sessionID string) (assembly.Encoder, error) {
		return encoding.NewFFmpeg(encoding.Options{
			Binary:      cfg.Assembly.FFmpegBinary,
			Codec:       cfg.Assembly.Codec,
			Preset:      cfg.Assembly.Preset,
			CRF:         cfg.Assembly.CRF,
			OutputPath:  ArtifactPath(cfg, sessionID),
			ProbeBinary: probe,
		}, logger), nil
	}
}

// NewConfigured builds a Manager from configuration. recorder and consumer
// may be nil. Remote conversion is wired when conversion.enabled is set.
func NewConfigured(cfg *config.Config, recorder Recorder, consumer ResultConsumer, logger *slog.Logger) *Manager {
	deps := Deps{
		NewEncoder: FFmpegEncoders(cfg, logger),
		Recorder:   recorder,
		Consumer:   consumer,
	}
	if client := conversion.NewConfiguredClient(cfg); client != nil {
		deps.Conversion = client
	}
	return New(deps, OptionsFromConfig(cfg, logger), logger)
}
