package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kknaks/study-timelapse/internal/assembly"
	"github.com/kknaks/study-timelapse/internal/config"
	"github.com/kknaks/study-timelapse/internal/encoding"
	"github.com/kknaks/study-timelapse/internal/framestore"
	"github.com/kknaks/study-timelapse/internal/jobs"
	"github.com/kknaks/study-timelapse/internal/logging"
	"github.com/kknaks/study-timelapse/internal/sampling"
	"github.com/kknaks/study-timelapse/internal/workflow"
)

type assembleView struct {
	SessionDir       string  `json:"session_dir"`
	ArtifactPath     string  `json:"artifact_path"`
	SizeBytes        int64   `json:"size_bytes"`
	Frames           int     `json:"frames"`
	Skipped          int     `json:"skipped"`
	FPS              int     `json:"fps"`
	Seconds          float64 `json:"seconds"`
	RecordingSeconds float64 `json:"recording_seconds"`
	Plan             string  `json:"plan"`
}

func newAssembleCommand(ctx *commandContext) *cobra.Command {
	var ov overlayFlags
	var output string
	var outputSeconds float64
	var recordingMinutes float64

	cmd := &cobra.Command{
		Use:   "assemble <session-dir|session-id>",
		Short: "Assemble a timelapse from frames kept on disk",
		Long: "Rebuild a timelapse from a durable frame directory, for example one kept with\n" +
			"capture.keep_frames or left behind by an interrupted recording.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("output-seconds") {
				outputSeconds = cfg.Capture.OutputSeconds
			}
			overlayCfg, err := ov.resolve(cfg)
			if err != nil {
				return err
			}
			dir, err := resolveSessionDir(cfg, args[0])
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger(cmd)
			if err != nil {
				return err
			}

			store, err := framestore.Reopen(dir)
			if err != nil {
				return err
			}
			defer store.Close()

			recordingSeconds := recordingMinutes * 60
			if recordingSeconds <= 0 {
				recordingSeconds = ctx.recordedSeconds(cmd, dir)
			}
			if recordingSeconds <= 0 {
				recordingSeconds = float64(store.Count()) / sampling.BaseFPS
				logging.WarnWithContext(logger, "recording length unknown; estimating from frame count", "recording_length_estimated",
					logging.Float64("recording_seconds", recordingSeconds),
					logging.String(logging.FieldImpact, "the overlay clock may not match the real session length"),
					logging.String(logging.FieldErrorHint, "pass --recording-minutes"),
				)
			}

			sessionID := filepath.Base(dir)
			target := strings.TrimSpace(output)
			if target == "" {
				target = workflow.ArtifactPath(cfg, sessionID)
			} else if target, err = config.ExpandPath(target); err != nil {
				return err
			}
			probe, _ := exec.LookPath("ffprobe")
			encoder := encoding.NewFFmpeg(encoding.Options{
				Binary:      cfg.Assembly.FFmpegBinary,
				Codec:       cfg.Assembly.Codec,
				Preset:      cfg.Assembly.Preset,
				CRF:         cfg.Assembly.CRF,
				OutputPath:  target,
				ProbeBinary: probe,
			}, logger)

			job := assembly.Job{
				Overlay:          overlayCfg,
				RecordingSeconds: recordingSeconds,
				OutputSeconds:    outputSeconds,
			}
			artifact, err := assembly.New(encoder, assembly.Options{Realtime: cfg.Assembly.Realtime}, logger).
				Assemble(cmd.Context(), store, job, nil)
			if err != nil {
				return err
			}

			view := assembleView{
				SessionDir:       dir,
				ArtifactPath:     artifact.Path,
				SizeBytes:        artifact.Size,
				Frames:           artifact.Frames,
				Skipped:          artifact.Skipped,
				FPS:              artifact.FPS,
				Seconds:          artifact.Seconds,
				RecordingSeconds: recordingSeconds,
				Plan:             artifact.Plan.String(),
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, view)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues([][2]string{
				{"Artifact", view.ArtifactPath},
				{"Size", humanize.Bytes(uint64(max(view.SizeBytes, 0)))},
				{"Frames", fmt.Sprintf("%d (%d skipped)", view.Frames, view.Skipped)},
				{"Length", fmt.Sprintf("%s at %d fps", formatSeconds(view.Seconds), view.FPS)},
				{"Recorded", formatSeconds(view.RecordingSeconds)},
				{"Plan", view.Plan},
			}))
			return nil
		},
	}

	ov.register(cmd)
	cmd.Flags().StringVar(&output, "output", "", "Output file (default: paths.output_dir/timelapse-<session>.mp4)")
	cmd.Flags().Float64VarP(&outputSeconds, "output-seconds", "o", 0, "Requested timelapse length in seconds (default capture.output_seconds)")
	cmd.Flags().Float64Var(&recordingMinutes, "recording-minutes", 0, "Real length of the recording, for the overlay clock (default: from job history)")
	return cmd
}

// resolveSessionDir accepts a frame directory or a session ID under the
// configured sessions directory.
func resolveSessionDir(cfg *config.Config, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errors.New("session directory is required")
	}
	candidates := []string{arg, filepath.Join(cfg.SessionsDir(), arg)}
	for _, candidate := range candidates {
		expanded, err := config.ExpandPath(candidate)
		if err != nil {
			continue
		}
		if info, err := os.Stat(expanded); err == nil && info.IsDir() {
			return expanded, nil
		}
	}
	return "", fmt.Errorf("no frame directory found for %q", arg)
}

// recordedSeconds looks up the recording length of the run that captured dir.
func (c *commandContext) recordedSeconds(cmd *cobra.Command, dir string) float64 {
	var seconds float64
	_ = c.withJobs(func(store *jobs.Store) error {
		runs, err := store.List(cmd.Context(), 0)
		if err != nil {
			return err
		}
		for _, run := range runs {
			if run.StorePath == dir || run.SessionID == filepath.Base(dir) {
				seconds = run.RecordingSeconds
				return nil
			}
		}
		return nil
	})
	return seconds
}
