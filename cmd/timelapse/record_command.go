package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kknaks/study-timelapse/internal/capture"
	"github.com/kknaks/study-timelapse/internal/jobs"
	"github.com/kknaks/study-timelapse/internal/logging"
	"github.com/kknaks/study-timelapse/internal/notifications"
	"github.com/kknaks/study-timelapse/internal/preflight"
	"github.com/kknaks/study-timelapse/internal/services"
	"github.com/kknaks/study-timelapse/internal/workflow"
)

const statusRefresh = 250 * time.Millisecond

type recordView struct {
	SessionID        string  `json:"session_id"`
	RunID            int64   `json:"run_id,omitempty"`
	State            string  `json:"state"`
	Reason           string  `json:"reason,omitempty"`
	Error            string  `json:"error,omitempty"`
	Plan             string  `json:"plan,omitempty"`
	FramesCaptured   uint64  `json:"frames_captured"`
	FramesDropped    uint64  `json:"frames_dropped"`
	RecordingSeconds float64 `json:"recording_seconds"`
	OutputSeconds    float64 `json:"output_seconds"`
	ArtifactPath     string  `json:"artifact_path,omitempty"`
	DownloadURL      string  `json:"download_url,omitempty"`
}

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var src sourceFlags
	var ov overlayFlags
	var minutes float64
	var outputSeconds float64
	var interval time.Duration
	var retries int
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a session and assemble it into a timelapse",
		Long: "Capture frames until the planned duration elapses or Ctrl-C is pressed, then\n" +
			"assemble the timelapse (and convert it remotely when conversion is enabled).\n" +
			"A second Ctrl-C cancels the session and discards its frames.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("minutes") {
				minutes = cfg.Capture.DurationMinutes
			}
			if !cmd.Flags().Changed("output-seconds") {
				outputSeconds = cfg.Capture.OutputSeconds
			}
			if minutes < 0 || math.IsNaN(minutes) {
				return errors.New("--minutes must not be negative")
			}
			overlayCfg, err := ov.resolve(cfg)
			if err != nil {
				return err
			}
			videoSource, label, err := src.open()
			if err != nil {
				return err
			}

			if !skipPreflight {
				if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
					return preflightError(failed)
				}
			}

			logger, err := ctx.newLogger(cmd)
			if err != nil {
				return err
			}

			return ctx.withJobs(func(store *jobs.Store) error {
				if n, err := store.MarkInterrupted(cmd.Context()); err != nil {
					return err
				} else if n > 0 {
					logger.Info("marked stale runs as interrupted", logging.Int64("count", n))
				}

				notifier := notifications.NewService(cfg)
				var result workflow.Result
				consumer := workflow.ResultConsumerFunc(func(ctx context.Context, r workflow.Result) error {
					result = r
					return notifier.Publish(ctx, notifications.EventSessionCompleted, notifications.Payload{
						"recorded":    formatSeconds(r.RecordingSeconds),
						"length":      formatSeconds(r.OutputSeconds),
						"artifact":    r.ArtifactPath,
						"downloadURL": r.DownloadURL,
					})
				})
				mgr := workflow.NewConfigured(cfg, store, consumer, logger)
				session := workflow.Session{
					PlannedDuration: time.Duration(minutes * float64(time.Minute)),
					OutputSeconds:   outputSeconds,
					PlannedInterval: interval,
					Overlay:         overlayCfg,
				}

				runCtx := cmd.Context()
				if err := mgr.Start(runCtx, session, videoSource); err != nil {
					return err
				}
				stopSignals := handleInterrupts(runCtx, mgr, cmd.ErrOrStderr(), logger)
				defer stopSignals()

				if !ctx.jsonOutput() {
					fmt.Fprintf(cmd.ErrOrStderr(), "Recording from %s for up to %s (Ctrl-C to stop)\n",
						label, session.PlannedDuration.Round(time.Second))
				}

				snap, err := waitForSession(runCtx, mgr, cmd.ErrOrStderr(), !ctx.jsonOutput())
				for attempt := 0; err != nil && attempt < retries && snap.State == workflow.StateFailed && services.Retryable(err); attempt++ {
					logger.Info("retrying failed step",
						logging.String("step", snap.FailedStep),
						logging.Int("attempt", attempt+1),
					)
					if retryErr := mgr.Retry(runCtx, workflow.RetryStep); retryErr != nil {
						break
					}
					snap, err = waitForSession(runCtx, mgr, cmd.ErrOrStderr(), !ctx.jsonOutput())
				}
				if errors.Is(err, context.Canceled) && !snap.State.Terminal() {
					mgr.Cancel()
					snap = mgr.Status()
				}

				if snap.State == workflow.StateFailed {
					if notifyErr := notifier.Publish(context.WithoutCancel(runCtx), notifications.EventSessionFailed, notifications.Payload{
						"step":  snap.FailedStep,
						"error": errorText(err),
					}); notifyErr != nil {
						logging.WarnWithContext(logger, "failure notification not delivered", "notification_failed",
							logging.Error(notifyErr),
							logging.String(logging.FieldImpact, "no push message for the failed session"),
							logging.String(logging.FieldErrorHint, "run `timelapse test-notify`"),
						)
					}
				}

				view := newRecordView(snap, result, err)
				if ctx.jsonOutput() {
					if jsonErr := writeJSON(cmd, view); jsonErr != nil {
						return jsonErr
					}
				} else {
					printRecordSummary(cmd.OutOrStdout(), view)
				}
				return err
			})
		},
	}

	src.register(cmd)
	ov.register(cmd)
	cmd.Flags().Float64Var(&minutes, "minutes", 0, "Planned recording length in minutes (default capture.duration_minutes)")
	cmd.Flags().Float64VarP(&outputSeconds, "output-seconds", "o", 0, "Requested timelapse length in seconds (default capture.output_seconds)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Override the capture interval derived from the plan")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retry a failed processing step up to this many times")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Do not check directories and ffmpeg before recording")
	return cmd
}

// handleInterrupts stops capture on the first interrupt and cancels the
// session on the second. The returned func releases the signal handler.
func handleInterrupts(ctx context.Context, mgr *workflow.Manager, out io.Writer, logger *slog.Logger) func() {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		stopping := false
		for {
			select {
			case <-done:
				return
			case <-signals:
			}
			if !stopping && mgr.Status().State == workflow.StateCapturing {
				stopping = true
				fmt.Fprintln(out, "\nStopping capture; press Ctrl-C again to cancel")
				go func() {
					if err := mgr.Stop(ctx); err != nil {
						logger.Debug("stop after interrupt", logging.Error(err))
					}
				}()
				continue
			}
			fmt.Fprintln(out, "\nCancelling session")
			mgr.Cancel()
			return
		}
	}()

	return func() {
		signal.Stop(signals)
		close(done)
	}
}

// waitForSession blocks until the session settles, drawing a progress bar on
// interactive terminals.
func waitForSession(ctx context.Context, mgr *workflow.Manager, out io.Writer, interactive bool) (workflow.Snapshot, error) {
	if !interactive || !isTerminal(out) {
		return mgr.Wait(ctx)
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	type outcome struct {
		snap workflow.Snapshot
		err  error
	}
	settled := make(chan outcome, 1)
	go func() {
		snap, err := mgr.Wait(waitCtx)
		settled <- outcome{snap, err}
	}()

	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()
	for {
		select {
		case res := <-settled:
			_ = bar.Finish()
			return res.snap, res.err
		case <-ticker.C:
			snap := mgr.Status()
			bar.Describe(describeSnapshot(snap))
			_ = bar.Set(int(snap.Progress))
		}
	}
}

func describeSnapshot(snap workflow.Snapshot) string {
	if snap.State == workflow.StateCapturing {
		suffix := ""
		if snap.Capture.State == capture.StatePaused {
			suffix = " (paused)"
		}
		return fmt.Sprintf("capturing %d frames %s%s", snap.Capture.Captured, snap.Elapsed.Round(time.Second), suffix)
	}
	return string(snap.State)
}

func newRecordView(snap workflow.Snapshot, result workflow.Result, err error) recordView {
	view := recordView{
		SessionID:        snap.SessionID,
		RunID:            snap.RunID,
		State:            string(snap.State),
		Reason:           snap.Reason,
		FramesCaptured:   snap.Capture.Captured,
		FramesDropped:    snap.Capture.Dropped,
		RecordingSeconds: result.RecordingSeconds,
		OutputSeconds:    result.OutputSeconds,
		ArtifactPath:     snap.ArtifactPath,
		DownloadURL:      snap.DownloadURL,
	}
	if snap.Plan.KeepEveryN > 0 {
		view.Plan = snap.Plan.String()
	}
	if view.RecordingSeconds == 0 {
		view.RecordingSeconds = snap.Elapsed.Seconds()
	}
	if err != nil {
		view.Error = err.Error()
	}
	return view
}

func printRecordSummary(out io.Writer, view recordView) {
	pairs := [][2]string{
		{"Session", view.SessionID},
		{"State", view.State},
		{"Frames", fmt.Sprintf("%d captured, %d dropped", view.FramesCaptured, view.FramesDropped)},
		{"Recorded", formatSeconds(view.RecordingSeconds)},
	}
	if view.OutputSeconds > 0 {
		pairs = append(pairs, [2]string{"Timelapse", formatSeconds(view.OutputSeconds)})
	}
	if view.ArtifactPath != "" {
		pairs = append(pairs, [2]string{"Artifact", view.ArtifactPath})
	}
	if view.DownloadURL != "" {
		pairs = append(pairs, [2]string{"Download", view.DownloadURL})
	}
	if view.Reason != "" {
		pairs = append(pairs, [2]string{"Reason", view.Reason})
	}
	fmt.Fprintln(out, renderKeyValues(pairs))
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func preflightError(failed []preflight.Result) error {
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return fmt.Errorf("preflight failed (run `timelapse doctor` for details): %s", strings.Join(parts, "; "))
}
