package main

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kknaks/study-timelapse/internal/sampling"
)

type planView struct {
	Frames          uint64        `json:"frames"`
	OutputSeconds   float64       `json:"output_seconds"`
	Plan            sampling.Plan `json:"plan"`
	OutputFrames    uint64        `json:"output_frames"`
	CaptureInterval string        `json:"capture_interval,omitempty"`
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var frames uint64
	var minutes float64
	var outputSeconds float64

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show how a recording would be sampled into a timelapse",
		Long: "Compute the sampling plan for a number of captured frames (--frames), or for a\n" +
			"planned recording length (--minutes) captured at the nominal 30 fps.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("output-seconds") {
				outputSeconds = cfg.Capture.OutputSeconds
			}
			framesSet := cmd.Flags().Changed("frames")
			minutesSet := cmd.Flags().Changed("minutes")
			if framesSet && minutesSet {
				return errors.New("use either --frames or --minutes, not both")
			}
			if !framesSet && !minutesSet {
				minutes = cfg.Capture.DurationMinutes
			}

			view := planView{Frames: frames, OutputSeconds: outputSeconds}
			if !framesSet {
				if minutes < 0 || math.IsNaN(minutes) {
					return fmt.Errorf("--minutes must not be negative")
				}
				seconds := minutes * 60
				view.Frames = uint64(math.Round(seconds * sampling.BaseFPS))
				interval, err := sampling.CaptureInterval(seconds, outputSeconds)
				if err != nil {
					return err
				}
				view.CaptureInterval = interval.String()
			}

			plan, err := sampling.Compute(view.Frames, outputSeconds)
			if err != nil {
				return err
			}
			view.Plan = plan
			view.OutputFrames = plan.OutputFrames(view.Frames)

			if ctx.jsonOutput() {
				return writeJSON(cmd, view)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderPlan(view))
			return nil
		},
	}

	cmd.Flags().Uint64Var(&frames, "frames", 0, "Number of captured frames")
	cmd.Flags().Float64Var(&minutes, "minutes", 0, "Planned recording length in minutes (default capture.duration_minutes)")
	cmd.Flags().Float64VarP(&outputSeconds, "output-seconds", "o", 0, "Requested timelapse length in seconds (default capture.output_seconds)")
	return cmd
}

func renderPlan(view planView) string {
	p := message.NewPrinter(language.English)
	pairs := [][2]string{
		{"Input frames", p.Sprintf("%d", view.Frames)},
		{"Case", string(view.Plan.Case)},
		{"Keep every", p.Sprintf("%d", view.Plan.KeepEveryN)},
		{"Output fps", p.Sprintf("%d", view.Plan.OutputFPS)},
		{"Output frames", p.Sprintf("%d", view.OutputFrames)},
		{"Output length", formatSeconds(view.Plan.AchievableOutputSeconds)},
	}
	if view.CaptureInterval != "" {
		pairs = append(pairs, [2]string{"Capture interval", view.CaptureInterval})
	}
	var b strings.Builder
	b.WriteString(renderKeyValues(pairs))
	b.WriteString("\n")
	if view.Plan.AchievableOutputSeconds < view.OutputSeconds {
		fmt.Fprintf(&b, "Only %s of footage is available; the timelapse will be shorter than %s.\n",
			formatSeconds(view.Plan.AchievableOutputSeconds), formatSeconds(view.OutputSeconds))
	}
	return b.String()
}

func formatSeconds(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(100 * time.Millisecond)
	return d.String()
}
