package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kknaks/study-timelapse/internal/preflight"
)

type checkView struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, ffmpeg, and the conversion service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			failed := preflight.Failed(results)

			if ctx.jsonOutput() {
				views := make([]checkView, 0, len(results))
				for _, r := range results {
					views = append(views, checkView(r))
				}
				if err := writeJSON(cmd, views); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, r := range results {
					fmt.Fprintln(out, renderStatusLine(r.Name, checkKind(r), r.Detail, colorize))
				}
				summary := statusOK
				message := "ready to record"
				if len(failed) > 0 {
					summary = statusError
					message = fmt.Sprintf("%d required check(s) failed", len(failed))
				}
				fmt.Fprintln(out, renderStatusLine("Summary", summary, message, colorize))
			}
			if len(failed) > 0 {
				return errors.New("preflight checks failed")
			}
			return nil
		},
	}
}

func checkKind(r preflight.Result) statusKind {
	switch {
	case r.Passed:
		return statusOK
	case r.Optional:
		return statusWarn
	default:
		return statusError
	}
}
