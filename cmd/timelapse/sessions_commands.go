package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kknaks/study-timelapse/internal/jobs"
	"github.com/kknaks/study-timelapse/internal/staging"
)

const defaultPruneAge = 72 * time.Hour

type sessionDirView struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Frames   uint64    `json:"frames"`
	Size     int64     `json:"size_bytes"`
	Modified time.Time `json:"modified"`
	Busy     bool      `json:"busy"`
}

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage frame directories kept on disk",
	}
	sessionsCmd.AddCommand(newSessionsListCommand(ctx))
	sessionsCmd.AddCommand(newSessionsPruneCommand(ctx))
	return sessionsCmd
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List session frame directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dirs, err := staging.ListDirectories(cfg.SessionsDir())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				views := make([]sessionDirView, 0, len(dirs))
				for _, d := range dirs {
					views = append(views, sessionDirView{
						Name: d.Name, Path: d.Path, Frames: d.Frames, Size: d.Size, Modified: d.ModTime, Busy: d.Busy,
					})
				}
				return writeJSON(cmd, views)
			}
			out := cmd.OutOrStdout()
			if len(dirs) == 0 {
				fmt.Fprintln(out, "No session frames on disk")
				return nil
			}
			rows := make([][]string, 0, len(dirs))
			var total int64
			for _, d := range dirs {
				state := ""
				if d.Busy {
					state = "recording"
				}
				total += d.Size
				rows = append(rows, []string{
					d.Name,
					strconv.FormatUint(d.Frames, 10),
					humanize.IBytes(uint64(max(d.Size, 0))),
					humanize.Time(d.ModTime),
					state,
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				{header: "Session"},
				{header: "Frames", align: alignRight},
				{header: "Size", align: alignRight},
				{header: "Modified"},
				{header: "Status"},
			}, rows))
			fmt.Fprintf(out, "%d directories, %s\n", len(dirs), humanize.IBytes(uint64(max(total, 0))))
			return nil
		},
	}
}

func newSessionsPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete frame directories older than --older-than",
		Long: "Delete stale frame directories. Directories of sessions that are still\n" +
			"active in the job history, or locked by a running recording, are kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger(cmd)
			if err != nil {
				return err
			}
			keep := map[string]struct{}{}
			err = ctx.withJobs(func(store *jobs.Store) error {
				active, err := store.List(cmd.Context(), 0, jobs.StateIdle, jobs.StateCapturing,
					jobs.StateAssembling, jobs.StateUploading, jobs.StateConverting, jobs.StatePolling)
				if err != nil {
					return err
				}
				for _, run := range active {
					keep[run.SessionID] = struct{}{}
				}
				return nil
			})
			if err != nil {
				return err
			}

			result := staging.CleanStale(cmd.Context(), cfg.SessionsDir(), olderThan, keep, dryRun, logger)
			out := cmd.OutOrStdout()
			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			for _, path := range result.Removed {
				fmt.Fprintf(out, "%s %s\n", verb, path)
			}
			fmt.Fprintf(out, "%s %d directories, kept %d\n", verb, len(result.Removed), len(result.Skipped))
			if len(result.Errors) > 0 {
				return fmt.Errorf("failed to remove %d directories (first: %s: %v)",
					len(result.Errors), result.Errors[0].Path, result.Errors[0].Error)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", defaultPruneAge, "Only remove directories not modified for this long")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be removed without deleting")
	return cmd
}
