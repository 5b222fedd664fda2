package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kknaks/study-timelapse/internal/jobs"
)

type runView struct {
	ID               int64     `json:"id"`
	SessionID        string    `json:"session_id"`
	State            string    `json:"state"`
	Reason           string    `json:"reason,omitempty"`
	Error            string    `json:"error,omitempty"`
	Plan             string    `json:"plan,omitempty"`
	FramesCaptured   uint64    `json:"frames_captured"`
	FramesDropped    uint64    `json:"frames_dropped"`
	RecordingSeconds float64   `json:"recording_seconds"`
	OutputSeconds    float64   `json:"output_seconds"`
	Progress         float64   `json:"progress"`
	ArtifactPath     string    `json:"artifact_path,omitempty"`
	DownloadURL      string    `json:"download_url,omitempty"`
	TaskID           string    `json:"task_id,omitempty"`
	StoreMode        string    `json:"store_mode,omitempty"`
	StorePath        string    `json:"store_path,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func newRunView(run *jobs.Run) runView {
	view := runView{
		ID:               run.ID,
		SessionID:        run.SessionID,
		State:            string(run.State),
		Reason:           run.Reason,
		Error:            run.ErrorMessage,
		FramesCaptured:   run.FramesCaptured,
		FramesDropped:    run.FramesDropped,
		RecordingSeconds: run.RecordingSeconds,
		OutputSeconds:    run.OutputSeconds,
		Progress:         run.Progress,
		ArtifactPath:     run.ArtifactPath,
		DownloadURL:      run.DownloadURL,
		TaskID:           run.TaskID,
		StoreMode:        run.StoreMode,
		StorePath:        run.StorePath,
		CreatedAt:        run.CreatedAt,
		UpdatedAt:        run.UpdatedAt,
	}
	if run.KeepEveryN > 0 {
		view.Plan = fmt.Sprintf("%s keep=1/%d fps=%d", run.PlanCase, run.KeepEveryN, run.OutputFPS)
	}
	return view
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the recording history",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsRemoveCommand(ctx))
	jobsCmd.AddCommand(newJobsClearCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var stateFilters []string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := parseStateFilters(stateFilters)
			if err != nil {
				return err
			}
			return ctx.withJobs(func(store *jobs.Store) error {
				runs, err := store.List(cmd.Context(), limit, states...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					views := make([]runView, 0, len(runs))
					for _, run := range runs {
						views = append(views, newRunView(run))
					}
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No sessions recorded")
					return nil
				}
				fmt.Fprintln(out, renderRunsTable(runs))
				summary, err := store.Summarize(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d total, %d active, %d completed, %d failed, %d cancelled\n",
					summary.Total, summary.Active, summary.Completed, summary.Failed, summary.Cancelled)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&stateFilters, "state", "s", nil, "Filter by state (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many sessions")
	return cmd
}

func renderRunsTable(runs []*jobs.Run) string {
	title := cases.Title(language.English)
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		state := title.String(string(run.State))
		if run.Reason != "" {
			state += " (" + run.Reason + ")"
		}
		rows = append(rows, []string{
			strconv.FormatInt(run.ID, 10),
			shortSessionID(run.SessionID),
			state,
			strconv.FormatUint(run.FramesCaptured, 10),
			formatSeconds(run.RecordingSeconds),
			fmt.Sprintf("%.0f%%", run.Progress),
			humanize.Time(run.UpdatedAt),
		})
	}
	return renderTable([]column{
		{header: "ID", align: alignRight},
		{header: "Session"},
		{header: "State"},
		{header: "Frames", align: alignRight},
		{header: "Recorded", align: alignRight},
		{header: "Progress", align: alignRight},
		{header: "Updated"},
	}, rows)
}

func shortSessionID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func parseStateFilters(values []string) ([]jobs.State, error) {
	var states []jobs.State
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			state, ok := jobs.ParseState(part)
			if !ok {
				names := make([]string, 0, len(jobs.AllStates()))
				for _, s := range jobs.AllStates() {
					names = append(names, string(s))
				}
				return nil, fmt.Errorf("unknown state %q (valid: %s)", part, strings.Join(names, ", "))
			}
			states = append(states, state)
		}
	}
	return states, nil
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recorded session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			return ctx.withJobs(func(store *jobs.Store) error {
				run, err := store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("session %d not found", id)
				}
				view := newRunView(run)
				if ctx.jsonOutput() {
					return writeJSON(cmd, view)
				}
				pairs := [][2]string{
					{"ID", strconv.FormatInt(view.ID, 10)},
					{"Session", view.SessionID},
					{"State", view.State},
					{"Progress", fmt.Sprintf("%.0f%%", view.Progress)},
					{"Frames", fmt.Sprintf("%d captured, %d dropped", view.FramesCaptured, view.FramesDropped)},
					{"Recorded", formatSeconds(view.RecordingSeconds)},
					{"Requested", formatSeconds(view.OutputSeconds)},
					{"Created", view.CreatedAt.Local().Format(time.DateTime)},
					{"Updated", view.UpdatedAt.Local().Format(time.DateTime)},
				}
				optional := [][2]string{
					{"Plan", view.Plan},
					{"Frame store", strings.TrimSpace(view.StoreMode + " " + view.StorePath)},
					{"Artifact", view.ArtifactPath},
					{"Task", view.TaskID},
					{"Download", view.DownloadURL},
					{"Reason", view.Reason},
					{"Error", view.Error},
				}
				for _, p := range optional {
					if p[1] != "" {
						pairs = append(pairs, p)
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues(pairs))
				return nil
			})
		},
	}
}

func newJobsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete one session from the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			return ctx.withJobs(func(store *jobs.Store) error {
				removed, err := store.Remove(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("session %d not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed session %d\n", id)
				return nil
			})
		},
	}
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete completed and cancelled sessions from the history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(func(store *jobs.Store) error {
				n, err := store.ClearFinished(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d finished sessions\n", n)
				return nil
			})
		},
	}
}

func parseRunID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("session id must be a positive integer")
	}
	return id, nil
}
