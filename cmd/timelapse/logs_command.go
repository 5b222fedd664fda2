package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kknaks/study-timelapse/internal/logs"
)

const followWait = 2 * time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines     int
		follow    bool
		sessionID string
		level     string
		component string
		raw       bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the timelapse log",
		Long: `Show recent entries from the log file in paths.log_dir.

Entries can be narrowed to one session (a session ID prefix is enough),
a minimum level, or a component. Use --follow to keep printing new entries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := logFilePath(cfg.Paths.LogDir)
			filter := logs.Filter{SessionID: sessionID, MinLevel: level, Component: component}
			out := cmd.OutOrStdout()

			runCtx := cmd.Context()
			if follow {
				var stop context.CancelFunc
				runCtx, stop = signal.NotifyContext(runCtx, os.Interrupt, syscall.SIGTERM)
				defer stop()
			}

			result, err := logs.Tail(runCtx, path, logs.TailOptions{Offset: -1, Limit: lines})
			if err != nil {
				return err
			}
			printed := printLogLines(out, result.Lines, filter, raw)
			if !follow {
				if printed == 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "No matching log entries in %s\n", path)
				}
				return nil
			}

			offset := result.Offset
			for runCtx.Err() == nil {
				result, err = logs.Tail(runCtx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: followWait})
				if err != nil {
					if runCtx.Err() != nil {
						return nil
					}
					return err
				}
				offset = result.Offset
				printLogLines(out, result.Lines, filter, raw)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to read")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().StringVar(&sessionID, "session", "", "Only show entries for this session ID (prefix)")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&component, "component", "", "Only show entries from this component")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print matching lines as stored")
	return cmd
}

func printLogLines(w io.Writer, lines []string, filter logs.Filter, raw bool) int {
	printed := 0
	for _, line := range lines {
		if line == "" {
			continue
		}
		entry := logs.Parse(line)
		if !filter.Match(entry) {
			continue
		}
		if raw {
			fmt.Fprintln(w, line)
		} else {
			fmt.Fprintln(w, logs.Format(entry))
		}
		printed++
	}
	return printed
}
