package preflight

import (
	"context"
	"fmt"

	"github.com/kknaks/study-timelapse/internal/config"
	"github.com/kknaks/study-timelapse/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))

	if cfg.Capture.Durable {
		results = append(results, CheckFreeSpace("Frame storage", cfg.SessionsDir(), uint64(max(cfg.Capture.MinFreeMiB, 0))<<20))
	}

	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, fromStatus(status))
	}

	if cfg.Conversion.Enabled {
		results = append(results, CheckConversion(ctx, cfg.Conversion.BaseURL, cfg.Conversion.APIToken))
	}

	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

func fromStatus(status deps.Status) Result {
	detail := status.Detail
	if detail == "" && status.Available {
		detail = status.Command
	}
	if status.Description != "" && !status.Available {
		detail = fmt.Sprintf("%s (%s)", detail, status.Description)
	}
	return Result{
		Name:     status.Name,
		Passed:   status.Available,
		Optional: status.Optional,
		Detail:   detail,
	}
}
