// Package logging assembles structured slog loggers and formatting helpers used
// across the timelapse engine.
//
// It owns the console and JSON handlers, tees records into a JSON log file
// when a log directory is configured, and exposes context-aware helpers so
// capture, assembly, and processing code tag log lines with session IDs, run
// IDs, and stages. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
package logging
