// Package logs reads back the JSON log written under paths.log_dir.
//
// Tail returns the last N lines or everything after a byte offset, and can
// wait for new lines in follow mode. Parse and Filter turn lines into entries
// and select those of one session or above a level, for `timelapse logs`.
package logs
