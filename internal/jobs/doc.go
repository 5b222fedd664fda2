// Package jobs persists the history of orchestrated runs in SQLite.
//
// Each recording gets one Run row that the workflow updates on every state
// change: plan, frame counts, artifact location, remote task id, and the
// failure reason when it ends badly. The CLI reads the same ledger for
// `timelapse jobs`. The schema is versioned; a mismatched ledger must be
// deleted rather than migrated.
package jobs
