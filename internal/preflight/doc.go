// Package preflight provides readiness checks for the directories, binaries,
// and remote service the timelapse engine depends on.
//
// The CLI "timelapse doctor" command runs RunAll and prints each Result;
// "timelapse record" runs the same checks before it starts capturing so a
// session is not recorded into a store that cannot be assembled.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
