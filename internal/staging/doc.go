// Package staging inspects and prunes the per-session frame directories under
// the sessions directory.
//
// Directories are left behind by failed runs, interrupted processes, and
// sessions recorded with capture.keep_frames. A directory whose namespace lock
// is held by a live recording is never removed.
package staging
