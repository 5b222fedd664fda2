// Package sampling decides how a recording of arbitrary length becomes a
// timelapse of a requested length.
//
// Compute picks one of three strategies: keep every frame and shorten the
// output, decimate to every Nth frame at BaseFPS, or, when decimation would
// exceed MaxKeep, raise the output fps (up to MaxFPS) and decimate less.
// CaptureInterval applies the same planner to the planned session length to
// choose a capture period.
package sampling
