// Package assembly turns the frames in a framestore.Store into a timelapse.
//
// Assemble recomputes the sampling plan from the store's authoritative frame
// count, walks the selected indices in order, draws each frame onto an RGBA
// surface with the overlay for its playback time, and hands the surface to an
// Encoder. Unreadable frames are logged and skipped.
package assembly
