// Package overlay draws a time overlay onto timelapse frames.
//
// A Compositor maps a playback timestamp in the output video back onto the
// original study-session clock and renders one of four themes (digital timer,
// analog clock, progress bar, minimal text) at a named or normalized anchor.
// Text uses the Go fonts from golang.org/x/image, shapes go through the
// x/image vector rasterizer, and the minimal theme's drop shadow is blurred
// with imaging.
package overlay
