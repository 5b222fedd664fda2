// Package source provides capture.VideoSource implementations that need no
// camera: a replay of still images from a directory and a synthetic test
// card. Both are used by the CLI and by tests.
package source
