// Package encoding provides the ffmpeg-backed assembly.Encoder.
//
// FFmpeg streams raw RGBA frames over stdin to an ffmpeg process producing an
// H.264 MP4. Output is written to a ".part" file and moved into place only
// after ffmpeg exits cleanly, so a failed or aborted job never leaves a
// truncated timelapse behind. Inspect wraps ffprobe for optional verification.
package encoding
