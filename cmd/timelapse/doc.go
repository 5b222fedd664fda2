// Command timelapse records study sessions from a replay or synthetic video
// source, assembles them into timelapse videos, and inspects the job history.
//
// Configuration is read from ~/.config/study-timelapse/config.toml unless
// --config points elsewhere; `timelapse config init` writes a commented
// sample. `timelapse doctor` checks directories, ffmpeg, and the optional
// conversion service before a first recording.
package main
