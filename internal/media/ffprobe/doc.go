// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe through a caller-supplied Runner so the probe can be
// cancelled with the rest of a stage; Result helpers expose the video
// dimensions, duration, and frame rate the pipeline needs.
package ffprobe
