// Package media wraps the ffmpeg invocations the pipeline relies on: audio
// extraction, reference frames, cropped frame sampling, speaker sample clips,
// and timestamp-based splitting. Commands run through a Runner so stage
// cancellation reaches them.
package media
