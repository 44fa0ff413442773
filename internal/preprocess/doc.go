// Package preprocess holds the stages that run before slide extraction:
// splitting the video at listed timestamps, extracting the audio track, and
// recording the slide region of interest.
package preprocess
