// Package whisperx invokes WhisperX through uvx and decodes its JSON output.
//
// This package handles:
//   - building the uvx/WhisperX command line (model, device, VAD, diarization)
//   - passing domain vocabulary as the initial prompt
//   - loading diarized segments from the JSON result
//
// Configuration options (model, CUDA, VAD method, diarization) are passed via
// Config; commands run through a caller-supplied Runner.
package whisperx
