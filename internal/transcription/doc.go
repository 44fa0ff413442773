// Package transcription provides the transcribe stage adapter.
package transcription
