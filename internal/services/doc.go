// Package services defines shared utilities consumed by the pipeline stage
// adapters and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and correlation
//     identifiers for logging.
//   - Error markers plus the Wrap helper, and the typed ConfigError and
//     StageError values that carry validation problems and captured tool
//     output up to the orchestrator.
//   - Classify, which separates user cancellation from genuine failure when a
//     run reaches a terminal state.
//
// Use these helpers when wiring new stage logic so error reporting and
// observability stay uniform across the pipeline.
package services
