// Package logging assembles structured slog loggers and formatting helpers used
// across video2notes.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so stage code automatically tags log lines
// with run IDs, stage names, and correlation IDs. TeeLogger duplicates a
// logger's output into additional handlers, which the orchestrator uses to keep
// a per-run log file next to the run's artifacts.
package logging
