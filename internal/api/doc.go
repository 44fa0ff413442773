// Package api defines the wire-format types and the HTTP client for the
// video2notes daemon. It translates workflow snapshots, checkpoint prompts,
// progress events and archived runs into transport DTOs so the CLI and other
// consumers do not couple to internal types.
//
// # Key Types
//
// RunStatus: current run with per-stage state, open checkpoint and artifacts.
//
// DaemonStatus: daemon runtime information wrapping the current RunStatus.
//
// Event/EventStreamResponse: progress events for live tailing with a resume
// cursor.
//
// RunSummary/RunDetail: archived runs from the run store.
//
// # Converters
//
// FromSnapshot: workflow.Snapshot -> RunStatus.
//
// FromEvent: events.Event -> Event.
//
// FromRecord/FromRecordDetail: runstore.Record -> RunSummary/RunDetail.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds.
// Checkpoint prompts and archived configuration are passed through as
// json.RawMessage to avoid double-encoding.
package api
