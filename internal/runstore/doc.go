// Package runstore archives workflow runs in SQLite so past runs survive
// daemon restarts.
//
// Each run is stored with its final status, failing stage, error text,
// artifacts and per-stage timings. The orchestrator saves a run when it starts
// and again when it reaches a terminal state; the CLI history command and the
// /api/runs endpoint read it back newest first.
//
// The schema is embedded and versioned. A version mismatch is reported as
// ErrSchemaMismatch rather than migrated: history is disposable, so the fix is
// deleting runs.db. Writes retry briefly on SQLITE_BUSY.
package runstore
