// Package daemon coordinates the long-running video2notes process.
//
// It wires configuration, the run store, the workflow manager, the HTTP API
// and the optional inbox watcher into a single lifecycle with flock-based
// locking to prevent multiple instances. The API exposes run control,
// checkpoint resolution, the progress event stream, run history and
// dependency health; every request passes the optional bearer-token check and
// carries a correlation id.
//
// Keep orchestration logic here: pipeline steps live in their own packages
// while the daemon focuses on startup, shutdown and request handling.
package daemon
