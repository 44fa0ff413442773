// Package main hosts the video2notes CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon (serve) and translates the
// remaining invocations into HTTP calls against it: starting and stopping
// runs, answering checkpoints, following progress events and browsing run
// history. It centralizes configuration resolution, .env loading and API
// client setup so subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
