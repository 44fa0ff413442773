// Package stage defines the adapter contract shared by every pipeline stage
// and the subprocess runner stages use to drive external tools. The runner
// places each command in its own process group, streams its output line by
// line, keeps a bounded tail for error reports, and on cancellation sends
// SIGTERM followed by SIGKILL once the grace period lapses.
package stage
