// Package checkpoint coordinates interactive pauses in the pipeline. A stage
// opens a checkpoint with a prompt, blocks in Await, and an external resolver
// (HTTP API or CLI) answers with a JSON payload validated against the schema
// for the checkpoint's kind. Each checkpoint resolves at most once.
package checkpoint
