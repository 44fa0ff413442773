// Package events implements the in-process progress bus: a bounded,
// sequence-numbered ring of events with long-poll fetch and per-subscriber
// cursors that replay missed events before delivering live ones.
package events
