// Package braid is a durable orchestration engine. Orchestration functions
// are replayed deterministically against an append-only event history, so
// a computation survives restarts and completes exactly once
package braid

const (
	Name    = "braid"
	Version = "0.1.0"
)
