// Package hub implements the real-time event broadcast hub using the actor pattern.
//
// A single goroutine owns the connection registry and the room index and drains a
// command channel (no mutexes on shared state). Inbound frames are validated on the
// per-connection read goroutine, then routed as commands; fanout enqueues onto
// bounded per-connection writers governed by a backpressure policy.
package hub
