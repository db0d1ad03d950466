// Package progress provides the event primitives, non-blocking hub, and emitter
// interface the harvester uses to report run, page, and row milestones. Events
// are batched on a background goroutine and fanned out to pluggable sinks such
// as Prometheus metrics, the ops status snapshot, or structured logs.
package progress
