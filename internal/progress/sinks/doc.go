// Package sinks implements concrete progress consumers: Prometheus metrics,
// the in-memory status snapshot served by the ops API, and structured logging.
// Each sink satisfies progress.Sink and is safe for repeated Consume/Close cycles.
package sinks
