// Package task implements the durable background job machinery: pure
// scheduling functions (retry backoff, admission predicates), a
// token-bucket rate limiter, a typed task handler registry, and the
// polling worker that drives everything against the task store.
//
// Execution is at-least-once: a crashed worker's in-progress tasks are
// reclaimed by the stale sweep and run again, so handlers must be
// idempotent.
package task
