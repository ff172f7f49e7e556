// Package api contains the read-only operational HTTP handlers: task
// queue statistics, worker status, and per-digester digest aggregates.
package api
