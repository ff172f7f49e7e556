package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryBus delivers task requests synchronously to every subscribed
// sink, in subscription order. A failing sink does not stop delivery to
// the rest; Publish returns the first error seen.
type InMemoryBus struct {
	mu     sync.RWMutex
	sinks  []TaskRequestSink
	logger *slog.Logger
}

// NewInMemoryBus creates a bus with no sinks.
func NewInMemoryBus(logger *slog.Logger) *InMemoryBus {
	return &InMemoryBus{logger: logger.With("component", "task_request_bus")}
}

// Subscribe adds a sink. Safe to call concurrently with Publish.
func (b *InMemoryBus) Subscribe(sink TaskRequestSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Publish hands the request to every subscribed sink. A request published
// with no sinks subscribed is dropped with a warning; that only happens
// when startup wiring is incomplete.
func (b *InMemoryBus) Publish(ctx context.Context, req *TaskRequest) error {
	b.mu.RLock()
	sinks := make([]TaskRequestSink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	if len(sinks) == 0 {
		b.logger.Warn("task request dropped, no sinks subscribed",
			"request_id", req.ID,
			"task_type", req.Type)
		return nil
	}

	var firstErr error
	for _, sink := range sinks {
		if err := sink.HandleTaskRequest(ctx, req); err != nil {
			b.logger.Error("task request sink failed",
				"error", err,
				"request_id", req.ID,
				"task_type", req.Type)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
