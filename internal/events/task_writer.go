package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/store"
)

// TaskWriter is the sink that turns published task requests into durable
// task records. It is the bridge between the bus and the task queue.
type TaskWriter struct {
	taskStore store.TaskStore
	logger    *slog.Logger
}

// NewTaskWriter creates a TaskWriter over the given task store.
func NewTaskWriter(taskStore store.TaskStore, logger *slog.Logger) *TaskWriter {
	return &TaskWriter{
		taskStore: taskStore,
		logger:    logger.With("component", "task_writer"),
	}
}

// HandleTaskRequest persists the request as a new to-do task record.
func (w *TaskWriter) HandleTaskRequest(ctx context.Context, req *TaskRequest) error {
	record, err := domain.NewTaskRecord(req.Type, req.Payload)
	if err != nil {
		return fmt.Errorf("failed to build task record from request %s: %w", req.ID, err)
	}

	if err := w.taskStore.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to persist task for request %s: %w", req.ID, err)
	}

	w.logger.Debug("task enqueued",
		"request_id", req.ID,
		"task_id", record.ID,
		"task_type", record.Type)

	return nil
}
