package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
)

// TaskStore persists durable background task records. Mutations after
// creation go through the version-checked Mark* methods; a mismatched
// version yields ErrConflict, which callers treat as "someone else owns
// this task now".
type TaskStore interface {
	// Create inserts a new task record in the to-do state.
	Create(ctx context.Context, task *domain.TaskRecord) error

	// GetByID returns the task with the given ID, or ErrTaskNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TaskRecord, error)

	// GetReadyTasks returns up to limit tasks eligible for execution:
	// status to-do, or failed with attempts below maxAttempts, with
	// run_after unset or due. Ordered oldest-created-first. This is the
	// sole admission gate for the worker.
	GetReadyTasks(ctx context.Context, limit, maxAttempts int) ([]*domain.TaskRecord, error)

	// GetStaleTasks returns in-progress tasks whose last attempt is older
	// than the timeout, signalling a crashed worker.
	GetStaleTasks(ctx context.Context, timeout time.Duration) ([]*domain.TaskRecord, error)

	// HasReadyTasks reports whether GetReadyTasks would return anything.
	// It must reflect the exact same eligibility predicate.
	HasReadyTasks(ctx context.Context, maxAttempts int) (bool, error)

	// GetPendingCountByType returns, per task type, how many tasks are not
	// yet in a terminal state (to-do, in-progress, or failed-retryable),
	// plus permanently failed counts for visibility.
	GetPendingCountByType(ctx context.Context, maxAttempts int) (map[string]TaskTypeCounts, error)

	// MarkInProgress transitions the task to in-progress, incrementing
	// attempts and stamping last_attempt_at. Guarded by version.
	MarkInProgress(ctx context.Context, id uuid.UUID, version int) error

	// MarkSuccess records the task output and completion time. Guarded by
	// version.
	MarkSuccess(ctx context.Context, id uuid.UUID, version int, output json.RawMessage) error

	// MarkFailed records the error, the attempt count to persist, and the
	// next eligible run time (epoch milliseconds; zero clears it). Setting
	// attempts to the ceiling makes the failure permanent. Guarded by
	// version.
	MarkFailed(ctx context.Context, id uuid.UUID, version, attempts int, errMsg string, runAfter int64) error

	// Requeue returns a presumed-crashed task to the to-do state without
	// touching its attempt count. Not version-guarded: the previous owner
	// is gone by definition.
	Requeue(ctx context.Context, id uuid.UUID) error
}

// TaskTypeCounts aggregates task states for one task type.
type TaskTypeCounts struct {
	Pending         int `json:"pending"`
	InProgress      int `json:"in_progress"`
	FailedRetryable int `json:"failed_retryable"`
	FailedPermanent int `json:"failed_permanent"`
	Succeeded       int `json:"succeeded"`
}
