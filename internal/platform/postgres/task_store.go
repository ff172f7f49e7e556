package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/platform/logger"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/store"
)

// TaskStore implements store.TaskStore using PostgreSQL.
type TaskStore struct {
	db store.DBTX
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{db: db}
}

// taskColumns is the column list shared by every task SELECT.
const taskColumns = `id, type, input, status, version, attempts, output, error, run_after, last_attempt_at, created_at, updated_at, completed_at`

// readyPredicate is the single source of truth for worker admission:
// to-do, or failed with attempts left, and run_after absent or due.
// $1 = maxAttempts, $2 = now in epoch milliseconds.
const readyPredicate = `
	(status = 'to-do' OR (status = 'failed' AND attempts < $1))
	AND (run_after IS NULL OR run_after <= $2)
`

// Create inserts a new task record.
func (s *TaskStore) Create(ctx context.Context, task *domain.TaskRecord) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	query := `
		INSERT INTO tasks (id, type, input, status, version, attempts, output, error, run_after, last_attempt_at, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Type,
		[]byte(task.Input),
		task.Status,
		task.Version,
		task.Attempts,
		[]byte(task.Output),
		task.Error,
		task.RunAfter,
		task.LastAttemptAt,
		task.CreatedAt,
		task.UpdatedAt,
		task.CompletedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			"task_id", task.ID,
			"task_type", task.Type,
			"error", err)
		return fmt.Errorf("failed to create task: %w", MapError(err))
	}

	return nil
}

// GetByID returns the task with the given ID, or ErrTaskNotFound.
func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.TaskRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1`, taskColumns)

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", MapError(err))
	}

	return task, nil
}

// GetReadyTasks returns up to limit eligible tasks, oldest first.
func (s *TaskStore) GetReadyTasks(ctx context.Context, limit, maxAttempts int) ([]*domain.TaskRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE %s
		ORDER BY created_at ASC
		LIMIT $3
	`, taskColumns, readyPredicate)

	return s.queryTasks(ctx, query, maxAttempts, domain.NowUnixMilli(), limit)
}

// GetStaleTasks returns in-progress tasks whose last attempt is older than
// the timeout.
func (s *TaskStore) GetStaleTasks(ctx context.Context, timeout time.Duration) ([]*domain.TaskRecord, error) {
	cutoff := domain.NowUnixMilli() - timeout.Milliseconds()

	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE status = 'in-progress' AND last_attempt_at IS NOT NULL AND last_attempt_at < $1
		ORDER BY last_attempt_at ASC
	`, taskColumns)

	return s.queryTasks(ctx, query, cutoff)
}

// HasReadyTasks reports whether any task passes the admission predicate.
func (s *TaskStore) HasReadyTasks(ctx context.Context, maxAttempts int) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM tasks WHERE %s)`, readyPredicate)

	var exists bool
	err := s.db.QueryRowContext(ctx, query, maxAttempts, domain.NowUnixMilli()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ready tasks: %w", MapError(err))
	}

	return exists, nil
}

// GetPendingCountByType returns per-type task state counts.
func (s *TaskStore) GetPendingCountByType(ctx context.Context, maxAttempts int) (map[string]store.TaskTypeCounts, error) {
	query := `
		SELECT type,
			COUNT(*) FILTER (WHERE status = 'to-do'),
			COUNT(*) FILTER (WHERE status = 'in-progress'),
			COUNT(*) FILTER (WHERE status = 'failed' AND attempts < $1),
			COUNT(*) FILTER (WHERE status = 'failed' AND attempts >= $1),
			COUNT(*) FILTER (WHERE status = 'success')
		FROM tasks
		GROUP BY type
	`

	rows, err := s.db.QueryContext(ctx, query, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to query task counts: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]store.TaskTypeCounts)
	for rows.Next() {
		var taskType string
		var c store.TaskTypeCounts
		if err := rows.Scan(&taskType, &c.Pending, &c.InProgress, &c.FailedRetryable, &c.FailedPermanent, &c.Succeeded); err != nil {
			return nil, fmt.Errorf("failed to scan task count row: %w", err)
		}
		counts[taskType] = c
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task count rows: %w", err)
	}

	return counts, nil
}

// MarkInProgress transitions the task to in-progress, incrementing
// attempts and bumping the optimistic-lock version.
func (s *TaskStore) MarkInProgress(ctx context.Context, id uuid.UUID, version int) error {
	now := domain.NowUnixMilli()

	query := `
		UPDATE tasks
		SET status = $1, attempts = attempts + 1, last_attempt_at = $2, updated_at = $2, version = version + 1
		WHERE id = $3 AND version = $4
	`

	return s.guardedExec(ctx, query, domain.TaskStatusInProgress, now, id, version)
}

// MarkSuccess records the output and completion time.
func (s *TaskStore) MarkSuccess(ctx context.Context, id uuid.UUID, version int, output json.RawMessage) error {
	now := domain.NowUnixMilli()

	query := `
		UPDATE tasks
		SET status = $1, output = $2, error = NULL, completed_at = $3, updated_at = $3, version = version + 1
		WHERE id = $4 AND version = $5
	`

	return s.guardedExec(ctx, query, domain.TaskStatusSuccess, []byte(output), now, id, version)
}

// MarkFailed records the error, attempt count and next eligible run time.
func (s *TaskStore) MarkFailed(ctx context.Context, id uuid.UUID, version, attempts int, errMsg string, runAfter int64) error {
	now := domain.NowUnixMilli()

	var runAfterArg any
	if runAfter > 0 {
		runAfterArg = runAfter
	}

	query := `
		UPDATE tasks
		SET status = $1, error = $2, attempts = $3, run_after = $4, updated_at = $5, version = version + 1
		WHERE id = $6 AND version = $7
	`

	return s.guardedExec(ctx, query, domain.TaskStatusFailed, errMsg, attempts, runAfterArg, now, id, version)
}

// Requeue returns a presumed-crashed task to the to-do state.
func (s *TaskStore) Requeue(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET status = $1, updated_at = $2, version = version + 1
		WHERE id = $3 AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.TaskStatusTodo,
		domain.NowUnixMilli(),
		id,
		domain.TaskStatusInProgress,
	)
	if err != nil {
		log.Error("failed to requeue task", "task_id", id, "error", err)
		return fmt.Errorf("failed to requeue task: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// The task moved on since the stale sweep observed it. Fine.
		log.Debug("requeue skipped, task no longer in-progress", "task_id", id)
	}

	return nil
}

// guardedExec runs a version-guarded UPDATE and maps a zero-row result to
// ErrConflict.
func (s *TaskStore) guardedExec(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return store.ErrConflict
	}

	return nil
}

func (s *TaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.TaskRecord
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}

	return tasks, nil
}

func scanTask(row rowScanner) (*domain.TaskRecord, error) {
	var t domain.TaskRecord
	var input, output []byte

	err := row.Scan(
		&t.ID,
		&t.Type,
		&input,
		&t.Status,
		&t.Version,
		&t.Attempts,
		&output,
		&t.Error,
		&t.RunAfter,
		&t.LastAttemptAt,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Input = json.RawMessage(input)
	t.Output = json.RawMessage(output)
	return &t, nil
}
