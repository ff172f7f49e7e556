package domain

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a durable background task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusTodo       TaskStatus = "to-do"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusSuccess    TaskStatus = "success"
	TaskStatusFailed     TaskStatus = "failed"
)

// Common validation errors for TaskRecord
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyTaskType     = errors.New("task type cannot be empty")
	ErrInvalidTaskStatus = errors.New("invalid task status")
)

// TaskRecord is a generic durable background job. The worker is the only
// component that mutates a record after creation; Version is an
// optimistic-lock counter guarding those mutations.
type TaskRecord struct {
	ID     uuid.UUID       `json:"id"`
	Type   string          `json:"type"`
	Input  json.RawMessage `json:"input,omitempty"`
	Status TaskStatus      `json:"status"`

	Version  int `json:"version"`
	Attempts int `json:"attempts"`

	Output json.RawMessage `json:"output,omitempty"`
	Error  *string         `json:"error,omitempty"`

	// Epoch milliseconds. RunAfter is the earliest eligible execution time;
	// nil means immediately eligible.
	RunAfter      *int64 `json:"run_after,omitempty"`
	LastAttemptAt *int64 `json:"last_attempt_at,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
	CompletedAt   *int64 `json:"completed_at,omitempty"`
}

// NewTaskRecord creates a TaskRecord in the to-do state with the given
// type tag and JSON input payload. Returns an error if validation fails.
func NewTaskRecord(taskType string, input json.RawMessage) (*TaskRecord, error) {
	now := NowUnixMilli()
	t := &TaskRecord{
		ID:        uuid.New(),
		Type:      taskType,
		Input:     input,
		Status:    TaskStatusTodo,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Validate checks if the TaskRecord has valid data.
func (t *TaskRecord) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.Type == "" {
		return ErrEmptyTaskType
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	return nil
}

// Ready reports whether the record passes the worker admission predicate:
// status to-do, or failed with attempts below the ceiling, and RunAfter
// absent or not in the future.
func (t *TaskRecord) Ready(nowMillis int64, maxAttempts int) bool {
	switch t.Status {
	case TaskStatusTodo:
	case TaskStatusFailed:
		if t.Attempts >= maxAttempts {
			return false
		}
	default:
		return false
	}

	return t.RunAfter == nil || *t.RunAfter <= nowMillis
}

func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusSuccess, TaskStatusFailed:
		return true
	default:
		return false
	}
}
