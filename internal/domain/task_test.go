package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskRecord(t *testing.T) {
	input := json.RawMessage(`{"file_path":"inbox/note.md"}`)

	task, err := NewTaskRecord("embed-document", input)
	require.NoError(t, err)

	assert.Equal(t, TaskStatusTodo, task.Status)
	assert.Equal(t, "embed-document", task.Type)
	assert.Zero(t, task.Version)
	assert.Zero(t, task.Attempts)
	assert.Nil(t, task.RunAfter)
}

func TestNewTaskRecordRequiresType(t *testing.T) {
	_, err := NewTaskRecord("", nil)
	assert.ErrorIs(t, err, ErrEmptyTaskType)
}

func TestTaskReady(t *testing.T) {
	now := NowUnixMilli()
	past := now - 1000
	future := now + 60_000

	tests := []struct {
		name string
		task TaskRecord
		want bool
	}{
		{"todo no run_after", TaskRecord{Status: TaskStatusTodo}, true},
		{"todo run_after past", TaskRecord{Status: TaskStatusTodo, RunAfter: &past}, true},
		{"todo run_after future", TaskRecord{Status: TaskStatusTodo, RunAfter: &future}, false},
		{"failed retryable", TaskRecord{Status: TaskStatusFailed, Attempts: 1}, true},
		{"failed exhausted", TaskRecord{Status: TaskStatusFailed, Attempts: 3}, false},
		{"in-progress never ready", TaskRecord{Status: TaskStatusInProgress}, false},
		{"success never ready", TaskRecord{Status: TaskStatusSuccess}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.Ready(now, 3))
		})
	}
}

func TestFileHelpers(t *testing.T) {
	f := &File{Name: "Photo.JPG", MimeType: "image/jpeg"}
	assert.Equal(t, ".jpg", f.Extension())
	assert.True(t, f.HasMimePrefix("image/"))
	assert.False(t, f.HasMimePrefix("audio/"))

	assert.Equal(t, "", (&File{Name: "README"}).Extension())
}
