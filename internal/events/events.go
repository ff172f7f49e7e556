// Package events carries task requests from the digesters that discover
// asynchronous work to the queue that executes it. Digesters publish
// requests onto a TaskRequestBus; the writer wired at startup persists
// each request as a durable task record. Publishing is the only way the
// digest pipeline enqueues background work.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/task"
)

// TaskRequest asks for one background task to be created. The payload is
// already encoded for the task type named by Type, so sinks can persist
// it without knowing the concrete input shape.
type TaskRequest struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewIndexKeywordsRequest builds a request for a keyword indexing task.
func NewIndexKeywordsRequest(input task.IndexKeywordsInput) (*TaskRequest, error) {
	return newTaskRequest(task.TypeIndexKeywords, input)
}

// NewEmbedDocumentRequest builds a request for a chunk embedding task.
func NewEmbedDocumentRequest(input task.EmbedDocumentInput) (*TaskRequest, error) {
	return newTaskRequest(task.TypeEmbedDocument, input)
}

func newTaskRequest(taskType string, input any) (*TaskRequest, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", taskType, err)
	}

	return &TaskRequest{
		ID:        uuid.New(),
		Type:      taskType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// TaskRequestSink receives published task requests.
type TaskRequestSink interface {
	HandleTaskRequest(ctx context.Context, req *TaskRequest) error
}

// TaskRequestBus is the publishing side handed to digesters. It hides the
// sinks wired at startup.
type TaskRequestBus interface {
	Publish(ctx context.Context, req *TaskRequest) error
}
