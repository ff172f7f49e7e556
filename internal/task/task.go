package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/chunker"
)

// ErrPermanent marks a task failure as a setup or configuration problem
// rather than a transient one. Handlers wrap errors with it to opt out of
// the retry schedule; the worker fails such tasks terminally.
var ErrPermanent = errors.New("permanent task failure")

// Task type tags. Each tag identifies exactly one handler and one input
// payload shape.
const (
	// TypeEmbedDocument chunks a document's text and pushes the chunks
	// into the semantic search index.
	TypeEmbedDocument = "embed-document"

	// TypeIndexKeywords pushes a document's text into the keyword search
	// index.
	TypeIndexKeywords = "index-keywords"
)

// EmbedDocumentInput is the payload for TypeEmbedDocument tasks: one
// pre-chunked span of a document's text, tagged with the content source it
// came from.
type EmbedDocumentInput struct {
	FilePath string        `json:"file_path"`
	Source   string        `json:"source"`
	Chunk    chunker.Chunk `json:"chunk"`
}

// IndexKeywordsInput is the payload for TypeIndexKeywords tasks.
type IndexKeywordsInput struct {
	FilePath string `json:"file_path"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text"`
}

// DecodeInput parses a raw task payload into the typed struct for the
// given task type. Payloads are only ever JSON at the persistence
// boundary; internal code works with these structs.
func DecodeInput(taskType string, raw json.RawMessage) (any, error) {
	switch taskType {
	case TypeEmbedDocument:
		var input EmbedDocumentInput
		if err := json.Unmarshal(raw, &input); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", taskType, err)
		}
		return input, nil
	case TypeIndexKeywords:
		var input IndexKeywordsInput
		if err := json.Unmarshal(raw, &input); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", taskType, err)
		}
		return input, nil
	default:
		return nil, fmt.Errorf("unknown task type %q", taskType)
	}
}

// Handler executes tasks of a single type. Handle returns the serialized
// output to record on the task, or an error to trigger the retry policy.
type Handler interface {
	// Type returns the task type tag this handler serves.
	Type() string

	// Handle runs the task. The input is the raw JSON payload stored on
	// the task record.
	Handle(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// HandlerRegistry maps task type tags to their handlers. Handlers are
// registered explicitly at startup; there is no reflection-based
// discovery.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// Register adds a handler for its task type. Registering a second handler
// for the same type is an error.
func (r *HandlerRegistry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[h.Type()]; exists {
		return fmt.Errorf("handler already registered for task type %q", h.Type())
	}

	r.handlers[h.Type()] = h
	return nil
}

// Get returns the handler for the task type, or nil when none is
// registered.
func (r *HandlerRegistry) Get(taskType string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[taskType]
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	TaskType string
	Fn       func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// Type returns the task type tag.
func (h HandlerFunc) Type() string { return h.TaskType }

// Handle invokes the wrapped function.
func (h HandlerFunc) Handle(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	return h.Fn(ctx, input)
}
