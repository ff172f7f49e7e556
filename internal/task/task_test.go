package task

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInput(t *testing.T) {
	raw := json.RawMessage(`{"file_path":"inbox/note.md","source":"file","chunk":{"index":0,"count":1,"text":"hello"}}`)

	decoded, err := DecodeInput(TypeEmbedDocument, raw)
	require.NoError(t, err)

	input, ok := decoded.(EmbedDocumentInput)
	require.True(t, ok)
	assert.Equal(t, "inbox/note.md", input.FilePath)
	assert.Equal(t, "file", input.Source)
	assert.Equal(t, "hello", input.Chunk.Text)
}

func TestDecodeInputUnknownType(t *testing.T) {
	_, err := DecodeInput("reticulate-splines", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task type")
}

func TestDecodeInputMalformedPayload(t *testing.T) {
	_, err := DecodeInput(TypeIndexKeywords, json.RawMessage(`{"file_path":42}`))
	require.Error(t, err)
}

func TestHandlerRegistry(t *testing.T) {
	registry := NewHandlerRegistry()

	h := HandlerFunc{
		TaskType: TypeEmbedDocument,
		Fn: func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`{"ok":true}`), nil
		},
	}

	require.NoError(t, registry.Register(h))
	assert.NotNil(t, registry.Get(TypeEmbedDocument))
	assert.Nil(t, registry.Get(TypeIndexKeywords))

	// Double registration is an error, not a silent overwrite.
	err := registry.Register(h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}
