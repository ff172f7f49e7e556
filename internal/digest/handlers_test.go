package digest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/chunker"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/task"
)

type fakeSearchIndexer struct {
	docs   []*KeywordDocument
	chunks []*SemanticChunk
	err    error
}

func (f *fakeSearchIndexer) IndexKeywordDocument(_ context.Context, doc *KeywordDocument) error {
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeSearchIndexer) IndexChunk(_ context.Context, chunk *SemanticChunk) error {
	if f.err != nil {
		return f.err
	}
	f.chunks = append(f.chunks, chunk)
	return nil
}

func TestIndexKeywordsHandler(t *testing.T) {
	indexer := &fakeSearchIndexer{}
	h := NewIndexKeywordsHandler(indexer, testLogger())
	assert.Equal(t, task.TypeIndexKeywords, h.Type())

	input, err := json.Marshal(task.IndexKeywordsInput{
		FilePath: "inbox/note.md",
		Title:    "note.md",
		Text:     "beach trip notes",
	})
	require.NoError(t, err)

	output, err := h.Handle(context.Background(), input)
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal(output, &result))
	assert.Equal(t, true, result["indexed"])
	assert.EqualValues(t, 3, result["word_count"])

	require.Len(t, indexer.docs, 1)
	doc := indexer.docs[0]
	assert.Equal(t, "inbox/note.md", doc.FilePath)
	assert.Equal(t, "note.md", doc.Title)
	assert.Equal(t, contentHash("beach trip notes"), doc.ContentHash)
}

func TestIndexKeywordsHandlerNoBackendIsPermanent(t *testing.T) {
	h := NewIndexKeywordsHandler(nil, testLogger())

	input, _ := json.Marshal(task.IndexKeywordsInput{FilePath: "p", Text: "t"})
	_, err := h.Handle(context.Background(), input)
	require.Error(t, err)
	assert.ErrorIs(t, err, task.ErrPermanent)
}

func TestIndexKeywordsHandlerBadPayloadIsPermanent(t *testing.T) {
	h := NewIndexKeywordsHandler(&fakeSearchIndexer{}, testLogger())

	_, err := h.Handle(context.Background(), json.RawMessage(`{"file_path":`))
	require.Error(t, err)
	assert.ErrorIs(t, err, task.ErrPermanent)
}

func TestEmbedDocumentHandler(t *testing.T) {
	indexer := &fakeSearchIndexer{}
	h := NewEmbedDocumentHandler(indexer, testLogger())
	assert.Equal(t, task.TypeEmbedDocument, h.Type())

	input, err := json.Marshal(task.EmbedDocumentInput{
		FilePath: "inbox/link.md",
		Source:   "url-crawl-content",
		Chunk: chunker.Chunk{
			Index:         2,
			Count:         5,
			Text:          "chunk body text",
			SpanStart:     120,
			SpanEnd:       180,
			OverlapTokens: 10,
			WordCount:     3,
			TokenCount:    14,
		},
	})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, indexer.chunks, 1)
	chunk := indexer.chunks[0]
	assert.Equal(t, "inbox/link.md:url-crawl-content:2", chunk.DocumentID)
	assert.Equal(t, "url-crawl-content", chunk.Source)
	assert.Equal(t, 2, chunk.ChunkIndex)
	assert.Equal(t, 5, chunk.ChunkCount)
	assert.Equal(t, 120, chunk.SpanStart)
	assert.Equal(t, 180, chunk.SpanEnd)
	assert.Equal(t, 10, chunk.OverlapTokens)
	assert.Equal(t, 14, chunk.TokenCount)
	assert.Equal(t, contentHash("chunk body text"), chunk.ContentHash)
}

func TestEmbedDocumentHandlerNoBackendIsPermanent(t *testing.T) {
	h := NewEmbedDocumentHandler(nil, testLogger())

	input, _ := json.Marshal(task.EmbedDocumentInput{FilePath: "p", Source: "file"})
	_, err := h.Handle(context.Background(), input)
	require.Error(t, err)
	assert.ErrorIs(t, err, task.ErrPermanent)
}

func TestRegisterHandlers(t *testing.T) {
	registry := task.NewHandlerRegistry()
	require.NoError(t, RegisterHandlers(registry, &fakeSearchIndexer{}, testLogger()))

	assert.NotNil(t, registry.Get(task.TypeIndexKeywords))
	assert.NotNil(t, registry.Get(task.TypeEmbedDocument))
}
