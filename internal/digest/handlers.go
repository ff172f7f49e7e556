package digest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/task"
)

// Task handlers for the search ingestion work the search digesters
// enqueue. A missing search backend is a setup error, not a transient one,
// so the handlers fail permanently rather than burning retries.

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NewIndexKeywordsHandler returns the handler for index-keywords tasks:
// it writes the file's combined text into the keyword search backend.
func NewIndexKeywordsHandler(indexer SearchIndexer, logger *slog.Logger) task.Handler {
	log := logger.With("handler", task.TypeIndexKeywords)

	return task.HandlerFunc{
		TaskType: task.TypeIndexKeywords,
		Fn: func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
			decoded, err := task.DecodeInput(task.TypeIndexKeywords, raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", task.ErrPermanent, err)
			}
			input := decoded.(task.IndexKeywordsInput)

			if indexer == nil {
				return nil, fmt.Errorf("%w: keyword search backend not configured", task.ErrPermanent)
			}

			doc := &KeywordDocument{
				FilePath:    input.FilePath,
				Title:       input.Title,
				Text:        input.Text,
				ContentHash: contentHash(input.Text),
				WordCount:   countWords(input.Text),
			}

			if err := indexer.IndexKeywordDocument(ctx, doc); err != nil {
				return nil, fmt.Errorf("failed to index keywords for %s: %w", input.FilePath, err)
			}

			log.DebugContext(ctx, "keyword document indexed",
				"file_path", input.FilePath,
				"word_count", doc.WordCount)

			return json.Marshal(map[string]any{
				"indexed":    true,
				"word_count": doc.WordCount,
			})
		},
	}
}

// NewEmbedDocumentHandler returns the handler for embed-document tasks:
// it writes one pre-chunked span into the vector search backend.
func NewEmbedDocumentHandler(indexer SearchIndexer, logger *slog.Logger) task.Handler {
	log := logger.With("handler", task.TypeEmbedDocument)

	return task.HandlerFunc{
		TaskType: task.TypeEmbedDocument,
		Fn: func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
			decoded, err := task.DecodeInput(task.TypeEmbedDocument, raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", task.ErrPermanent, err)
			}
			input := decoded.(task.EmbedDocumentInput)

			if indexer == nil {
				return nil, fmt.Errorf("%w: vector search backend not configured", task.ErrPermanent)
			}

			chunk := &SemanticChunk{
				DocumentID:    fmt.Sprintf("%s:%s:%d", input.FilePath, input.Source, input.Chunk.Index),
				FilePath:      input.FilePath,
				Source:        input.Source,
				ChunkIndex:    input.Chunk.Index,
				ChunkCount:    input.Chunk.Count,
				Text:          input.Chunk.Text,
				SpanStart:     input.Chunk.SpanStart,
				SpanEnd:       input.Chunk.SpanEnd,
				OverlapTokens: input.Chunk.OverlapTokens,
				WordCount:     input.Chunk.WordCount,
				TokenCount:    input.Chunk.TokenCount,
				ContentHash:   contentHash(input.Chunk.Text),
			}

			if err := indexer.IndexChunk(ctx, chunk); err != nil {
				return nil, fmt.Errorf("failed to index chunk %s: %w", chunk.DocumentID, err)
			}

			log.DebugContext(ctx, "chunk indexed",
				"document_id", chunk.DocumentID,
				"token_count", chunk.TokenCount)

			return json.Marshal(map[string]any{
				"indexed":     true,
				"document_id": chunk.DocumentID,
			})
		},
	}
}

// RegisterHandlers wires both search ingestion handlers into the task
// handler registry.
func RegisterHandlers(registry *task.HandlerRegistry, indexer SearchIndexer, logger *slog.Logger) error {
	if err := registry.Register(NewIndexKeywordsHandler(indexer, logger)); err != nil {
		return err
	}
	return registry.Register(NewEmbedDocumentHandler(indexer, logger))
}
