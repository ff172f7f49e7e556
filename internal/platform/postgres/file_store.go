package postgres

import (
	"context"
	"fmt"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/store"
)

// FileStore implements the read-only store.FileStore against the file
// metadata cache table.
type FileStore struct {
	db store.DBTX
}

// NewFileStore creates a new FileStore.
func NewFileStore(db store.DBTX) *FileStore {
	return &FileStore{db: db}
}

// GetByPath returns the file record, or ErrFileNotFound.
func (s *FileStore) GetByPath(ctx context.Context, path string) (*domain.File, error) {
	query := `
		SELECT path, name, is_folder, size, mime_type, hash, modified_at, created_at, text_preview
		FROM files
		WHERE path = $1
	`

	var f domain.File
	err := s.db.QueryRowContext(ctx, query, path).Scan(
		&f.Path,
		&f.Name,
		&f.IsFolder,
		&f.Size,
		&f.MimeType,
		&f.Hash,
		&f.ModifiedAt,
		&f.CreatedAt,
		&f.TextPreview,
	)
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", MapError(err))
	}

	return &f, nil
}

// FindPathsNeedingDigestion returns non-folder file paths with at least one
// digester still requiring work: no digest row, a todo row, or a failed row
// with attempts left. A file whose only pending digester has exhausted its
// attempts is not returned.
func (s *FileStore) FindPathsNeedingDigestion(ctx context.Context, digesters []string, maxAttempts, limit int, excludedPrefixes []string) ([]string, error) {
	if len(digesters) == 0 {
		return nil, nil
	}

	query := `
		SELECT f.path
		FROM files f
		WHERE f.is_folder = FALSE
		  AND NOT EXISTS (
			SELECT 1 FROM unnest($1::text[]) AS excl(prefix)
			WHERE f.path LIKE excl.prefix || '%'
		  )
		  AND EXISTS (
			SELECT 1 FROM unnest($2::text[]) AS reg(name)
			LEFT JOIN digests d ON d.file_path = f.path AND d.digester = reg.name
			WHERE d.id IS NULL
			   OR d.status = 'todo'
			   OR (d.status = 'failed' AND d.attempts < $3)
		  )
		ORDER BY f.created_at ASC
		LIMIT $4
	`

	rows, err := s.db.QueryContext(ctx, query, excludedPrefixes, digesters, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query files needing digestion: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan file path: %w", err)
		}
		paths = append(paths, path)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate file rows: %w", err)
	}

	return paths, nil
}
