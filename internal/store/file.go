package store

import (
	"context"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
)

// FileStore reads the file metadata cache. The digest pipeline never
// writes to it.
type FileStore interface {
	// GetByPath returns the file record, or ErrFileNotFound.
	GetByPath(ctx context.Context, path string) (*domain.File, error)

	// FindPathsNeedingDigestion returns up to limit non-folder file paths
	// for which at least one of the given digesters has no digest row, a
	// todo row, or a failed row with attempts below maxAttempts. Paths
	// starting with any of the excluded prefixes are never returned.
	// Ordered oldest-created-first.
	FindPathsNeedingDigestion(ctx context.Context, digesters []string, maxAttempts, limit int, excludedPrefixes []string) ([]string, error)
}
