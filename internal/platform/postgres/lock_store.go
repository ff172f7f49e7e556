package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/platform/logger"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/store"
)

// LockStore implements store.LockStore with a sentinel-row table. The
// create-if-absent INSERT is the whole locking protocol; Postgres'
// uniqueness guarantee on the primary key does the arbitration.
type LockStore struct {
	db store.DBTX
}

// NewLockStore creates a new LockStore.
func NewLockStore(db store.DBTX) *LockStore {
	return &LockStore{db: db}
}

// Acquire attempts to create the lock row. Returns false when another
// holder already owns the file.
func (s *LockStore) Acquire(ctx context.Context, filePath, owner string) (bool, error) {
	query := `
		INSERT INTO processing_locks (file_path, locked_at, locked_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (file_path) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query, filePath, domain.NowUnixMilli(), owner)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// Release deletes the lock row. Releasing an absent lock is a no-op.
func (s *LockStore) Release(ctx context.Context, filePath string) error {
	query := `DELETE FROM processing_locks WHERE file_path = $1`

	if _, err := s.db.ExecContext(ctx, query, filePath); err != nil {
		return fmt.Errorf("failed to release lock: %w", MapError(err))
	}

	return nil
}

// ReleaseExpired reclaims locks abandoned by crashed processes.
func (s *LockStore) ReleaseExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	log := logger.FromContext(ctx)
	cutoff := domain.NowUnixMilli() - maxAge.Milliseconds()

	query := `DELETE FROM processing_locks WHERE locked_at < $1`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired locks: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		log.Warn("released expired processing locks", "count", rowsAffected)
	}

	return int(rowsAffected), nil
}
