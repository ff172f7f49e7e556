package store

import (
	"context"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
)

// DigestStore persists digest rows keyed deterministically by
// (file path, digester). All writes are upserts: retries are idempotent
// at the storage layer, last writer wins per key.
type DigestStore interface {
	// Upsert inserts the digest or, when a row with the same ID exists,
	// overwrites its mutable columns (status, content, archive ref, error,
	// attempts, updated_at).
	Upsert(ctx context.Context, digest *domain.Digest) error

	// GetByPathAndDigester returns the digest for the pair, or
	// ErrDigestNotFound.
	GetByPathAndDigester(ctx context.Context, filePath, digester string) (*domain.Digest, error)

	// ListByPath returns all digest rows for the file, in digester name order.
	ListByPath(ctx context.Context, filePath string) ([]*domain.Digest, error)

	// Reset returns the digest for the pair to the todo state, clearing
	// content, error and attempts. Used by cascading resets. Resetting a
	// missing row is a no-op.
	Reset(ctx context.Context, filePath, digester string) error

	// GetStats returns per-digester aggregate counts for the operational
	// surface.
	GetStats(ctx context.Context) ([]domain.DigesterStats, error)
}
