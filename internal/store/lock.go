package store

import (
	"context"
	"time"
)

// LockStore implements the per-file advisory lock: a sentinel row keyed by
// file path, created-if-absent. It exists as a table rather than an
// in-process mutex because multiple worker processes may run against the
// same database.
type LockStore interface {
	// Acquire attempts to create the lock row for the file path. Returns
	// false without error when another holder already owns it.
	Acquire(ctx context.Context, filePath, owner string) (bool, error)

	// Release deletes the lock row. Releasing an absent lock is a no-op.
	Release(ctx context.Context, filePath string) error

	// ReleaseExpired deletes lock rows older than maxAge, reclaiming locks
	// abandoned by crashed processes. Returns the number released.
	ReleaseExpired(ctx context.Context, maxAge time.Duration) (int, error)
}
