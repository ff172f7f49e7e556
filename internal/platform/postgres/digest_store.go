package postgres

import (
	"context"
	"fmt"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/platform/logger"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/store"
)

// DigestStore implements store.DigestStore using PostgreSQL.
type DigestStore struct {
	db store.DBTX
}

// NewDigestStore creates a new DigestStore.
func NewDigestStore(db store.DBTX) *DigestStore {
	return &DigestStore{db: db}
}

// Upsert inserts the digest or overwrites the mutable columns of the
// existing row with the same ID. The (file_path, digester) identity
// columns are immutable once created.
func (s *DigestStore) Upsert(ctx context.Context, digest *domain.Digest) error {
	log := logger.FromContext(ctx)

	if err := digest.Validate(); err != nil {
		return fmt.Errorf("invalid digest: %w", err)
	}

	query := `
		INSERT INTO digests (id, file_path, digester, status, content, archive_ref, error, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			content = EXCLUDED.content,
			archive_ref = EXCLUDED.archive_ref,
			error = EXCLUDED.error,
			attempts = EXCLUDED.attempts,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		digest.ID,
		digest.FilePath,
		digest.Digester,
		digest.Status,
		digest.Content,
		digest.ArchiveRef,
		digest.Error,
		digest.Attempts,
		digest.CreatedAt,
		digest.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to upsert digest",
			"file_path", digest.FilePath,
			"digester", digest.Digester,
			"error", err)
		return fmt.Errorf("failed to upsert digest: %w", MapError(err))
	}

	return nil
}

// GetByPathAndDigester returns the digest for the pair, or ErrDigestNotFound.
func (s *DigestStore) GetByPathAndDigester(ctx context.Context, filePath, digester string) (*domain.Digest, error) {
	query := `
		SELECT id, file_path, digester, status, content, archive_ref, error, attempts, created_at, updated_at
		FROM digests
		WHERE file_path = $1 AND digester = $2
	`

	row := s.db.QueryRowContext(ctx, query, filePath, digester)

	digest, err := scanDigest(row)
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrDigestNotFound
		}
		return nil, fmt.Errorf("failed to get digest: %w", MapError(err))
	}

	return digest, nil
}

// ListByPath returns all digest rows for the file, in digester name order.
func (s *DigestStore) ListByPath(ctx context.Context, filePath string) ([]*domain.Digest, error) {
	query := `
		SELECT id, file_path, digester, status, content, archive_ref, error, attempts, created_at, updated_at
		FROM digests
		WHERE file_path = $1
		ORDER BY digester ASC
	`

	rows, err := s.db.QueryContext(ctx, query, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list digests: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var digests []*domain.Digest
	for rows.Next() {
		digest, err := scanDigest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan digest row: %w", err)
		}
		digests = append(digests, digest)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate digest rows: %w", err)
	}

	return digests, nil
}

// Reset returns the digest row to the todo state, clearing content, error
// and attempts. A missing row is a no-op.
func (s *DigestStore) Reset(ctx context.Context, filePath, digester string) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE digests
		SET status = $1, content = NULL, archive_ref = NULL, error = NULL, attempts = 0, updated_at = $2
		WHERE file_path = $3 AND digester = $4
	`

	_, err := s.db.ExecContext(ctx, query,
		domain.DigestStatusTodo,
		domain.NowUnixMilli(),
		filePath,
		digester,
	)
	if err != nil {
		log.Error("failed to reset digest",
			"file_path", filePath,
			"digester", digester,
			"error", err)
		return fmt.Errorf("failed to reset digest: %w", MapError(err))
	}

	return nil
}

// GetStats returns per-digester aggregate counts.
func (s *DigestStore) GetStats(ctx context.Context) ([]domain.DigesterStats, error) {
	query := `
		SELECT digester,
			COUNT(*) FILTER (WHERE status = 'todo'),
			COUNT(*) FILTER (WHERE status = 'in-progress'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'skipped')
		FROM digests
		GROUP BY digester
		ORDER BY digester ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query digest stats: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var stats []domain.DigesterStats
	for rows.Next() {
		var st domain.DigesterStats
		if err := rows.Scan(&st.Digester, &st.Todo, &st.InProgress, &st.Completed, &st.Failed, &st.Skipped); err != nil {
			return nil, fmt.Errorf("failed to scan digest stats row: %w", err)
		}
		stats = append(stats, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate digest stats rows: %w", err)
	}

	return stats, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDigest(row rowScanner) (*domain.Digest, error) {
	var d domain.Digest
	err := row.Scan(
		&d.ID,
		&d.FilePath,
		&d.Digester,
		&d.Status,
		&d.Content,
		&d.ArchiveRef,
		&d.Error,
		&d.Attempts,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
