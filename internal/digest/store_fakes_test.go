package digest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/store"
)

// In-memory store fakes shared by the coordinator and selector tests.

type memoryDigestStore struct {
	mu   sync.Mutex
	rows map[string]*domain.Digest
}

func newMemoryDigestStore() *memoryDigestStore {
	return &memoryDigestStore{rows: make(map[string]*domain.Digest)}
}

func (s *memoryDigestStore) Upsert(_ context.Context, d *domain.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *d
	s.rows[d.ID] = &clone
	return nil
}

func (s *memoryDigestStore) GetByPathAndDigester(_ context.Context, filePath, digester string) (*domain.Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[domain.DigestID(filePath, digester)]
	if !ok {
		return nil, store.ErrDigestNotFound
	}
	clone := *row
	return &clone, nil
}

func (s *memoryDigestStore) ListByPath(_ context.Context, filePath string) ([]*domain.Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Digest
	for _, row := range s.rows {
		if row.FilePath == filePath {
			clone := *row
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Digester < result[j].Digester })
	return result, nil
}

func (s *memoryDigestStore) Reset(_ context.Context, filePath, digester string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[domain.DigestID(filePath, digester)]
	if !ok {
		return nil
	}

	row.Status = domain.DigestStatusTodo
	row.Content = nil
	row.ArchiveRef = nil
	row.Error = nil
	row.Attempts = 0
	row.UpdatedAt = domain.NowUnixMilli()
	return nil
}

func (s *memoryDigestStore) GetStats(_ context.Context) ([]domain.DigesterStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDigester := make(map[string]*domain.DigesterStats)
	for _, row := range s.rows {
		st, ok := byDigester[row.Digester]
		if !ok {
			st = &domain.DigesterStats{Digester: row.Digester}
			byDigester[row.Digester] = st
		}
		switch row.Status {
		case domain.DigestStatusTodo:
			st.Todo++
		case domain.DigestStatusInProgress:
			st.InProgress++
		case domain.DigestStatusCompleted:
			st.Completed++
		case domain.DigestStatusFailed:
			st.Failed++
		case domain.DigestStatusSkipped:
			st.Skipped++
		}
	}

	var result []domain.DigesterStats
	for _, st := range byDigester {
		result = append(result, *st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Digester < result[j].Digester })
	return result, nil
}

// status is a test helper returning the current status of one digest row.
func (s *memoryDigestStore) status(filePath, digester string) domain.DigestStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[domain.DigestID(filePath, digester)]
	if !ok {
		return ""
	}
	return row.Status
}

func (s *memoryDigestStore) row(filePath, digester string) *domain.Digest {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[domain.DigestID(filePath, digester)]
	if !ok {
		return nil
	}
	clone := *row
	return &clone
}

type memoryFileStore struct {
	mu    sync.Mutex
	files map[string]*domain.File

	// digests, when set, lets FindPathsNeedingDigestion apply the real
	// eligibility predicate instead of returning every file.
	digests *memoryDigestStore
}

func newMemoryFileStore(files ...*domain.File) *memoryFileStore {
	s := &memoryFileStore{files: make(map[string]*domain.File)}
	for _, f := range files {
		s.files[f.Path] = f
	}
	return s
}

func (s *memoryFileStore) GetByPath(_ context.Context, path string) (*domain.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[path]
	if !ok {
		return nil, store.ErrFileNotFound
	}
	clone := *f
	return &clone, nil
}

func (s *memoryFileStore) FindPathsNeedingDigestion(ctx context.Context, digesters []string, maxAttempts, limit int, excludedPrefixes []string) ([]string, error) {
	s.mu.Lock()
	files := make([]*domain.File, 0, len(s.files))
	for _, f := range s.files {
		files = append(files, f)
	}
	s.mu.Unlock()

	sort.Slice(files, func(i, j int) bool { return files[i].CreatedAt < files[j].CreatedAt })

	var paths []string
	for _, f := range files {
		if f.IsFolder || hasAnyPrefix(f.Path, excludedPrefixes) {
			continue
		}
		if s.needsWork(ctx, f.Path, digesters, maxAttempts) {
			paths = append(paths, f.Path)
			if len(paths) == limit {
				break
			}
		}
	}
	return paths, nil
}

func (s *memoryFileStore) needsWork(ctx context.Context, path string, digesters []string, maxAttempts int) bool {
	if s.digests == nil {
		return true
	}

	rows, _ := s.digests.ListByPath(ctx, path)
	byName := make(map[string]*domain.Digest, len(rows))
	for _, row := range rows {
		byName[row.Digester] = row
	}

	for _, name := range digesters {
		row, ok := byName[name]
		if !ok || row.Status == domain.DigestStatusTodo || row.Retryable(maxAttempts) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if len(path) >= len(p) && path[:len(p)] == p {
			return true
		}
	}
	return false
}

type memoryLockStore struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{locks: make(map[string]time.Time)}
}

func (s *memoryLockStore) Acquire(_ context.Context, filePath, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.locks[filePath]; held {
		return false, nil
	}
	s.locks[filePath] = time.Now()
	return true, nil
}

func (s *memoryLockStore) Release(_ context.Context, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, filePath)
	return nil
}

func (s *memoryLockStore) ReleaseExpired(_ context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	released := 0
	for path, at := range s.locks {
		if at.Before(cutoff) {
			delete(s.locks, path)
			released++
		}
	}
	return released, nil
}

func (s *memoryLockStore) held(filePath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, held := s.locks[filePath]
	return held
}
