package digest

import (
	"context"
	"fmt"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/store"
)

// DefaultExcludedPrefixes lists path prefixes the selector never considers
// for digestion: internal app storage, VCS metadata and dependency trees.
var DefaultExcludedPrefixes = []string{".app/", ".git/", "node_modules/"}

// Selector finds files that still need digestion: at least one registered
// digest type has no row, a todo row, or a failed row with attempts left.
type Selector struct {
	files            store.FileStore
	registry         *Registry
	excludedPrefixes []string
}

// NewSelector creates a Selector over the file store and registry. A nil
// excludedPrefixes falls back to DefaultExcludedPrefixes.
func NewSelector(files store.FileStore, registry *Registry, excludedPrefixes []string) *Selector {
	if excludedPrefixes == nil {
		excludedPrefixes = DefaultExcludedPrefixes
	}
	return &Selector{
		files:            files,
		registry:         registry,
		excludedPrefixes: excludedPrefixes,
	}
}

// FindFilesNeedingDigestion returns up to limit file paths with pending
// digest work, oldest first. A file whose only pending digester has
// exhausted its attempts is not returned.
func (s *Selector) FindFilesNeedingDigestion(ctx context.Context, limit int) ([]string, error) {
	types := s.registry.DigestTypes()
	if len(types) == 0 {
		return nil, nil
	}

	paths, err := s.files.FindPathsNeedingDigestion(ctx, types, MaxAttempts, limit, s.excludedPrefixes)
	if err != nil {
		return nil, fmt.Errorf("failed to select files needing digestion: %w", err)
	}

	return paths, nil
}
