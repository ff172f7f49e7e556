package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/config"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/store"
)

// lockMaxAge bounds how long an advisory lock row may survive its holder.
// Locks older than this were abandoned by a crashed process and are
// reclaimed on the next sweep.
const lockMaxAge = 30 * time.Minute

// Coordinator drives the digest pipeline: it selects files needing work
// and runs every eligible digester against each one, in registry order,
// under a per-file advisory lock.
type Coordinator struct {
	cfg      config.DigestConfig
	files    store.FileStore
	digests  store.DigestStore
	locks    store.LockStore
	registry *Registry
	selector *Selector
	logger   *slog.Logger

	// owner identifies this process on lock rows, for debugging stuck
	// locks.
	owner string
	sem   *semaphore.Weighted
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(
	cfg config.DigestConfig,
	files store.FileStore,
	digests store.DigestStore,
	locks store.LockStore,
	registry *Registry,
	selector *Selector,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		files:    files,
		digests:  digests,
		locks:    locks,
		registry: registry,
		selector: selector,
		logger:   logger.With("component", "digest_coordinator"),
		owner:    uuid.New().String(),
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
}

// Run sweeps periodically until the context is cancelled: reclaim
// abandoned locks, then process every file the selector finds.
func (c *Coordinator) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.SweepIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("digest coordinator started",
		"sweep_interval", interval,
		"concurrency", c.cfg.Concurrency)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("digest coordinator stopped")
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Coordinator) sweep(ctx context.Context) {
	if released, err := c.locks.ReleaseExpired(ctx, lockMaxAge); err != nil {
		c.logger.Error("failed to release expired locks", "error", err)
	} else if released > 0 {
		c.logger.Warn("reclaimed abandoned file locks", "count", released)
	}

	if _, err := c.ProcessPending(ctx); err != nil {
		c.logger.Error("digest sweep failed", "error", err)
	}
}

// ProcessPending selects one batch of files needing digestion and
// processes them concurrently, bounded by the configured concurrency.
// Returns the number of files picked up.
func (c *Coordinator) ProcessPending(ctx context.Context) (int, error) {
	paths, err := c.selector.FindFilesNeedingDigestion(ctx, c.cfg.SelectBatchSize)
	if err != nil {
		return 0, err
	}

	var wg sync.WaitGroup
	for _, path := range paths {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(filePath string) {
			defer wg.Done()
			defer c.sem.Release(1)

			if err := c.ProcessFile(ctx, filePath); err != nil {
				c.logger.Error("file pass failed",
					"file_path", filePath,
					"error", err)
			}
		}(path)
	}
	wg.Wait()

	return len(paths), nil
}

// ProcessFile runs one coordinator pass over a single file: acquire the
// advisory lock, run every registered digester in order, release the lock
// on every exit path. Returns nil when another holder owns the lock.
func (c *Coordinator) ProcessFile(ctx context.Context, filePath string) error {
	acquired, err := c.locks.Acquire(ctx, filePath, c.owner)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for %s: %w", filePath, err)
	}
	if !acquired {
		c.logger.Debug("file locked by another holder, skipping", "file_path", filePath)
		return nil
	}
	defer func() {
		// Release must survive context cancellation or the file stays
		// locked until the expiry sweep.
		if err := c.locks.Release(context.WithoutCancel(ctx), filePath); err != nil {
			c.logger.Error("failed to release file lock",
				"file_path", filePath,
				"error", err)
		}
	}()

	file, err := c.files.GetByPath(ctx, filePath)
	if err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			c.logger.Debug("file vanished before pass", "file_path", filePath)
			return nil
		}
		return fmt.Errorf("failed to load file %s: %w", filePath, err)
	}
	if file.IsFolder {
		return nil
	}

	for _, d := range c.registry.All() {
		// One failing digester never aborts the pass for its siblings;
		// persistence errors are logged and the pass moves on.
		if err := c.runDigesterPass(ctx, d, file); err != nil {
			c.logger.Error("digester pass failed",
				"file_path", filePath,
				"digester", d.Name(),
				"error", err)
		}
	}

	return nil
}

// runDigesterPass decides and executes one digester against one file.
func (c *Coordinator) runDigesterPass(ctx context.Context, d Digester, file *domain.File) error {
	// Reload per digester so downstream digesters observe upstream results
	// from the same pass.
	existing, err := c.digests.ListByPath(ctx, file.Path)
	if err != nil {
		return fmt.Errorf("failed to list digests: %w", err)
	}

	byName := make(map[string]*domain.Digest, len(existing))
	for _, row := range existing {
		byName[row.Digester] = row
	}

	outputs := outputNames(d)

	for _, name := range outputs {
		if row, ok := byName[name]; ok && row.Status == domain.DigestStatusInProgress {
			return nil
		}
	}

	var pending []string
	for _, name := range outputs {
		row, ok := byName[name]
		if !ok || row.Status == domain.DigestStatusTodo || row.Retryable(MaxAttempts) {
			pending = append(pending, name)
		}
	}

	// A fully terminal digester may still need a forced re-run when its
	// upstream content changed after it completed.
	if len(pending) == 0 {
		rp, ok := d.(Reprocessor)
		if !ok || !rp.ShouldReprocessCompleted(file, existing) {
			return nil
		}
		pending = outputs
	}

	if !d.CanDigest(file, existing) {
		for _, name := range pending {
			if err := c.markSkipped(ctx, file.Path, name); err != nil {
				return err
			}
		}
		return nil
	}

	for _, name := range pending {
		if err := c.markInProgress(ctx, file.Path, name); err != nil {
			return err
		}
	}

	results, runErr := runDigester(ctx, d, file, existing)
	if runErr != nil {
		for _, name := range pending {
			if err := c.markFailed(ctx, file.Path, name, runErr.Error()); err != nil {
				return err
			}
		}
		c.logger.Warn("digester failed",
			"file_path", file.Path,
			"digester", d.Name(),
			"error", runErr)
		return nil
	}

	// No results means "nothing to persist yet, try again later": put the
	// rows back to todo without burning an attempt.
	if len(results) == 0 {
		for _, name := range pending {
			if err := c.revertTodo(ctx, file.Path, name); err != nil {
				return err
			}
		}
		return nil
	}

	produced := make(map[string]bool, len(results))
	for _, res := range results {
		produced[res.Digester] = true
		if err := c.saveOutput(ctx, file.Path, res); err != nil {
			return err
		}
	}

	// A declared output the digester did not produce is a failure for that
	// output, not a silent gap.
	for _, name := range pending {
		if !produced[name] {
			if err := c.markFailed(ctx, file.Path, name, "output not produced"); err != nil {
				return err
			}
		}
	}

	return nil
}

// runDigester isolates a digester invocation: a panic inside one digester
// is converted to an error rather than taking down the pass.
func runDigester(ctx context.Context, d Digester, file *domain.File, existing []*domain.Digest) (results []Input, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("digester panicked: %v", r)
		}
	}()
	return d.Digest(ctx, file, existing)
}

// saveOutput upserts one digester result and triggers cascading resets
// when an upstream text source completed with new content.
func (c *Coordinator) saveOutput(ctx context.Context, filePath string, in Input) error {
	row, err := c.getOrCreate(ctx, filePath, in.Digester)
	if err != nil {
		return err
	}

	row.Status = in.Status
	row.Content = in.Content
	row.ArchiveRef = in.ArchiveRef
	row.Error = in.Error
	row.UpdatedAt = domain.NowUnixMilli()

	switch in.Status {
	case domain.DigestStatusCompleted, domain.DigestStatusSkipped:
		row.Attempts = 0
	case domain.DigestStatusFailed:
		if row.Attempts > MaxAttempts {
			row.Attempts = MaxAttempts
		}
	}

	if err := c.digests.Upsert(ctx, row); err != nil {
		return fmt.Errorf("failed to save digest %s/%s: %w", filePath, in.Digester, err)
	}

	if in.Status == domain.DigestStatusCompleted && in.Content != nil && *in.Content != "" {
		return c.cascadeResets(ctx, filePath, in.Digester)
	}

	return nil
}

// cascadeResets returns every terminal downstream digest of the named
// upstream to todo, so the next pass re-runs it against the new content.
func (c *Coordinator) cascadeResets(ctx context.Context, filePath, upstream string) error {
	downstream, ok := CascadingResets[upstream]
	if !ok {
		return nil
	}

	existing, err := c.digests.ListByPath(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to list digests for cascade: %w", err)
	}

	byName := make(map[string]*domain.Digest, len(existing))
	for _, row := range existing {
		byName[row.Digester] = row
	}

	var reset []string
	for _, name := range downstream {
		row, ok := byName[name]
		if !ok {
			continue
		}
		// Terminal states only; todo and in-progress rows are left alone.
		switch row.Status {
		case domain.DigestStatusCompleted, domain.DigestStatusSkipped, domain.DigestStatusFailed:
			if err := c.digests.Reset(ctx, filePath, name); err != nil {
				return fmt.Errorf("failed to reset digest %s/%s: %w", filePath, name, err)
			}
			reset = append(reset, name)
		}
	}

	if len(reset) > 0 {
		c.logger.Info("cascading reset",
			"file_path", filePath,
			"trigger", upstream,
			"targets", reset)
	}

	return nil
}

func (c *Coordinator) getOrCreate(ctx context.Context, filePath, digester string) (*domain.Digest, error) {
	row, err := c.digests.GetByPathAndDigester(ctx, filePath, digester)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, store.ErrDigestNotFound) {
		return nil, fmt.Errorf("failed to load digest %s/%s: %w", filePath, digester, err)
	}

	return domain.NewDigest(filePath, digester)
}

func (c *Coordinator) markInProgress(ctx context.Context, filePath, digester string) error {
	row, err := c.getOrCreate(ctx, filePath, digester)
	if err != nil {
		return err
	}

	row.Status = domain.DigestStatusInProgress
	row.Attempts++
	row.Error = nil
	row.UpdatedAt = domain.NowUnixMilli()

	if err := c.digests.Upsert(ctx, row); err != nil {
		return fmt.Errorf("failed to mark digest in progress: %w", err)
	}
	return nil
}

func (c *Coordinator) markSkipped(ctx context.Context, filePath, digester string) error {
	row, err := c.getOrCreate(ctx, filePath, digester)
	if err != nil {
		return err
	}

	row.Status = domain.DigestStatusSkipped
	row.Error = strptr("not applicable")
	row.Attempts = 0
	row.UpdatedAt = domain.NowUnixMilli()

	if err := c.digests.Upsert(ctx, row); err != nil {
		return fmt.Errorf("failed to mark digest skipped: %w", err)
	}
	return nil
}

func (c *Coordinator) markFailed(ctx context.Context, filePath, digester, errMsg string) error {
	row, err := c.getOrCreate(ctx, filePath, digester)
	if err != nil {
		return err
	}

	row.Status = domain.DigestStatusFailed
	row.Error = strptr(errMsg)
	if row.Attempts > MaxAttempts {
		row.Attempts = MaxAttempts
	}
	row.UpdatedAt = domain.NowUnixMilli()

	if err := c.digests.Upsert(ctx, row); err != nil {
		return fmt.Errorf("failed to mark digest failed: %w", err)
	}
	return nil
}

func (c *Coordinator) revertTodo(ctx context.Context, filePath, digester string) error {
	row, err := c.getOrCreate(ctx, filePath, digester)
	if err != nil {
		return err
	}

	row.Status = domain.DigestStatusTodo
	row.Error = nil
	if row.Attempts > 0 {
		row.Attempts--
	}
	row.UpdatedAt = domain.NowUnixMilli()

	if err := c.digests.Upsert(ctx, row); err != nil {
		return fmt.Errorf("failed to revert digest to todo: %w", err)
	}
	return nil
}
