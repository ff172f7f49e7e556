package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/store"
)

// WorkerConfig holds configuration for the polling worker.
type WorkerConfig struct {
	// BatchSize bounds both the number of ready tasks fetched per poll and
	// the number executed concurrently.
	BatchSize int

	// PollInterval is the idle delay between polls.
	PollInterval time.Duration

	// MaxAttempts is the retry ceiling; at it, a failed task is terminal.
	MaxAttempts int

	// StaleAfter is how long an in-progress task may sit before the sweep
	// presumes its worker crashed and requeues it.
	StaleAfter time.Duration

	// StaleSweepInterval is how often the stale sweep runs.
	StaleSweepInterval time.Duration

	// RetryBaseSeconds, RetryMaxSeconds and RetryJitterFactor parameterize
	// CalculateRetryDelay for failed tasks.
	RetryBaseSeconds  int64
	RetryMaxSeconds   int64
	RetryJitterFactor float64
}

// DefaultWorkerConfig returns a WorkerConfig with reasonable defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:          10,
		PollInterval:       time.Second,
		MaxAttempts:        3,
		StaleAfter:         5 * time.Minute,
		StaleSweepInterval: time.Minute,
		RetryBaseSeconds:   DefaultRetryBaseSeconds,
		RetryMaxSeconds:    DefaultRetryMaxSeconds,
		RetryJitterFactor:  DefaultRetryJitterFactor,
	}
}

// Status is a point-in-time snapshot of the worker for the operational
// surface.
type Status struct {
	Running     bool `json:"running"`
	Paused      bool `json:"paused"`
	ActiveTasks int  `json:"active_tasks"`
}

// Worker is the single polling loop that drains the task store: fetch a
// batch of ready tasks, gate each through the rate limiter, dispatch to
// the registered handler, and write the outcome back. Pausing stops
// admission of new tasks without touching in-flight ones.
type Worker struct {
	taskStore store.TaskStore
	handlers  *HandlerRegistry
	limiter   *RateLimiter
	config    WorkerConfig
	logger    *slog.Logger

	running atomic.Bool
	paused  atomic.Bool
	active  atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a worker over the given store, handler registry and
// rate limiter.
func NewWorker(taskStore store.TaskStore, handlers *HandlerRegistry, limiter *RateLimiter, config WorkerConfig, logger *slog.Logger) *Worker {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultWorkerConfig().BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultWorkerConfig().PollInterval
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultWorkerConfig().MaxAttempts
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultWorkerConfig().StaleAfter
	}
	if config.StaleSweepInterval <= 0 {
		config.StaleSweepInterval = DefaultWorkerConfig().StaleSweepInterval
	}

	return &Worker{
		taskStore: taskStore,
		handlers:  handlers,
		limiter:   limiter,
		config:    config,
		logger:    logger.With("component", "task_worker"),
	}
}

// Start launches the polling loop and the stale-task sweep. It is an
// error to start a running worker.
func (w *Worker) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(2)
	go w.pollLoop(runCtx)
	go w.staleSweepLoop(runCtx)

	w.logger.Info("task worker started",
		"batch_size", w.config.BatchSize,
		"poll_interval", w.config.PollInterval,
		"max_attempts", w.config.MaxAttempts)

	return nil
}

// Stop cancels the loops and waits for in-flight tasks to finish.
func (w *Worker) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}

	w.cancel()
	w.wg.Wait()
	w.logger.Info("task worker stopped")
}

// Pause stops admitting new tasks. In-flight tasks run to completion.
func (w *Worker) Pause() {
	if w.paused.CompareAndSwap(false, true) {
		w.logger.Info("task worker paused")
	}
}

// Resume re-enables task admission.
func (w *Worker) Resume() {
	if w.paused.CompareAndSwap(true, false) {
		w.logger.Info("task worker resumed")
	}
}

// Snapshot returns the current worker status.
func (w *Worker) Snapshot() Status {
	return Status{
		Running:     w.running.Load(),
		Paused:      w.paused.Load(),
		ActiveTasks: int(w.active.Load()),
	}
}

// pollLoop fetches and dispatches ready tasks until the context is done.
func (w *Worker) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.paused.Load() {
				continue
			}
			w.processBatch(ctx)
		}
	}
}

// processBatch executes one batch of ready tasks, each independently.
// Task failures are recorded on the task rows; only store-level fetch
// errors surface here, and they only abort this batch.
func (w *Worker) processBatch(ctx context.Context) {
	tasks, err := w.taskStore.GetReadyTasks(ctx, w.config.BatchSize, w.config.MaxAttempts)
	if err != nil {
		w.logger.Error("failed to fetch ready tasks", "error", err)
		return
	}

	if len(tasks) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.BatchSize)

	for _, t := range tasks {
		if !w.limiter.TryConsume() {
			// Out of budget; the rest of the batch waits for the next poll.
			w.logger.Debug("rate limit reached, deferring remaining tasks",
				"wait", w.limiter.TimeUntilNextToken())
			break
		}

		t := t
		g.Go(func() error {
			w.executeTask(gctx, t)
			return nil
		})
	}

	_ = g.Wait()
}

// executeTask runs one task through its handler and writes the outcome
// back to the store.
func (w *Worker) executeTask(ctx context.Context, t *domain.TaskRecord) {
	w.active.Add(1)
	defer w.active.Add(-1)

	log := w.logger.With("task_id", t.ID, "task_type", t.Type)

	if err := w.taskStore.MarkInProgress(ctx, t.ID, t.Version); err != nil {
		if store.IsConflictError(err) {
			// Another worker claimed it between fetch and claim.
			log.Debug("task claimed elsewhere, skipping")
			return
		}
		log.Error("failed to claim task", "error", err)
		return
	}

	// MarkInProgress bumped both counters.
	version := t.Version + 1
	attempts := t.Attempts + 1

	handler := w.handlers.Get(t.Type)
	if handler == nil {
		// A type nobody handles is a setup error, not a transient one:
		// fail it without scheduling a retry.
		log.Error("no handler registered for task type")
		w.recordFailure(ctx, t, version, attempts, fmt.Sprintf("no handler registered for task type %q", t.Type), false)
		return
	}

	output, err := handler.Handle(ctx, t.Input)
	if err != nil {
		retry := !errors.Is(err, ErrPermanent)
		log.Warn("task execution failed", "attempt", attempts, "retryable", retry, "error", err)
		w.recordFailure(ctx, t, version, attempts, err.Error(), retry)
		return
	}

	if err := w.taskStore.MarkSuccess(ctx, t.ID, version, output); err != nil {
		log.Error("failed to record task success", "error", err)
		return
	}

	log.Info("task completed", "attempt", attempts)
}

// recordFailure writes a failure to the task row. When retry is true and
// attempts remain, run_after is pushed out by the backoff delay; otherwise
// attempts is forced to the ceiling so the admission predicate never
// returns the task again.
func (w *Worker) recordFailure(ctx context.Context, t *domain.TaskRecord, version, attempts int, errMsg string, retry bool) {
	var runAfter int64
	if retry && attempts < w.config.MaxAttempts {
		delaySeconds := CalculateRetryDelay(attempts, w.config.RetryBaseSeconds, w.config.RetryMaxSeconds, w.config.RetryJitterFactor)
		runAfter = domain.NowUnixMilli() + delaySeconds*1000
	} else if !retry && attempts < w.config.MaxAttempts {
		attempts = w.config.MaxAttempts
	}

	if err := w.taskStore.MarkFailed(ctx, t.ID, version, attempts, errMsg, runAfter); err != nil {
		w.logger.Error("failed to record task failure",
			"task_id", t.ID,
			"error", err)
	}
}

// staleSweepLoop periodically requeues in-progress tasks whose worker has
// presumably crashed.
func (w *Worker) staleSweepLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.StaleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepStaleTasks(ctx)
		}
	}
}

// sweepStaleTasks reclaims tasks stuck in-progress past the staleness
// timeout.
func (w *Worker) sweepStaleTasks(ctx context.Context) {
	stale, err := w.taskStore.GetStaleTasks(ctx, w.config.StaleAfter)
	if err != nil {
		w.logger.Error("failed to fetch stale tasks", "error", err)
		return
	}

	for _, t := range stale {
		if err := w.taskStore.Requeue(ctx, t.ID); err != nil {
			w.logger.Error("failed to requeue stale task", "task_id", t.ID, "error", err)
			continue
		}
		w.logger.Warn("requeued stale task",
			"task_id", t.ID,
			"task_type", t.Type,
			"attempts", t.Attempts)
	}
}
