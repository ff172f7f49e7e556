package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/store"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/task"
)

// WorkerStatusProvider exposes the worker snapshot without coupling the
// handlers to the worker's lifecycle methods.
type WorkerStatusProvider interface {
	Snapshot() task.Status
}

// StatusHandler serves the read-only operational endpoints.
type StatusHandler struct {
	tasks       store.TaskStore
	digests     store.DigestStore
	worker      WorkerStatusProvider
	maxAttempts int
	logger      *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(
	tasks store.TaskStore,
	digests store.DigestStore,
	worker WorkerStatusProvider,
	maxAttempts int,
	logger *slog.Logger,
) *StatusHandler {
	return &StatusHandler{
		tasks:       tasks,
		digests:     digests,
		worker:      worker,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "status_handler"),
	}
}

// TaskStatsResponse is the body of GET /api/tasks/stats.
type TaskStatsResponse struct {
	HasReady bool                            `json:"has_ready"`
	ByType   map[string]store.TaskTypeCounts `json:"by_type"`
}

// GetTaskStats handles GET /api/tasks/stats.
func (h *StatusHandler) GetTaskStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.tasks.GetPendingCountByType(ctx, h.maxAttempts)
	if err != nil {
		h.respondStoreError(ctx, w, "failed to load task counts", err)
		return
	}

	hasReady, err := h.tasks.HasReadyTasks(ctx, h.maxAttempts)
	if err != nil {
		h.respondStoreError(ctx, w, "failed to check ready tasks", err)
		return
	}

	RespondWithJSON(w, http.StatusOK, TaskStatsResponse{
		HasReady: hasReady,
		ByType:   counts,
	})
}

// GetWorkerStatus handles GET /api/worker.
func (h *StatusHandler) GetWorkerStatus(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, h.worker.Snapshot())
}

// DigestStatsResponse is the body of GET /api/digests/stats.
type DigestStatsResponse struct {
	Digesters []domain.DigesterStats `json:"digesters"`
}

// GetDigestStats handles GET /api/digests/stats.
func (h *StatusHandler) GetDigestStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.digests.GetStats(ctx)
	if err != nil {
		h.respondStoreError(ctx, w, "failed to load digest stats", err)
		return
	}

	if stats == nil {
		stats = []domain.DigesterStats{}
	}

	RespondWithJSON(w, http.StatusOK, DigestStatsResponse{Digesters: stats})
}

func (h *StatusHandler) respondStoreError(ctx context.Context, w http.ResponseWriter, message string, err error) {
	h.logger.ErrorContext(ctx, message, "error", err)
	RespondWithError(w, http.StatusInternalServerError, message)
}
