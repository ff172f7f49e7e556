package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/api"
)

// setupRouter builds the operational HTTP surface: read-only status
// endpoints plus a health check.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	statusHandler := api.NewStatusHandler(
		app.taskStore,
		app.digestStore,
		app.worker,
		app.config.Worker.MaxAttempts,
		app.logger,
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tasks/stats", statusHandler.GetTaskStats)
		r.Get("/worker", statusHandler.GetWorkerStatus)
		r.Get("/digests/stats", statusHandler.GetDigestStats)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
