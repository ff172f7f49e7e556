// Package main implements the entry point for the digest pipeline server:
// it wires the stores, the digest coordinator, the background task worker
// and the operational HTTP API, and runs them until shutdown.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/chunker"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/config"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/digest"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/events"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/generation"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/platform/gemini"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/platform/logger"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/platform/postgres"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/task"
)

// application holds the fully wired components.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	taskStore   *postgres.TaskStore
	digestStore *postgres.DigestStore
	fileStore   *postgres.FileStore
	lockStore   *postgres.LockStore

	worker      *task.Worker
	coordinator *digest.Coordinator
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	app, err := initializeApp(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database", "error", err)
		}
	}()

	return app.serve()
}

// initializeApp connects the database, applies migrations and constructs
// every component.
func initializeApp(cfg *config.Config, appLogger *slog.Logger) (*application, error) {
	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(db, cfg.Database.MigrationsDir, appLogger); err != nil {
		return nil, err
	}

	app := &application{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		taskStore:   postgres.NewTaskStore(db),
		digestStore: postgres.NewDigestStore(db),
		fileStore:   postgres.NewFileStore(db),
		lockStore:   postgres.NewLockStore(db),
	}

	// Task requests flow one way: digesters publish them, the task writer
	// persists them, the worker executes them.
	bus := events.NewInMemoryBus(appLogger)
	bus.Subscribe(events.NewTaskWriter(app.taskStore, appLogger))

	textService, err := setupTextService(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	registry := digest.NewRegistry()
	// No concrete vendor adapters are wired yet; the corresponding
	// digesters stay unregistered until they are.
	registerDigesters(registry, vendorClients{}, textService, bus, cfg, appLogger)

	selector := digest.NewSelector(app.fileStore, registry, nil)
	app.coordinator = digest.NewCoordinator(
		cfg.Digest, app.fileStore, app.digestStore, app.lockStore,
		registry, selector, appLogger,
	)

	handlers := task.NewHandlerRegistry()
	// The search index backends are not wired yet; their handlers fail
	// permanently until they are.
	// TODO: pass a concrete SearchIndexer once the meilisearch adapter lands.
	if err := digest.RegisterHandlers(handlers, nil, appLogger); err != nil {
		return nil, fmt.Errorf("failed to register task handlers: %w", err)
	}

	limiter := task.NewRateLimiter(cfg.Worker.RatePerSecond)
	app.worker = task.NewWorker(app.taskStore, handlers, limiter, task.WorkerConfig{
		BatchSize:          cfg.Worker.BatchSize,
		PollInterval:       time.Duration(cfg.Worker.PollIntervalMS) * time.Millisecond,
		MaxAttempts:        cfg.Worker.MaxAttempts,
		StaleAfter:         time.Duration(cfg.Worker.StaleAfterSeconds) * time.Second,
		StaleSweepInterval: time.Duration(cfg.Worker.StaleSweepIntervalSeconds) * time.Second,
		RetryBaseSeconds:   int64(cfg.Worker.RetryBaseSeconds),
		RetryMaxSeconds:    int64(cfg.Worker.RetryMaxSeconds),
		RetryJitterFactor:  cfg.Worker.RetryJitterFactor,
	}, appLogger)

	return app, nil
}

// setupTextService builds the gemini-backed text service, or returns nil
// when no API key is configured.
func setupTextService(cfg *config.Config, appLogger *slog.Logger) (generation.TextService, error) {
	if cfg.LLM.GeminiAPIKey == "" {
		appLogger.Warn("no LLM API key configured, summary and tags digesters disabled")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc, err := gemini.NewTextService(ctx, appLogger, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create text service: %w", err)
	}
	return svc, nil
}

// vendorClients groups the external extraction services. Any nil client
// leaves its digester unregistered.
type vendorClients struct {
	crawler       digest.Crawler
	converter     digest.DocConverter
	screenshotter digest.DocScreenshotter
	ocr           digest.OCRClient
	captioner     digest.Captioner
	detector      digest.ObjectDetector
	transcriber   digest.Transcriber
	embedder      digest.SpeakerEmbedder
}

// registerDigesters wires the pipeline in dependency order: extraction
// first, then derived text, then the search digesters that fold everything
// together. Digesters whose vendor is not configured are left out, so the
// selector never demands work nothing can do.
func registerDigesters(
	registry *digest.Registry,
	vendors vendorClients,
	textService generation.TextService,
	bus events.TaskRequestBus,
	cfg *config.Config,
	appLogger *slog.Logger,
) {
	if vendors.crawler != nil {
		registry.Register(digest.NewURLCrawlDigester(vendors.crawler))
	}
	if vendors.converter != nil {
		registry.Register(digest.NewDocToMarkdownDigester(vendors.converter))
	}
	if vendors.screenshotter != nil {
		registry.Register(digest.NewDocToScreenshotDigester(vendors.screenshotter))
	}
	if vendors.ocr != nil {
		registry.Register(digest.NewImageOCRDigester(vendors.ocr))
	}
	if vendors.captioner != nil {
		registry.Register(digest.NewImageCaptioningDigester(vendors.captioner))
	}
	if vendors.detector != nil {
		registry.Register(digest.NewImageObjectsDigester(vendors.detector))
	}
	if vendors.transcriber != nil {
		registry.Register(digest.NewSpeechRecognitionDigester(vendors.transcriber))
	}
	if vendors.embedder != nil {
		registry.Register(digest.NewSpeakerEmbeddingDigester(vendors.embedder))
	}

	if textService != nil {
		registry.Register(digest.NewSpeechRecognitionCleanupDigester(textService))
		registry.Register(digest.NewURLCrawlSummaryDigester(textService))
		registry.Register(digest.NewSpeechRecognitionSummaryDigester(textService))
		registry.Register(digest.NewTagsDigester(textService))
	}

	registry.Register(digest.NewSearchKeywordDigester(bus))
	registry.Register(digest.NewSearchSemanticDigester(bus, chunker.Options{
		TargetTokens:     cfg.Chunker.TargetTokens,
		MaxTokens:        cfg.Chunker.MaxTokens,
		OverlapRatio:     cfg.Chunker.OverlapRatio,
		MinOverlapTokens: cfg.Chunker.MinOverlapTokens,
		MaxOverlapTokens: cfg.Chunker.MaxOverlapTokens,
	}))

	appLogger.Info("digesters registered", "digest_types", registry.DigestTypes())
}

// serve starts the worker, the coordinator sweep and the HTTP server, and
// shuts them down in reverse order on SIGINT/SIGTERM.
func (app *application) serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task worker: %w", err)
	}

	coordinatorDone := make(chan struct{})
	go func() {
		defer close(coordinatorDone)
		app.coordinator.Run(ctx)
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("http server listening", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		stop()
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		app.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("http server shutdown failed", "error", err)
	}

	<-coordinatorDone
	app.worker.Stop()

	app.logger.Info("shutdown complete")
	return nil
}
