package digest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/config"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testDigestConfig() config.DigestConfig {
	return config.DigestConfig{
		Concurrency:          2,
		SelectBatchSize:      10,
		SweepIntervalSeconds: 30,
	}
}

type coordinatorFixture struct {
	coordinator *Coordinator
	digests     *memoryDigestStore
	files       *memoryFileStore
	locks       *memoryLockStore
	registry    *Registry
}

func newCoordinatorFixture(t *testing.T, files *memoryFileStore, digesters ...Digester) *coordinatorFixture {
	t.Helper()

	digests := newMemoryDigestStore()
	files.digests = digests
	locks := newMemoryLockStore()
	registry := NewRegistry()
	for _, d := range digesters {
		registry.Register(d)
	}
	selector := NewSelector(files, registry, nil)

	return &coordinatorFixture{
		coordinator: NewCoordinator(testDigestConfig(), files, digests, locks, registry, selector, testLogger()),
		digests:     digests,
		files:       files,
		locks:       locks,
		registry:    registry,
	}
}

func imageFile(path string) *domain.File {
	return &domain.File{Path: path, Name: path, MimeType: "image/jpeg"}
}

func TestProcessFileImageScenario(t *testing.T) {
	// An image with no prior digests: OCR and captioning complete with
	// text, the structurally-inapplicable crawler is skipped, and the
	// text-only tags digester completes.
	const path = "inbox/photo.jpg"
	files := newMemoryFileStore(imageFile(path))

	ocr := &stubDigester{
		name: "image-ocr",
		can:  func(f *domain.File, _ []*domain.Digest) bool { return f.HasMimePrefix("image/") },
		run: func(_ context.Context, _ *domain.File, _ []*domain.Digest) ([]Input, error) {
			return []Input{completedInput("image-ocr", "extracted text")}, nil
		},
	}
	crawl := &stubDigester{
		name: "url-crawl",
		can:  func(_ *domain.File, _ []*domain.Digest) bool { return false },
	}
	tags := &stubDigester{
		name: "tags",
		run: func(_ context.Context, _ *domain.File, existing []*domain.Digest) ([]Input, error) {
			// Downstream digester sees the upstream result from the same
			// pass.
			require.Equal(t, "extracted text", completedContent(existing, "image-ocr"))
			return []Input{completedInput("tags", `{"tags":["photo"]}`)}, nil
		},
	}

	fx := newCoordinatorFixture(t, files, ocr, crawl, tags)
	require.NoError(t, fx.coordinator.ProcessFile(context.Background(), path))

	assert.Equal(t, domain.DigestStatusCompleted, fx.digests.status(path, "image-ocr"))
	assert.Equal(t, domain.DigestStatusSkipped, fx.digests.status(path, "url-crawl"))
	assert.Equal(t, domain.DigestStatusCompleted, fx.digests.status(path, "tags"))

	// Lock released on the way out.
	assert.False(t, fx.locks.held(path))
}

func TestProcessFileDigesterFailureIsIsolated(t *testing.T) {
	const path = "inbox/photo.jpg"
	files := newMemoryFileStore(imageFile(path))

	failing := &stubDigester{
		name: "image-ocr",
		run: func(_ context.Context, _ *domain.File, _ []*domain.Digest) ([]Input, error) {
			return nil, errors.New("vendor unavailable")
		},
	}
	healthy := &stubDigester{name: "image-captioning"}

	fx := newCoordinatorFixture(t, files, failing, healthy)
	require.NoError(t, fx.coordinator.ProcessFile(context.Background(), path))

	row := fx.digests.row(path, "image-ocr")
	require.NotNil(t, row)
	assert.Equal(t, domain.DigestStatusFailed, row.Status)
	assert.Equal(t, 1, row.Attempts)
	require.NotNil(t, row.Error)
	assert.Contains(t, *row.Error, "vendor unavailable")

	// The sibling still ran.
	assert.Equal(t, domain.DigestStatusCompleted, fx.digests.status(path, "image-captioning"))
}

func TestProcessFilePanicIsIsolated(t *testing.T) {
	const path = "inbox/photo.jpg"
	files := newMemoryFileStore(imageFile(path))

	panicking := &stubDigester{
		name: "image-ocr",
		run: func(_ context.Context, _ *domain.File, _ []*domain.Digest) ([]Input, error) {
			panic("boom")
		},
	}
	healthy := &stubDigester{name: "image-captioning"}

	fx := newCoordinatorFixture(t, files, panicking, healthy)
	require.NoError(t, fx.coordinator.ProcessFile(context.Background(), path))

	row := fx.digests.row(path, "image-ocr")
	require.NotNil(t, row)
	assert.Equal(t, domain.DigestStatusFailed, row.Status)
	assert.Equal(t, domain.DigestStatusCompleted, fx.digests.status(path, "image-captioning"))
	assert.False(t, fx.locks.held(path))
}

func TestProcessFileNilResultRevertsToTodo(t *testing.T) {
	const path = "inbox/photo.jpg"
	files := newMemoryFileStore(imageFile(path))

	deferring := &stubDigester{
		name: "image-ocr",
		run: func(_ context.Context, _ *domain.File, _ []*domain.Digest) ([]Input, error) {
			return nil, nil
		},
	}

	fx := newCoordinatorFixture(t, files, deferring)
	require.NoError(t, fx.coordinator.ProcessFile(context.Background(), path))

	row := fx.digests.row(path, "image-ocr")
	require.NotNil(t, row)
	assert.Equal(t, domain.DigestStatusTodo, row.Status)

	// "Try again later" does not burn an attempt.
	assert.Zero(t, row.Attempts)
}

func TestProcessFileRetryCeiling(t *testing.T) {
	const path = "inbox/photo.jpg"
	files := newMemoryFileStore(imageFile(path))

	failing := &stubDigester{
		name: "image-ocr",
		run: func(_ context.Context, _ *domain.File, _ []*domain.Digest) ([]Input, error) {
			return nil, errors.New("always broken")
		},
	}

	fx := newCoordinatorFixture(t, files, failing)
	for i := 0; i < MaxAttempts+2; i++ {
		require.NoError(t, fx.coordinator.ProcessFile(context.Background(), path))
	}

	row := fx.digests.row(path, "image-ocr")
	require.NotNil(t, row)
	assert.Equal(t, domain.DigestStatusFailed, row.Status)
	assert.Equal(t, MaxAttempts, row.Attempts)

	// With attempts exhausted the selector stops returning the file.
	paths, err := fx.coordinator.selector.FindFilesNeedingDigestion(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestProcessFileCascadingReset(t *testing.T) {
	// tags completed, then url-crawl-content completes with new content:
	// the save must reset tags back to todo.
	const path = "inbox/link.md"
	preview := "https://example.com"
	files := newMemoryFileStore(&domain.File{Path: path, Name: "link.md", TextPreview: &preview})

	crawler := &stubDigester{
		name:    "url-crawl",
		outputs: []string{"url-crawl-content"},
		run: func(_ context.Context, _ *domain.File, _ []*domain.Digest) ([]Input, error) {
			return []Input{completedInput("url-crawl-content", `{"markdown":"fresh article"}`)}, nil
		},
	}

	fx := newCoordinatorFixture(t, files, crawler)

	// Seed a completed tags digest from an earlier pass.
	tagsRow := completedRow(path, "tags", `{"tags":["stale"]}`)
	require.NoError(t, fx.digests.Upsert(context.Background(), tagsRow))

	require.NoError(t, fx.coordinator.ProcessFile(context.Background(), path))

	assert.Equal(t, domain.DigestStatusCompleted, fx.digests.status(path, "url-crawl-content"))
	assert.Equal(t, domain.DigestStatusTodo, fx.digests.status(path, "tags"))
	assert.Zero(t, fx.digests.row(path, "tags").Attempts)
}

func TestProcessFileReprocessCompletedOnNewerUpstream(t *testing.T) {
	const path = "inbox/link.md"
	files := newMemoryFileStore(&domain.File{Path: path, Name: "link.md"})

	reran := false
	tags := &stubDigester{
		name: "tags",
		reprocess: func(_ *domain.File, existing []*domain.Digest) bool {
			return newerUpstream(existing, "tags", "url-crawl-content")
		},
		run: func(_ context.Context, _ *domain.File, _ []*domain.Digest) ([]Input, error) {
			reran = true
			return []Input{completedInput("tags", `{"tags":["fresh"]}`)}, nil
		},
	}

	fx := newCoordinatorFixture(t, files, tags)

	old := completedRow(path, "tags", `{"tags":["stale"]}`)
	old.UpdatedAt = 1000
	require.NoError(t, fx.digests.Upsert(context.Background(), old))

	upstream := completedRow(path, "url-crawl-content", "newer content")
	upstream.UpdatedAt = 2000
	require.NoError(t, fx.digests.Upsert(context.Background(), upstream))

	require.NoError(t, fx.coordinator.ProcessFile(context.Background(), path))

	assert.True(t, reran)
	row := fx.digests.row(path, "tags")
	assert.Equal(t, domain.DigestStatusCompleted, row.Status)
	assert.Contains(t, *row.Content, "fresh")
}

func TestProcessFileSkipsWhenLockHeld(t *testing.T) {
	const path = "inbox/photo.jpg"
	files := newMemoryFileStore(imageFile(path))

	d := &stubDigester{name: "image-ocr"}
	fx := newCoordinatorFixture(t, files, d)

	// Another holder owns the lock.
	held, err := fx.locks.Acquire(context.Background(), path, "other-process")
	require.NoError(t, err)
	require.True(t, held)

	require.NoError(t, fx.coordinator.ProcessFile(context.Background(), path))
	assert.Nil(t, fx.digests.row(path, "image-ocr"))

	// The foreign lock was not released.
	assert.True(t, fx.locks.held(path))
}

func TestProcessFileMissingFile(t *testing.T) {
	files := newMemoryFileStore()
	fx := newCoordinatorFixture(t, files, &stubDigester{name: "tags"})

	require.NoError(t, fx.coordinator.ProcessFile(context.Background(), "inbox/ghost.md"))
	assert.False(t, fx.locks.held("inbox/ghost.md"))
}

func TestProcessFileUnproducedOutputFails(t *testing.T) {
	const path = "inbox/link.md"
	preview := "https://example.com"
	files := newMemoryFileStore(&domain.File{Path: path, Name: "link.md", TextPreview: &preview})

	partial := &stubDigester{
		name:    "url-crawl",
		outputs: []string{"url-crawl-content", "url-crawl-screenshot"},
		run: func(_ context.Context, _ *domain.File, _ []*domain.Digest) ([]Input, error) {
			return []Input{completedInput("url-crawl-content", "content only")}, nil
		},
	}

	fx := newCoordinatorFixture(t, files, partial)
	require.NoError(t, fx.coordinator.ProcessFile(context.Background(), path))

	assert.Equal(t, domain.DigestStatusCompleted, fx.digests.status(path, "url-crawl-content"))

	row := fx.digests.row(path, "url-crawl-screenshot")
	require.NotNil(t, row)
	assert.Equal(t, domain.DigestStatusFailed, row.Status)
	require.NotNil(t, row.Error)
	assert.Contains(t, *row.Error, "output not produced")
}

func TestProcessPendingProcessesBatch(t *testing.T) {
	a := imageFile("inbox/a.jpg")
	a.CreatedAt = 1
	b := imageFile("inbox/b.jpg")
	b.CreatedAt = 2
	files := newMemoryFileStore(a, b)

	d := &stubDigester{name: "image-ocr"}
	fx := newCoordinatorFixture(t, files, d)

	n, err := fx.coordinator.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, domain.DigestStatusCompleted, fx.digests.status("inbox/a.jpg", "image-ocr"))
	assert.Equal(t, domain.DigestStatusCompleted, fx.digests.status("inbox/b.jpg", "image-ocr"))
}

func TestProcessFileFixedPoint(t *testing.T) {
	// After repeated passes over an acyclic pipeline, every digest reaches
	// a terminal state and further passes change nothing.
	const path = "inbox/photo.jpg"
	files := newMemoryFileStore(imageFile(path))

	ocr := &stubDigester{
		name: "image-ocr",
		run: func(_ context.Context, _ *domain.File, _ []*domain.Digest) ([]Input, error) {
			return []Input{completedInput("image-ocr", "text")}, nil
		},
	}
	tags := &stubDigester{
		name: "tags",
		reprocess: func(_ *domain.File, existing []*domain.Digest) bool {
			return newerUpstream(existing, "tags", "image-ocr")
		},
		run: func(_ context.Context, _ *domain.File, _ []*domain.Digest) ([]Input, error) {
			return []Input{completedInput("tags", `{"tags":["t"]}`)}, nil
		},
	}

	fx := newCoordinatorFixture(t, files, ocr, tags)

	for i := 0; i < 3; i++ {
		require.NoError(t, fx.coordinator.ProcessFile(context.Background(), path))
	}

	paths, err := fx.coordinator.selector.FindFilesNeedingDigestion(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, paths, "pipeline should reach a fixed point")
}
