package digest

import (
	"context"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
)

// MaxAttempts is the retry ceiling for a single digester against a single
// file. Once a digest row reaches this many failed attempts it stops being
// retried until a cascading reset clears it.
const MaxAttempts = 3

// Input is one result a digester wants persisted. A digester may fan out
// into several outputs under different digester names; the file path is
// supplied by the coordinator pass.
type Input struct {
	// Digester names the output row. Usually the digester's own name,
	// but fan-out digesters write under their declared output names.
	Digester string

	Status domain.DigestStatus

	// Content carries extracted text, ArchiveRef a stored binary
	// artifact. At most one is meaningfully populated.
	Content    *string
	ArchiveRef *string

	Error *string
}

// Digester is one named enrichment step. Implementations must be safe for
// concurrent use across different files; the coordinator guarantees no two
// passes run against the same file at once.
type Digester interface {
	// Name returns the unique digester name.
	Name() string

	// CanDigest reports whether this digester structurally applies to the
	// file (MIME/extension match). Pure predicate: a false here marks the
	// digest skipped, never retried.
	CanDigest(file *domain.File, existing []*domain.Digest) bool

	// Digest runs the step. It returns zero results to mean "nothing to
	// persist yet, try again later", or an error on hard failure. A
	// digester with no text source to act on should instead return a
	// completed Input with empty content, so later availability of text
	// triggers cascading reprocessing.
	Digest(ctx context.Context, file *domain.File, existing []*domain.Digest) ([]Input, error)
}

// MultiOutput is implemented by digesters that write results under names
// other than their own.
type MultiOutput interface {
	// Outputs returns the digest row names this digester produces.
	Outputs() []string
}

// Reprocessor is implemented by digesters whose completed results can go
// stale when a digest they depend on is updated.
type Reprocessor interface {
	// ShouldReprocessCompleted reports whether the completed digest must
	// re-run because its upstream dependency has newer content.
	ShouldReprocessCompleted(file *domain.File, existing []*domain.Digest) bool
}

// CascadingResets maps an upstream text-producing digest name to the
// downstream digests that must be reset when it completes with non-empty
// content. This hardcoded table stands in for a dependency graph; digester
// ordering in the registry must keep producers ahead of their consumers.
var CascadingResets = map[string][]string{
	"url-crawl-content":          {"url-crawl-summary", "tags", "search-keyword", "search-semantic"},
	"doc-to-markdown":            {"tags", "search-keyword", "search-semantic"},
	"image-ocr":                  {"tags", "search-keyword", "search-semantic"},
	"image-captioning":           {"tags", "search-keyword", "search-semantic"},
	"image-objects":              {"tags", "search-keyword", "search-semantic"},
	"speech-recognition":         {"speaker-embedding", "speech-recognition-cleanup", "speech-recognition-summary", "tags", "search-keyword", "search-semantic"},
	"speech-recognition-cleanup": {"speech-recognition-summary", "tags", "search-keyword", "search-semantic"},
	"url-crawl-summary":          {"tags"},
	"speech-recognition-summary": {"tags", "search-keyword", "search-semantic"},
	"tags":                       {"search-keyword", "search-semantic"},
}

// outputNames returns the digest row names a digester produces, defaulting
// to its own name.
func outputNames(d Digester) []string {
	if mo, ok := d.(MultiOutput); ok {
		if outputs := mo.Outputs(); len(outputs) > 0 {
			return outputs
		}
	}
	return []string{d.Name()}
}
