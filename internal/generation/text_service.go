package generation

import "context"

// TextService defines the language-model operations the digest pipeline
// needs. It keeps vendor SDKs out of the application core.
type TextService interface {
	// Summarize produces a short prose summary of the given text.
	Summarize(ctx context.Context, text string) (string, error)

	// SuggestTags proposes topical tags for the given text.
	SuggestTags(ctx context.Context, text string) ([]string, error)

	// CleanupTranscript rewrites a raw speech transcript into readable
	// prose without changing its meaning.
	CleanupTranscript(ctx context.Context, transcript string) (string, error)
}
