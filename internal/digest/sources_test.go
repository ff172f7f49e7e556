package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
)

func completedRow(filePath, digester, content string) *domain.Digest {
	row, _ := domain.NewDigest(filePath, digester)
	row.Status = domain.DigestStatusCompleted
	if content != "" {
		row.Content = &content
	}
	return row
}

func TestTextSourcesExtractsCrawlMarkdown(t *testing.T) {
	file := &domain.File{Path: "inbox/link.md", Name: "link.md"}
	existing := []*domain.Digest{
		completedRow("inbox/link.md", "url-crawl-content",
			`{"markdown":"# Article\n\nBody text","url":"https://example.com","title":"Article"}`),
	}

	sources := TextSources(file, existing)
	require.Len(t, sources, 1)
	assert.Equal(t, "url-crawl-content", sources[0].Type)
	assert.Equal(t, "# Article\n\nBody text", sources[0].Text)
}

func TestTextSourcesFallsBackToRawCrawlContent(t *testing.T) {
	file := &domain.File{Path: "inbox/link.md", Name: "link.md"}
	existing := []*domain.Digest{
		completedRow("inbox/link.md", "url-crawl-content", "plain crawled text"),
	}

	sources := TextSources(file, existing)
	require.Len(t, sources, 1)
	assert.Equal(t, "plain crawled text", sources[0].Text)
}

func TestTextSourcesOrderAndPreview(t *testing.T) {
	preview := "note body"
	file := &domain.File{Path: "inbox/photo.jpg", Name: "photo.jpg", TextPreview: &preview}
	existing := []*domain.Digest{
		completedRow("inbox/photo.jpg", "image-captioning", "a dog on a beach"),
		completedRow("inbox/photo.jpg", "image-ocr", "BEACH CLOSED"),
	}

	sources := TextSources(file, existing)
	require.Len(t, sources, 3)
	assert.Equal(t, "image-ocr", sources[0].Type)
	assert.Equal(t, "image-captioning", sources[1].Type)
	assert.Equal(t, "file", sources[2].Type)

	combined := PrimaryText(file, existing)
	assert.Equal(t, "BEACH CLOSED\n\na dog on a beach\n\nnote body", combined)
}

func TestTextSourcesFlattensDetectedObjects(t *testing.T) {
	file := &domain.File{Path: "inbox/photo.jpg", Name: "photo.jpg"}
	existing := []*domain.Digest{
		completedRow("inbox/photo.jpg", "image-objects",
			`{"objects":[{"title":"dog","description":"a golden retriever"},{"title":"ball","description":""}]}`),
	}

	sources := TextSources(file, existing)
	require.Len(t, sources, 1)
	assert.Equal(t, "image-objects", sources[0].Type)
	assert.Equal(t, "dog: a golden retriever\nball", sources[0].Text)

	// Unparseable content contributes nothing.
	broken := []*domain.Digest{completedRow("inbox/photo.jpg", "image-objects", "not json")}
	assert.Empty(t, TextSources(file, broken))
}

func TestTextSourcesPrefersCleanedTranscript(t *testing.T) {
	file := &domain.File{Path: "inbox/talk.wav", Name: "talk.wav"}
	existing := []*domain.Digest{
		completedRow("inbox/talk.wav", "speech-recognition", "raw transcript"),
		completedRow("inbox/talk.wav", "speech-recognition-cleanup", "cleaned transcript"),
	}

	sources := TextSources(file, existing)
	require.Len(t, sources, 1)
	assert.Equal(t, "speech-recognition-cleanup", sources[0].Type)
	assert.Equal(t, "cleaned transcript", sources[0].Text)

	// Raw transcript is used when no cleaned row exists.
	sources = TextSources(file, existing[:1])
	require.Len(t, sources, 1)
	assert.Equal(t, "speech-recognition", sources[0].Type)
}

func TestTextSourcesIgnoresIncompleteDigests(t *testing.T) {
	file := &domain.File{Path: "inbox/a.pdf", Name: "a.pdf"}
	failed, _ := domain.NewDigest("inbox/a.pdf", "doc-to-markdown")
	failed.Status = domain.DigestStatusFailed

	assert.Empty(t, TextSources(file, []*domain.Digest{failed}))
	assert.Empty(t, PrimaryText(file, []*domain.Digest{failed}))
}

func TestSummaryTextPrefersURLSummary(t *testing.T) {
	existing := []*domain.Digest{
		completedRow("p", "speech-recognition-summary", "transcript summary"),
		completedRow("p", "url-crawl-summary", "url summary"),
	}

	assert.Equal(t, "url summary", SummaryText(existing))

	assert.Equal(t, "transcript summary", SummaryText(existing[:1]))
	assert.Empty(t, SummaryText(nil))
}

func TestTagsText(t *testing.T) {
	assert.Equal(t, "travel, photos",
		TagsText([]*domain.Digest{completedRow("p", "tags", `{"tags":["travel","photos"]}`)}))

	// Bare array fallback.
	assert.Equal(t, "a, b",
		TagsText([]*domain.Digest{completedRow("p", "tags", `["a","b"]`)}))

	assert.Empty(t, TagsText([]*domain.Digest{completedRow("p", "tags", "")}))
	assert.Empty(t, TagsText([]*domain.Digest{completedRow("p", "tags", "not json")}))
	assert.Empty(t, TagsText(nil))
}
