package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/chunker"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/events"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/task"
)

// searchUpstreams are the digests whose updates invalidate the search
// indexes.
var searchUpstreams = []string{
	"url-crawl-content", "doc-to-markdown", "image-ocr", "image-captioning",
	"image-objects", "speech-recognition", "speech-recognition-cleanup",
	"url-crawl-summary", "speech-recognition-summary", "tags",
}

// keywordIndexMeta is the content recorded on a completed search-keyword
// digest.
type keywordIndexMeta struct {
	HasContent bool `json:"hasContent"`
	HasSummary bool `json:"hasSummary"`
	HasTags    bool `json:"hasTags"`
}

// semanticIndexMeta is the content recorded on a completed search-semantic
// digest.
type semanticIndexMeta struct {
	Sources     map[string]int `json:"sources"`
	TotalChunks int            `json:"totalChunks"`
}

// SearchKeywordDigester queues the file's combined text for keyword
// indexing. The actual index write happens asynchronously in the task
// worker; the digest completes once the work is enqueued.
type SearchKeywordDigester struct {
	bus events.TaskRequestBus
}

func NewSearchKeywordDigester(bus events.TaskRequestBus) *SearchKeywordDigester {
	return &SearchKeywordDigester{bus: bus}
}

func (d *SearchKeywordDigester) Name() string { return "search-keyword" }

func (d *SearchKeywordDigester) CanDigest(file *domain.File, _ []*domain.Digest) bool {
	return !file.IsFolder
}

func (d *SearchKeywordDigester) ShouldReprocessCompleted(_ *domain.File, existing []*domain.Digest) bool {
	return newerUpstream(existing, "search-keyword", searchUpstreams...)
}

func (d *SearchKeywordDigester) Digest(ctx context.Context, file *domain.File, existing []*domain.Digest) ([]Input, error) {
	text := PrimaryText(file, existing)
	summary := SummaryText(existing)
	tags := TagsText(existing)

	if text == "" && summary == "" && tags == "" {
		return []Input{completedInput("search-keyword", "")}, nil
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{text, summary, tags} {
		if p != "" {
			parts = append(parts, p)
		}
	}

	req, err := events.NewIndexKeywordsRequest(task.IndexKeywordsInput{
		FilePath: file.Path,
		Title:    file.Name,
		Text:     strings.Join(parts, "\n\n"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build index-keywords request: %w", err)
	}

	if err := d.bus.Publish(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to enqueue keyword indexing: %w", err)
	}

	meta, err := json.Marshal(keywordIndexMeta{
		HasContent: text != "",
		HasSummary: summary != "",
		HasTags:    tags != "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode keyword index metadata: %w", err)
	}

	return []Input{completedInput("search-keyword", string(meta))}, nil
}

// SearchSemanticDigester chunks every text source and queues one embedding
// task per chunk. Summary and tags are indexed as their own sources so a
// short summary can match independently of the full text.
type SearchSemanticDigester struct {
	bus  events.TaskRequestBus
	opts chunker.Options
}

func NewSearchSemanticDigester(bus events.TaskRequestBus, opts chunker.Options) *SearchSemanticDigester {
	return &SearchSemanticDigester{bus: bus, opts: opts}
}

func (d *SearchSemanticDigester) Name() string { return "search-semantic" }

func (d *SearchSemanticDigester) CanDigest(file *domain.File, _ []*domain.Digest) bool {
	return !file.IsFolder
}

func (d *SearchSemanticDigester) ShouldReprocessCompleted(_ *domain.File, existing []*domain.Digest) bool {
	return newerUpstream(existing, "search-semantic", searchUpstreams...)
}

func (d *SearchSemanticDigester) Digest(ctx context.Context, file *domain.File, existing []*domain.Digest) ([]Input, error) {
	sources := TextSources(file, existing)
	if summary := SummaryText(existing); summary != "" {
		sources = append(sources, ContentSource{Type: "summary", Text: summary})
	}
	if tags := TagsText(existing); tags != "" {
		sources = append(sources, ContentSource{Type: "tags", Text: tags})
	}

	sourceCounts := make(map[string]int)
	totalChunks := 0

	for _, source := range sources {
		if source.Text == "" {
			continue
		}

		chunks := chunker.Split(source.Text, d.opts)
		for _, c := range chunks {
			req, err := events.NewEmbedDocumentRequest(task.EmbedDocumentInput{
				FilePath: file.Path,
				Source:   source.Type,
				Chunk:    c,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to build embed-document request: %w", err)
			}
			if err := d.bus.Publish(ctx, req); err != nil {
				return nil, fmt.Errorf("failed to enqueue chunk embedding: %w", err)
			}
		}

		sourceCounts[source.Type] = len(chunks)
		totalChunks += len(chunks)
	}

	if totalChunks == 0 {
		return []Input{completedInput("search-semantic", "")}, nil
	}

	meta, err := json.Marshal(semanticIndexMeta{
		Sources:     sourceCounts,
		TotalChunks: totalChunks,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode semantic index metadata: %w", err)
	}

	return []Input{completedInput("search-semantic", string(meta))}, nil
}
