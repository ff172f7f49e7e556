package digest

import (
	"encoding/json"
	"strings"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
)

// ContentSource is one body of text extracted for a file, tagged with the
// digest it came from. Sources are indexed independently for semantic
// search.
type ContentSource struct {
	Type string
	Text string
}

// crawlContent is the JSON shape stored by the url-crawl digester.
type crawlContent struct {
	Markdown           string `json:"markdown"`
	URL                string `json:"url"`
	Title              string `json:"title"`
	Domain             string `json:"domain"`
	WordCount          int    `json:"wordCount"`
	ReadingTimeMinutes int    `json:"readingTimeMinutes"`
}

// tagsContent is the JSON shape stored by the tags digester.
type tagsContent struct {
	Tags []string `json:"tags"`
}

// objectsContent is the JSON shape stored by the image-objects digester.
type objectsContent struct {
	Objects []DetectedObject `json:"objects"`
}

// completedDigest returns the completed digest row for the name, or nil.
func completedDigest(existing []*domain.Digest, name string) *domain.Digest {
	for _, d := range existing {
		if d.Digester == name && d.Status == domain.DigestStatusCompleted {
			return d
		}
	}
	return nil
}

// completedContent returns the non-empty content of the completed digest
// for the name, or the empty string.
func completedContent(existing []*domain.Digest, name string) string {
	d := completedDigest(existing, name)
	if d == nil || d.Content == nil {
		return ""
	}
	return *d.Content
}

// TextSources collects every available text source for a file, in
// extraction priority order: crawled URL content, document conversion,
// OCR, captioning, detected objects, transcription, then the file's own
// cached preview. The cleaned transcript supersedes the raw one.
func TextSources(file *domain.File, existing []*domain.Digest) []ContentSource {
	var sources []ContentSource

	if raw := completedContent(existing, "url-crawl-content"); raw != "" {
		// Crawl content is JSON with the markdown inside; fall back to the
		// raw text for rows written before the JSON format.
		var crawl crawlContent
		if err := json.Unmarshal([]byte(raw), &crawl); err == nil && crawl.Markdown != "" {
			sources = append(sources, ContentSource{Type: "url-crawl-content", Text: crawl.Markdown})
		} else {
			sources = append(sources, ContentSource{Type: "url-crawl-content", Text: raw})
		}
	}

	for _, name := range []string{"doc-to-markdown", "image-ocr", "image-captioning"} {
		if text := completedContent(existing, name); text != "" {
			sources = append(sources, ContentSource{Type: name, Text: text})
		}
	}

	if text := objectsText(completedContent(existing, "image-objects")); text != "" {
		sources = append(sources, ContentSource{Type: "image-objects", Text: text})
	}

	if text := completedContent(existing, "speech-recognition-cleanup"); text != "" {
		sources = append(sources, ContentSource{Type: "speech-recognition-cleanup", Text: text})
	} else if text := completedContent(existing, "speech-recognition"); text != "" {
		sources = append(sources, ContentSource{Type: "speech-recognition", Text: text})
	}

	if preview := strings.TrimSpace(file.PreviewText()); preview != "" {
		sources = append(sources, ContentSource{Type: "file", Text: preview})
	}

	return sources
}

// objectsText flattens stored object detections into one line per object,
// "title: description". Returns the empty string when nothing usable is
// stored.
func objectsText(raw string) string {
	if raw == "" {
		return ""
	}

	var oc objectsContent
	if err := json.Unmarshal([]byte(raw), &oc); err != nil {
		return ""
	}

	var lines []string
	for _, obj := range oc.Objects {
		var parts []string
		if obj.Title != "" {
			parts = append(parts, obj.Title)
		}
		if obj.Description != "" {
			parts = append(parts, obj.Description)
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, ": "))
		}
	}

	return strings.Join(lines, "\n")
}

// PrimaryText joins all text sources into one body, for tagging and
// keyword indexing. Returns the empty string when no text is available.
func PrimaryText(file *domain.File, existing []*domain.Digest) string {
	sources := TextSources(file, existing)

	texts := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.Text != "" {
			texts = append(texts, s.Text)
		}
	}

	return strings.Join(texts, "\n\n")
}

// SummaryText returns the file's summary digest content, preferring the
// URL summary over the transcript summary, or the empty string.
func SummaryText(existing []*domain.Digest) string {
	for _, name := range []string{"url-crawl-summary", "speech-recognition-summary"} {
		if text := completedContent(existing, name); text != "" {
			return text
		}
	}
	return ""
}

// TagsText returns the file's tags as a comma-separated string, or the
// empty string when the tags digest is absent or empty.
func TagsText(existing []*domain.Digest) string {
	raw := completedContent(existing, "tags")
	if raw == "" {
		return ""
	}

	var tc tagsContent
	if err := json.Unmarshal([]byte(raw), &tc); err == nil && len(tc.Tags) > 0 {
		return strings.Join(tc.Tags, ", ")
	}

	var bare []string
	if err := json.Unmarshal([]byte(raw), &bare); err == nil && len(bare) > 0 {
		return strings.Join(bare, ", ")
	}

	return ""
}
