package digest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/domain"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/generation"
)

var errNotConfigured = errors.New("vendor service not configured")

var documentMimeTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"application/vnd.ms-powerpoint":                                     {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
}

func isDocument(f *domain.File) bool {
	_, ok := documentMimeTypes[f.MimeType]
	return ok
}

func isMarkdown(f *domain.File) bool {
	ext := f.Extension()
	return ext == ".md" || ext == ".markdown"
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

func strptr(s string) *string { return &s }

// completedInput builds a completed Input with optional content. Empty
// content still completes: "no data yet" is a completion, not a skip, so
// cascading resets can re-run the digester once text becomes available.
func completedInput(digester, content string) Input {
	in := Input{Digester: digester, Status: domain.DigestStatusCompleted}
	if content != "" {
		in.Content = strptr(content)
	}
	return in
}

// newerUpstream reports whether any of the named upstream digests
// completed after the own digest's last update. Drives
// ShouldReprocessCompleted for digesters that consume other digests'
// output.
func newerUpstream(existing []*domain.Digest, own string, upstreams ...string) bool {
	ownRow := completedDigest(existing, own)
	if ownRow == nil {
		return false
	}

	for _, name := range upstreams {
		if up := completedDigest(existing, name); up != nil && up.UpdatedAt > ownRow.UpdatedAt {
			return true
		}
	}
	return false
}

// URLCrawlDigester crawls the URL stored in a markdown bookmark file. It
// fans out into two outputs: the extracted page content and a stored
// screenshot.
type URLCrawlDigester struct {
	crawler Crawler
}

// NewURLCrawlDigester creates the url-crawl digester. The crawler may be
// nil; the digester then fails at run time rather than registration time.
func NewURLCrawlDigester(crawler Crawler) *URLCrawlDigester {
	return &URLCrawlDigester{crawler: crawler}
}

func (d *URLCrawlDigester) Name() string { return "url-crawl" }

func (d *URLCrawlDigester) Outputs() []string {
	return []string{"url-crawl-content", "url-crawl-screenshot"}
}

func (d *URLCrawlDigester) CanDigest(file *domain.File, _ []*domain.Digest) bool {
	return isMarkdown(file) && isHTTPURL(strings.TrimSpace(file.PreviewText()))
}

func (d *URLCrawlDigester) Digest(ctx context.Context, file *domain.File, _ []*domain.Digest) ([]Input, error) {
	target := strings.TrimSpace(file.PreviewText())
	if !isHTTPURL(target) {
		return []Input{
			completedInput("url-crawl-content", ""),
			completedInput("url-crawl-screenshot", ""),
		}, nil
	}

	if d.crawler == nil {
		return nil, fmt.Errorf("url-crawl: %w", errNotConfigured)
	}

	res, err := d.crawler.Crawl(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to crawl %s: %w", target, err)
	}

	domainName := ""
	if parsed, err := url.Parse(res.URL); err == nil {
		domainName = parsed.Hostname()
	}

	wordCount := countWords(res.Markdown)
	readingTime := 1
	if wordCount > 0 {
		readingTime = (wordCount + 199) / 200
	}

	contentJSON, err := json.Marshal(crawlContent{
		Markdown:           res.Markdown,
		URL:                res.URL,
		Title:              res.Title,
		Domain:             domainName,
		WordCount:          wordCount,
		ReadingTimeMinutes: readingTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode crawl content: %w", err)
	}

	results := []Input{
		{
			Digester: "url-crawl-content",
			Status:   domain.DigestStatusCompleted,
			Content:  strptr(string(contentJSON)),
		},
	}

	screenshot := Input{Digester: "url-crawl-screenshot", Status: domain.DigestStatusCompleted}
	if res.ScreenshotRef != "" {
		screenshot.ArchiveRef = strptr(res.ScreenshotRef)
	}
	results = append(results, screenshot)

	return results, nil
}

// DocToMarkdownDigester converts office documents and PDFs to markdown.
type DocToMarkdownDigester struct {
	converter DocConverter
}

func NewDocToMarkdownDigester(converter DocConverter) *DocToMarkdownDigester {
	return &DocToMarkdownDigester{converter: converter}
}

func (d *DocToMarkdownDigester) Name() string { return "doc-to-markdown" }

func (d *DocToMarkdownDigester) CanDigest(file *domain.File, _ []*domain.Digest) bool {
	return isDocument(file)
}

func (d *DocToMarkdownDigester) Digest(ctx context.Context, file *domain.File, _ []*domain.Digest) ([]Input, error) {
	if d.converter == nil {
		return nil, fmt.Errorf("doc-to-markdown: %w", errNotConfigured)
	}

	markdown, err := d.converter.ToMarkdown(ctx, file.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", file.Path, err)
	}

	return []Input{completedInput("doc-to-markdown", markdown)}, nil
}

// DocToScreenshotDigester renders a preview image of the first page of a
// document. The image is stored as a binary artifact, not text.
type DocToScreenshotDigester struct {
	shotter DocScreenshotter
}

func NewDocToScreenshotDigester(shotter DocScreenshotter) *DocToScreenshotDigester {
	return &DocToScreenshotDigester{shotter: shotter}
}

func (d *DocToScreenshotDigester) Name() string { return "doc-to-screenshot" }

func (d *DocToScreenshotDigester) CanDigest(file *domain.File, _ []*domain.Digest) bool {
	return isDocument(file)
}

func (d *DocToScreenshotDigester) Digest(ctx context.Context, file *domain.File, _ []*domain.Digest) ([]Input, error) {
	if d.shotter == nil {
		return nil, fmt.Errorf("doc-to-screenshot: %w", errNotConfigured)
	}

	ref, err := d.shotter.Screenshot(ctx, file.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to screenshot %s: %w", file.Path, err)
	}

	result := Input{Digester: "doc-to-screenshot", Status: domain.DigestStatusCompleted}
	if ref != "" {
		result.ArchiveRef = strptr(ref)
	}

	return []Input{result}, nil
}

// ImageOCRDigester extracts text from images.
type ImageOCRDigester struct {
	ocr OCRClient
}

func NewImageOCRDigester(ocr OCRClient) *ImageOCRDigester {
	return &ImageOCRDigester{ocr: ocr}
}

func (d *ImageOCRDigester) Name() string { return "image-ocr" }

func (d *ImageOCRDigester) CanDigest(file *domain.File, _ []*domain.Digest) bool {
	return file.HasMimePrefix("image/")
}

func (d *ImageOCRDigester) Digest(ctx context.Context, file *domain.File, _ []*domain.Digest) ([]Input, error) {
	if d.ocr == nil {
		return nil, fmt.Errorf("image-ocr: %w", errNotConfigured)
	}

	text, err := d.ocr.ExtractText(ctx, file.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to OCR %s: %w", file.Path, err)
	}

	return []Input{completedInput("image-ocr", text)}, nil
}

// ImageCaptioningDigester describes images in prose.
type ImageCaptioningDigester struct {
	captioner Captioner
}

func NewImageCaptioningDigester(captioner Captioner) *ImageCaptioningDigester {
	return &ImageCaptioningDigester{captioner: captioner}
}

func (d *ImageCaptioningDigester) Name() string { return "image-captioning" }

func (d *ImageCaptioningDigester) CanDigest(file *domain.File, _ []*domain.Digest) bool {
	return file.HasMimePrefix("image/")
}

func (d *ImageCaptioningDigester) Digest(ctx context.Context, file *domain.File, _ []*domain.Digest) ([]Input, error) {
	if d.captioner == nil {
		return nil, fmt.Errorf("image-captioning: %w", errNotConfigured)
	}

	caption, err := d.captioner.Caption(ctx, file.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to caption %s: %w", file.Path, err)
	}

	return []Input{completedInput("image-captioning", caption)}, nil
}

// ImageObjectsDigester detects objects in images and stores them as JSON.
type ImageObjectsDigester struct {
	detector ObjectDetector
}

func NewImageObjectsDigester(detector ObjectDetector) *ImageObjectsDigester {
	return &ImageObjectsDigester{detector: detector}
}

func (d *ImageObjectsDigester) Name() string { return "image-objects" }

func (d *ImageObjectsDigester) CanDigest(file *domain.File, _ []*domain.Digest) bool {
	return file.HasMimePrefix("image/")
}

func (d *ImageObjectsDigester) Digest(ctx context.Context, file *domain.File, _ []*domain.Digest) ([]Input, error) {
	if d.detector == nil {
		return nil, fmt.Errorf("image-objects: %w", errNotConfigured)
	}

	objects, err := d.detector.DetectObjects(ctx, file.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect objects in %s: %w", file.Path, err)
	}

	if len(objects) == 0 {
		return []Input{completedInput("image-objects", "")}, nil
	}

	content, err := json.Marshal(objectsContent{Objects: objects})
	if err != nil {
		return nil, fmt.Errorf("failed to encode detected objects: %w", err)
	}

	return []Input{completedInput("image-objects", string(content))}, nil
}

// SpeechRecognitionDigester transcribes audio and video.
type SpeechRecognitionDigester struct {
	transcriber Transcriber
}

func NewSpeechRecognitionDigester(transcriber Transcriber) *SpeechRecognitionDigester {
	return &SpeechRecognitionDigester{transcriber: transcriber}
}

func (d *SpeechRecognitionDigester) Name() string { return "speech-recognition" }

func (d *SpeechRecognitionDigester) CanDigest(file *domain.File, _ []*domain.Digest) bool {
	return file.HasMimePrefix("audio/") || file.HasMimePrefix("video/")
}

func (d *SpeechRecognitionDigester) Digest(ctx context.Context, file *domain.File, _ []*domain.Digest) ([]Input, error) {
	if d.transcriber == nil {
		return nil, fmt.Errorf("speech-recognition: %w", errNotConfigured)
	}

	transcript, err := d.transcriber.Transcribe(ctx, file.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to transcribe %s: %w", file.Path, err)
	}

	return []Input{completedInput("speech-recognition", transcript)}, nil
}

// SpeechRecognitionCleanupDigester rewrites raw transcripts into readable
// prose. Downstream consumers prefer the cleaned transcript when present.
type SpeechRecognitionCleanupDigester struct {
	text generation.TextService
}

func NewSpeechRecognitionCleanupDigester(text generation.TextService) *SpeechRecognitionCleanupDigester {
	return &SpeechRecognitionCleanupDigester{text: text}
}

func (d *SpeechRecognitionCleanupDigester) Name() string { return "speech-recognition-cleanup" }

func (d *SpeechRecognitionCleanupDigester) CanDigest(file *domain.File, _ []*domain.Digest) bool {
	return file.HasMimePrefix("audio/") || file.HasMimePrefix("video/")
}

func (d *SpeechRecognitionCleanupDigester) ShouldReprocessCompleted(_ *domain.File, existing []*domain.Digest) bool {
	return newerUpstream(existing, "speech-recognition-cleanup", "speech-recognition")
}

func (d *SpeechRecognitionCleanupDigester) Digest(ctx context.Context, _ *domain.File, existing []*domain.Digest) ([]Input, error) {
	transcript := completedContent(existing, "speech-recognition")
	if transcript == "" {
		return []Input{completedInput("speech-recognition-cleanup", "")}, nil
	}

	if d.text == nil {
		return nil, fmt.Errorf("speech-recognition-cleanup: %w", errNotConfigured)
	}

	cleaned, err := d.text.CleanupTranscript(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("failed to clean up transcript: %w", err)
	}

	return []Input{completedInput("speech-recognition-cleanup", cleaned)}, nil
}

// SpeakerEmbeddingDigester produces voice embeddings from audio and video,
// stored as a JSON array of vectors.
type SpeakerEmbeddingDigester struct {
	embedder SpeakerEmbedder
}

func NewSpeakerEmbeddingDigester(embedder SpeakerEmbedder) *SpeakerEmbeddingDigester {
	return &SpeakerEmbeddingDigester{embedder: embedder}
}

func (d *SpeakerEmbeddingDigester) Name() string { return "speaker-embedding" }

func (d *SpeakerEmbeddingDigester) CanDigest(file *domain.File, _ []*domain.Digest) bool {
	return file.HasMimePrefix("audio/") || file.HasMimePrefix("video/")
}

func (d *SpeakerEmbeddingDigester) Digest(ctx context.Context, file *domain.File, existing []*domain.Digest) ([]Input, error) {
	// Embedding only makes sense once the transcript confirmed there is
	// speech; without it, complete empty and let the cascade re-run us.
	if completedContent(existing, "speech-recognition") == "" {
		return []Input{completedInput("speaker-embedding", "")}, nil
	}

	if d.embedder == nil {
		return nil, fmt.Errorf("speaker-embedding: %w", errNotConfigured)
	}

	vectors, err := d.embedder.Embed(ctx, file.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to embed speakers for %s: %w", file.Path, err)
	}

	content, err := json.Marshal(vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to encode speaker embeddings: %w", err)
	}

	return []Input{completedInput("speaker-embedding", string(content))}, nil
}

// URLCrawlSummaryDigester summarizes crawled URL content.
type URLCrawlSummaryDigester struct {
	text generation.TextService
}

func NewURLCrawlSummaryDigester(text generation.TextService) *URLCrawlSummaryDigester {
	return &URLCrawlSummaryDigester{text: text}
}

func (d *URLCrawlSummaryDigester) Name() string { return "url-crawl-summary" }

func (d *URLCrawlSummaryDigester) CanDigest(file *domain.File, _ []*domain.Digest) bool {
	return isMarkdown(file)
}

func (d *URLCrawlSummaryDigester) ShouldReprocessCompleted(_ *domain.File, existing []*domain.Digest) bool {
	return newerUpstream(existing, "url-crawl-summary", "url-crawl-content")
}

func (d *URLCrawlSummaryDigester) Digest(ctx context.Context, _ *domain.File, existing []*domain.Digest) ([]Input, error) {
	raw := completedContent(existing, "url-crawl-content")
	if raw == "" {
		return []Input{completedInput("url-crawl-summary", "")}, nil
	}

	var crawl crawlContent
	text := raw
	if err := json.Unmarshal([]byte(raw), &crawl); err == nil && crawl.Markdown != "" {
		text = crawl.Markdown
	}

	if d.text == nil {
		return nil, fmt.Errorf("url-crawl-summary: %w", errNotConfigured)
	}

	summary, err := d.text.Summarize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize crawled content: %w", err)
	}

	return []Input{completedInput("url-crawl-summary", summary)}, nil
}

// SpeechRecognitionSummaryDigester summarizes transcripts.
type SpeechRecognitionSummaryDigester struct {
	text generation.TextService
}

func NewSpeechRecognitionSummaryDigester(text generation.TextService) *SpeechRecognitionSummaryDigester {
	return &SpeechRecognitionSummaryDigester{text: text}
}

func (d *SpeechRecognitionSummaryDigester) Name() string { return "speech-recognition-summary" }

func (d *SpeechRecognitionSummaryDigester) CanDigest(file *domain.File, _ []*domain.Digest) bool {
	return file.HasMimePrefix("audio/") || file.HasMimePrefix("video/")
}

func (d *SpeechRecognitionSummaryDigester) ShouldReprocessCompleted(_ *domain.File, existing []*domain.Digest) bool {
	return newerUpstream(existing, "speech-recognition-summary",
		"speech-recognition-cleanup", "speech-recognition")
}

func (d *SpeechRecognitionSummaryDigester) Digest(ctx context.Context, _ *domain.File, existing []*domain.Digest) ([]Input, error) {
	// Prefer the cleaned transcript, fall back to the raw one.
	transcript := completedContent(existing, "speech-recognition-cleanup")
	if transcript == "" {
		transcript = completedContent(existing, "speech-recognition")
	}
	if transcript == "" {
		return []Input{completedInput("speech-recognition-summary", "")}, nil
	}

	if d.text == nil {
		return nil, fmt.Errorf("speech-recognition-summary: %w", errNotConfigured)
	}

	summary, err := d.text.Summarize(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize transcript: %w", err)
	}

	return []Input{completedInput("speech-recognition-summary", summary)}, nil
}

// minTaggableChars is the least amount of text worth sending to the tag
// model.
const minTaggableChars = 10

// TagsDigester asks the text service for topical tags over every text
// source the file has accumulated.
type TagsDigester struct {
	text generation.TextService
}

func NewTagsDigester(text generation.TextService) *TagsDigester {
	return &TagsDigester{text: text}
}

func (d *TagsDigester) Name() string { return "tags" }

func (d *TagsDigester) CanDigest(file *domain.File, _ []*domain.Digest) bool {
	return !file.IsFolder
}

func (d *TagsDigester) ShouldReprocessCompleted(_ *domain.File, existing []*domain.Digest) bool {
	return newerUpstream(existing, "tags",
		"url-crawl-content", "doc-to-markdown", "image-ocr", "image-captioning",
		"image-objects", "speech-recognition", "speech-recognition-cleanup",
		"url-crawl-summary", "speech-recognition-summary")
}

func (d *TagsDigester) Digest(ctx context.Context, file *domain.File, existing []*domain.Digest) ([]Input, error) {
	text := PrimaryText(file, existing)
	if len(text) < minTaggableChars {
		return []Input{completedInput("tags", "")}, nil
	}

	if d.text == nil {
		return nil, fmt.Errorf("tags: %w", errNotConfigured)
	}

	tags, err := d.text.SuggestTags(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest tags: %w", err)
	}

	content, err := json.Marshal(tagsContent{Tags: tags})
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}

	return []Input{completedInput("tags", string(content))}, nil
}
