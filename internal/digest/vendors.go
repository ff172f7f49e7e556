package digest

import "context"

// Vendor boundaries. Each AI/extraction service the pipeline calls is an
// opaque function behind one of these interfaces; implementations live
// outside the core and are injected at startup. Timeouts are the
// implementation's responsibility.

// CrawlResult is the outcome of crawling one URL.
type CrawlResult struct {
	URL      string
	Title    string
	Markdown string

	// ScreenshotRef is an archive reference to the stored page screenshot,
	// empty when the crawler did not capture one.
	ScreenshotRef string
}

// Crawler fetches a URL and extracts its readable content.
type Crawler interface {
	Crawl(ctx context.Context, url string) (*CrawlResult, error)
}

// DocConverter converts office documents and PDFs to markdown.
type DocConverter interface {
	ToMarkdown(ctx context.Context, filePath string) (string, error)
}

// OCRClient extracts text from images.
type OCRClient interface {
	ExtractText(ctx context.Context, filePath string) (string, error)
}

// Captioner describes images in prose.
type Captioner interface {
	Caption(ctx context.Context, filePath string) (string, error)
}

// DocScreenshotter renders the first page of a document and stores it,
// returning an archive reference to the stored image.
type DocScreenshotter interface {
	Screenshot(ctx context.Context, filePath string) (string, error)
}

// DetectedObject is one object found in an image.
type DetectedObject struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ObjectDetector finds and describes objects in images.
type ObjectDetector interface {
	DetectObjects(ctx context.Context, filePath string) ([]DetectedObject, error)
}

// Transcriber converts audio and video to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filePath string) (string, error)
}

// SpeakerEmbedder produces one voice embedding per detected speaker.
type SpeakerEmbedder interface {
	Embed(ctx context.Context, filePath string) ([][]float64, error)
}

// KeywordDocument is one file's combined text prepared for the keyword
// search backend.
type KeywordDocument struct {
	FilePath    string
	Title       string
	Text        string
	ContentHash string
	WordCount   int
}

// SemanticChunk is one embedded span prepared for the vector search
// backend.
type SemanticChunk struct {
	DocumentID    string
	FilePath      string
	Source        string
	ChunkIndex    int
	ChunkCount    int
	Text          string
	SpanStart     int
	SpanEnd       int
	OverlapTokens int
	WordCount     int
	TokenCount    int
	ContentHash   string
}

// SearchIndexer writes documents into the search backends. Implementations
// must be idempotent per DocumentID/FilePath.
type SearchIndexer interface {
	IndexKeywordDocument(ctx context.Context, doc *KeywordDocument) error
	IndexChunk(ctx context.Context, chunk *SemanticChunk) error
}
