package chunker

import (
	"math"
	"regexp"
	"strings"
)

// Default chunking parameters.
const (
	DefaultTargetTokens     = 900
	DefaultMaxTokens        = 1200
	DefaultOverlapRatio     = 0.15
	DefaultMinOverlapTokens = 80
	DefaultMaxOverlapTokens = 180
)

var (
	tokenPattern   = regexp.MustCompile(`\S+`)
	headingPattern = regexp.MustCompile(`^#{1,6}\s`)
)

// Options tunes the chunking algorithm. Zero values fall back to the
// package defaults.
type Options struct {
	// TargetTokens is the size a chunk aims for; a chunk is flushed once
	// its running token estimate reaches it.
	TargetTokens int

	// MaxTokens is the hard packing ceiling: a block is never added to a
	// chunk that would exceed it. A single block larger than MaxTokens
	// still becomes its own chunk; blocks are never split.
	MaxTokens int

	// OverlapRatio is the fraction of a chunk's tokens to repeat from the
	// previous chunk, clamped to [MinOverlapTokens, MaxOverlapTokens].
	OverlapRatio     float64
	MinOverlapTokens int
	MaxOverlapTokens int
}

// DefaultOptions returns the standard chunking parameters.
func DefaultOptions() Options {
	return Options{
		TargetTokens:     DefaultTargetTokens,
		MaxTokens:        DefaultMaxTokens,
		OverlapRatio:     DefaultOverlapRatio,
		MinOverlapTokens: DefaultMinOverlapTokens,
		MaxOverlapTokens: DefaultMaxOverlapTokens,
	}
}

// Chunk is one token-bounded span of the input. SpanStart/SpanEnd bound
// the chunk's own content in the normalized input; Text additionally
// carries the overlap tokens prepended from the previous chunk.
type Chunk struct {
	Index         int    `json:"index"`
	Count         int    `json:"count"`
	Text          string `json:"text"`
	SpanStart     int    `json:"span_start"`
	SpanEnd       int    `json:"span_end"`
	OverlapTokens int    `json:"overlap_tokens"`
	WordCount     int    `json:"word_count"`
	TokenCount    int    `json:"token_count"`
}

// block is a contiguous run of non-blank lines. Its span is tiled: it
// extends to the start of the next block (or end of input), so
// concatenating block spans reconstructs the normalized input exactly.
type block struct {
	start  int
	end    int
	tokens int
}

// Split chunks the content. Empty or whitespace-only input yields nil.
func Split(content string, opts Options) []Chunk {
	opts = opts.withDefaults()

	text := normalize(content)
	if text == "" {
		return nil
	}

	blocks := segment(text)
	packed := pack(blocks, opts)

	chunks := make([]Chunk, len(packed))
	for i, span := range packed {
		own := text[span.start:span.end]

		c := Chunk{
			Index:     i,
			Count:     len(packed),
			SpanStart: span.start,
			SpanEnd:   span.end,
		}

		if i == 0 {
			c.Text = own
		} else {
			ownTokens := countTokens(own)
			want := clamp(int(math.Round(float64(ownTokens)*opts.OverlapRatio)), opts.MinOverlapTokens, opts.MaxOverlapTokens)

			prev := packed[i-1]
			overlap, got := trailingTokens(text[prev.start:prev.end], want)
			c.OverlapTokens = got
			if got > 0 {
				c.Text = overlap + "\n\n" + own
			} else {
				c.Text = own
			}
		}

		c.TokenCount = countTokens(c.Text)
		c.WordCount = len(strings.Fields(c.Text))
		chunks[i] = c
	}

	return chunks
}

func (o Options) withDefaults() Options {
	if o.TargetTokens <= 0 {
		o.TargetTokens = DefaultTargetTokens
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.MaxTokens < o.TargetTokens {
		o.MaxTokens = o.TargetTokens
	}
	if o.OverlapRatio <= 0 {
		o.OverlapRatio = DefaultOverlapRatio
	}
	if o.MinOverlapTokens <= 0 {
		o.MinOverlapTokens = DefaultMinOverlapTokens
	}
	if o.MaxOverlapTokens <= 0 {
		o.MaxOverlapTokens = DefaultMaxOverlapTokens
	}
	if o.MaxOverlapTokens < o.MinOverlapTokens {
		o.MaxOverlapTokens = o.MinOverlapTokens
	}
	return o
}

// normalize converts line endings to \n and trims surrounding whitespace.
// All spans are relative to the normalized text.
func normalize(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return strings.TrimSpace(content)
}

// segment splits the text into blocks at blank lines and heading
// boundaries. A heading line always starts a new block, even when the
// previous line was not blank.
func segment(text string) []block {
	var starts []int
	inBlock := false

	pos := 0
	for pos <= len(text) {
		lineEnd := strings.IndexByte(text[pos:], '\n')
		var line string
		var next int
		if lineEnd < 0 {
			line = text[pos:]
			next = len(text) + 1
		} else {
			line = text[pos : pos+lineEnd]
			next = pos + lineEnd + 1
		}

		switch {
		case strings.TrimSpace(line) == "":
			inBlock = false
		case headingPattern.MatchString(line):
			starts = append(starts, pos)
			inBlock = true
		case !inBlock:
			starts = append(starts, pos)
			inBlock = true
		}

		pos = next
	}

	blocks := make([]block, len(starts))
	for i, start := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		blocks[i] = block{
			start:  start,
			end:    end,
			tokens: countTokens(text[start:end]),
		}
	}

	return blocks
}

// pack greedily merges consecutive blocks into chunk spans: flush once
// the running token total reaches the target, and never let a chunk grow
// past max by adding another block. Blocks are never split, so a single
// oversized block becomes its own chunk.
func pack(blocks []block, opts Options) []block {
	var packed []block
	var cur block
	open := false

	flush := func() {
		packed = append(packed, cur)
		open = false
	}

	for _, b := range blocks {
		if open && cur.tokens+b.tokens > opts.MaxTokens {
			flush()
		}

		if !open {
			cur = b
			open = true
		} else {
			cur.end = b.end
			cur.tokens += b.tokens
		}

		if cur.tokens >= opts.TargetTokens {
			flush()
		}
	}

	if open {
		flush()
	}

	return packed
}

// trailingTokens returns the substring of text starting at its n-th token
// from the end, preserving original spacing, along with the number of
// tokens actually available (min(n, total)).
func trailingTokens(text string, n int) (string, int) {
	if n <= 0 {
		return "", 0
	}

	positions := tokenPattern.FindAllStringIndex(text, -1)
	if len(positions) == 0 {
		return "", 0
	}

	if n > len(positions) {
		n = len(positions)
	}

	start := positions[len(positions)-n][0]
	return strings.TrimSpace(text[start:]), n
}

func countTokens(text string) int {
	return len(tokenPattern.FindAllStringIndex(text, -1))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
