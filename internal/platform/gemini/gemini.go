// Package gemini implements generation.TextService using Google's Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/config"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/generation"
	"google.golang.org/genai"
)

// maxInputChars bounds how much of a document is sent per request. Longer
// content is truncated; summaries of the head are acceptable for the
// library's use cases.
const maxInputChars = 48000

const summarizePrompt = `Summarize the following document in 3-5 sentences of plain prose.
Respond with the summary text only, no preamble and no markdown.

Document:
%s`

const suggestTagsPrompt = `Suggest between 1 and 8 short topical tags for the following document.
Tags are lowercase, use hyphens instead of spaces, and never contain punctuation.
Respond with a JSON object of the form {"tags": ["tag-one", "tag-two"]} and nothing else.

Document:
%s`

const cleanupTranscriptPrompt = `Clean up the following raw speech transcript: fix punctuation,
capitalization and obvious recognition errors, and break it into paragraphs.
Do not add, remove or reorder information. Respond with the cleaned transcript
only, no preamble and no markdown.

Transcript:
%s`

// tagSchema is the expected structure of a tag suggestion response.
type tagSchema struct {
	Tags []string `json:"tags"`
}

// TextService calls the Gemini API to produce summaries, tag suggestions
// and transcript cleanups. It implements generation.TextService.
type TextService struct {
	logger *slog.Logger
	client *genai.Client
	model  string
}

// NewTextService creates a TextService from LLM configuration.
func NewTextService(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*TextService, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return &TextService{
		logger: logger.With("component", "gemini"),
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Summarize produces a short prose summary of the given text.
func (s *TextService) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", generation.ErrEmptyInput
	}

	prompt := fmt.Sprintf(summarizePrompt, truncate(text, maxInputChars))

	raw, err := s.generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(stripCodeFence(raw))
	if summary == "" {
		return "", fmt.Errorf("%w: empty summary", generation.ErrInvalidResponse)
	}

	return summary, nil
}

// SuggestTags proposes topical tags for the given text.
func (s *TextService) SuggestTags(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, generation.ErrEmptyInput
	}

	prompt := fmt.Sprintf(suggestTagsPrompt, truncate(text, maxInputChars))

	raw, err := s.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	tags, err := parseTagList(raw)
	if err != nil {
		return nil, err
	}

	return tags, nil
}

// CleanupTranscript rewrites a raw speech transcript into readable prose.
func (s *TextService) CleanupTranscript(ctx context.Context, transcript string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", generation.ErrEmptyInput
	}

	prompt := fmt.Sprintf(cleanupTranscriptPrompt, truncate(transcript, maxInputChars))

	raw, err := s.generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	cleaned := strings.TrimSpace(stripCodeFence(raw))
	if cleaned == "" {
		return "", fmt.Errorf("%w: empty cleaned transcript", generation.ErrInvalidResponse)
	}

	return cleaned, nil
}

// generate runs one prompt through the configured model and returns the
// concatenated text parts of the first candidate.
func (s *TextService) generate(ctx context.Context, prompt string) (string, error) {
	s.logger.DebugContext(ctx, "calling Gemini API",
		"model", s.model,
		"prompt_length", len(prompt))

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: finish reason safety", generation.ErrContentBlocked)
	}

	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}

	return sb.String(), nil
}

// parseTagList extracts the tag array from a model response, tolerating
// markdown code fences around the JSON.
func parseTagList(raw string) ([]string, error) {
	cleaned := strings.TrimSpace(stripCodeFence(raw))
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty tag response", generation.ErrInvalidResponse)
	}

	var schema tagSchema
	if err := json.Unmarshal([]byte(cleaned), &schema); err != nil {
		// Some models return a bare array despite the instructions.
		var bare []string
		if err2 := json.Unmarshal([]byte(cleaned), &bare); err2 != nil {
			return nil, fmt.Errorf("%w: failed to parse tag JSON: %v", generation.ErrInvalidResponse, err)
		}
		schema.Tags = bare
	}

	tags := make([]string, 0, len(schema.Tags))
	seen := make(map[string]struct{}, len(schema.Tags))
	for _, tag := range schema.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: no tags in response", generation.ErrInvalidResponse)
	}

	return tags, nil
}

// stripCodeFence removes a surrounding markdown code fence, if present.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		// Drop the language hint on the opening fence line.
		if !strings.ContainsAny(trimmed[:idx], "{}[]") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	return strings.TrimSpace(trimmed)
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
