package gemini

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/config"
	"github.com/xiaoyuanzhu-com/my-life-db-sub008/internal/generation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewTextServiceValidatesConfig(t *testing.T) {
	ctx := context.Background()

	_, err := NewTextService(ctx, testLogger(), config.LLMConfig{ModelName: "gemini-2.0-flash"})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = NewTextService(ctx, testLogger(), config.LLMConfig{GeminiAPIKey: "test-key"})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = NewTextService(ctx, nil, config.LLMConfig{GeminiAPIKey: "test-key", ModelName: "gemini-2.0-flash"})
	assert.Error(t, err)
}

func TestParseTagList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "plain object",
			raw:  `{"tags": ["golang", "databases"]}`,
			want: []string{"golang", "databases"},
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"tags\": [\"travel\", \"photos\"]}\n```",
			want: []string{"travel", "photos"},
		},
		{
			name: "bare array fallback",
			raw:  `["notes", "meeting"]`,
			want: []string{"notes", "meeting"},
		},
		{
			name: "normalizes case and dedupes",
			raw:  `{"tags": ["Recipes", "recipes", "  dinner "]}`,
			want: []string{"recipes", "dinner"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tags, err := parseTagList(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tags)
		})
	}
}

func TestParseTagListInvalid(t *testing.T) {
	_, err := parseTagList("")
	assert.ErrorIs(t, err, generation.ErrInvalidResponse)

	_, err = parseTagList("here are some tags for you")
	assert.ErrorIs(t, err, generation.ErrInvalidResponse)

	_, err = parseTagList(`{"tags": ["", "  "]}`)
	assert.ErrorIs(t, err, generation.ErrInvalidResponse)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "plain text", stripCodeFence("plain text"))
	assert.Equal(t, `{"tags":[]}`, stripCodeFence("```json\n{\"tags\":[]}\n```"))
	assert.Equal(t, "summary here", stripCodeFence("```\nsummary here\n```"))
}
