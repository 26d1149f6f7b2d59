package tokens

import (
	"testing"

	"github.com/tiktoken-go/tokenizer"

	"github.com/aggrelay/aggrelay/internal/domain"
)

func TestCountText(t *testing.T) {
	c := NewCounter()

	n, err := c.CountText("openai/gpt-4o", "hello world")
	if err != nil {
		t.Fatalf("CountText() error: %v", err)
	}
	if n == 0 {
		t.Error("CountText() = 0 for non-empty text")
	}

	longer, err := c.CountText("openai/gpt-4o", "hello world, how are you doing today?")
	if err != nil {
		t.Fatal(err)
	}
	if longer <= n {
		t.Errorf("longer text counted %d tokens, short text %d", longer, n)
	}
}

func TestCountPrompt(t *testing.T) {
	c := NewCounter()

	req := &domain.CanonicalRequest{
		Model: "openai/gpt-4o",
		Messages: []domain.Message{
			{Role: "system", Content: domain.NewTextContent("be helpful")},
			{Role: "user", Content: domain.NewTextContent("hello there")},
		},
	}

	base, err := c.CountPrompt(req)
	if err != nil {
		t.Fatalf("CountPrompt() error: %v", err)
	}
	// Two messages of overhead plus priming is the floor.
	if base <= 2*(tokensPerMessage+tokensPerRole)+tokensPriming {
		t.Errorf("CountPrompt() = %d, suspiciously low", base)
	}

	req.Messages = append(req.Messages, domain.Message{
		Role: "user",
		Content: domain.NewMultipartContent(
			domain.TextPart("what is in this picture?"),
			domain.ImagePart("image/png", "AAAA"),
		),
	})
	withImage, err := c.CountPrompt(req)
	if err != nil {
		t.Fatal(err)
	}
	if withImage < base+imageTokens {
		t.Errorf("image message added %d tokens, want at least %d", withImage-base, imageTokens)
	}
}

func TestCountPromptTools(t *testing.T) {
	c := NewCounter()

	req := &domain.CanonicalRequest{
		Model: "openai/gpt-4o",
		Messages: []domain.Message{
			{Role: "user", Content: domain.NewTextContent("hi")},
		},
	}
	bare, err := c.CountPrompt(req)
	if err != nil {
		t.Fatal(err)
	}

	req.Tools = []domain.ToolDefinition{{
		Type: "function",
		Function: domain.FunctionDef{
			Name:        "get_weather",
			Description: "Look up the current weather for a location",
		},
	}}
	withTool, err := c.CountPrompt(req)
	if err != nil {
		t.Fatal(err)
	}
	if withTool <= bare {
		t.Errorf("tool definition added no tokens: %d vs %d", withTool, bare)
	}
}

func TestModelEncoding(t *testing.T) {
	tests := []struct {
		model string
		want  tokenizer.Encoding
	}{
		{"openai/gpt-4o", tokenizer.O200kBase},
		{"openai/gpt-4o-mini", tokenizer.O200kBase},
		{"openai/o3-mini", tokenizer.O200kBase},
		{"openai/gpt-4-turbo", tokenizer.Cl100kBase},
		{"openai/gpt-3.5-turbo", tokenizer.Cl100kBase},
		{"anthropic/claude-sonnet-4", tokenizer.O200kBase},
		{"google/gemini-2.5-pro", tokenizer.O200kBase},
	}
	for _, tt := range tests {
		if got := modelEncoding(tt.model); got != tt.want {
			t.Errorf("modelEncoding(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}
