// Package tokens estimates prompt token counts with tiktoken encodings.
package tokens

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/aggrelay/aggrelay/internal/domain"
)

// Per-message overhead for chat models, per OpenAI's documented accounting:
// 3 tokens per message, 1 for the role, 3 for assistant priming at the end.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	tokensPriming    = 3

	// imageTokens is the flat estimate per inline image. Providers bill
	// images by tiling; the low-detail flat rate is close enough for
	// context-window validation.
	imageTokens = 85
)

// Counter estimates prompt token counts for canonical requests. Counts are
// exact for models whose encoding tiktoken knows and an approximation for
// everything else, which is adequate for context-window validation.
type Counter struct {
	cacheMu sync.RWMutex
	codecs  map[tokenizer.Encoding]tokenizer.Codec
}

// NewCounter creates a token counter.
func NewCounter() *Counter {
	return &Counter{codecs: make(map[tokenizer.Encoding]tokenizer.Codec)}
}

// CountPrompt returns the estimated prompt token count for a request.
func (c *Counter) CountPrompt(req *domain.CanonicalRequest) (int, error) {
	codec, err := c.getCodec(req.Model)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, msg := range req.Messages {
		total += tokensPerMessage + tokensPerRole
		if msg.Content.IsSimpleText() {
			total += encodedLen(codec, msg.Content.Text)
			continue
		}
		for _, part := range msg.Content.Parts {
			switch part.Type {
			case domain.ContentTypeText, domain.ContentTypeReasoning:
				total += encodedLen(codec, part.Text)
			case domain.ContentTypeImage:
				total += imageTokens
			}
		}
	}

	for _, tool := range req.Tools {
		total += encodedLen(codec, tool.Function.Name)
		total += encodedLen(codec, tool.Function.Description)
		if tool.Function.Parameters != nil {
			paramBytes, _ := json.Marshal(tool.Function.Parameters)
			total += encodedLen(codec, string(paramBytes))
		}
		total += 7 // overhead per tool definition
	}

	total += tokensPriming
	return total, nil
}

// CountText counts tokens for a plain text string.
func (c *Counter) CountText(model, text string) (int, error) {
	codec, err := c.getCodec(model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func encodedLen(codec tokenizer.Codec, text string) int {
	if text == "" {
		return 0
	}
	ids, _, _ := codec.Encode(text)
	return len(ids)
}

func (c *Counter) getCodec(model string) (tokenizer.Codec, error) {
	encoding := modelEncoding(model)

	c.cacheMu.RLock()
	cached, ok := c.codecs[encoding]
	c.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer encoding %s: %w", encoding, err)
	}

	c.cacheMu.Lock()
	c.codecs[encoding] = codec
	c.cacheMu.Unlock()
	return codec, nil
}

// modelEncoding maps a catalogue model ID to a tiktoken encoding. IDs are
// family-qualified ("openai/gpt-4o"); the suffix after the slash is the
// vendor model name. Non-OpenAI models get the modern o200k_base encoding as
// an approximation.
func modelEncoding(model string) tokenizer.Encoding {
	name := strings.ToLower(model)
	if _, suffix, ok := strings.Cut(name, "/"); ok {
		name = suffix
	}

	switch {
	case strings.HasPrefix(name, "gpt-4o"),
		strings.HasPrefix(name, "gpt-4.1"),
		strings.HasPrefix(name, "gpt-5"),
		strings.HasPrefix(name, "o1"),
		strings.HasPrefix(name, "o3"),
		strings.HasPrefix(name, "o4"),
		strings.HasPrefix(name, "chatgpt"),
		strings.HasPrefix(name, "codex"):
		return tokenizer.O200kBase
	case strings.HasPrefix(name, "gpt-4"), strings.HasPrefix(name, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}
