// Package claude provides a codec for the Anthropic-shaped messages wire
// format.
package claude

import "encoding/json"

// MessagesRequest is the inbound request shape.
type MessagesRequest struct {
	Model         string        `json:"model"`
	System        SystemPrompt  `json:"system,omitempty"`
	Messages      []Message     `json:"messages"`
	MaxTokens     int           `json:"max_tokens,omitempty"`
	Temperature   *float64      `json:"temperature,omitempty"`
	TopP          *float64      `json:"top_p,omitempty"`
	StopSequences []string      `json:"stop_sequences,omitempty"`
	Stream        bool          `json:"stream,omitempty"`
	Thinking      *Thinking     `json:"thinking,omitempty"`
}

// Thinking requests reasoning traces. The budget is a JSON number or the
// symbolic "auto".
type Thinking struct {
	Type         string          `json:"type"` // "enabled" or "disabled"
	BudgetTokens json.RawMessage `json:"budget_tokens,omitempty"`
}

// SystemPrompt accepts a plain string or a list of text blocks.
type SystemPrompt struct {
	Text   string
	Blocks []ContentBlock
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.Text = str
		s.Blocks = nil
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	s.Blocks = blocks
	s.Text = ""
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if len(s.Blocks) == 0 {
		return json.Marshal(s.Text)
	}
	return json.Marshal(s.Blocks)
}

// String flattens the prompt to plain text.
func (s *SystemPrompt) String() string {
	if len(s.Blocks) == 0 {
		return s.Text
	}
	var out string
	for _, b := range s.Blocks {
		if b.Type == "" || b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// Message is one conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent accepts a plain string or a list of typed blocks.
type MessageContent struct {
	Text   string
	Blocks []ContentBlock
}

// UnmarshalJSON implements json.Unmarshaler.
func (mc *MessageContent) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		mc.Text = str
		mc.Blocks = nil
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	mc.Blocks = blocks
	mc.Text = ""
	return nil
}

// MarshalJSON implements json.Marshaler.
func (mc MessageContent) MarshalJSON() ([]byte, error) {
	if len(mc.Blocks) == 0 {
		return json.Marshal(mc.Text)
	}
	return json.Marshal(mc.Blocks)
}

// ContentBlock is a single typed content block.
type ContentBlock struct {
	Type string `json:"type"`

	// text blocks
	Text string `json:"text,omitempty"`

	// thinking blocks
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// image blocks
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource is base64 image payload plus media type.
type ImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// MessagesResponse is the outbound response shape.
type MessagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason,omitempty"`
	Usage      ResponseUsage  `json:"usage"`
}

// ResponseUsage carries token counts.
type ResponseUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
