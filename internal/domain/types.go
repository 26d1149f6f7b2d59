package domain

// Message represents a chat message in the canonical format.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
	Name    string         `json:"name,omitempty"`
}

// ToolDefinition represents a tool that the model can call.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes the function signature.
type FunctionDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"` // JSON Schema
}

// ReasoningConfig controls reasoning-trace emission on the upstream request.
// Enabled with no MaxTokens means "include reasoning, provider-chosen budget".
// Exclude is the explicit opt-out sent when the caller never asked for
// reasoning at all.
type ReasoningConfig struct {
	MaxTokens int   `json:"max_tokens,omitempty"`
	Enabled   *bool `json:"enabled,omitempty"`
	Exclude   bool  `json:"exclude,omitempty"`
}

// CanonicalRequest is the pivot chat-completion request all vendor formats
// are translated through. It is also the upstream wire shape.
type CanonicalRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	Stop        []string         `json:"stop,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Reasoning   *ReasoningConfig `json:"reasoning,omitempty"`

	// Modalities constrains the response media types ("text", "image").
	Modalities []string `json:"modalities,omitempty"`

	// PromptTokens is the measured prompt size, supplied by the pipeline
	// stage that counted it. Never serialized upstream.
	PromptTokens int `json:"-"`
}

// Usage records token accounting information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ResponseMessage is the assistant message inside a response choice.
// Upstream responses carry reasoning traces under one of two field names
// depending on the serving provider; ReasoningText folds them together.
type ResponseMessage struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	Reasoning        string `json:"reasoning,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`

	// Images carries generated images decoded from the upstream reply.
	Images []ImageSource `json:"images,omitempty"`
}

// ReasoningText returns the reasoning trace regardless of which field name
// the upstream used.
func (m *ResponseMessage) ReasoningText() string {
	if m.Reasoning != "" {
		return m.Reasoning
	}
	return m.ReasoningContent
}

// Choice represents a single completion choice.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// CanonicalResponse represents a complete non-streaming response.
type CanonicalResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object,omitempty"`
	Created int64    `json:"created,omitempty"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// FirstChoice returns the first choice, or nil when the response is empty.
func (r *CanonicalResponse) FirstChoice() *Choice {
	if len(r.Choices) == 0 {
		return nil
	}
	return &r.Choices[0]
}
