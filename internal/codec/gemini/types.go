// Package gemini provides a codec for the Google-shaped generateContent
// wire format.
package gemini

import (
	"encoding/json"

	"github.com/aggrelay/aggrelay/internal/domain"
)

// GenerateContentRequest is the inbound request shape. The model itself
// normally arrives in the URL path; a body-level model field is accepted and
// overridden by the handler when the path names one.
type GenerateContentRequest struct {
	Model             string            `json:"model,omitempty"`
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	Tools             []Tool            `json:"tools,omitempty"`

	// ThinkingConfig is the second accepted location for the thinking
	// block; generationConfig.thinkingConfig wins when both are present.
	ThinkingConfig *ThinkingConfig `json:"thinkingConfig,omitempty"`

	// EnableSearch opts the request into the search tool.
	EnableSearch bool `json:"enableSearch,omitempty"`
}

// Content is one turn of the conversation.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a single typed content block. Inline image data arrives under
// either camelCase or snake_case field naming; Image folds both.
type Part struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`

	InlineData      *Blob `json:"inlineData,omitempty"`
	InlineDataSnake *Blob `json:"inline_data,omitempty"`
}

// Blob is base64 payload plus mime type, again under either field naming.
type Blob struct {
	MimeType      string `json:"mimeType,omitempty"`
	MimeTypeSnake string `json:"mime_type,omitempty"`
	Data          string `json:"data,omitempty"`
}

// Image normalizes the two inline-data shapes to one internal form.
func (p *Part) Image() *domain.ImageSource {
	blob := p.InlineData
	if blob == nil {
		blob = p.InlineDataSnake
	}
	if blob == nil {
		return nil
	}
	mime := blob.MimeType
	if mime == "" {
		mime = blob.MimeTypeSnake
	}
	return &domain.ImageSource{MediaType: mime, Data: blob.Data}
}

// GenerationConfig carries sampling and output controls.
type GenerationConfig struct {
	Temperature        *float64        `json:"temperature,omitempty"`
	TopP               *float64        `json:"topP,omitempty"`
	MaxOutputTokens    int             `json:"maxOutputTokens,omitempty"`
	StopSequences      []string        `json:"stopSequences,omitempty"`
	ResponseModalities []string        `json:"responseModalities,omitempty"`
	ThinkingConfig     *ThinkingConfig `json:"thinkingConfig,omitempty"`
}

// ThinkingConfig requests reasoning traces. The budget is a JSON number or
// the symbolic "auto".
type ThinkingConfig struct {
	IncludeThoughts bool            `json:"includeThoughts,omitempty"`
	ThinkingBudget  json.RawMessage `json:"thinkingBudget,omitempty"`
}

// Tool is a vendor tool declaration. Only the search tool is recognized.
type Tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

// GenerateContentResponse is the outbound response shape.
type GenerateContentResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
}

// Candidate is one completion candidate.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
	Index        int     `json:"index"`
}

// UsageMetadata carries token counts.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}
