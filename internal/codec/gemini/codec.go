package gemini

import (
	"encoding/json"
	"strings"

	"github.com/aggrelay/aggrelay/internal/codec"
	"github.com/aggrelay/aggrelay/internal/domain"
)

// Codec implements codec.Codec for the Google-shaped wire format.
type Codec struct{}

// New creates a new gemini codec.
func New() *Codec {
	return &Codec{}
}

// Name returns the codec name.
func (c *Codec) Name() string {
	return "gemini"
}

// DecodeRequest converts a generateContent request to canonical format.
func (c *Codec) DecodeRequest(data []byte) (*domain.CanonicalRequest, error) {
	var apiReq GenerateContentRequest
	if err := json.Unmarshal(data, &apiReq); err != nil {
		return nil, domain.ErrSchemaValidation("body")
	}
	if len(apiReq.Contents) == 0 {
		return nil, domain.ErrSchemaValidation("contents")
	}
	return RequestToCanonical(&apiReq)
}

// EncodeRequest converts a canonical request to generateContent JSON.
func (c *Codec) EncodeRequest(req *domain.CanonicalRequest) ([]byte, error) {
	return json.Marshal(CanonicalToRequest(req))
}

// DecodeResponse converts a generateContent response to canonical format.
func (c *Codec) DecodeResponse(data []byte) (*domain.CanonicalResponse, error) {
	var apiResp GenerateContentResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return nil, domain.ErrSchemaValidation("body")
	}
	return ResponseToCanonical(&apiResp), nil
}

// EncodeResponse converts a canonical response to generateContent JSON.
func (c *Codec) EncodeResponse(resp *domain.CanonicalResponse) ([]byte, error) {
	return json.Marshal(CanonicalToResponse(resp))
}

// RequestToCanonical applies the full inbound transformation: role mapping,
// content flattening, display-name prefixing, same-role merging, stop
// synthesis, and thinking pass-through.
func RequestToCanonical(apiReq *GenerateContentRequest) (*domain.CanonicalRequest, error) {
	var messages []domain.Message

	if sys := apiReq.SystemInstruction; sys != nil {
		if text := flattenText(sys.Parts); text != "" {
			messages = append(messages, domain.Message{
				Role:    "system",
				Content: domain.NewTextContent(text),
			})
		}
	}

	var names []string
	seenNames := make(map[string]struct{})
	for _, content := range apiReq.Contents {
		role := mapRole(content.Role)
		text := flattenText(content.Parts)

		name := codec.DeriveName("", text, role)
		if name != "" {
			if _, seen := seenNames[name]; !seen {
				seenNames[name] = struct{}{}
				names = append(names, name)
			}
			text = codec.PrefixName(name, text)
		}

		msgContent := domain.NewTextContent(text)
		if images := collectImages(content.Parts); len(images) > 0 {
			parts := []domain.ContentPart{}
			if text != "" {
				parts = append(parts, domain.TextPart(text))
			}
			parts = append(parts, images...)
			msgContent = domain.NewMultipartContent(parts...)
		}

		messages = append(messages, domain.Message{Role: role, Content: msgContent})
	}

	messages = codec.MergeConsecutive(messages)

	req := &domain.CanonicalRequest{
		Model:    apiReq.Model,
		Messages: messages,
	}

	var callerStops []string
	if gc := apiReq.GenerationConfig; gc != nil {
		req.Temperature = gc.Temperature
		req.TopP = gc.TopP
		req.MaxTokens = gc.MaxOutputTokens
		callerStops = gc.StopSequences
		req.Modalities = normalizeModalities(gc.ResponseModalities)
	}
	req.Stop = codec.StopSequences(callerStops, names)

	req.Reasoning = reasoningFrom(apiReq)

	if wantsSearch(apiReq) {
		req.Tools = append(req.Tools, domain.ToolDefinition{Type: codec.ToolTypeWebSearch})
		req.Modalities = []string{"text"}
	}

	return req, nil
}

// reasoningFrom reads the thinking block from either accepted location;
// generationConfig wins. No block at all is an explicit exclude.
func reasoningFrom(apiReq *GenerateContentRequest) *domain.ReasoningConfig {
	tc := apiReq.ThinkingConfig
	if apiReq.GenerationConfig != nil && apiReq.GenerationConfig.ThinkingConfig != nil {
		tc = apiReq.GenerationConfig.ThinkingConfig
	}
	if tc == nil {
		return codec.BuildReasoning(false, nil)
	}
	return codec.BuildReasoning(tc.IncludeThoughts, tc.ThinkingBudget)
}

// normalizeModalities lowercases the vendor's uppercase modality names.
func normalizeModalities(modalities []string) []string {
	var out []string
	for _, m := range modalities {
		out = append(out, strings.ToLower(m))
	}
	return out
}

func wantsSearch(apiReq *GenerateContentRequest) bool {
	if apiReq.EnableSearch {
		return true
	}
	for _, tool := range apiReq.Tools {
		if tool.GoogleSearch != nil {
			return true
		}
	}
	return false
}

// CanonicalToRequest converts a canonical request to the vendor shape.
func CanonicalToRequest(req *domain.CanonicalRequest) *GenerateContentRequest {
	out := &GenerateContentRequest{Model: req.Model}

	gc := &GenerationConfig{
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxOutputTokens: req.MaxTokens,
		StopSequences:   req.Stop,
	}

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			out.SystemInstruction = &Content{
				Parts: []Part{{Text: msg.Content.String()}},
			}
			continue
		}
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		content := Content{Role: role}
		if msg.Content.IsSimpleText() {
			content.Parts = []Part{{Text: msg.Content.Text}}
		} else {
			for _, part := range msg.Content.Parts {
				switch part.Type {
				case domain.ContentTypeText:
					content.Parts = append(content.Parts, Part{Text: part.Text})
				case domain.ContentTypeReasoning:
					content.Parts = append(content.Parts, Part{Text: part.Text, Thought: true})
				case domain.ContentTypeImage:
					content.Parts = append(content.Parts, Part{
						InlineData: &Blob{MimeType: part.Source.MediaType, Data: part.Source.Data},
					})
				}
			}
		}
		out.Contents = append(out.Contents, content)
	}

	if req.Reasoning != nil && !req.Reasoning.Exclude {
		tc := &ThinkingConfig{IncludeThoughts: true}
		if req.Reasoning.MaxTokens > 0 {
			tc.ThinkingBudget, _ = json.Marshal(req.Reasoning.MaxTokens)
		}
		gc.ThinkingConfig = tc
	}

	if codec.HasWebSearch(req) {
		out.Tools = append(out.Tools, Tool{GoogleSearch: &struct{}{}})
		gc.ResponseModalities = []string{"TEXT"}
	}

	out.GenerationConfig = gc
	return out
}

// ResponseToCanonical converts a vendor response to canonical format.
func ResponseToCanonical(apiResp *GenerateContentResponse) *domain.CanonicalResponse {
	resp := &domain.CanonicalResponse{
		Object: "chat.completion",
		Model:  apiResp.ModelVersion,
	}
	if um := apiResp.UsageMetadata; um != nil {
		resp.Usage = domain.Usage{
			PromptTokens:     um.PromptTokenCount,
			CompletionTokens: um.CandidatesTokenCount,
			TotalTokens:      um.TotalTokenCount,
		}
	}

	for i, cand := range apiResp.Candidates {
		var text, reasoning strings.Builder
		for _, part := range cand.Content.Parts {
			if part.Thought {
				reasoning.WriteString(part.Text)
			} else {
				text.WriteString(part.Text)
			}
		}
		resp.Choices = append(resp.Choices, domain.Choice{
			Index: i,
			Message: domain.ResponseMessage{
				Role:      "assistant",
				Content:   text.String(),
				Reasoning: reasoning.String(),
			},
			FinishReason: canonicalFinishReason(cand.FinishReason),
		})
	}
	return resp
}

// CanonicalToResponse shapes a canonical response as vendor candidates. A
// reasoning trace becomes a thought part emitted before the text part.
func CanonicalToResponse(resp *domain.CanonicalResponse) *GenerateContentResponse {
	out := &GenerateContentResponse{
		ModelVersion: resp.Model,
		UsageMetadata: &UsageMetadata{
			PromptTokenCount:     resp.Usage.PromptTokens,
			CandidatesTokenCount: resp.Usage.CompletionTokens,
			TotalTokenCount:      resp.Usage.TotalTokens,
		},
	}

	for _, choice := range resp.Choices {
		var parts []Part
		if trace := choice.Message.ReasoningText(); trace != "" {
			parts = append(parts, Part{Text: trace, Thought: true})
		}
		parts = append(parts, Part{Text: choice.Message.Content})

		out.Candidates = append(out.Candidates, Candidate{
			Index:        choice.Index,
			Content:      Content{Role: "model", Parts: parts},
			FinishReason: vendorFinishReason(choice.FinishReason),
		})
	}
	return out
}

// vendorFinishReason normalizes canonical finish reasons to the vendor's
// uppercased vocabulary.
func vendorFinishReason(reason string) string {
	switch reason {
	case "", "stop":
		return "STOP"
	case "length":
		return "MAX_TOKENS"
	case "content_filter":
		return "SAFETY"
	default:
		return strings.ToUpper(reason)
	}
}

func canonicalFinishReason(reason string) string {
	switch reason {
	case "", "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY":
		return "content_filter"
	default:
		return strings.ToLower(reason)
	}
}

func mapRole(role string) string {
	switch role {
	case "model", "assistant":
		return "assistant"
	case "system":
		return "system"
	default:
		return "user"
	}
}

func flattenText(parts []Part) string {
	var texts []string
	for _, part := range parts {
		if part.Text != "" && !part.Thought {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func collectImages(parts []Part) []domain.ContentPart {
	var images []domain.ContentPart
	for _, part := range parts {
		if source := part.Image(); source != nil {
			images = append(images, domain.ImagePart(source.MediaType, source.Data))
		}
	}
	return images
}

// Ensure Codec implements the interface
var _ codec.Codec = (*Codec)(nil)
