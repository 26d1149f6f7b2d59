package claude

import (
	"encoding/json"
	"strings"

	"github.com/aggrelay/aggrelay/internal/codec"
	"github.com/aggrelay/aggrelay/internal/domain"
)

// thinkingSignature is the opaque marker attached to synthesized thinking
// blocks. The upstream does not produce verifiable signatures, so a fixed
// marker keeps clients that validate block structure happy.
const thinkingSignature = "aggrelay"

// Codec implements codec.Codec for the Anthropic-shaped wire format.
type Codec struct{}

// New creates a new claude codec.
func New() *Codec {
	return &Codec{}
}

// Name returns the codec name.
func (c *Codec) Name() string {
	return "claude"
}

// DecodeRequest converts a messages request to canonical format.
func (c *Codec) DecodeRequest(data []byte) (*domain.CanonicalRequest, error) {
	var apiReq MessagesRequest
	if err := json.Unmarshal(data, &apiReq); err != nil {
		return nil, domain.ErrSchemaValidation("body")
	}
	if apiReq.Model == "" {
		return nil, domain.ErrSchemaValidation("model")
	}
	if len(apiReq.Messages) == 0 {
		return nil, domain.ErrSchemaValidation("messages")
	}
	return RequestToCanonical(&apiReq)
}

// EncodeRequest converts a canonical request to messages JSON.
func (c *Codec) EncodeRequest(req *domain.CanonicalRequest) ([]byte, error) {
	return json.Marshal(CanonicalToRequest(req))
}

// DecodeResponse converts a messages response to canonical format.
func (c *Codec) DecodeResponse(data []byte) (*domain.CanonicalResponse, error) {
	var apiResp MessagesResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return nil, domain.ErrSchemaValidation("body")
	}
	return ResponseToCanonical(&apiResp), nil
}

// EncodeResponse converts a canonical response to messages JSON.
func (c *Codec) EncodeResponse(resp *domain.CanonicalResponse) ([]byte, error) {
	return json.Marshal(CanonicalToResponse(resp))
}

// RequestToCanonical applies the inbound transformation: role mapping,
// block flattening, display-name prefixing, same-role merging, stop
// synthesis, and thinking translation.
func RequestToCanonical(apiReq *MessagesRequest) (*domain.CanonicalRequest, error) {
	var messages []domain.Message

	if sys := apiReq.System.String(); sys != "" {
		messages = append(messages, domain.Message{
			Role:    "system",
			Content: domain.NewTextContent(sys),
		})
	}

	var names []string
	seenNames := make(map[string]struct{})
	for _, msg := range apiReq.Messages {
		role := mapRole(msg.Role)
		text := flattenText(msg.Content)

		name := codec.DeriveName("", text, role)
		if name != "" {
			if _, seen := seenNames[name]; !seen {
				seenNames[name] = struct{}{}
				names = append(names, name)
			}
			text = codec.PrefixName(name, text)
		}

		msgContent := domain.NewTextContent(text)
		if images := collectImages(msg.Content); len(images) > 0 {
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
		Model:       apiReq.Model,
		Messages:    messages,
		MaxTokens:   apiReq.MaxTokens,
		Temperature: apiReq.Temperature,
		TopP:        apiReq.TopP,
		Stream:      apiReq.Stream,
		Stop:        codec.StopSequences(apiReq.StopSequences, names),
	}

	if apiReq.Thinking == nil {
		req.Reasoning = codec.BuildReasoning(false, nil)
	} else {
		req.Reasoning = codec.BuildReasoning(apiReq.Thinking.Type == "enabled", apiReq.Thinking.BudgetTokens)
	}

	return req, nil
}

// CanonicalToRequest converts a canonical request to the vendor shape.
func CanonicalToRequest(req *domain.CanonicalRequest) *MessagesRequest {
	out := &MessagesRequest{
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		Stream:        req.Stream,
		StopSequences: req.Stop,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = 1024
	}

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			out.System.Text += msg.Content.String()
			continue
		}
		m := Message{Role: msg.Role}
		if msg.Content.IsSimpleText() {
			m.Content.Text = msg.Content.Text
		} else {
			for _, part := range msg.Content.Parts {
				switch part.Type {
				case domain.ContentTypeText:
					m.Content.Blocks = append(m.Content.Blocks, ContentBlock{Type: "text", Text: part.Text})
				case domain.ContentTypeReasoning:
					m.Content.Blocks = append(m.Content.Blocks, ContentBlock{
						Type: "thinking", Thinking: part.Text, Signature: thinkingSignature,
					})
				case domain.ContentTypeImage:
					m.Content.Blocks = append(m.Content.Blocks, ContentBlock{
						Type: "image",
						Source: &ImageSource{
							Type:      "base64",
							MediaType: part.Source.MediaType,
							Data:      part.Source.Data,
						},
					})
				}
			}
		}
		out.Messages = append(out.Messages, m)
	}

	if req.Reasoning != nil && !req.Reasoning.Exclude {
		thinking := &Thinking{Type: "enabled"}
		if req.Reasoning.MaxTokens > 0 {
			thinking.BudgetTokens, _ = json.Marshal(req.Reasoning.MaxTokens)
		}
		out.Thinking = thinking
	}

	return out
}

// ResponseToCanonical converts a vendor response to canonical format.
func ResponseToCanonical(apiResp *MessagesResponse) *domain.CanonicalResponse {
	var text, reasoning strings.Builder
	for _, block := range apiResp.Content {
		switch block.Type {
		case "thinking":
			reasoning.WriteString(block.Thinking)
		default:
			text.WriteString(block.Text)
		}
	}

	return &domain.CanonicalResponse{
		ID:     apiResp.ID,
		Object: "chat.completion",
		Model:  apiResp.Model,
		Choices: []domain.Choice{{
			Message: domain.ResponseMessage{
				Role:      "assistant",
				Content:   text.String(),
				Reasoning: reasoning.String(),
			},
			FinishReason: canonicalStopReason(apiResp.StopReason),
		}},
		Usage: domain.Usage{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
	}
}

// CanonicalToResponse shapes a canonical response as a flat content-block
// list. A reasoning trace becomes a thinking block preceding the text block.
func CanonicalToResponse(resp *domain.CanonicalResponse) *MessagesResponse {
	out := &MessagesResponse{
		ID:    resp.ID,
		Type:  "message",
		Role:  "assistant",
		Model: resp.Model,
		Usage: ResponseUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}

	choice := resp.FirstChoice()
	if choice == nil {
		out.StopReason = "end_turn"
		return out
	}

	if trace := choice.Message.ReasoningText(); trace != "" {
		out.Content = append(out.Content, ContentBlock{
			Type:      "thinking",
			Thinking:  trace,
			Signature: thinkingSignature,
		})
	}
	out.Content = append(out.Content, ContentBlock{Type: "text", Text: choice.Message.Content})
	out.StopReason = vendorStopReason(choice.FinishReason)
	return out
}

// vendorStopReason remaps the canonical finish reason via the fixed table.
func vendorStopReason(reason string) string {
	switch reason {
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	default:
		return "end_turn"
	}
}

func canonicalStopReason(reason string) string {
	switch reason {
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return "stop"
	}
}

func mapRole(role string) string {
	switch role {
	case "assistant":
		return "assistant"
	case "system":
		return "system"
	default:
		return "user"
	}
}

func flattenText(mc MessageContent) string {
	if len(mc.Blocks) == 0 {
		return mc.Text
	}
	var texts []string
	for _, block := range mc.Blocks {
		if (block.Type == "" || block.Type == "text") && block.Text != "" {
			texts = append(texts, block.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func collectImages(mc MessageContent) []domain.ContentPart {
	var images []domain.ContentPart
	for _, block := range mc.Blocks {
		if block.Type == "image" && block.Source != nil {
			images = append(images, domain.ImagePart(block.Source.MediaType, block.Source.Data))
		}
	}
	return images
}

// Ensure Codec implements the interface
var _ codec.Codec = (*Codec)(nil)
