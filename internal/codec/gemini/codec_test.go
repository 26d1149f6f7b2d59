package gemini

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/aggrelay/aggrelay/internal/codec"
	"github.com/aggrelay/aggrelay/internal/domain"
)

func TestDecodeRequestValidation(t *testing.T) {
	c := New()

	if _, err := c.DecodeRequest([]byte(`{not json`)); err == nil {
		t.Error("malformed JSON accepted")
	}
	if _, err := c.DecodeRequest([]byte(`{"contents": []}`)); err == nil {
		t.Error("empty contents accepted")
	}

	_, err := c.DecodeRequest([]byte(`{}`))
	apiErr := domain.AsAPIError(err)
	if apiErr == nil || apiErr.Code != domain.ErrorCodeSchemaValidation {
		t.Errorf("err = %v, want schema validation", err)
	}
}

func TestRequestToCanonical(t *testing.T) {
	apiReq := &GenerateContentRequest{
		Model: "google/gemini-2.5-flash",
		SystemInstruction: &Content{
			Parts: []Part{{Text: "be helpful"}},
		},
		Contents: []Content{
			{Role: "user", Parts: []Part{{Text: "hello"}}},
			{Role: "user", Parts: []Part{{Text: "anyone there?"}}},
			{Role: "model", Parts: []Part{{Text: "hi!"}}},
		},
		GenerationConfig: &GenerationConfig{
			Temperature:     ptr(0.7),
			MaxOutputTokens: 512,
			StopSequences:   []string{"###"},
		},
	}

	req, err := RequestToCanonical(apiReq)
	if err != nil {
		t.Fatalf("RequestToCanonical() error: %v", err)
	}

	if req.Model != "google/gemini-2.5-flash" {
		t.Errorf("Model = %q", req.Model)
	}
	if len(req.Messages) != 3 {
		t.Fatalf("got %d messages, want 3 (system + merged user + model)", len(req.Messages))
	}
	if req.Messages[0].Role != "system" || req.Messages[0].Content.String() != "be helpful" {
		t.Errorf("system message = %+v", req.Messages[0])
	}
	if req.Messages[1].Role != "user" {
		t.Errorf("role = %s, want user", req.Messages[1].Role)
	}
	if got := req.Messages[1].Content.String(); got != "User: hello\n\nUser: anyone there?" {
		t.Errorf("merged user text = %q", got)
	}
	if req.Messages[2].Role != "assistant" {
		t.Errorf("model role mapped to %q, want assistant", req.Messages[2].Role)
	}
	if req.Messages[2].Content.String() != "Character: hi!" {
		t.Errorf("assistant text = %q", req.Messages[2].Content.String())
	}

	if req.Temperature == nil || *req.Temperature != 0.7 {
		t.Errorf("Temperature = %v", req.Temperature)
	}
	if req.MaxTokens != 512 {
		t.Errorf("MaxTokens = %d", req.MaxTokens)
	}
	if !slices.Contains(req.Stop, "###") {
		t.Errorf("caller stop lost: %q", req.Stop)
	}
	if !slices.Contains(req.Stop, "\nUser:") || !slices.Contains(req.Stop, "\nCharacter:") {
		t.Errorf("synthesized stops missing: %q", req.Stop)
	}
}

func TestThinkingConfigLocations(t *testing.T) {
	t.Run("generationConfig wins", func(t *testing.T) {
		apiReq := &GenerateContentRequest{
			Contents: []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}},
			ThinkingConfig: &ThinkingConfig{
				IncludeThoughts: true,
				ThinkingBudget:  json.RawMessage(`4096`),
			},
			GenerationConfig: &GenerationConfig{
				ThinkingConfig: &ThinkingConfig{
					IncludeThoughts: true,
					ThinkingBudget:  json.RawMessage(`1024`),
				},
			},
		}
		req, err := RequestToCanonical(apiReq)
		if err != nil {
			t.Fatal(err)
		}
		if req.Reasoning == nil || req.Reasoning.MaxTokens != 1024 {
			t.Errorf("Reasoning = %+v, want budget 1024", req.Reasoning)
		}
	})

	t.Run("top-level location accepted", func(t *testing.T) {
		apiReq := &GenerateContentRequest{
			Contents: []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}},
			ThinkingConfig: &ThinkingConfig{
				IncludeThoughts: true,
				ThinkingBudget:  json.RawMessage(`"auto"`),
			},
		}
		req, err := RequestToCanonical(apiReq)
		if err != nil {
			t.Fatal(err)
		}
		if req.Reasoning == nil || req.Reasoning.Enabled == nil || !*req.Reasoning.Enabled {
			t.Errorf("Reasoning = %+v, want enabled", req.Reasoning)
		}
		if req.Reasoning.MaxTokens != 0 {
			t.Errorf("auto budget set a cap: %d", req.Reasoning.MaxTokens)
		}
	})

	t.Run("absent means exclude", func(t *testing.T) {
		apiReq := &GenerateContentRequest{
			Contents: []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}},
		}
		req, err := RequestToCanonical(apiReq)
		if err != nil {
			t.Fatal(err)
		}
		if req.Reasoning == nil || !req.Reasoning.Exclude {
			t.Errorf("Reasoning = %+v, want explicit exclude", req.Reasoning)
		}
	})
}

func TestInlineDataNaming(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"camelCase", `{"contents":[{"role":"user","parts":[
			{"text":"look"},
			{"inlineData":{"mimeType":"image/png","data":"AAAA"}}
		]}]}`},
		{"snake_case", `{"contents":[{"role":"user","parts":[
			{"text":"look"},
			{"inline_data":{"mime_type":"image/png","data":"AAAA"}}
		]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := New().DecodeRequest([]byte(tt.body))
			if err != nil {
				t.Fatalf("DecodeRequest() error: %v", err)
			}
			images := req.Messages[0].Content.Images()
			if len(images) != 1 {
				t.Fatalf("got %d images, want 1", len(images))
			}
			if images[0].Source.MediaType != "image/png" || images[0].Source.Data != "AAAA" {
				t.Errorf("image source = %+v", images[0].Source)
			}
		})
	}
}

func TestSearchOptIn(t *testing.T) {
	tests := []struct {
		name   string
		apiReq *GenerateContentRequest
	}{
		{"enableSearch flag", &GenerateContentRequest{
			Contents:     []Content{{Role: "user", Parts: []Part{{Text: "news?"}}}},
			EnableSearch: true,
		}},
		{"googleSearch tool", &GenerateContentRequest{
			Contents: []Content{{Role: "user", Parts: []Part{{Text: "news?"}}}},
			Tools:    []Tool{{GoogleSearch: &struct{}{}}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := RequestToCanonical(tt.apiReq)
			if err != nil {
				t.Fatal(err)
			}
			if !codec.HasWebSearch(req) {
				t.Error("search tool not mapped")
			}
			if !slices.Equal(req.Modalities, []string{"text"}) {
				t.Errorf("Modalities = %q, want [text]", req.Modalities)
			}
		})
	}
}

func TestRequestRoundTrip(t *testing.T) {
	orig := &domain.CanonicalRequest{
		Model: "google/gemini-2.5-pro",
		Messages: []domain.Message{
			{Role: "system", Content: domain.NewTextContent("be helpful")},
			{Role: "user", Content: domain.NewTextContent("User: hello")},
			{Role: "assistant", Content: domain.NewTextContent("Character: hi!")},
			{Role: "user", Content: domain.NewTextContent("User: how are you?")},
		},
	}

	back, err := RequestToCanonical(CanonicalToRequest(orig))
	if err != nil {
		t.Fatalf("round trip error: %v", err)
	}

	if len(back.Messages) != len(orig.Messages) {
		t.Fatalf("got %d messages, want %d", len(back.Messages), len(orig.Messages))
	}
	for i, msg := range orig.Messages {
		if back.Messages[i].Role != msg.Role {
			t.Errorf("role[%d] = %s, want %s", i, back.Messages[i].Role, msg.Role)
		}
		if back.Messages[i].Content.String() != msg.Content.String() {
			t.Errorf("text[%d] = %q, want %q", i, back.Messages[i].Content.String(), msg.Content.String())
		}
	}
}

func TestResponseToCanonical(t *testing.T) {
	apiResp := &GenerateContentResponse{
		ModelVersion: "gemini-2.5-pro",
		Candidates: []Candidate{{
			Content: Content{Role: "model", Parts: []Part{
				{Text: "thinking about it", Thought: true},
				{Text: "the answer is 42"},
			}},
			FinishReason: "MAX_TOKENS",
		}},
		UsageMetadata: &UsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 5, TotalTokenCount: 15},
	}

	resp := ResponseToCanonical(apiResp)
	choice := resp.FirstChoice()
	if choice == nil {
		t.Fatal("no choices")
	}
	if choice.Message.Content != "the answer is 42" {
		t.Errorf("Content = %q", choice.Message.Content)
	}
	if choice.Message.ReasoningText() != "thinking about it" {
		t.Errorf("Reasoning = %q", choice.Message.ReasoningText())
	}
	if choice.FinishReason != "length" {
		t.Errorf("FinishReason = %q, want length", choice.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestCanonicalToResponse(t *testing.T) {
	resp := &domain.CanonicalResponse{
		Model: "google/gemini-2.5-pro",
		Choices: []domain.Choice{{
			Message: domain.ResponseMessage{
				Role:      "assistant",
				Content:   "done",
				Reasoning: "first I pondered",
			},
			FinishReason: "stop",
		}},
		Usage: domain.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}

	out := CanonicalToResponse(resp)
	if len(out.Candidates) != 1 {
		t.Fatalf("got %d candidates", len(out.Candidates))
	}
	parts := out.Candidates[0].Content.Parts
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want thought + text", len(parts))
	}
	if !parts[0].Thought || parts[0].Text != "first I pondered" {
		t.Errorf("thought part = %+v", parts[0])
	}
	if parts[1].Thought || parts[1].Text != "done" {
		t.Errorf("text part = %+v", parts[1])
	}
	if out.Candidates[0].FinishReason != "STOP" {
		t.Errorf("FinishReason = %q", out.Candidates[0].FinishReason)
	}
}

func TestFinishReasonMapping(t *testing.T) {
	pairs := []struct{ canonical, vendor string }{
		{"stop", "STOP"},
		{"length", "MAX_TOKENS"},
		{"content_filter", "SAFETY"},
	}
	for _, p := range pairs {
		if got := vendorFinishReason(p.canonical); got != p.vendor {
			t.Errorf("vendorFinishReason(%q) = %q, want %q", p.canonical, got, p.vendor)
		}
		if got := canonicalFinishReason(p.vendor); got != p.canonical {
			t.Errorf("canonicalFinishReason(%q) = %q, want %q", p.vendor, got, p.canonical)
		}
	}
}

func ptr[T any](v T) *T { return &v }
