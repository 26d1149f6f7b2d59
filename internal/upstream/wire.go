package upstream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aggrelay/aggrelay/internal/codec"
	"github.com/aggrelay/aggrelay/internal/domain"
)

// wirePart is the multimodal content-part shape of the chat-completions
// wire format. Images travel as data URIs under image_url.
type wirePart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageRef `json:"image_url,omitempty"`
}

type wireImageRef struct {
	URL string `json:"url"`
}

// encodeRequestBody marshals a canonical request for dispatch, rewriting
// image parts into the image_url shape the wire format expects. The
// canonical {"type":"image","source":{...}} shape is not spoken upstream.
func encodeRequestBody(req *domain.CanonicalRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("reshape request: %w", err)
	}
	rawMessages, ok := obj["messages"]
	if !ok {
		return body, nil
	}

	var messages []map[string]json.RawMessage
	if err := json.Unmarshal(rawMessages, &messages); err != nil {
		return nil, fmt.Errorf("reshape messages: %w", err)
	}

	changed := false
	for _, msg := range messages {
		content, ok := msg["content"]
		if !ok {
			continue
		}
		var parts []json.RawMessage
		if err := json.Unmarshal(content, &parts); err != nil {
			continue // plain string content passes through untouched
		}
		msgChanged := false
		for i, raw := range parts {
			var part domain.ContentPart
			if err := json.Unmarshal(raw, &part); err != nil {
				continue
			}
			if part.Type != domain.ContentTypeImage || part.Source == nil {
				continue
			}
			rewritten, err := json.Marshal(wirePart{
				Type:     "image_url",
				ImageURL: &wireImageRef{URL: codec.DataURI(part.Source)},
			})
			if err != nil {
				return nil, fmt.Errorf("reshape image part: %w", err)
			}
			parts[i] = rewritten
			msgChanged = true
		}
		if msgChanged {
			reencoded, err := json.Marshal(parts)
			if err != nil {
				return nil, fmt.Errorf("reshape content: %w", err)
			}
			msg["content"] = reencoded
			changed = true
		}
	}
	if !changed {
		return body, nil
	}

	reencoded, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("reshape messages: %w", err)
	}
	obj["messages"] = reencoded
	return json.Marshal(obj)
}

// decodeResponseBody unmarshals a wire response into the canonical form.
// Providers that return multimodal replies send content as a part array;
// text parts are flattened back into the plain content string and image_url
// data URIs become canonical image sources.
func decodeResponseBody(body []byte) (*domain.CanonicalResponse, error) {
	reshaped, images, err := flattenWireContent(body)
	if err == nil {
		body = reshaped
	}

	var out domain.CanonicalResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	for i, imgs := range images {
		if i < len(out.Choices) {
			out.Choices[i].Message.Images = imgs
		}
	}
	return &out, nil
}

// flattenWireContent rewrites array-shaped message content in choices into a
// plain string and collects decoded images per choice index. Non-data URIs
// and unrecognized parts are dropped from the flattened text.
func flattenWireContent(body []byte) ([]byte, map[int][]domain.ImageSource, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, nil, err
	}
	rawChoices, ok := obj["choices"]
	if !ok {
		return body, nil, nil
	}

	var choices []map[string]json.RawMessage
	if err := json.Unmarshal(rawChoices, &choices); err != nil {
		return nil, nil, err
	}

	images := make(map[int][]domain.ImageSource)
	changed := false
	for i, choice := range choices {
		rawMessage, ok := choice["message"]
		if !ok {
			continue
		}
		var msg map[string]json.RawMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			continue
		}
		content, ok := msg["content"]
		if !ok {
			continue
		}
		var parts []wirePart
		if err := json.Unmarshal(content, &parts); err != nil {
			continue // plain string content, nothing to flatten
		}

		var text strings.Builder
		for _, part := range parts {
			switch {
			case part.Type == "text":
				text.WriteString(part.Text)
			case part.Type == "image_url" && part.ImageURL != nil:
				source, err := codec.ParseDataURI(part.ImageURL.URL)
				if err != nil {
					continue
				}
				images[i] = append(images[i], *source)
			}
		}

		flattened, err := json.Marshal(text.String())
		if err != nil {
			return nil, nil, err
		}
		msg["content"] = flattened
		remessaged, err := json.Marshal(msg)
		if err != nil {
			return nil, nil, err
		}
		choice["message"] = remessaged
		changed = true
	}
	if !changed {
		return body, images, nil
	}

	reencoded, err := json.Marshal(choices)
	if err != nil {
		return nil, nil, err
	}
	obj["choices"] = reencoded
	reshaped, err := json.Marshal(obj)
	if err != nil {
		return nil, nil, err
	}
	return reshaped, images, nil
}
