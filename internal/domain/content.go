package domain

import "encoding/json"

// ContentType represents the type of content in a message part.
type ContentType string

const (
	ContentTypeText      ContentType = "text"
	ContentTypeImage     ContentType = "image"
	ContentTypeReasoning ContentType = "reasoning"
)

// ContentPart represents a single part of message content.
type ContentPart struct {
	Type ContentType `json:"type"`

	// For text and reasoning content
	Text string `json:"text,omitempty"`

	// For image content (base64)
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource represents base64-encoded image data.
type ImageSource struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// MessageContent can be a simple string or an array of ContentParts.
// This allows backward compatibility with simple text messages while
// supporting multimodal content.
type MessageContent struct {
	Text  string        // Simple text content
	Parts []ContentPart // Rich multimodal content
}

// IsSimpleText returns true if the content is just plain text.
func (mc *MessageContent) IsSimpleText() bool {
	return len(mc.Parts) == 0
}

// String returns the text content, concatenating all text parts if multimodal.
func (mc *MessageContent) String() string {
	if mc.IsSimpleText() {
		return mc.Text
	}
	var result string
	for _, part := range mc.Parts {
		if part.Type == ContentTypeText {
			result += part.Text
		}
	}
	return result
}

// Images returns the image parts of the content, if any.
func (mc *MessageContent) Images() []ContentPart {
	var images []ContentPart
	for _, part := range mc.Parts {
		if part.Type == ContentTypeImage {
			images = append(images, part)
		}
	}
	return images
}

// MarshalJSON implements json.Marshaler.
func (mc MessageContent) MarshalJSON() ([]byte, error) {
	if mc.IsSimpleText() {
		return json.Marshal(mc.Text)
	}
	return json.Marshal(mc.Parts)
}

// UnmarshalJSON implements json.Unmarshaler.
func (mc *MessageContent) UnmarshalJSON(data []byte) error {
	// Try string first
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		mc.Text = str
		mc.Parts = nil
		return nil
	}

	// Try array of content parts
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	mc.Parts = parts
	mc.Text = ""
	return nil
}

// NewTextContent creates a simple text content.
func NewTextContent(text string) MessageContent {
	return MessageContent{Text: text}
}

// NewMultipartContent creates multimodal content from parts.
func NewMultipartContent(parts ...ContentPart) MessageContent {
	return MessageContent{Parts: parts}
}

// TextPart creates a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentTypeText, Text: text}
}

// ReasoningPart creates a reasoning content part.
func ReasoningPart(text string) ContentPart {
	return ContentPart{Type: ContentTypeReasoning, Text: text}
}

// ImagePart creates an image content part from base64 data.
func ImagePart(mediaType, base64Data string) ContentPart {
	return ContentPart{
		Type: ContentTypeImage,
		Source: &ImageSource{
			MediaType: mediaType,
			Data:      base64Data,
		},
	}
}
