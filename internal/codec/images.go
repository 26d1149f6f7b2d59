package codec

import (
	"fmt"
	"strings"

	"github.com/aggrelay/aggrelay/internal/domain"
)

// DataURI renders an image part as a data:<mime>;base64,<payload> URI, the
// representation formats that model images as URIs expect.
func DataURI(source *domain.ImageSource) string {
	return fmt.Sprintf("data:%s;base64,%s", source.MediaType, source.Data)
}

// ParseDataURI parses a data URI back into an image source. Only base64
// payloads are supported.
func ParseDataURI(uri string) (*domain.ImageSource, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("invalid data URI: missing comma separator")
	}

	mediaType, encoding, hasEncoding := strings.Cut(meta, ";")
	if !hasEncoding || encoding != "base64" {
		return nil, fmt.Errorf("data URI must be base64 encoded")
	}
	if mediaType == "" {
		return nil, fmt.Errorf("invalid data URI: missing media type")
	}

	return &domain.ImageSource{
		MediaType: mediaType,
		Data:      payload,
	}, nil
}
