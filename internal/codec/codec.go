// Package codec provides the bidirectional mapping between the canonical
// chat format and the vendor wire formats, plus the prompt-shaping rules
// shared by all vendor codecs.
package codec

import "github.com/aggrelay/aggrelay/internal/domain"

// Codec converts one vendor wire format to and from the canonical format,
// for both requests and responses.
type Codec interface {
	// Name returns the codec name.
	Name() string

	// DecodeRequest converts vendor request JSON to canonical format.
	DecodeRequest(data []byte) (*domain.CanonicalRequest, error)

	// EncodeRequest converts a canonical request to vendor request JSON.
	EncodeRequest(req *domain.CanonicalRequest) ([]byte, error)

	// DecodeResponse converts vendor response JSON to canonical format.
	DecodeResponse(data []byte) (*domain.CanonicalResponse, error)

	// EncodeResponse converts a canonical response to vendor response JSON.
	EncodeResponse(resp *domain.CanonicalResponse) ([]byte, error)
}

// ToolTypeWebSearch is the canonical marker for the vendor search tool
// opt-in. Requests carrying it are constrained to text-only responses.
const ToolTypeWebSearch = "web_search"

// HasWebSearch reports whether the request opted into the search tool.
func HasWebSearch(req *domain.CanonicalRequest) bool {
	for _, tool := range req.Tools {
		if tool.Type == ToolTypeWebSearch {
			return true
		}
	}
	return false
}
