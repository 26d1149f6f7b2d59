package codec

import (
	"testing"

	"github.com/aggrelay/aggrelay/internal/domain"
)

func TestDataURIRoundTrip(t *testing.T) {
	src := &domain.ImageSource{MediaType: "image/png", Data: "aGVsbG8="}
	uri := DataURI(src)
	if uri != "data:image/png;base64,aGVsbG8=" {
		t.Fatalf("DataURI() = %q", uri)
	}

	parsed, err := ParseDataURI(uri)
	if err != nil {
		t.Fatalf("ParseDataURI() error: %v", err)
	}
	if parsed.MediaType != src.MediaType || parsed.Data != src.Data {
		t.Errorf("round trip changed source: %+v", parsed)
	}
}

func TestParseDataURIErrors(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{"not a data URI", "https://example.com/cat.png"},
		{"missing comma", "data:image/png;base64"},
		{"not base64", "data:image/png;utf8,hello"},
		{"missing media type", "data:;base64,aGVsbG8="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseDataURI(tt.uri); err == nil {
				t.Errorf("ParseDataURI(%q) succeeded, want error", tt.uri)
			}
		})
	}
}
