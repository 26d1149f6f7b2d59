package codec

import (
	"encoding/json"
	"testing"
)

func TestBuildReasoning(t *testing.T) {
	tests := []struct {
		name       string
		include    bool
		budget     json.RawMessage
		wantTokens int
		wantOn     bool
		wantOff    bool
	}{
		{"excluded", false, json.RawMessage(`1024`), 0, false, true},
		{"numeric budget", true, json.RawMessage(`1024`), 1024, true, false},
		{"numeric string budget", true, json.RawMessage(`"2048"`), 2048, true, false},
		{"auto budget has no cap", true, json.RawMessage(`"auto"`), 0, true, false},
		{"no budget", true, nil, 0, true, false},
		{"zero budget has no cap", true, json.RawMessage(`0`), 0, true, false},
		{"garbage budget ignored", true, json.RawMessage(`"lots"`), 0, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := BuildReasoning(tt.include, tt.budget)
			if cfg == nil {
				t.Fatal("BuildReasoning() = nil")
			}
			if cfg.MaxTokens != tt.wantTokens {
				t.Errorf("MaxTokens = %d, want %d", cfg.MaxTokens, tt.wantTokens)
			}
			if on := cfg.Enabled != nil && *cfg.Enabled; on != tt.wantOn {
				t.Errorf("Enabled = %v, want %v", on, tt.wantOn)
			}
			if cfg.Exclude != tt.wantOff {
				t.Errorf("Exclude = %v, want %v", cfg.Exclude, tt.wantOff)
			}
		})
	}
}
