// Package upstream provides the HTTP client for the LLM aggregation API:
// request dispatch, the key-limits and credits lookups used by health
// checking, and the model-list fetch used by the catalogue.
package upstream

import "encoding/json"

// KeyResponse is the envelope of the authorization/limits lookup.
type KeyResponse struct {
	Data KeyData `json:"data"`
}

// KeyData describes the standing of one secret.
type KeyData struct {
	Label      string    `json:"label"`
	Usage      float64   `json:"usage"`
	Limit      *float64  `json:"limit"` // nil means prepaid/unlimited plan
	IsFreeTier bool      `json:"is_free_tier"`
	RateLimit  RateLimit `json:"rate_limit"`
}

// RateLimit is a quota expressed as a request count per interval, e.g.
// {"requests": 10, "interval": "10s"}.
type RateLimit struct {
	Requests int    `json:"requests"`
	Interval string `json:"interval"`
}

// CreditsResponse is the envelope of the balance lookup.
type CreditsResponse struct {
	Data CreditsData `json:"data"`
}

// CreditsData carries lifetime purchase and usage totals for a secret.
type CreditsData struct {
	TotalCredits float64 `json:"total_credits"`
	TotalUsage   float64 `json:"total_usage"`
}

// Balance returns the remaining spend.
func (d CreditsData) Balance() float64 {
	return d.TotalCredits - d.TotalUsage
}

// ModelListResponse is the envelope of the model-catalogue endpoint.
type ModelListResponse struct {
	Data []ModelDescriptor `json:"data"`
}

// ModelDescriptor is one upstream-advertised model.
type ModelDescriptor struct {
	ID                  string                     `json:"id"`
	Name                string                     `json:"name"`
	ContextLength       int                        `json:"context_length"`
	Pricing             ModelPricing               `json:"pricing"`
	TopProvider         TopProvider                `json:"top_provider"`
	SupportedParameters []string                   `json:"supported_parameters"`
	DefaultParameters   map[string]json.RawMessage `json:"default_parameters"`
}

// ModelPricing carries per-token prices as decimal strings; "0" means free.
type ModelPricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// TopProvider describes the serving provider's limits for a model.
type TopProvider struct {
	MaxCompletionTokens *int `json:"max_completion_tokens"`
	IsModerated         bool `json:"is_moderated"`
}

// ErrorResponse is the upstream error envelope.
type ErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
