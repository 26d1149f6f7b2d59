// Package catalogue maintains the cached, categorized snapshot of
// upstream-advertised models.
package catalogue

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/aggrelay/aggrelay/internal/upstream"
)

// FamilyOther collects models no categorization rule matched.
const FamilyOther = "Other"

// Pricing carries per-token prices as decimal strings; "0" means free.
type Pricing struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// ModelMetadata is one upstream-advertised model. Immutable once
// constructed; the whole catalogue is replaced on refresh.
type ModelMetadata struct {
	ID                  string                     `json:"id"`
	Family              string                     `json:"family"`
	ContextWindow       int                        `json:"context_window"`
	MaxOutputTokens     *int                       `json:"max_output_tokens,omitempty"`
	Pricing             Pricing                    `json:"pricing"`
	SupportedParameters map[string]struct{}        `json:"-"`
	DefaultParameters   map[string]json.RawMessage `json:"-"`
	IsModerated         bool                       `json:"is_moderated"`
}

// IsPaid reports whether the model costs anything: a model is paid unless
// both price strings are the literal "0".
func (m *ModelMetadata) IsPaid() bool {
	return m.Pricing.Input != "0" || m.Pricing.Output != "0"
}

// Suffix returns the model id after the provider slash, or the whole id when
// there is none.
func (m *ModelMetadata) Suffix() string {
	if idx := strings.Index(m.ID, "/"); idx >= 0 {
		return m.ID[idx+1:]
	}
	return m.ID
}

// Catalogue maps family name to its models, in upstream order.
type Catalogue map[string][]ModelMetadata

// Models returns every model across families.
func (c Catalogue) Models() []ModelMetadata {
	var all []ModelMetadata
	for _, models := range c {
		all = append(all, models...)
	}
	return all
}

// Len returns the total model count.
func (c Catalogue) Len() int {
	n := 0
	for _, models := range c {
		n += len(models)
	}
	return n
}

// FamilyRule assigns a family to model ids matching its pattern.
type FamilyRule struct {
	Pattern *regexp.Regexp
	Family  string
}

// DefaultFamilyRules is the ordered categorization table; first match wins.
var DefaultFamilyRules = []FamilyRule{
	{regexp.MustCompile(`^openai/`), "OpenAI"},
	{regexp.MustCompile(`^anthropic/`), "Anthropic"},
	{regexp.MustCompile(`^google/`), "Google"},
	{regexp.MustCompile(`^meta-llama/`), "Meta"},
	{regexp.MustCompile(`^mistralai/`), "Mistral"},
	{regexp.MustCompile(`^deepseek/`), "DeepSeek"},
	{regexp.MustCompile(`^qwen/`), "Qwen"},
	{regexp.MustCompile(`^x-ai/`), "xAI"},
	{regexp.MustCompile(`^cohere/`), "Cohere"},
}

// Categorize builds a catalogue from raw upstream descriptors. Family
// assignment is computed once per model against the ordered rule table.
func Categorize(descriptors []upstream.ModelDescriptor, rules []FamilyRule) Catalogue {
	cat := make(Catalogue)
	for _, desc := range descriptors {
		family := assignFamily(desc.ID, rules)
		cat[family] = append(cat[family], fromDescriptor(desc, family))
	}
	return cat
}

func assignFamily(id string, rules []FamilyRule) string {
	for _, rule := range rules {
		if rule.Pattern.MatchString(id) {
			return rule.Family
		}
	}
	return FamilyOther
}

var jsonNull = []byte("null")

func fromDescriptor(desc upstream.ModelDescriptor, family string) ModelMetadata {
	supported := make(map[string]struct{}, len(desc.SupportedParameters))
	for _, p := range desc.SupportedParameters {
		supported[p] = struct{}{}
	}

	var defaults map[string]json.RawMessage
	for key, value := range desc.DefaultParameters {
		if bytes.Equal(bytes.TrimSpace(value), jsonNull) {
			continue
		}
		if defaults == nil {
			defaults = make(map[string]json.RawMessage)
		}
		defaults[key] = value
	}

	return ModelMetadata{
		ID:                  desc.ID,
		Family:              family,
		ContextWindow:       desc.ContextLength,
		MaxOutputTokens:     desc.TopProvider.MaxCompletionTokens,
		Pricing:             Pricing{Input: desc.Pricing.Prompt, Output: desc.Pricing.Completion},
		SupportedParameters: supported,
		DefaultParameters:   defaults,
		IsModerated:         desc.TopProvider.IsModerated,
	}
}
