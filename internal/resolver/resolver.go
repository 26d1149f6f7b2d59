// Package resolver maps free-form model names onto catalogue entries and
// enforces spend/moderation policy.
package resolver

import (
	"regexp"
	"strings"

	"github.com/aggrelay/aggrelay/internal/catalogue"
	"github.com/aggrelay/aggrelay/internal/domain"
)

// Policy is the caller-visible model policy.
type Policy struct {
	AllowPaid       bool
	AllowModerated  bool
	BlockedFamilies map[string]struct{}
	AllowedFamilies map[string]struct{}
}

// DefaultPolicy allows paid models and blocks moderated ones.
func DefaultPolicy() Policy {
	return Policy{AllowPaid: true, AllowModerated: false}
}

// FamilySet builds the set form of a family list, as configuration
// delivers it.
func FamilySet(families []string) map[string]struct{} {
	if len(families) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(families))
	for _, f := range families {
		set[f] = struct{}{}
	}
	return set
}

// prefixRule maps a user-input shape onto a provider id prefix.
type prefixRule struct {
	pattern *regexp.Regexp
	prefix  string
}

// Ordered: first match wins. Patterns run over the lowercased input.
var prefixRules = []prefixRule{
	{regexp.MustCompile(`^gpt`), "openai/"},
	{regexp.MustCompile(`^o[0-9]`), "openai/"},
	{regexp.MustCompile(`^chatgpt`), "openai/"},
	{regexp.MustCompile(`^codex`), "openai/"},
	{regexp.MustCompile(`^claude`), "anthropic/"},
	{regexp.MustCompile(`^gemini`), "google/"},
	{regexp.MustCompile(`^gemma`), "google/"},
	{regexp.MustCompile(`banana`), "google/"},
}

// Resolve maps a caller-supplied model name onto a catalogue entry and
// applies policy. The returned error is always a *domain.APIError.
func Resolve(input string, cat catalogue.Catalogue, policy Policy) (catalogue.ModelMetadata, error) {
	lowered := strings.ToLower(strings.TrimSpace(input))
	if lowered == "" {
		return catalogue.ModelMetadata{}, domain.ErrModelNotFound(input)
	}
	models := cat.Models()
	if len(models) == 0 {
		return catalogue.ModelMetadata{}, domain.ErrModelNotFound(input)
	}

	// Exact id match takes precedence over fuzzy search.
	for _, m := range models {
		if strings.ToLower(m.ID) == lowered {
			return m, checkPolicy(m, policy)
		}
	}

	match, err := fuzzyMatch(input, lowered, models)
	if err != nil {
		return catalogue.ModelMetadata{}, err
	}
	return match, checkPolicy(match, policy)
}

// fuzzyMatch builds the candidate set under the detected provider prefix and
// disambiguates it in strict order: exact suffix, normalized suffix, sole
// candidate. Zero candidates and multiple-without-a-tiebreak both fail the
// same way.
func fuzzyMatch(input, lowered string, models []catalogue.ModelMetadata) (catalogue.ModelMetadata, error) {
	prefix := detectPrefix(lowered)
	normalizedInput := normalize(lowered)

	var candidates []catalogue.ModelMetadata
	for _, m := range models {
		if prefix != "" && !strings.HasPrefix(strings.ToLower(m.ID), prefix) {
			continue
		}
		suffix := strings.ToLower(m.Suffix())
		if suffix == lowered || strings.Contains(suffix, lowered) || normalize(suffix) == normalizedInput {
			candidates = append(candidates, m)
		}
	}

	for _, m := range candidates {
		if strings.ToLower(m.Suffix()) == lowered {
			return m, nil
		}
	}
	for _, m := range candidates {
		if normalize(strings.ToLower(m.Suffix())) == normalizedInput {
			return m, nil
		}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	return catalogue.ModelMetadata{}, domain.ErrModelAmbiguous(input)
}

func detectPrefix(lowered string) string {
	for _, rule := range prefixRules {
		if rule.pattern.MatchString(lowered) {
			return rule.prefix
		}
	}
	return ""
}

// normalize strips separators so "gpt4o" matches "gpt-4o".
func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '-', '/':
			return -1
		}
		return r
	}, s)
}

func checkPolicy(m catalogue.ModelMetadata, policy Policy) error {
	if len(policy.AllowedFamilies) > 0 {
		if _, ok := policy.AllowedFamilies[m.Family]; !ok {
			return domain.ErrFamilyProhibited(m.ID, m.Family)
		}
	}
	if _, blocked := policy.BlockedFamilies[m.Family]; blocked {
		return domain.ErrFamilyProhibited(m.ID, m.Family)
	}
	if m.IsPaid() && !policy.AllowPaid {
		return domain.ErrPaidProhibited(m.ID)
	}
	if m.IsModerated && !policy.AllowModerated {
		return domain.ErrModeratedProhibited(m.ID)
	}
	return nil
}

// ValidateContext enforces the resolved model's context window against the
// measured prompt size. Distinct from name-resolution failure.
func ValidateContext(m catalogue.ModelMetadata, promptTokens int) error {
	if promptTokens > 0 && m.ContextWindow > 0 && m.ContextWindow < promptTokens {
		return domain.ErrContextLength(m.ContextWindow, promptTokens)
	}
	return nil
}
