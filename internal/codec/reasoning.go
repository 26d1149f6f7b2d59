package codec

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/aggrelay/aggrelay/internal/domain"
)

// BudgetAuto is the symbolic reasoning budget: include reasoning but let the
// provider choose how much.
const BudgetAuto = "auto"

// BuildReasoning translates a vendor thinking configuration into the
// canonical reasoning config. A numeric budget becomes an explicit token
// cap; the symbolic auto budget enables reasoning with no cap; include=false
// becomes an explicit exclude signal so downstream never has to guess.
func BuildReasoning(include bool, budget json.RawMessage) *domain.ReasoningConfig {
	if !include {
		return &domain.ReasoningConfig{Exclude: true}
	}

	enabled := true
	cfg := &domain.ReasoningConfig{Enabled: &enabled}
	if tokens, ok := numericBudget(budget); ok && tokens > 0 {
		cfg.MaxTokens = tokens
	}
	return cfg
}

// numericBudget extracts a token count from a budget that may be a JSON
// number or the symbolic "auto" string.
func numericBudget(budget json.RawMessage) (int, bool) {
	trimmed := bytes.TrimSpace(budget)
	if len(trimmed) == 0 {
		return 0, false
	}

	var symbolic string
	if err := json.Unmarshal(trimmed, &symbolic); err == nil {
		if symbolic == BudgetAuto {
			return 0, false
		}
		if n, err := strconv.Atoi(symbolic); err == nil {
			return n, true
		}
		return 0, false
	}

	var n int
	if err := json.Unmarshal(trimmed, &n); err == nil {
		return n, true
	}
	return 0, false
}
