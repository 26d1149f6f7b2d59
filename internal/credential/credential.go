// Package credential manages the pool of upstream secrets and their
// health/usage state.
package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Tier classifies a credential's current spend capability.
type Tier string

const (
	// TierUnlimited marks a prepaid credential with positive balance.
	TierUnlimited Tier = "unlimited"
	// TierLimited marks a credential on a credit limit with balance remaining.
	TierLimited Tier = "limited"
	// TierRestricted marks a zero-balance credential still usable for free models.
	TierRestricted Tier = "restricted"
	// TierDeadkey marks an exhausted or revoked credential.
	TierDeadkey Tier = "deadkey"
)

// UnlimitedBalance is the sentinel balance assigned to credentials whose
// remaining spend is effectively unbounded.
const UnlimitedBalance = 999.0

// FreeSuffix marks zero-cost model variants. Selecting for such a model never
// excludes a credential for having no balance.
const FreeSuffix = ":free"

const (
	// reuseDelay spreads concurrent bursts across the pool after a selection.
	reuseDelay = 500 * time.Millisecond
	// rateLimitLockout is applied when the upstream returns an explicit 429.
	rateLimitLockout = 2 * time.Second
)

// TokenUsage accumulates per-family token counters.
type TokenUsage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
}

// Credential is one upstream secret plus its derived health and usage state.
// All mutation goes through Store methods; callers receive value copies.
type Credential struct {
	Secret     string `json:"-"`
	SecretHash string `json:"secret_hash"`

	Tier        Tier     `json:"tier"`
	Balance     float64  `json:"balance"`
	CreditLimit *float64 `json:"credit_limit,omitempty"` // nil means prepaid/unlimited plan
	Usage       float64  `json:"usage"`
	RPM         int      `json:"rpm"`
	IsFreeTier  bool     `json:"is_free_tier"`

	IsDisabled bool `json:"is_disabled"`
	IsRevoked  bool `json:"is_revoked"`

	RateLimitedUntil time.Time `json:"rate_limited_until,omitzero"`
	LastUsed         time.Time `json:"last_used,omitzero"`
	LastChecked      time.Time `json:"last_checked,omitzero"`

	PromptCount int                   `json:"prompt_count"`
	TokenUsage  map[string]TokenUsage `json:"token_usage,omitempty"` // family -> counters
}

// HashSecret returns the stable fingerprint for a secret. It is a pure
// function of the secret and immutable for the credential's lifetime.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:8])
}

// IsFreeModel reports whether a model id denotes a zero-cost variant.
func IsFreeModel(model string) bool {
	return strings.HasSuffix(model, FreeSuffix)
}

// Update is the partial state a successful probe applies to a credential.
type Update struct {
	Tier        Tier
	Balance     float64
	CreditLimit *float64
	Usage       float64
	RPM         int
	IsFreeTier  bool
}

// Usable reports whether the credential can serve a request for the given
// spend class. Free models only require the key not be dead; paid models
// additionally need balance, except that an unlimited-tier credential is
// trusted even when balance bookkeeping lags.
func (c *Credential) Usable(paid bool) bool {
	if c.IsDisabled || c.IsRevoked || c.Tier == TierDeadkey {
		return false
	}
	if !paid {
		return true
	}
	return c.Balance > 0 || c.Tier == TierUnlimited
}
