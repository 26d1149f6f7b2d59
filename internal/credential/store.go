package credential

import (
	"sort"
	"sync"
	"time"

	"github.com/aggrelay/aggrelay/internal/domain"
)

// Store is the in-memory credential registry. It is populated once at process
// start from the configured secret list and holds the only mutable copy of
// credential state; everything handed out is a value copy.
type Store struct {
	mu     sync.RWMutex
	order  []string               // hashes in insertion order
	byHash map[string]*Credential

	now func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock injects a clock, used by tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore builds a store from the configured secrets, deduplicated by
// fingerprint. When checking is disabled every credential starts unlimited;
// otherwise credentials start in the most restrictive usable tier until the
// first health-check cycle completes.
func NewStore(secrets []string, checkingEnabled bool, opts ...StoreOption) *Store {
	s := &Store{
		byHash: make(map[string]*Credential),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		hash := HashSecret(secret)
		if _, exists := s.byHash[hash]; exists {
			continue
		}
		cred := &Credential{
			Secret:     secret,
			SecretHash: hash,
			Tier:       TierRestricted,
		}
		if !checkingEnabled {
			cred.Tier = TierUnlimited
			cred.Balance = UnlimitedBalance
		}
		s.byHash[hash] = cred
		s.order = append(s.order, hash)
	}
	return s
}

// Len returns the number of credentials in the pool.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Snapshot returns value copies of every credential in insertion order.
func (s *Store) Snapshot() []Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Credential, 0, len(s.order))
	for _, hash := range s.order {
		out = append(out, *s.byHash[hash])
	}
	return out
}

// Get returns a copy of the credential with the given fingerprint.
func (s *Store) Get(hash string) (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.byHash[hash]
	if !ok {
		return Credential{}, false
	}
	return *cred, true
}

// Select picks the best usable credential for the target model. The chosen
// credential's lastUsed and rateLimitedUntil are updated before it is handed
// to the caller so near-simultaneous selections spread across the pool.
func (s *Store) Select(model string) (Credential, error) {
	paid := !IsFreeModel(model)

	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*Credential
	for _, hash := range s.order {
		cred := s.byHash[hash]
		if cred.Usable(paid) {
			candidates = append(candidates, cred)
		}
	}
	if len(candidates) == 0 {
		return Credential{}, domain.ErrNoCredential(paid)
	}

	now := s.now()
	chosen := prioritize(candidates, now)[0]

	chosen.LastUsed = now
	if throttled := now.Add(reuseDelay); throttled.After(chosen.RateLimitedUntil) {
		chosen.RateLimitedUntil = throttled
	}
	return *chosen, nil
}

// prioritize orders candidates oldest-used-first, with currently throttled
// credentials pushed behind available ones (soonest-free first among them).
func prioritize(creds []*Credential, now time.Time) []*Credential {
	sorted := make([]*Credential, len(creds))
	copy(sorted, creds)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		aLimited := a.RateLimitedUntil.After(now)
		bLimited := b.RateLimitedUntil.After(now)
		if aLimited != bLimited {
			return !aLimited
		}
		if aLimited {
			return a.RateLimitedUntil.Before(b.RateLimitedUntil)
		}
		return a.LastUsed.Before(b.LastUsed)
	})
	return sorted
}

// RecordUsage accumulates token counters for a family, creating the family
// entry on first use. Unknown fingerprints are ignored.
func (s *Store) RecordUsage(hash, family string, inputTokens, outputTokens int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byHash[hash]
	if !ok {
		return
	}
	if cred.TokenUsage == nil {
		cred.TokenUsage = make(map[string]TokenUsage)
	}
	usage := cred.TokenUsage[family]
	usage.Input += inputTokens
	usage.Output += outputTokens
	cred.TokenUsage[family] = usage
	cred.PromptCount++
	cred.LastUsed = s.now()
}

// MarkRateLimited applies the longer lockout window after an explicit
// upstream 429.
func (s *Store) MarkRateLimited(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byHash[hash]
	if !ok {
		return
	}
	if until := s.now().Add(rateLimitLockout); until.After(cred.RateLimitedUntil) {
		cred.RateLimitedUntil = until
	}
}

// Disable takes a credential out of rotation.
func (s *Store) Disable(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cred, ok := s.byHash[hash]; ok {
		cred.IsDisabled = true
	}
}

// ReenableAllNonRevoked clears the disabled flag on credentials that were
// disabled but not revoked, recovering the pool from transient outages.
func (s *Store) ReenableAllNonRevoked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, cred := range s.byHash {
		if cred.IsDisabled && !cred.IsRevoked {
			cred.IsDisabled = false
			n++
		}
	}
	return n
}

// ApplyUpdate applies a successful probe result. A successful probe always
// clears the revoked flag and the throttle window; the disabled flag follows
// directly from the derived tier.
func (s *Store) ApplyUpdate(hash string, update Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byHash[hash]
	if !ok {
		return
	}
	cred.Tier = update.Tier
	cred.Balance = update.Balance
	cred.CreditLimit = update.CreditLimit
	cred.Usage = update.Usage
	cred.RPM = update.RPM
	cred.IsFreeTier = update.IsFreeTier
	cred.IsDisabled = update.Tier == TierDeadkey
	cred.IsRevoked = false
	cred.RateLimitedUntil = time.Time{}
	cred.LastChecked = s.now()
}

// MarkRevoked records an authorization failure: the key is dead and must not
// be re-enabled by pool recovery.
func (s *Store) MarkRevoked(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byHash[hash]
	if !ok {
		return
	}
	cred.Tier = TierDeadkey
	cred.IsDisabled = true
	cred.IsRevoked = true
	cred.LastChecked = s.now()
}

// MarkExhausted records a payment-required failure: the key keeps its
// standing but has no spend left.
func (s *Store) MarkExhausted(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byHash[hash]
	if !ok {
		return
	}
	cred.Tier = TierDeadkey
	cred.IsDisabled = true
	cred.Balance = 0
	cred.LastChecked = s.now()
}
