// Package memory is an in-memory ledger store for tests and
// storage-disabled deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aggrelay/aggrelay/internal/storage"
)

// Store is an in-memory implementation of InteractionStore.
type Store struct {
	mu      sync.RWMutex
	records []*storage.InteractionRecord
}

var _ storage.InteractionStore = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{}
}

func (s *Store) SaveInteraction(ctx context.Context, rec *storage.InteractionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	clone := *rec
	s.records = append(s.records, &clone)
	return nil
}

func (s *Store) ListInteractions(ctx context.Context, opts storage.ListOptions) ([]*storage.InteractionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit == 0 {
		limit = 100
	}

	var matched []*storage.InteractionRecord
	for _, rec := range s.records {
		if opts.CredentialHash != "" && rec.CredentialHash != opts.CredentialHash {
			continue
		}
		matched = append(matched, rec)
	}

	// Newest first, matching the SQL store's ordering.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if opts.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[opts.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*storage.InteractionRecord, len(matched))
	for i, rec := range matched {
		clone := *rec
		out[i] = &clone
	}
	return out, nil
}

func (s *Store) UsageByFamily(ctx context.Context) ([]storage.UsageTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byFamily := make(map[string]*storage.UsageTotal)
	for _, rec := range s.records {
		if rec.Status != storage.StatusOK || rec.Family == "" {
			continue
		}
		total, ok := byFamily[rec.Family]
		if !ok {
			total = &storage.UsageTotal{Family: rec.Family}
			byFamily[rec.Family] = total
		}
		total.Prompts++
		total.PromptTokens += int64(rec.PromptTokens)
		total.CompletionTokens += int64(rec.CompletionTokens)
	}

	families := make([]string, 0, len(byFamily))
	for family := range byFamily {
		families = append(families, family)
	}
	sort.Strings(families)

	totals := make([]storage.UsageTotal, 0, len(families))
	for _, family := range families {
		totals = append(totals, *byFamily[family])
	}
	return totals, nil
}

func (s *Store) Close() error {
	return nil
}
