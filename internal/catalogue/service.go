package catalogue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aggrelay/aggrelay/internal/upstream"
)

const defaultTTL = time.Hour

// Fetcher fetches the raw upstream model list.
type Fetcher interface {
	ListModels(ctx context.Context) ([]upstream.ModelDescriptor, error)
}

// Service owns the catalogue lifecycle: fetch, categorize, memoize. Refresh
// is best-effort; callers always get a catalogue, possibly stale or empty.
type Service struct {
	fetcher Fetcher
	rules   []FamilyRule
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	cached    Catalogue
	fetchedAt time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTTL sets the memoization window.
func WithTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.ttl = ttl }
}

// WithFamilyRules overrides the categorization rule table.
func WithFamilyRules(rules []FamilyRule) ServiceOption {
	return func(s *Service) { s.rules = rules }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithClock injects a clock, used by tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a catalogue service over the given fetcher.
func NewService(fetcher Fetcher, opts ...ServiceOption) *Service {
	s := &Service{
		fetcher: fetcher,
		rules:   DefaultFamilyRules,
		ttl:     defaultTTL,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current catalogue. Within the TTL window every caller
// observes the same cached snapshot; on expiry a single fetch is shared by
// all concurrent callers. A failed fetch returns the previous cache, or an
// empty catalogue when there has never been a successful fetch.
func (s *Service) Get(ctx context.Context) Catalogue {
	s.mu.RLock()
	cached, fetchedAt := s.cached, s.fetchedAt
	s.mu.RUnlock()

	if cached != nil && s.now().Sub(fetchedAt) < s.ttl {
		return cached
	}

	fresh, err, _ := s.group.Do("refresh", func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		s.logger.Warn("catalogue refresh failed, serving stale snapshot",
			slog.String("error", err.Error()))
		if cached != nil {
			return cached
		}
		return Catalogue{}
	}
	return fresh.(Catalogue)
}

// Refresh forces a fetch regardless of TTL and returns the new catalogue.
func (s *Service) Refresh(ctx context.Context) (Catalogue, error) {
	return s.refresh(ctx)
}

func (s *Service) refresh(ctx context.Context) (Catalogue, error) {
	descriptors, err := s.fetcher.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	cat := Categorize(descriptors, s.rules)

	s.mu.Lock()
	s.cached = cat
	s.fetchedAt = s.now()
	s.mu.Unlock()

	s.logger.Info("catalogue refreshed",
		slog.Int("models", cat.Len()),
		slog.Int("families", len(cat)),
	)
	return cat, nil
}
