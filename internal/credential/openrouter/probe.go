// Package openrouter implements the health-check probe for the aggregation
// API's key-issuing service.
package openrouter

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aggrelay/aggrelay/internal/credential"
	"github.com/aggrelay/aggrelay/internal/credential/checker"
	"github.com/aggrelay/aggrelay/internal/upstream"
)

// Prober runs the two remote lookups behind one credential probe.
type Prober struct {
	client *upstream.Client
}

// New creates a prober over the given client.
func New(client *upstream.Client) *Prober {
	return &Prober{client: client}
}

// Probe checks one credential. The authorization/limits lookup and the
// balance lookup run concurrently; only the former can fail the probe. When
// the balance lookup fails, the balance falls back to limit-usage if a
// credit limit is known, else to the effectively-unlimited sentinel.
func (p *Prober) Probe(ctx context.Context, cred credential.Credential) (credential.Update, error) {
	var (
		key       *upstream.KeyData
		credits   *upstream.CreditsData
		creditErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		key, err = p.client.CheckKey(gctx, cred.Secret)
		return err
	})
	g.Go(func() error {
		// Balance lookup failure degrades to a computed fallback.
		credits, creditErr = p.client.CheckCredits(gctx, cred.Secret)
		return nil
	})
	if err := g.Wait(); err != nil {
		return credential.Update{}, classify(err)
	}

	balance := fallbackBalance(key)
	if creditErr == nil && credits != nil {
		balance = credits.Balance()
	}

	return credential.Update{
		Tier:        deriveTier(key, balance),
		Balance:     balance,
		CreditLimit: key.Limit,
		Usage:       key.Usage,
		RPM:         requestsPerMinute(key.RateLimit),
		IsFreeTier:  key.IsFreeTier,
	}, nil
}

// fallbackBalance approximates remaining spend without the balance lookup.
func fallbackBalance(key *upstream.KeyData) float64 {
	if key.Limit != nil {
		return *key.Limit - key.Usage
	}
	return credential.UnlimitedBalance
}

// deriveTier classifies the credential. Evaluation order matters: a reached
// credit limit wins over everything else.
func deriveTier(key *upstream.KeyData, balance float64) credential.Tier {
	limitReached := key.Limit != nil && key.Usage >= *key.Limit
	switch {
	case limitReached:
		return credential.TierDeadkey
	case balance > 0 && key.Limit == nil:
		return credential.TierUnlimited
	case balance > 0:
		return credential.TierLimited
	case key.IsFreeTier:
		return credential.TierRestricted
	default:
		return credential.TierDeadkey
	}
}

// requestsPerMinute normalizes a count-per-interval quota to a per-minute
// rate, rounding down. Unparseable quotas yield zero.
func requestsPerMinute(rl upstream.RateLimit) int {
	if rl.Requests <= 0 || rl.Interval == "" {
		return 0
	}
	interval, err := time.ParseDuration(rl.Interval)
	if err != nil || interval <= 0 {
		return 0
	}
	return int(float64(rl.Requests) * float64(time.Minute) / float64(interval))
}

// classify maps upstream status codes onto probe failure kinds.
func classify(err error) error {
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return checker.NewProbeError(checker.FailureAuthRevoked, err)
		case http.StatusPaymentRequired:
			return checker.NewProbeError(checker.FailurePaymentRequired, err)
		}
	}
	return checker.NewProbeError(checker.FailureTransient, err)
}
