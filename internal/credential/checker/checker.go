// Package checker schedules periodic health probes over the credential pool.
// The scheduler is generic: the per-service probe behavior is injected as a
// function, so the same loop serves any credential-issuing upstream.
package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aggrelay/aggrelay/internal/credential"
)

// FailureKind classifies a probe failure. Only the first two cause durable
// credential state changes; everything else is transient and retried.
type FailureKind string

const (
	// FailureAuthRevoked means the upstream rejected the secret outright.
	FailureAuthRevoked FailureKind = "auth_revoked"
	// FailurePaymentRequired means the secret is valid but has no spend left.
	FailurePaymentRequired FailureKind = "payment_required"
	// FailureTransient covers every other probe error.
	FailureTransient FailureKind = "transient"
)

// ProbeError is a classified probe failure.
type ProbeError struct {
	Kind FailureKind
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe failed (%s): %v", e.Kind, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// NewProbeError wraps err with a failure classification.
func NewProbeError(kind FailureKind, err error) *ProbeError {
	return &ProbeError{Kind: kind, Err: err}
}

// Probe performs one remote health/limits check for a single credential and
// returns the partial update to apply, or a classified failure.
type Probe func(ctx context.Context, cred credential.Credential) (credential.Update, error)

// Checker drives the probe over every credential on its own timer loops,
// fully decoupled from the request path.
type Checker struct {
	store  *credential.Store
	probe  Probe
	logger *slog.Logger

	period      time.Duration
	minInterval time.Duration
	recurring   bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Checker.
type Option func(*Checker)

// WithPeriod sets the steady-state recheck interval.
func WithPeriod(d time.Duration) Option {
	return func(c *Checker) { c.period = d }
}

// WithMinInterval sets the floor between checks of the same credential.
func WithMinInterval(d time.Duration) Option {
	return func(c *Checker) { c.minInterval = d }
}

// WithRecurring enables or disables steady-state rechecking. When disabled
// each credential is probed exactly once at startup.
func WithRecurring(enabled bool) Option {
	return func(c *Checker) { c.recurring = enabled }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) { c.logger = logger }
}

// New creates a checker over the given store and probe.
func New(store *credential.Store, probe Probe, opts ...Option) *Checker {
	c := &Checker{
		store:       store,
		probe:       probe,
		logger:      slog.Default(),
		period:      time.Hour,
		minInterval: 3 * time.Second,
		recurring:   true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.period < c.minInterval {
		c.period = c.minInterval
	}
	return c
}

// Start launches one probe loop per credential. Loops run until Stop is
// called or ctx is cancelled.
func (c *Checker) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	for _, cred := range c.store.Snapshot() {
		c.wg.Add(1)
		go func(hash string) {
			defer c.wg.Done()
			c.loop(ctx, hash)
		}(cred.SecretHash)
	}
}

// Stop cancels all probe loops and waits for them to exit.
func (c *Checker) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Checker) loop(ctx context.Context, hash string) {
	c.CheckOne(ctx, hash)
	if !c.recurring {
		return
	}
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckOne(ctx, hash)
		}
	}
}

// CheckOne runs a single probe for the credential with the given fingerprint
// and applies the result. Probes closer together than minInterval are
// skipped.
func (c *Checker) CheckOne(ctx context.Context, hash string) {
	cred, ok := c.store.Get(hash)
	if !ok {
		return
	}
	if !cred.LastChecked.IsZero() && time.Since(cred.LastChecked) < c.minInterval {
		return
	}

	update, err := c.probe(ctx, cred)
	if err != nil {
		c.applyFailure(hash, err)
		return
	}

	c.store.ApplyUpdate(hash, update)
	c.logger.Debug("credential probe succeeded",
		slog.String("credential", hash),
		slog.String("tier", string(update.Tier)),
		slog.Float64("balance", update.Balance),
	)
}

// applyFailure maps a classified probe failure onto durable store state.
// Transient failures never disable a credential; the previous tier is kept
// until the next retry.
func (c *Checker) applyFailure(hash string, err error) {
	var probeErr *ProbeError
	kind := FailureTransient
	if errors.As(err, &probeErr) {
		kind = probeErr.Kind
	}

	switch kind {
	case FailureAuthRevoked:
		c.store.MarkRevoked(hash)
		c.logger.Warn("credential revoked by upstream", slog.String("credential", hash))
	case FailurePaymentRequired:
		c.store.MarkExhausted(hash)
		c.logger.Warn("credential out of funds", slog.String("credential", hash))
	default:
		c.logger.Warn("credential probe failed, will retry",
			slog.String("credential", hash),
			slog.String("error", err.Error()),
		)
	}
}
