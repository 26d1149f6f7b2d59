// Package gateway runs the request pipeline: resolve the model, pick a
// credential, dispatch upstream, and account for what happened.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aggrelay/aggrelay/internal/catalogue"
	"github.com/aggrelay/aggrelay/internal/credential"
	"github.com/aggrelay/aggrelay/internal/domain"
	"github.com/aggrelay/aggrelay/internal/resolver"
	"github.com/aggrelay/aggrelay/internal/storage"
	"github.com/aggrelay/aggrelay/internal/tokens"
	"github.com/aggrelay/aggrelay/internal/upstream"
)

// Dispatcher sends a canonical request upstream on a credential's secret.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *domain.CanonicalRequest, secret string) (*domain.CanonicalResponse, error)
}

// CatalogueSource yields the current model catalogue.
type CatalogueSource interface {
	Get(ctx context.Context) catalogue.Catalogue
}

// Gateway wires the pipeline stages together.
type Gateway struct {
	catalogue  CatalogueSource
	creds      *credential.Store
	dispatcher Dispatcher
	counter    *tokens.Counter
	ledger     storage.InteractionStore
	policy     resolver.Policy
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPolicy sets the model-access policy.
func WithPolicy(policy resolver.Policy) Option {
	return func(g *Gateway) { g.policy = policy }
}

// WithLedger sets the interaction ledger. Without one, requests are served
// but not persisted.
func WithLedger(ledger storage.InteractionStore) Option {
	return func(g *Gateway) { g.ledger = ledger }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New creates a Gateway.
func New(cat CatalogueSource, creds *credential.Store, dispatcher Dispatcher, opts ...Option) *Gateway {
	g := &Gateway{
		catalogue:  cat,
		creds:      creds,
		dispatcher: dispatcher,
		counter:    tokens.NewCounter(),
		policy:     resolver.DefaultPolicy(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Complete runs one request through the pipeline. frontdoor names the wire
// format the request arrived on and is recorded in the ledger.
func (g *Gateway) Complete(ctx context.Context, frontdoor string, req *domain.CanonicalRequest) (*domain.CanonicalResponse, error) {
	start := g.now()
	requested := req.Model

	model, err := resolver.Resolve(req.Model, g.catalogue.Get(ctx), g.policy)
	if err != nil {
		g.record(ctx, frontdoor, requested, catalogue.ModelMetadata{}, "", req, nil, start, err)
		return nil, err
	}

	promptTokens, err := g.counter.CountPrompt(req)
	if err != nil {
		// A count failure must not fail the request; the context check
		// is simply skipped.
		g.logger.Warn("token count failed", "model", model.ID, "error", err)
	} else {
		req.PromptTokens = promptTokens
		if err := resolver.ValidateContext(model, promptTokens); err != nil {
			g.record(ctx, frontdoor, requested, model, "", req, nil, start, err)
			return nil, err
		}
	}

	req.Model = model.ID
	if limit := model.MaxOutputTokens; limit != nil && req.MaxTokens > *limit {
		req.MaxTokens = *limit
	}

	cred, err := g.creds.Select(model.ID)
	if err != nil {
		g.record(ctx, frontdoor, requested, model, "", req, nil, start, err)
		return nil, err
	}

	resp, err := g.dispatcher.Dispatch(ctx, req, cred.Secret)
	if err != nil {
		g.reactToUpstream(cred.SecretHash, err)
		apiErr := upstreamError(err)
		g.record(ctx, frontdoor, requested, model, cred.SecretHash, req, nil, start, apiErr)
		return nil, apiErr
	}

	g.creds.RecordUsage(cred.SecretHash, model.Family,
		int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))
	g.record(ctx, frontdoor, requested, model, cred.SecretHash, req, resp, start, nil)

	return resp, nil
}

// reactToUpstream adjusts credential state from a dispatch failure. A 429
// throttles the credential for the lockout window; a definitive auth failure
// takes it out of rotation until the next successful probe.
func (g *Gateway) reactToUpstream(hash string, err error) {
	var statusErr *upstream.StatusError
	if !errors.As(err, &statusErr) {
		return
	}
	switch statusErr.StatusCode {
	case http.StatusTooManyRequests:
		g.creds.MarkRateLimited(hash)
	case http.StatusUnauthorized, http.StatusForbidden:
		g.creds.Disable(hash)
	}
}

// upstreamError maps a dispatch failure onto the error taxonomy.
func upstreamError(err error) *domain.APIError {
	var statusErr *upstream.StatusError
	if !errors.As(err, &statusErr) {
		return domain.AsAPIError(err)
	}

	apiErr := domain.AsAPIError(err)
	if apiErr.Type == domain.ErrorTypeServer {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests:
			apiErr = domain.NewAPIError(domain.ErrorTypeRateLimit, statusErr.Message)
		case http.StatusPaymentRequired:
			apiErr = domain.NewAPIError(domain.ErrorTypePayment, statusErr.Message)
		case http.StatusBadRequest:
			apiErr = domain.NewAPIError(domain.ErrorTypeInvalidRequest, statusErr.Message)
		}
		apiErr.StatusCode = statusErr.StatusCode
	}
	return apiErr
}

func (g *Gateway) record(ctx context.Context, frontdoor, requested string, model catalogue.ModelMetadata,
	credHash string, req *domain.CanonicalRequest, resp *domain.CanonicalResponse, start time.Time, reqErr error) {
	if g.ledger == nil {
		return
	}

	rec := &storage.InteractionRecord{
		Frontdoor:      frontdoor,
		RequestedModel: requested,
		ServedModel:    model.ID,
		Family:         model.Family,
		CredentialHash: credHash,
		Status:         storage.StatusOK,
		PromptTokens:   req.PromptTokens,
		Duration:       g.now().Sub(start),
		CreatedAt:      start,
	}
	if resp != nil {
		rec.PromptTokens = resp.Usage.PromptTokens
		rec.CompletionTokens = resp.Usage.CompletionTokens
	}
	if reqErr != nil {
		rec.Status = storage.StatusError
		rec.ErrorCode = string(domain.AsAPIError(reqErr).Code)
	}

	if err := g.ledger.SaveInteraction(ctx, rec); err != nil {
		g.logger.Warn("ledger write failed", "error", err)
	}
}
