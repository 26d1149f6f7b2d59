package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/aggrelay/aggrelay/internal/catalogue"
	"github.com/aggrelay/aggrelay/internal/credential"
	"github.com/aggrelay/aggrelay/internal/domain"
	"github.com/aggrelay/aggrelay/internal/resolver"
	"github.com/aggrelay/aggrelay/internal/storage"
	"github.com/aggrelay/aggrelay/internal/storage/memory"
	"github.com/aggrelay/aggrelay/internal/upstream"
)

const testSecret = "sk-or-test-1"

type staticCatalogue struct {
	cat catalogue.Catalogue
}

func (s staticCatalogue) Get(ctx context.Context) catalogue.Catalogue { return s.cat }

type fakeDispatcher struct {
	resp *domain.CanonicalResponse
	err  error

	gotReq    *domain.CanonicalRequest
	gotSecret string
	calls     int
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req *domain.CanonicalRequest, secret string) (*domain.CanonicalResponse, error) {
	f.calls++
	f.gotReq = req
	f.gotSecret = secret
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func testCatalogue() catalogue.Catalogue {
	maxOut := 100
	return catalogue.Catalogue{
		"OpenAI": {
			{
				ID: "openai/gpt-4o", Family: "OpenAI", ContextWindow: 128000,
				MaxOutputTokens: &maxOut,
				Pricing:         catalogue.Pricing{Input: "0.0000025", Output: "0.00001"},
			},
		},
		"Meta": {
			{
				ID: "meta-llama/llama-3.3-70b-instruct:free", Family: "Meta", ContextWindow: 65536,
				Pricing: catalogue.Pricing{Input: "0", Output: "0"},
			},
		},
	}
}

func newTestGateway(t *testing.T, d Dispatcher, opts ...Option) (*Gateway, *credential.Store, *memory.Store) {
	t.Helper()
	creds := credential.NewStore([]string{testSecret}, false)
	ledger := memory.New()
	opts = append([]Option{WithLedger(ledger)}, opts...)
	g := New(staticCatalogue{testCatalogue()}, creds, d, opts...)
	return g, creds, ledger
}

func chatRequest(model string) *domain.CanonicalRequest {
	return &domain.CanonicalRequest{
		Model: model,
		Messages: []domain.Message{
			{Role: "user", Content: domain.NewTextContent("hello")},
		},
	}
}

func TestCompleteSuccess(t *testing.T) {
	d := &fakeDispatcher{resp: &domain.CanonicalResponse{
		Model: "openai/gpt-4o",
		Choices: []domain.Choice{{
			Message:      domain.ResponseMessage{Role: "assistant", Content: "hi"},
			FinishReason: "stop",
		}},
		Usage: domain.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
	}}
	g, creds, ledger := newTestGateway(t, d)

	resp, err := g.Complete(context.Background(), "openai", chatRequest("gpt-4o"))
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if resp.FirstChoice().Message.Content != "hi" {
		t.Errorf("response = %+v", resp)
	}

	if d.gotReq.Model != "openai/gpt-4o" {
		t.Errorf("dispatched model = %q, want catalogue ID", d.gotReq.Model)
	}
	if d.gotSecret != testSecret {
		t.Errorf("dispatched secret = %q", d.gotSecret)
	}
	if d.gotReq.PromptTokens == 0 {
		t.Error("prompt tokens not counted before dispatch")
	}

	hash := credential.HashSecret(testSecret)
	cred, ok := creds.Get(hash)
	if !ok {
		t.Fatal("credential missing")
	}
	if cred.PromptCount != 1 {
		t.Errorf("PromptCount = %d, want 1", cred.PromptCount)
	}
	if usage := cred.TokenUsage["OpenAI"]; usage.Input != 12 || usage.Output != 3 {
		t.Errorf("TokenUsage[OpenAI] = %+v", usage)
	}

	recs, err := ledger.ListInteractions(context.Background(), storage.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d ledger rows, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Status != storage.StatusOK || rec.Frontdoor != "openai" {
		t.Errorf("record = %+v", rec)
	}
	if rec.RequestedModel != "gpt-4o" || rec.ServedModel != "openai/gpt-4o" || rec.Family != "OpenAI" {
		t.Errorf("record models = %+v", rec)
	}
	if rec.PromptTokens != 12 || rec.CompletionTokens != 3 {
		t.Errorf("record tokens = %+v", rec)
	}
}

func TestCompleteResolutionFailureShortCircuits(t *testing.T) {
	d := &fakeDispatcher{}
	g, creds, ledger := newTestGateway(t, d)

	_, err := g.Complete(context.Background(), "openai", chatRequest("no-such-model"))
	apiErr := domain.AsAPIError(err)
	if apiErr.Type != domain.ErrorTypeNotFound {
		t.Fatalf("err = %v, want not_found", err)
	}
	if d.calls != 0 {
		t.Error("dispatcher called despite resolution failure")
	}

	// The credential was never selected.
	cred, _ := creds.Get(credential.HashSecret(testSecret))
	if !cred.LastUsed.IsZero() {
		t.Error("credential touched despite resolution failure")
	}

	recs, _ := ledger.ListInteractions(context.Background(), storage.ListOptions{})
	if len(recs) != 1 || recs[0].Status != storage.StatusError || recs[0].ErrorCode != "model_ambiguous" {
		t.Errorf("ledger rows = %+v", recs)
	}
}

func TestCompletePolicyDeniesPaid(t *testing.T) {
	d := &fakeDispatcher{}
	g, _, _ := newTestGateway(t, d, WithPolicy(resolver.Policy{AllowPaid: false}))

	_, err := g.Complete(context.Background(), "openai", chatRequest("gpt-4o"))
	apiErr := domain.AsAPIError(err)
	if apiErr.Code != domain.ErrorCodePaidProhibited {
		t.Fatalf("err = %v, want paid_model_prohibited", err)
	}
	if d.calls != 0 {
		t.Error("dispatcher called despite policy denial")
	}
}

func TestCompleteClampsMaxTokens(t *testing.T) {
	d := &fakeDispatcher{resp: &domain.CanonicalResponse{
		Choices: []domain.Choice{{Message: domain.ResponseMessage{Content: "ok"}}},
	}}
	g, _, _ := newTestGateway(t, d)

	req := chatRequest("gpt-4o")
	req.MaxTokens = 5000
	if _, err := g.Complete(context.Background(), "openai", req); err != nil {
		t.Fatal(err)
	}
	if d.gotReq.MaxTokens != 100 {
		t.Errorf("MaxTokens = %d, want clamped to 100", d.gotReq.MaxTokens)
	}
}

func TestCompleteRateLimitThrottlesCredential(t *testing.T) {
	d := &fakeDispatcher{err: &upstream.StatusError{StatusCode: 429, Message: "slow down"}}
	g, creds, _ := newTestGateway(t, d)

	before := time.Now()
	_, err := g.Complete(context.Background(), "openai", chatRequest("gpt-4o"))
	apiErr := domain.AsAPIError(err)
	if apiErr.Type != domain.ErrorTypeRateLimit {
		t.Fatalf("err = %v, want rate_limit", err)
	}
	if apiErr.HTTPStatusCode() != 429 {
		t.Errorf("status = %d", apiErr.HTTPStatusCode())
	}

	cred, _ := creds.Get(credential.HashSecret(testSecret))
	if !cred.RateLimitedUntil.After(before.Add(time.Second)) {
		t.Errorf("RateLimitedUntil = %v, want lockout applied", cred.RateLimitedUntil)
	}
}

func TestCompleteAuthFailureDisablesCredential(t *testing.T) {
	d := &fakeDispatcher{err: &upstream.StatusError{StatusCode: 401, Message: "bad key"}}
	g, creds, ledger := newTestGateway(t, d)

	if _, err := g.Complete(context.Background(), "openai", chatRequest("gpt-4o")); err == nil {
		t.Fatal("Complete() succeeded, want error")
	}

	cred, _ := creds.Get(credential.HashSecret(testSecret))
	if !cred.IsDisabled {
		t.Error("credential still enabled after auth failure")
	}

	recs, _ := ledger.ListInteractions(context.Background(), storage.ListOptions{})
	if len(recs) != 1 || recs[0].Status != storage.StatusError {
		t.Errorf("ledger rows = %+v", recs)
	}
	if recs[0].CredentialHash != credential.HashSecret(testSecret) {
		t.Errorf("ledger credential hash = %q", recs[0].CredentialHash)
	}
}

func TestCompleteContextLength(t *testing.T) {
	tiny := catalogue.Catalogue{
		"OpenAI": {{
			ID: "openai/gpt-4o", Family: "OpenAI", ContextWindow: 1,
			Pricing: catalogue.Pricing{Input: "0", Output: "0"},
		}},
	}
	d := &fakeDispatcher{}
	creds := credential.NewStore([]string{testSecret}, false)
	g := New(staticCatalogue{tiny}, creds, d)

	_, err := g.Complete(context.Background(), "openai", chatRequest("gpt-4o"))
	apiErr := domain.AsAPIError(err)
	if apiErr.Code != domain.ErrorCodeContextExceeded {
		t.Fatalf("err = %v, want context_length_exceeded", err)
	}
	if d.calls != 0 {
		t.Error("dispatcher called despite oversized prompt")
	}
}
