package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aggrelay/aggrelay/internal/domain"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// StatusError is a non-2xx upstream reply with its decoded message.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client is the HTTP client for the aggregation API. Every call is keyed by
// a bearer secret passed per request, because the gateway serves a whole
// pool of them.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new aggregation-API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckKey performs the authorization/limits lookup for a secret.
func (c *Client) CheckKey(ctx context.Context, secret string) (*KeyData, error) {
	var out KeyResponse
	if err := c.get(ctx, "/auth/key", secret, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// CheckCredits performs the balance lookup for a secret.
func (c *Client) CheckCredits(ctx context.Context, secret string) (*CreditsData, error) {
	var out CreditsResponse
	if err := c.get(ctx, "/credits", secret, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// ListModels fetches the full upstream model list. The endpoint is public
// and needs no secret.
func (c *Client) ListModels(ctx context.Context) ([]ModelDescriptor, error) {
	var out ModelListResponse
	if err := c.get(ctx, "/models", "", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Dispatch sends a fully-formed canonical request upstream using the chosen
// credential's secret and returns the canonical response.
func (c *Client) Dispatch(ctx context.Context, req *domain.CanonicalRequest, secret string) (*domain.CanonicalResponse, error) {
	body, err := encodeRequestBody(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+secret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, respBody)
	}

	return decodeResponseBody(respBody)
}

func (c *Client) get(ctx context.Context, path, secret string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if secret != "" {
		httpReq.Header.Set("Authorization", "Bearer "+secret)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func statusError(code int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &StatusError{StatusCode: code, Message: errResp.Error.Message}
	}
	return &StatusError{StatusCode: code, Message: strings.TrimSpace(string(body))}
}
