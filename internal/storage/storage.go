// Package storage persists the gateway's request ledger.
package storage

import (
	"context"
	"time"
)

// InteractionRecord is one row of the request ledger: which frontdoor the
// request arrived on, what model it asked for and was served, which
// credential carried it, and what it cost.
type InteractionRecord struct {
	ID               string        `db:"id"`
	Frontdoor        string        `db:"frontdoor"`
	RequestedModel   string        `db:"requested_model"`
	ServedModel      string        `db:"served_model"`
	Family           string        `db:"family"`
	CredentialHash   string        `db:"credential_hash"`
	Status           string        `db:"status"`
	ErrorCode        string        `db:"error_code"`
	PromptTokens     int           `db:"prompt_tokens"`
	CompletionTokens int           `db:"completion_tokens"`
	Duration         time.Duration `db:"duration_ns"`
	CreatedAt        time.Time     `db:"created_at"`
}

// Interaction statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// UsageTotal aggregates ledger rows per model family.
type UsageTotal struct {
	Family           string `db:"family"`
	Prompts          int64  `db:"prompts"`
	PromptTokens     int64  `db:"prompt_tokens"`
	CompletionTokens int64  `db:"completion_tokens"`
}

// ListOptions filters and pages ledger queries.
type ListOptions struct {
	CredentialHash string
	Limit          int
	Offset         int
}

// InteractionStore is the ledger persistence interface.
type InteractionStore interface {
	SaveInteraction(ctx context.Context, rec *InteractionRecord) error
	ListInteractions(ctx context.Context, opts ListOptions) ([]*InteractionRecord, error)
	UsageByFamily(ctx context.Context) ([]UsageTotal, error)
	Close() error
}
