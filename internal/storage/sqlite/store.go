// Package sqlite is the SQLite-backed ledger store.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/aggrelay/aggrelay/internal/storage"
)

// Store is a SQLite implementation of InteractionStore.
type Store struct {
	db *sqlx.DB
}

var _ storage.InteractionStore = (*Store)(nil)

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			frontdoor TEXT NOT NULL,
			requested_model TEXT NOT NULL,
			served_model TEXT,
			family TEXT,
			credential_hash TEXT,
			status TEXT NOT NULL,
			error_code TEXT,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			duration_ns INTEGER,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_credential ON interactions(credential_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_family ON interactions(family)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) SaveInteraction(ctx context.Context, rec *storage.InteractionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `INSERT INTO interactions
	          (id, frontdoor, requested_model, served_model, family, credential_hash,
	           status, error_code, prompt_tokens, completion_tokens, duration_ns, created_at)
	          VALUES (:id, :frontdoor, :requested_model, :served_model, :family, :credential_hash,
	                  :status, :error_code, :prompt_tokens, :completion_tokens, :duration_ns, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to save interaction: %w", err)
	}
	return nil
}

func (s *Store) ListInteractions(ctx context.Context, opts storage.ListOptions) ([]*storage.InteractionRecord, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = 100
	}

	query := `SELECT id, frontdoor, requested_model, served_model, family, credential_hash,
	                 status, error_code, prompt_tokens, completion_tokens, duration_ns, created_at
	          FROM interactions`
	args := []any{}
	if opts.CredentialHash != "" {
		query += ` WHERE credential_hash = ?`
		args = append(args, opts.CredentialHash)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	var records []*storage.InteractionRecord
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	return records, nil
}

func (s *Store) UsageByFamily(ctx context.Context) ([]storage.UsageTotal, error) {
	query := `SELECT family,
	                 COUNT(*) AS prompts,
	                 COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens,
	                 COALESCE(SUM(completion_tokens), 0) AS completion_tokens
	          FROM interactions
	          WHERE status = ? AND family != ''
	          GROUP BY family
	          ORDER BY family`

	var totals []storage.UsageTotal
	if err := s.db.SelectContext(ctx, &totals, query, storage.StatusOK); err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	return totals, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
