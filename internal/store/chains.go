package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/toolweave/toolweave/internal/chain"
)

// ChainStore is the SQLite-backed mapping from chain ids to definitions.
// Steps are stored as a JSON column; Put replaces whole definitions.
type ChainStore struct {
	db *DB
}

// NewChainStore returns a chain store that uses the given DB.
func NewChainStore(db *DB) *ChainStore {
	return &ChainStore{db: db}
}

// Put validates and inserts or replaces a definition. Every referenced
// tool id must exist in the registry at definition time; violations are
// ChainErrors. (Execution re-checks independently: the registry may mutate
// in between.)
func (s *ChainStore) Put(ctx context.Context, def *chain.ChainDefinition) error {
	if def.ID == "" {
		return &chain.ChainError{Detail: "chain id is required"}
	}
	if len(def.Steps) == 0 {
		return &chain.ChainError{Detail: fmt.Sprintf("chain %q has no steps", def.ID)}
	}
	for i, st := range def.Steps {
		if st.ToolID == "" {
			return &chain.ChainError{Detail: fmt.Sprintf("chain %q step %d: tool id is required", def.ID, i)}
		}
		var n int
		err := s.db.SQLDB().QueryRowContext(ctx,
			`SELECT COUNT(*) FROM tools WHERE id = ?`, st.ToolID).Scan(&n)
		if err != nil {
			return fmt.Errorf("chain store: validate %q: %w", def.ID, err)
		}
		if n == 0 {
			return &chain.ChainError{Detail: fmt.Sprintf("chain %q step %d references unregistered tool %q", def.ID, i, st.ToolID)}
		}
	}

	steps, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("chain store: marshal steps: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.SQLDB().ExecContext(ctx,
		`INSERT INTO chains (id, steps, result_path, defined_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   steps       = excluded.steps,
		   result_path = excluded.result_path,
		   defined_at  = excluded.defined_at`,
		def.ID, string(steps), def.ResultPath, now)
	if err != nil {
		return fmt.Errorf("chain store: put %q: %w", def.ID, err)
	}
	return nil
}

// Chain returns the definition for id, or (nil, nil) when absent.
func (s *ChainStore) Chain(ctx context.Context, id string) (*chain.ChainDefinition, error) {
	var def chain.ChainDefinition
	var steps, definedAt string
	err := s.db.SQLDB().QueryRowContext(ctx,
		`SELECT id, steps, result_path, defined_at FROM chains WHERE id = ?`, id).
		Scan(&def.ID, &steps, &def.ResultPath, &definedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chain store: get %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(steps), &def.Steps); err != nil {
		return nil, fmt.Errorf("chain store: unmarshal steps for %q: %w", id, err)
	}
	def.DefinedAt, _ = time.Parse(time.RFC3339, definedAt)
	return &def, nil
}

// List returns all chain ids ordered by id.
func (s *ChainStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.SQLDB().QueryContext(ctx, `SELECT id FROM chains ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("chain store: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("chain store: scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
