package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/toolweave/toolweave/internal/chain"
)

// ExecutionHistory is the append-only log of chain runs. Records are
// never mutated after Append; the only destructive operation is Clear.
type ExecutionHistory struct {
	db *DB
}

// NewExecutionHistory returns a history backed by the given DB.
func NewExecutionHistory(db *DB) *ExecutionHistory {
	return &ExecutionHistory{db: db}
}

// Append stores a finished execution record.
func (h *ExecutionHistory) Append(ctx context.Context, rec *chain.ExecutionRecord) error {
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("history: marshal steps: %w", err)
	}
	var final any
	if rec.FinalResult != nil {
		final = *rec.FinalResult
	}
	_, err = h.db.SQLDB().ExecContext(ctx,
		`INSERT INTO executions (id, chain_id, status, steps, final_result, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ChainID, string(rec.Status), string(steps), final,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("history: append %q: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (h *ExecutionHistory) Recent(ctx context.Context, limit int) ([]*chain.ExecutionRecord, error) {
	// The table is append-only, so rowid order is append order. started_at
	// is stored as RFC3339Nano text with variable-width fractions and does
	// not compare byte-wise.
	q := `SELECT id, chain_id, status, steps, final_result, started_at, finished_at
	      FROM executions ORDER BY rowid DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := h.db.SQLDB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*chain.ExecutionRecord
	for rows.Next() {
		var rec chain.ExecutionRecord
		var status, steps, started, finished string
		var final *string
		if err := rows.Scan(&rec.ID, &rec.ChainID, &status, &steps, &final, &started, &finished); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		rec.Status = chain.Status(status)
		if err := json.Unmarshal([]byte(steps), &rec.Steps); err != nil {
			return nil, fmt.Errorf("history: unmarshal steps for %q: %w", rec.ID, err)
		}
		rec.FinalResult = final
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Clear removes all execution records.
func (h *ExecutionHistory) Clear(ctx context.Context) error {
	if _, err := h.db.SQLDB().ExecContext(ctx, `DELETE FROM executions`); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}
