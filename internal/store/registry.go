package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/toolweave/toolweave/internal/chain"
)

// ToolRegistry is the SQLite-backed mapping from local tool ids to
// registrations. Registrations are never auto-deleted; Put by an existing
// id replaces the prior definition atomically.
type ToolRegistry struct {
	db *DB
}

// NewToolRegistry returns a registry that uses the given DB.
func NewToolRegistry(db *DB) *ToolRegistry {
	return &ToolRegistry{db: db}
}

// Put inserts or atomically replaces a registration.
func (r *ToolRegistry) Put(ctx context.Context, reg *chain.ToolRegistration) error {
	if reg.ID == "" {
		return fmt.Errorf("tool registry: id is required")
	}
	if reg.LaunchCommand == "" {
		return fmt.Errorf("tool registry: launch command is required")
	}
	if reg.Capability == "" {
		return fmt.Errorf("tool registry: capability name is required")
	}
	format := reg.OutputFormat
	if format == "" {
		format = chain.OutputText
	}
	if !format.Valid() {
		return fmt.Errorf("tool registry: invalid output format %q", reg.OutputFormat)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.SQLDB().ExecContext(ctx,
		`INSERT INTO tools (id, launch_command, capability, description, output_format, timeout_ms, registered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   launch_command = excluded.launch_command,
		   capability     = excluded.capability,
		   description    = excluded.description,
		   output_format  = excluded.output_format,
		   timeout_ms     = excluded.timeout_ms,
		   registered_at  = excluded.registered_at`,
		reg.ID, reg.LaunchCommand, reg.Capability, reg.Description,
		string(format), reg.Timeout.Milliseconds(), now)
	if err != nil {
		return fmt.Errorf("tool registry: put %q: %w", reg.ID, err)
	}
	return nil
}

// Tool returns the registration for id, or (nil, nil) when absent.
func (r *ToolRegistry) Tool(ctx context.Context, id string) (*chain.ToolRegistration, error) {
	row := r.db.SQLDB().QueryRowContext(ctx,
		`SELECT id, launch_command, capability, description, output_format, timeout_ms, registered_at
		 FROM tools WHERE id = ?`, id)
	reg, err := scanTool(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tool registry: get %q: %w", id, err)
	}
	return reg, nil
}

// List returns all registrations ordered by id.
func (r *ToolRegistry) List(ctx context.Context) ([]*chain.ToolRegistration, error) {
	rows, err := r.db.SQLDB().QueryContext(ctx,
		`SELECT id, launch_command, capability, description, output_format, timeout_ms, registered_at
		 FROM tools ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("tool registry: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*chain.ToolRegistration
	for rows.Next() {
		reg, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("tool registry: scan: %w", err)
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

// Delete removes a registration. Deleting an unknown id is not an error.
func (r *ToolRegistry) Delete(ctx context.Context, id string) error {
	if _, err := r.db.SQLDB().ExecContext(ctx, `DELETE FROM tools WHERE id = ?`, id); err != nil {
		return fmt.Errorf("tool registry: delete %q: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTool(row rowScanner) (*chain.ToolRegistration, error) {
	var reg chain.ToolRegistration
	var format, registeredAt string
	var timeoutMS int64
	if err := row.Scan(&reg.ID, &reg.LaunchCommand, &reg.Capability, &reg.Description,
		&format, &timeoutMS, &registeredAt); err != nil {
		return nil, err
	}
	reg.OutputFormat = chain.OutputFormat(format)
	reg.Timeout = time.Duration(timeoutMS) * time.Millisecond
	reg.RegisteredAt, _ = time.Parse(time.RFC3339, registeredAt)
	return &reg, nil
}
