package store

import (
	"context"
	"testing"
	"time"

	"github.com/toolweave/toolweave/internal/chain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRegistryPutGet(t *testing.T) {
	r := NewToolRegistry(openTestDB(t))
	ctx := context.Background()

	in := &chain.ToolRegistration{
		ID:            "summarize",
		LaunchCommand: "python summarizer.py",
		Capability:    "summarize",
		Description:   "text summarizer",
		OutputFormat:  chain.OutputStructured,
		Timeout:       45 * time.Second,
	}
	if err := r.Put(ctx, in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := r.Tool(ctx, "summarize")
	if err != nil {
		t.Fatalf("Tool: %v", err)
	}
	if got == nil {
		t.Fatal("Tool returned nil for existing id")
	}
	if got.LaunchCommand != in.LaunchCommand || got.Capability != in.Capability ||
		got.Description != in.Description || got.OutputFormat != in.OutputFormat ||
		got.Timeout != in.Timeout {
		t.Errorf("got %+v, want %+v", got, in)
	}
	if got.RegisteredAt.IsZero() {
		t.Error("RegisteredAt not set")
	}
}

func TestRegistryMissingIsNilNil(t *testing.T) {
	r := NewToolRegistry(openTestDB(t))
	got, err := r.Tool(context.Background(), "absent")
	if err != nil || got != nil {
		t.Fatalf("Tool = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestRegistryPutReplaces(t *testing.T) {
	r := NewToolRegistry(openTestDB(t))
	ctx := context.Background()

	first := &chain.ToolRegistration{ID: "t", LaunchCommand: "old-cmd", Capability: "old"}
	second := &chain.ToolRegistration{ID: "t", LaunchCommand: "new-cmd", Capability: "new"}
	if err := r.Put(ctx, first); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Put(ctx, second); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := r.Tool(ctx, "t")
	if err != nil {
		t.Fatalf("Tool: %v", err)
	}
	if got.LaunchCommand != "new-cmd" || got.Capability != "new" {
		t.Errorf("got %+v, want replacement", got)
	}

	all, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("List = %d entries, want 1", len(all))
	}
}

func TestRegistryPutValidation(t *testing.T) {
	r := NewToolRegistry(openTestDB(t))
	ctx := context.Background()

	bad := []*chain.ToolRegistration{
		{LaunchCommand: "c", Capability: "x"},
		{ID: "a", Capability: "x"},
		{ID: "a", LaunchCommand: "c"},
		{ID: "a", LaunchCommand: "c", Capability: "x", OutputFormat: "xml"},
	}
	for i, reg := range bad {
		if err := r.Put(ctx, reg); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestRegistryDefaultsOutputFormat(t *testing.T) {
	r := NewToolRegistry(openTestDB(t))
	ctx := context.Background()

	if err := r.Put(ctx, &chain.ToolRegistration{ID: "t", LaunchCommand: "c", Capability: "x"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := r.Tool(ctx, "t")
	if err != nil {
		t.Fatalf("Tool: %v", err)
	}
	if got.OutputFormat != chain.OutputText {
		t.Errorf("OutputFormat = %q, want text", got.OutputFormat)
	}
}

func TestRegistryDelete(t *testing.T) {
	r := NewToolRegistry(openTestDB(t))
	ctx := context.Background()

	if err := r.Put(ctx, &chain.ToolRegistration{ID: "t", LaunchCommand: "c", Capability: "x"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Delete(ctx, "t"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := r.Tool(ctx, "t")
	if err != nil || got != nil {
		t.Errorf("Tool after delete = (%v, %v)", got, err)
	}
	// Deleting an unknown id is not an error.
	if err := r.Delete(ctx, "never-was"); err != nil {
		t.Errorf("Delete unknown: %v", err)
	}
}
