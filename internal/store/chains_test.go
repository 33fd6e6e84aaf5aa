package store

import (
	"context"
	"errors"
	"testing"

	"github.com/toolweave/toolweave/internal/chain"
)

func registerEcho(t *testing.T, db *DB, ids ...string) {
	t.Helper()
	r := NewToolRegistry(db)
	for _, id := range ids {
		err := r.Put(context.Background(), &chain.ToolRegistration{
			ID:            id,
			LaunchCommand: "echo-service",
			Capability:    "echo",
		})
		if err != nil {
			t.Fatalf("Put tool %q: %v", id, err)
		}
	}
}

func TestChainPutGet(t *testing.T) {
	db := openTestDB(t)
	registerEcho(t, db, "echo", "upper")
	s := NewChainStore(db)
	ctx := context.Background()

	def := &chain.ChainDefinition{
		ID: "pipeline",
		Steps: []chain.ChainStep{
			{ToolID: "echo", Arguments: map[string]any{"text": "{INITIAL_INPUT}"}, OutputTo: "RAW"},
			{ToolID: "upper", Arguments: map[string]any{"text": "{RAW}"}, Condition: "'{RAW}' != ''"},
		},
		ResultPath: "/tmp/out.txt",
	}
	if err := s.Put(ctx, def); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Chain(ctx, "pipeline")
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if got == nil {
		t.Fatal("Chain returned nil for existing id")
	}
	if len(got.Steps) != 2 || got.ResultPath != "/tmp/out.txt" {
		t.Errorf("got %+v", got)
	}
	if got.Steps[1].Condition != "'{RAW}' != ''" || got.Steps[0].OutputTo != "RAW" {
		t.Errorf("steps = %+v", got.Steps)
	}
	if got.Steps[0].Arguments["text"] != "{INITIAL_INPUT}" {
		t.Errorf("arguments = %+v", got.Steps[0].Arguments)
	}
	if got.DefinedAt.IsZero() {
		t.Error("DefinedAt not set")
	}
}

func TestChainMissingIsNilNil(t *testing.T) {
	s := NewChainStore(openTestDB(t))
	got, err := s.Chain(context.Background(), "absent")
	if err != nil || got != nil {
		t.Fatalf("Chain = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestChainPutRejectsUnregisteredTool(t *testing.T) {
	db := openTestDB(t)
	registerEcho(t, db, "echo")
	s := NewChainStore(db)

	err := s.Put(context.Background(), &chain.ChainDefinition{
		ID: "broken",
		Steps: []chain.ChainStep{
			{ToolID: "echo"},
			{ToolID: "ghost"},
		},
	})
	var ce *chain.ChainError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ChainError", err)
	}
	// Validation failure leaves nothing behind.
	got, gerr := s.Chain(context.Background(), "broken")
	if gerr != nil || got != nil {
		t.Errorf("Chain after failed Put = (%v, %v)", got, gerr)
	}
}

func TestChainPutValidation(t *testing.T) {
	db := openTestDB(t)
	registerEcho(t, db, "echo")
	s := NewChainStore(db)
	ctx := context.Background()

	var ce *chain.ChainError
	if err := s.Put(ctx, &chain.ChainDefinition{Steps: []chain.ChainStep{{ToolID: "echo"}}}); !errors.As(err, &ce) {
		t.Errorf("missing id: err = %v", err)
	}
	if err := s.Put(ctx, &chain.ChainDefinition{ID: "empty"}); !errors.As(err, &ce) {
		t.Errorf("no steps: err = %v", err)
	}
	if err := s.Put(ctx, &chain.ChainDefinition{ID: "blank", Steps: []chain.ChainStep{{}}}); !errors.As(err, &ce) {
		t.Errorf("blank tool id: err = %v", err)
	}
}

func TestChainPutReplacesWholeDefinition(t *testing.T) {
	db := openTestDB(t)
	registerEcho(t, db, "echo", "upper")
	s := NewChainStore(db)
	ctx := context.Background()

	long := &chain.ChainDefinition{ID: "c", Steps: []chain.ChainStep{{ToolID: "echo"}, {ToolID: "upper"}}}
	short := &chain.ChainDefinition{ID: "c", Steps: []chain.ChainStep{{ToolID: "upper"}}}
	if err := s.Put(ctx, long); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, short); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Chain(ctx, "c")
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if len(got.Steps) != 1 || got.Steps[0].ToolID != "upper" {
		t.Errorf("got %+v, want full replacement", got.Steps)
	}
}

func TestChainList(t *testing.T) {
	db := openTestDB(t)
	registerEcho(t, db, "echo")
	s := NewChainStore(db)
	ctx := context.Background()

	for _, id := range []string{"zeta", "alpha"} {
		if err := s.Put(ctx, &chain.ChainDefinition{ID: id, Steps: []chain.ChainStep{{ToolID: "echo"}}}); err != nil {
			t.Fatalf("Put %q: %v", id, err)
		}
	}
	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 || ids[0] != "alpha" || ids[1] != "zeta" {
		t.Errorf("List = %v", ids)
	}
}
