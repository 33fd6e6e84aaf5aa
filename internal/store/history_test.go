package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/toolweave/toolweave/internal/chain"
)

func sampleRecord(id string, started time.Time) *chain.ExecutionRecord {
	out := "got:hi"
	return &chain.ExecutionRecord{
		ID:      id,
		ChainID: "pipeline",
		Status:  chain.StatusCompleted,
		Steps: []chain.StepResult{
			{Index: 0, ToolID: "echo", Output: "got:hi", Duration: 12 * time.Millisecond},
		},
		FinalResult: &out,
		StartedAt:   started,
		FinishedAt:  started.Add(15 * time.Millisecond),
	}
}

func TestHistoryAppendRecent(t *testing.T) {
	h := NewExecutionHistory(openTestDB(t))
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		rec := sampleRecord(fmt.Sprintf("exec_%d", i), base.Add(time.Duration(i)*time.Minute))
		if err := h.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recs, err := h.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Recent = %d records, want 2", len(recs))
	}
	if recs[0].ID != "exec_2" || recs[1].ID != "exec_1" {
		t.Errorf("order = %s, %s, want newest first", recs[0].ID, recs[1].ID)
	}

	got := recs[0]
	if got.ChainID != "pipeline" || got.Status != chain.StatusCompleted {
		t.Errorf("record = %+v", got)
	}
	if len(got.Steps) != 1 || got.Steps[0].Output != "got:hi" {
		t.Errorf("steps = %+v", got.Steps)
	}
	if got.FinalResult == nil || *got.FinalResult != "got:hi" {
		t.Errorf("final result = %v", got.FinalResult)
	}
}

func TestHistoryRecentSubSecondOrdering(t *testing.T) {
	h := NewExecutionHistory(openTestDB(t))
	ctx := context.Background()

	// 0.5s serializes as ".5" and 0.52s as ".52"; as text ".5Z" sorts
	// after ".52Z", so ordering must not lean on the timestamp column.
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	older := sampleRecord("exec_older", base.Add(500*time.Millisecond))
	newer := sampleRecord("exec_newer", base.Add(520*time.Millisecond))
	if err := h.Append(ctx, older); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := h.Append(ctx, newer); err != nil {
		t.Fatalf("Append: %v", err)
	}

	recs, err := h.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "exec_newer" {
		t.Fatalf("Recent(1) = %+v, want exec_newer", recs)
	}
}

func TestHistoryRecentNoLimit(t *testing.T) {
	h := NewExecutionHistory(openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := h.Append(ctx, sampleRecord(fmt.Sprintf("exec_%d", i), time.Now())); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	recs, err := h.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("Recent = %d records, want all 3", len(recs))
	}
}

func TestHistoryNilFinalResult(t *testing.T) {
	h := NewExecutionHistory(openTestDB(t))
	ctx := context.Background()

	rec := sampleRecord("exec_skip", time.Now())
	rec.FinalResult = nil
	rec.Status = chain.StatusAborted
	if err := h.Append(ctx, rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	recs, err := h.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if recs[0].FinalResult != nil {
		t.Errorf("FinalResult = %v, want nil", recs[0].FinalResult)
	}
	if recs[0].Status != chain.StatusAborted {
		t.Errorf("Status = %s", recs[0].Status)
	}
}

func TestHistoryClear(t *testing.T) {
	h := NewExecutionHistory(openTestDB(t))
	ctx := context.Background()

	if err := h.Append(ctx, sampleRecord("exec_a", time.Now())); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := h.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	recs, err := h.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Recent after Clear = %d records", len(recs))
	}
}
