package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func record(i int) ExecutionRecord {
	return ExecutionRecord{
		ID:         fmt.Sprintf("rec-%03d", i),
		ExecutedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
		Kind:       "rotation",
		Status:     StatusCompleted,
		Success:    true,
	}
}

func TestAppendEvictsOldestBeyondLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	for i := 0; i < HistoryLimit+1; i++ {
		if err := store.AppendExecution(ctx, record(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	records, err := store.ListExecutions(ctx, HistoryLimit)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != HistoryLimit {
		t.Fatalf("ledger holds %d records, want %d", len(records), HistoryLimit)
	}
	// Newest first: head is the last append, tail is record 1; record 0
	// was evicted.
	if records[0].ID != fmt.Sprintf("rec-%03d", HistoryLimit) {
		t.Fatalf("head = %s", records[0].ID)
	}
	if records[len(records)-1].ID != "rec-001" {
		t.Fatalf("tail = %s, oldest record should have been evicted", records[len(records)-1].ID)
	}
}

func TestListHonorsLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	for i := 0; i < 10; i++ {
		_ = store.AppendExecution(ctx, record(i))
	}

	records, err := store.ListExecutions(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 || records[0].ID != "rec-009" {
		t.Fatalf("unexpected page: %+v", records)
	}
}

func TestClearResetsLedgerAndProfit(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	_ = store.AppendExecution(ctx, record(0))
	_ = store.AddProfit(ctx, decimal.NewFromInt(25))

	if err := store.ClearExecutions(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	records, _ := store.ListExecutions(ctx, HistoryLimit)
	if len(records) != 0 {
		t.Fatalf("ledger not empty after clear: %+v", records)
	}
	profit, _ := store.CumulativeProfit(ctx)
	if !profit.IsZero() {
		t.Fatalf("profit = %s after clear, want 0", profit)
	}
}

func TestProfitAccumulates(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	_ = store.AddProfit(ctx, decimal.NewFromFloat(12.5))
	_ = store.AddProfit(ctx, decimal.NewFromFloat(-2.5))

	profit, err := store.CumulativeProfit(ctx)
	if err != nil {
		t.Fatalf("cumulative profit: %v", err)
	}
	if !profit.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("profit = %s, want 10", profit)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if _, err := store.LoadMonitorConfig(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty store should return ErrNotFound, got %v", err)
	}

	raw := []byte(`{"mode":"rotate","checkIntervalMs":60000}`)
	if err := store.SaveMonitorConfig(ctx, raw); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.LoadMonitorConfig(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != string(raw) {
		t.Fatalf("round-trip mismatch: %s", got)
	}
}
