package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/shopspring/decimal"
)

// Memory is an in-process ExecutionStore/ConfigStore with the same FIFO
// eviction semantics as the PostgreSQL store. It backs DB-less runs and
// tests; it does not survive restarts.
type Memory struct {
	mu      sync.Mutex
	records []ExecutionRecord
	config  json.RawMessage
	profit  decimal.Decimal
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// AppendExecution appends and evicts the oldest records beyond HistoryLimit.
func (m *Memory) AppendExecution(ctx context.Context, record ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	if overflow := len(m.records) - HistoryLimit; overflow > 0 {
		m.records = append([]ExecutionRecord(nil), m.records[overflow:]...)
	}
	return nil
}

// ListExecutions returns up to limit records, newest first.
func (m *Memory) ListExecutions(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	out := make([]ExecutionRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

// ClearExecutions empties the ledger and resets cumulative profit.
func (m *Memory) ClearExecutions(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.profit = decimal.Zero
	return nil
}

// CumulativeProfit returns the accumulator.
func (m *Memory) CumulativeProfit(ctx context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profit, nil
}

// AddProfit adds delta to the accumulator.
func (m *Memory) AddProfit(ctx context.Context, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profit = m.profit.Add(delta)
	return nil
}

// SaveMonitorConfig stores the policy blob.
func (m *Memory) SaveMonitorConfig(ctx context.Context, raw json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = append(json.RawMessage(nil), raw...)
	return nil
}

// LoadMonitorConfig returns the stored policy, or ErrNotFound.
func (m *Memory) LoadMonitorConfig(ctx context.Context) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		return nil, ErrNotFound
	}
	return append(json.RawMessage(nil), m.config...), nil
}

var (
	_ ExecutionStore = (*Memory)(nil)
	_ ConfigStore    = (*Memory)(nil)
)
