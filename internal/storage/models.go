package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// HistoryLimit caps the persisted execution ledger; the oldest record is
// evicted on overflow.
const HistoryLimit = 50

// Execution statuses, ordered. completed and failed are terminal.
const (
	StatusPending    = "pending"
	StatusConfirming = "confirming"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ExecutionRecord is an immutable audit entry for one execution attempt.
type ExecutionRecord struct {
	ID          string
	ExecutedAt  time.Time
	Kind        string
	TokenSymbol string
	FromChainID int64
	ToChainID   int64
	AmountUSD   decimal.Decimal
	// NetBenefitUSD is the plan's estimate at execution time.
	NetBenefitUSD decimal.Decimal
	Success       bool
	Status        string
	TxHash        string
	Error         string
	// RealizedProfit is nil when the outcome could not be valued.
	RealizedProfit *decimal.Decimal
	// Plan is the full plan payload for auditing.
	Plan      json.RawMessage
	CreatedAt time.Time
}
