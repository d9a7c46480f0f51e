package monitor

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Ashar20/lifi-rotator/internal/planner"
	"github.com/Ashar20/lifi-rotator/internal/storage"
)

// Severity classifies status-sink messages.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

func (s Severity) zerologLevel() zerolog.Level {
	switch s {
	case SeverityWarning:
		return zerolog.WarnLevel
	case SeverityError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// StatusFunc receives human-readable progress messages.
type StatusFunc func(message string, severity Severity)

// StateFunc receives the full state snapshot on every change.
type StateFunc func(state State)

// State is the monitor's live status. The monitor replaces the whole value
// on every change; a snapshot handed to an observer is never mutated after
// the fact.
type State struct {
	Phase               Phase
	Running             bool
	LastCheck           time.Time
	LastExecution       time.Time
	ChecksCount         int64
	ExecutionsCount     int64
	CumulativeProfitUSD decimal.Decimal
	// PendingPlan is the current best plan that passed every auto-execution
	// gate but has not executed yet (e.g. held back by cooldown).
	PendingPlan *planner.Plan
	LastError   string
	History     []storage.ExecutionRecord
}

// snapshot deep-copies the parts observers could otherwise alias.
func (s State) snapshot() State {
	out := s
	if s.PendingPlan != nil {
		plan := *s.PendingPlan
		out.PendingPlan = &plan
	}
	if len(s.History) > 0 {
		out.History = append([]storage.ExecutionRecord(nil), s.History...)
	}
	return out
}
