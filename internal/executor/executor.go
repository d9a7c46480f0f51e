// Package executor turns an approved plan into a signed, broadcast
// transaction and tracks its status transitions.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Ashar20/lifi-rotator/internal/planner"
	"github.com/Ashar20/lifi-rotator/internal/storage"
)

// ErrNotExecutable marks plans without a broadcastable route payload.
var ErrNotExecutable = errors.New("executor: plan has no executable route")

// validTransitions is the only legal status order: pending -> confirming ->
// completed|failed, plus pending -> failed for pre-broadcast rejections.
// Terminal statuses are immutable.
var validTransitions = map[string][]string{
	storage.StatusPending:    {storage.StatusConfirming, storage.StatusFailed},
	storage.StatusConfirming: {storage.StatusCompleted, storage.StatusFailed},
}

func advance(record *storage.ExecutionRecord, next string) error {
	for _, allowed := range validTransitions[record.Status] {
		if allowed == next {
			record.Status = next
			return nil
		}
	}
	return fmt.Errorf("executor: invalid status transition %s -> %s", record.Status, next)
}

// Options tune execution behaviour.
type Options struct {
	ConfirmTimeout time.Duration
	// DryRun skips broadcast and settles every record as failed with a
	// marker error. Useful while validating thresholds against mainnet.
	DryRun bool
}

// Executor broadcasts approved plans through a Wallet capability. It holds
// no state beyond the record it is producing.
type Executor struct {
	wallet Wallet
	opts   Options
	logger zerolog.Logger
}

// New constructs an Executor.
func New(wallet Wallet, opts Options, logger zerolog.Logger) *Executor {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 2 * time.Minute
	}
	return &Executor{
		wallet: wallet,
		opts:   opts,
		logger: logger.With().Str("component", "executor").Logger(),
	}
}

// Execute runs the plan to settlement and returns the audit record. The
// returned error mirrors record.Error; callers persist the record either way.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan) (storage.ExecutionRecord, error) {
	record := newRecord(plan)

	if plan.Quote == nil || plan.Quote.Tx.To == "" || plan.Quote.Tx.Data == "" {
		return e.fail(record, ErrNotExecutable)
	}
	if e.opts.DryRun {
		return e.fail(record, errors.New("dry run: broadcast suppressed"))
	}

	if e.wallet.ActiveChainID() != plan.Position.ChainID {
		if err := e.wallet.SwitchChain(ctx, plan.Position.ChainID); err != nil {
			return e.fail(record, fmt.Errorf("switch chain: %w", err))
		}
	}

	txHash, err := e.wallet.Send(ctx, TxIntent{
		To:    plan.Quote.Tx.To,
		Data:  plan.Quote.Tx.Data,
		Value: plan.Quote.Tx.Value,
	})
	if err != nil {
		return e.fail(record, err)
	}
	record.TxHash = txHash
	if err := advance(&record, storage.StatusConfirming); err != nil {
		return e.fail(record, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.opts.ConfirmTimeout)
	defer cancel()
	if err := e.wallet.WaitMined(waitCtx, txHash); err != nil {
		return e.fail(record, fmt.Errorf("confirm transaction: %w", err))
	}

	if err := advance(&record, storage.StatusCompleted); err != nil {
		return e.fail(record, err)
	}
	record.Success = true
	// The plan's net-benefit estimate stands in for realized profit; actual
	// yield accrues over time and is not observable at settlement.
	realized := plan.NetBenefitUSD
	record.RealizedProfit = &realized

	e.logger.Info().
		Str("record_id", record.ID).
		Str("tx_hash", txHash).
		Str("net_benefit_usd", plan.NetBenefitUSD.StringFixed(2)).
		Msg("execution completed")
	return record, nil
}

func (e *Executor) fail(record storage.ExecutionRecord, cause error) (storage.ExecutionRecord, error) {
	record.Error = cause.Error()
	if record.Status != storage.StatusFailed {
		if err := advance(&record, storage.StatusFailed); err != nil {
			// Already terminal; keep the original status and error.
			e.logger.Error().Err(err).Str("record_id", record.ID).Msg("refusing illegal status transition")
		}
	}
	e.logger.Error().Err(cause).Str("record_id", record.ID).Msg("execution failed")
	return record, cause
}

func newRecord(plan *planner.Plan) storage.ExecutionRecord {
	raw, err := json.Marshal(plan)
	if err != nil {
		raw = nil
	}
	return storage.ExecutionRecord{
		ID:            uuid.NewString(),
		ExecutedAt:    time.Now().UTC(),
		Kind:          string(plan.Kind),
		TokenSymbol:   plan.Position.TokenSymbol,
		FromChainID:   plan.Position.ChainID,
		ToChainID:     plan.Opportunity.ChainID,
		AmountUSD:     plan.Position.ValueUSD,
		NetBenefitUSD: plan.NetBenefitUSD,
		Status:        storage.StatusPending,
		Plan:          raw,
	}
}
