// Package monitor owns the rotation engine's run/stop lifecycle: the
// periodic scan loop, the single-flight execution guard, the post-execution
// cooldown, and the bounded execution ledger.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ashar20/lifi-rotator/internal/chain"
	"github.com/Ashar20/lifi-rotator/internal/feed"
	"github.com/Ashar20/lifi-rotator/internal/market"
	"github.com/Ashar20/lifi-rotator/internal/planner"
	"github.com/Ashar20/lifi-rotator/internal/storage"
)

// PositionSource enumerates wallet positions across chains.
type PositionSource interface {
	Scan(ctx context.Context, wallet string, chains []chain.Chain) ([]market.Position, error)
}

// PlanSource computes ranked candidate plans.
type PlanSource interface {
	Compute(ctx context.Context, kind planner.Kind, positions []market.Position, opportunities []market.Opportunity, cfg planner.Config) ([]planner.Plan, error)
}

// PlanExecutor settles an approved plan and returns its audit record.
type PlanExecutor interface {
	Execute(ctx context.Context, plan *planner.Plan) (storage.ExecutionRecord, error)
}

// Feeds holds one opportunity source per mode.
type Feeds struct {
	Rotate    feed.OpportunitySource
	Arbitrage feed.OpportunitySource
}

func (f Feeds) forMode(mode Mode) feed.OpportunitySource {
	if mode == ModeArbitrage {
		return f.Arbitrage
	}
	return f.Rotate
}

// Options wire the monitor's collaborators.
type Options struct {
	Wallet string
	// OnStatus receives human-readable progress; optional.
	OnStatus StatusFunc
	// OnState receives the full snapshot on every state change; optional.
	OnState StateFunc
}

// Monitor is the rotation scheduler. One instance owns one timer loop;
// construct it explicitly and drive it with Start/Stop.
type Monitor struct {
	opts     Options
	scanner  PositionSource
	feeds    Feeds
	plans    PlanSource
	executor PlanExecutor
	store    storage.ExecutionStore
	cfgStore storage.ConfigStore
	logger   zerolog.Logger

	mu            sync.Mutex
	cfg           Config
	phase         Phase
	state         State
	cooldownUntil time.Time
	cancel        context.CancelFunc

	loopWG sync.WaitGroup
	execWG sync.WaitGroup
}

// New constructs a monitor in the Idle phase.
func New(cfg Config, scanner PositionSource, feeds Feeds, plans PlanSource, executor PlanExecutor, store storage.ExecutionStore, cfgStore storage.ConfigStore, opts Options, logger zerolog.Logger) *Monitor {
	return &Monitor{
		opts:     opts,
		scanner:  scanner,
		feeds:    feeds,
		plans:    plans,
		executor: executor,
		store:    store,
		cfgStore: cfgStore,
		logger:   logger.With().Str("component", "monitor").Logger(),
		cfg:      cfg,
		phase:    PhaseIdle,
		state:    State{Phase: PhaseIdle},
	}
}

// Restore loads the persisted policy, ledger, and profit accumulator.
// Call before Start; missing persisted state is not an error.
func (m *Monitor) Restore(ctx context.Context) error {
	if m.cfgStore != nil {
		raw, err := m.cfgStore.LoadMonitorConfig(ctx)
		switch {
		case err == nil:
			var cfg Config
			if err := cfg.UnmarshalJSON(raw); err != nil {
				return fmt.Errorf("decode persisted monitor config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("persisted monitor config invalid: %w", err)
			}
			m.mu.Lock()
			m.cfg = cfg
			m.mu.Unlock()
		case errors.Is(err, storage.ErrNotFound):
		default:
			return err
		}
	}

	if m.store != nil {
		history, err := m.store.ListExecutions(ctx, storage.HistoryLimit)
		if err != nil {
			return err
		}
		// The store lists newest first; state history appends at the tail.
		slices.Reverse(history)
		profit, err := m.store.CumulativeProfit(ctx)
		if err != nil {
			return err
		}
		m.updateState(func(s *State) {
			s.History = history
			s.CumulativeProfitUSD = profit
		})
	}
	return nil
}

// Start begins the periodic scan loop. Starting an already-running monitor
// is a logged no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.phase != PhaseIdle && m.phase != PhaseStopped {
		m.mu.Unlock()
		m.logger.Warn().Msg("start ignored: monitor already running")
		m.emit("monitor already running", SeverityWarning)
		return
	}
	m.transition(PhaseRunning)
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.updateState(func(s *State) {})
	m.emit("monitor started", SeverityInfo)

	m.loopWG.Add(1)
	go m.run(loopCtx)
}

// Stop cancels the timer deterministically: when Stop returns, no further
// tick will fire. An in-flight execution is not aborted; it settles and is
// recorded normally. History is never touched.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.phase == PhaseIdle || m.phase == PhaseStopped {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.cancel = nil
	m.transition(PhaseStopped)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.loopWG.Wait()

	m.updateState(func(s *State) {
		s.PendingPlan = nil
	})
	m.emit("monitor stopped", SeverityInfo)
}

// Wait blocks until any in-flight execution has settled. Mainly for
// orderly shutdown after Stop.
func (m *Monitor) Wait() {
	m.execWG.Wait()
}

// State returns a consistent snapshot of the monitor's live status.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.snapshot()
}

// Config returns the live policy.
func (m *Monitor) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// UpdateConfig validates, applies, and persists a new policy. The change
// takes effect on the next tick; in-flight checks keep the policy they
// started with. Applying the same config twice is idempotent.
func (m *Monitor) UpdateConfig(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	if m.cfgStore != nil {
		raw, err := cfg.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode monitor config: %w", err)
		}
		if err := m.cfgStore.SaveMonitorConfig(ctx, raw); err != nil {
			return fmt.Errorf("persist monitor config: %w", err)
		}
	}
	m.emit("monitor config updated", SeverityInfo)
	return nil
}

// run drives the periodic tick loop until its context is cancelled. The
// interval is re-read every lap so config updates apply on the next tick.
func (m *Monitor) run(ctx context.Context) {
	defer m.loopWG.Done()

	m.tick(ctx)
	for {
		interval := m.Config().CheckInterval
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		m.tick(ctx)
	}
}

// tick performs one Checking cycle. Nothing thrown by the scanner, feed,
// planner, or executor escapes this boundary.
func (m *Monitor) tick(ctx context.Context) {
	m.mu.Lock()
	if m.phase != PhaseRunning {
		skipped := m.phase
		m.mu.Unlock()
		if skipped == PhaseExecuting {
			m.logger.Debug().Msg("skipping check: execution in flight")
		}
		return
	}
	cfg := m.cfg
	m.transition(PhaseChecking)
	m.mu.Unlock()
	m.updateState(func(s *State) {})

	if err := m.check(ctx, cfg); err != nil {
		m.logger.Error().Err(err).Msg("check failed")
		m.emit(fmt.Sprintf("check failed: %v", err), SeverityError)
		m.updateState(func(s *State) {
			s.LastError = err.Error()
		})
	}

	m.endCycle()
}

// check runs scan -> fetch -> plan -> gate -> maybe execute for one cycle.
func (m *Monitor) check(ctx context.Context, cfg Config) error {
	m.updateState(func(s *State) {
		s.LastCheck = time.Now().UTC()
		s.ChecksCount++
	})

	chains, err := chain.Restrict(chain.Universe(cfg.Testnet), cfg.SourceChainID)
	if err != nil {
		return err
	}

	positions, err := m.scanner.Scan(ctx, m.opts.Wallet, chains)
	if err != nil {
		return fmt.Errorf("scan positions: %w", err)
	}
	if len(positions) == 0 {
		m.emit("no positions found", SeverityInfo)
		m.clearPending()
		return nil
	}

	source := m.feeds.forMode(cfg.Mode)
	if source == nil {
		return fmt.Errorf("no opportunity source configured for mode %q", cfg.Mode)
	}
	opportunities := source.Fetch(ctx)
	if len(opportunities) == 0 {
		m.emit("no opportunities this cycle", SeverityInfo)
		m.clearPending()
		return nil
	}

	plans, err := m.plans.Compute(ctx, cfg.Mode.Kind(), positions, opportunities, cfg.plannerConfig(m.opts.Wallet))
	if err != nil {
		return fmt.Errorf("compute plans: %w", err)
	}
	best := planner.Best(plans)
	if best == nil {
		m.emit("no opportunities above threshold", SeverityInfo)
		m.clearPending()
		return nil
	}

	if reason, severity, ok := gate(best, cfg); !ok {
		m.emit(reason, severity)
		m.clearPending()
		return nil
	}

	m.updateState(func(s *State) {
		s.PendingPlan = best
		s.LastError = ""
	})

	m.mu.Lock()
	remaining := time.Until(m.cooldownUntil)
	m.mu.Unlock()
	if remaining > 0 {
		m.emit(fmt.Sprintf("cooldown active: %s remaining", remaining.Round(time.Second)), SeverityInfo)
		return nil
	}

	if m.executor == nil {
		m.emit("plan ready (advisory mode, no executor configured)", SeverityInfo)
		return nil
	}
	if !best.CrossChain() {
		// Same-chain plans carry no route payload to broadcast; surface
		// them instead of burning a failed record.
		m.emit("best plan is same-chain and advisory only", SeverityInfo)
		return nil
	}

	m.startExecution(ctx, best)
	return nil
}

// gate applies the auto-execution gates in order: position value, gas
// ceiling, absolute profit floor. Each is independent; all must pass.
func gate(plan *planner.Plan, cfg Config) (string, Severity, bool) {
	if plan.Position.ValueUSD.LessThan(cfg.MinPositionValueUSD) {
		return fmt.Sprintf("position value $%s below minimum $%s",
			plan.Position.ValueUSD.StringFixed(2), cfg.MinPositionValueUSD.StringFixed(2)), SeverityInfo, false
	}
	if plan.GasCostUSD.GreaterThan(cfg.MaxGasCostUSD) {
		return fmt.Sprintf("gas cost $%s exceeds maximum $%s",
			plan.GasCostUSD.StringFixed(2), cfg.MaxGasCostUSD.StringFixed(2)), SeverityWarning, false
	}
	if plan.NetBenefitUSD.LessThan(cfg.MinNetProfitUSD) {
		return fmt.Sprintf("net benefit $%s below minimum $%s",
			plan.NetBenefitUSD.StringFixed(2), cfg.MinNetProfitUSD.StringFixed(2)), SeverityInfo, false
	}
	return "", SeverityInfo, true
}

// startExecution enters the Executing phase and settles the plan in its own
// goroutine so Stop never aborts it mid-flight.
func (m *Monitor) startExecution(ctx context.Context, plan *planner.Plan) {
	m.mu.Lock()
	if m.phase != PhaseChecking {
		// Stopped between gating and here; do not launch.
		m.mu.Unlock()
		return
	}
	m.transition(PhaseExecuting)
	cooldown := m.cfg.Cooldown
	m.mu.Unlock()
	m.updateState(func(s *State) {})

	m.emit(fmt.Sprintf("executing plan: %s %s chain %d -> %d, net benefit $%s",
		plan.Position.TokenSymbol, plan.Kind, plan.Position.ChainID,
		plan.Opportunity.ChainID, plan.NetBenefitUSD.StringFixed(2)), SeverityInfo)

	// Detached from the loop context: an execution already underway runs to
	// completion even if Stop is called.
	execCtx := context.WithoutCancel(ctx)

	m.execWG.Add(1)
	go func() {
		defer m.execWG.Done()
		record, err := m.executor.Execute(execCtx, plan)
		m.settle(record, cooldown, err)
	}()
}

// settle records the execution outcome, starts the cooldown window, and
// returns the monitor to Running unless it was stopped mid-flight.
func (m *Monitor) settle(record storage.ExecutionRecord, cooldown time.Duration, execErr error) {
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if m.store != nil {
		if err := m.store.AppendExecution(persistCtx, record); err != nil {
			m.logger.Error().Err(err).Msg("failed to persist execution record")
		}
		if record.Success && record.RealizedProfit != nil {
			if err := m.store.AddProfit(persistCtx, *record.RealizedProfit); err != nil {
				m.logger.Error().Err(err).Msg("failed to persist realized profit")
			}
		}
	}

	m.mu.Lock()
	// Cooldown starts after any execution, success or failure.
	m.cooldownUntil = time.Now().Add(cooldown)
	if m.phase == PhaseExecuting {
		m.transition(PhaseRunning)
	}
	m.mu.Unlock()

	m.updateState(func(s *State) {
		s.LastExecution = record.ExecutedAt
		s.ExecutionsCount++
		s.PendingPlan = nil
		s.History = append(s.History, record)
		if overflow := len(s.History) - storage.HistoryLimit; overflow > 0 {
			s.History = append([]storage.ExecutionRecord(nil), s.History[overflow:]...)
		}
		if record.Success && record.RealizedProfit != nil {
			s.CumulativeProfitUSD = s.CumulativeProfitUSD.Add(*record.RealizedProfit)
		}
		if execErr != nil {
			s.LastError = execErr.Error()
		}
	})

	if execErr != nil {
		m.emit(fmt.Sprintf("execution failed: %v", execErr), SeverityError)
		return
	}
	m.emit(fmt.Sprintf("execution completed: tx %s", record.TxHash), SeverityInfo)
}

// endCycle returns Checking to Running; a monitor stopped mid-check stays
// stopped, and an Executing monitor keeps its phase until settle.
func (m *Monitor) endCycle() {
	m.mu.Lock()
	if m.phase == PhaseChecking {
		m.transition(PhaseRunning)
	}
	m.mu.Unlock()
	m.updateState(func(s *State) {})
}

// clearPending drops the pending plan after a check that produced no
// executable candidate. Completed checks also clear any stale error.
func (m *Monitor) clearPending() {
	m.updateState(func(s *State) {
		s.PendingPlan = nil
		s.LastError = ""
	})
}

// updateState replaces the whole snapshot under the lock and notifies the
// state sink with a private copy. Observers holding an older snapshot never
// see a partial update.
func (m *Monitor) updateState(mutate func(*State)) {
	m.mu.Lock()
	next := m.state.snapshot()
	mutate(&next)
	next.Phase = m.phase
	next.Running = m.phase == PhaseRunning || m.phase == PhaseChecking || m.phase == PhaseExecuting
	m.state = next
	notify := m.opts.OnState
	snapshot := next.snapshot()
	m.mu.Unlock()

	if notify != nil {
		notify(snapshot)
	}
}

// emit routes a status message to both the logger and the status sink.
func (m *Monitor) emit(message string, severity Severity) {
	m.logger.WithLevel(severity.zerologLevel()).Msg(message)
	if m.opts.OnStatus != nil {
		m.opts.OnStatus(message, severity)
	}
}
