package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Ashar20/lifi-rotator/internal/chain"
	"github.com/Ashar20/lifi-rotator/internal/lifi"
	"github.com/Ashar20/lifi-rotator/internal/market"
	"github.com/Ashar20/lifi-rotator/internal/planner"
	"github.com/Ashar20/lifi-rotator/internal/storage"
)

type stubScanner struct {
	mu        sync.Mutex
	positions []market.Position
	err       error
	calls     int
}

func (s *stubScanner) Scan(ctx context.Context, wallet string, chains []chain.Chain) ([]market.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.positions, nil
}

type stubFeed struct {
	opportunities []market.Opportunity
}

func (s stubFeed) Fetch(ctx context.Context) []market.Opportunity {
	return s.opportunities
}

type stubPlanner struct {
	plans []planner.Plan
}

func (s stubPlanner) Compute(ctx context.Context, kind planner.Kind, positions []market.Position, opportunities []market.Opportunity, cfg planner.Config) ([]planner.Plan, error) {
	return s.plans, nil
}

type stubExecutor struct {
	mu    sync.Mutex
	calls int
	// block, when non-nil, holds Execute until closed.
	block chan struct{}
	err   error
}

func (e *stubExecutor) Execute(ctx context.Context, plan *planner.Plan) (storage.ExecutionRecord, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.block != nil {
		<-e.block
	}
	record := storage.ExecutionRecord{
		ID:            "exec-1",
		ExecutedAt:    time.Now().UTC(),
		Kind:          string(plan.Kind),
		TokenSymbol:   plan.Position.TokenSymbol,
		FromChainID:   plan.Position.ChainID,
		ToChainID:     plan.Opportunity.ChainID,
		NetBenefitUSD: plan.NetBenefitUSD,
		TxHash:        "0xfeed",
	}
	if e.err != nil {
		record.Status = storage.StatusFailed
		record.Error = e.err.Error()
		return record, e.err
	}
	record.Status = storage.StatusCompleted
	record.Success = true
	profit := plan.NetBenefitUSD
	record.RealizedProfit = &profit
	return record, nil
}

func (e *stubExecutor) executions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func testConfig() Config {
	return Config{
		Mode:                ModeRotate,
		MinAPYImprovement:   decimal.NewFromFloat(0.5),
		MinNetProfitUSD:     decimal.NewFromInt(1),
		MaxGasCostUSD:       decimal.NewFromInt(50),
		MinPositionValueUSD: decimal.NewFromInt(100),
		CheckInterval:       15 * time.Millisecond,
		Cooldown:            0,
	}
}

func testPlan() planner.Plan {
	return planner.Plan{
		Kind: planner.KindRotation,
		Position: market.Position{
			ChainID:     1,
			TokenSymbol: "USDC",
			ValueUSD:    decimal.NewFromInt(5000),
			CurrentAPY:  decimal.NewFromInt(3),
		},
		Opportunity: market.Opportunity{
			ChainID:     42161,
			TokenSymbol: "USDC",
			APY:         decimal.NewFromInt(8),
		},
		ImprovementPct:   decimal.NewFromInt(5),
		Quote:            &lifi.Quote{Tool: "stargate", Steps: 1, EstimatedSeconds: 60},
		GasCostUSD:       decimal.NewFromInt(4),
		EstimatedGainUSD: decimal.NewFromInt(250),
		NetBenefitUSD:    decimal.NewFromInt(246),
		ComputedAt:       time.Now().UTC(),
	}
}

func testMonitor(cfg Config, scanner *stubScanner, plans stubPlanner, exec PlanExecutor, store storage.ExecutionStore) *Monitor {
	feeds := Feeds{
		Rotate:    stubFeed{opportunities: []market.Opportunity{{ChainID: 42161, TokenSymbol: "USDC"}}},
		Arbitrage: stubFeed{},
	}
	return New(cfg, scanner, feeds, plans, exec, store, nil,
		Options{Wallet: "0x1111111111111111111111111111111111111111"}, zerolog.Nop())
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestGateOrder(t *testing.T) {
	cfg := testConfig()
	base := testPlan()

	tests := []struct {
		name   string
		mutate func(*planner.Plan)
		wantOK bool
		want   string
	}{
		{
			name:   "all gates pass",
			mutate: func(p *planner.Plan) {},
			wantOK: true,
		},
		{
			name: "position below minimum",
			mutate: func(p *planner.Plan) {
				p.Position.ValueUSD = decimal.NewFromInt(40)
			},
			want: "position value",
		},
		{
			name: "gas above ceiling",
			mutate: func(p *planner.Plan) {
				p.GasCostUSD = decimal.NewFromInt(80)
			},
			want: "gas cost",
		},
		{
			name: "net benefit below floor",
			mutate: func(p *planner.Plan) {
				p.NetBenefitUSD = decimal.NewFromFloat(0.5)
			},
			want: "net benefit",
		},
		{
			// Position value is checked first, so its message wins even
			// when the gas gate would also fail.
			name: "position gate reported before gas gate",
			mutate: func(p *planner.Plan) {
				p.Position.ValueUSD = decimal.NewFromInt(40)
				p.GasCostUSD = decimal.NewFromInt(80)
			},
			want: "position value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := base
			tt.mutate(&plan)
			reason, _, ok := gate(&plan, cfg)
			if ok != tt.wantOK {
				t.Fatalf("gate ok = %v, want %v (reason %q)", ok, tt.wantOK, reason)
			}
			if !tt.wantOK && !strings.Contains(reason, tt.want) {
				t.Fatalf("gate reason %q does not mention %q", reason, tt.want)
			}
		})
	}
}

func TestAutoExecutionRecordsOutcome(t *testing.T) {
	scanner := &stubScanner{positions: []market.Position{testPlan().Position}}
	exec := &stubExecutor{}
	store := storage.NewMemory()
	m := testMonitor(testConfig(), scanner, stubPlanner{plans: []planner.Plan{testPlan()}}, exec, store)

	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, time.Second, func() bool {
		return m.State().ExecutionsCount >= 1
	})
	m.Wait()

	state := m.State()
	if len(state.History) == 0 {
		t.Fatal("execution record missing from history")
	}
	last := state.History[len(state.History)-1]
	if !last.Success || last.TxHash != "0xfeed" {
		t.Fatalf("unexpected record: success=%v tx=%s", last.Success, last.TxHash)
	}
	if !state.CumulativeProfitUSD.Equal(testPlan().NetBenefitUSD) {
		t.Fatalf("cumulative profit = %s, want %s", state.CumulativeProfitUSD, testPlan().NetBenefitUSD)
	}

	persisted, err := store.ListExecutions(context.Background(), storage.HistoryLimit)
	if err != nil {
		t.Fatalf("list executions: %v", err)
	}
	if len(persisted) != len(state.History) {
		t.Fatalf("store has %d records, state has %d", len(persisted), len(state.History))
	}
}

func TestSingleFlightExecution(t *testing.T) {
	scanner := &stubScanner{positions: []market.Position{testPlan().Position}}
	exec := &stubExecutor{block: make(chan struct{})}
	m := testMonitor(testConfig(), scanner, stubPlanner{plans: []planner.Plan{testPlan()}}, exec, storage.NewMemory())

	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, time.Second, func() bool { return exec.executions() == 1 })

	// Several check intervals pass while the first execution is in flight;
	// every one of them must be skipped, not queued.
	time.Sleep(80 * time.Millisecond)
	if got := exec.executions(); got != 1 {
		t.Fatalf("executor invoked %d times during in-flight execution, want 1", got)
	}
	if phase := m.State().Phase; phase != PhaseExecuting {
		t.Fatalf("phase = %s, want %s", phase, PhaseExecuting)
	}

	close(exec.block)
	m.Wait()
	waitFor(t, time.Second, func() bool { return m.State().ExecutionsCount == 1 })
}

func TestCooldownHoldsPendingPlan(t *testing.T) {
	cfg := testConfig()
	cfg.Cooldown = time.Hour
	scanner := &stubScanner{positions: []market.Position{testPlan().Position}}
	exec := &stubExecutor{}
	m := testMonitor(cfg, scanner, stubPlanner{plans: []planner.Plan{testPlan()}}, exec, storage.NewMemory())

	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, time.Second, func() bool { return m.State().ExecutionsCount == 1 })
	m.Wait()

	// Later checks keep finding the plan but the cooldown holds it back.
	waitFor(t, time.Second, func() bool { return m.State().ChecksCount >= 3 })
	state := m.State()
	if got := exec.executions(); got != 1 {
		t.Fatalf("executor invoked %d times inside cooldown window, want 1", got)
	}
	if state.PendingPlan == nil {
		t.Fatal("pending plan should be retained while cooldown holds execution back")
	}
}

func TestStopHaltsTicksDeterministically(t *testing.T) {
	scanner := &stubScanner{positions: []market.Position{testPlan().Position}}
	m := testMonitor(testConfig(), scanner, stubPlanner{}, nil, storage.NewMemory())

	m.Start(context.Background())
	waitFor(t, time.Second, func() bool { return m.State().ChecksCount >= 1 })
	m.Stop()

	checks := m.State().ChecksCount
	time.Sleep(60 * time.Millisecond)

	state := m.State()
	if state.ChecksCount != checks {
		t.Fatalf("checks advanced from %d to %d after stop", checks, state.ChecksCount)
	}
	if state.Running || state.Phase != PhaseStopped {
		t.Fatalf("state after stop: running=%v phase=%s", state.Running, state.Phase)
	}
	if state.PendingPlan != nil {
		t.Fatal("pending plan should be cleared on stop")
	}
}

func TestStopDoesNotAbortInFlightExecution(t *testing.T) {
	scanner := &stubScanner{positions: []market.Position{testPlan().Position}}
	exec := &stubExecutor{block: make(chan struct{})}
	m := testMonitor(testConfig(), scanner, stubPlanner{plans: []planner.Plan{testPlan()}}, exec, storage.NewMemory())

	m.Start(context.Background())
	waitFor(t, time.Second, func() bool { return exec.executions() == 1 })

	m.Stop()
	if phase := m.State().Phase; phase != PhaseStopped {
		t.Fatalf("phase = %s, want %s", phase, PhaseStopped)
	}

	close(exec.block)
	m.Wait()

	waitFor(t, time.Second, func() bool { return m.State().ExecutionsCount == 1 })
	state := m.State()
	if len(state.History) != 1 || !state.History[0].Success {
		t.Fatalf("in-flight execution not recorded after stop: %+v", state.History)
	}
	if state.Phase != PhaseStopped {
		t.Fatalf("settling must not restart a stopped monitor, phase = %s", state.Phase)
	}
}

func TestScanErrorKeepsLoopAlive(t *testing.T) {
	scanner := &stubScanner{err: errors.New("rpc unreachable")}
	m := testMonitor(testConfig(), scanner, stubPlanner{}, nil, storage.NewMemory())

	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, time.Second, func() bool { return m.State().ChecksCount >= 2 })
	state := m.State()
	if !strings.Contains(state.LastError, "rpc unreachable") {
		t.Fatalf("last error = %q, want scan failure", state.LastError)
	}
	if !state.Running {
		t.Fatal("scan failures must not stop the loop")
	}
}

func TestExecutionFailureRecordedAndLoopContinues(t *testing.T) {
	scanner := &stubScanner{positions: []market.Position{testPlan().Position}}
	exec := &stubExecutor{err: errors.New("tx reverted")}
	m := testMonitor(testConfig(), scanner, stubPlanner{plans: []planner.Plan{testPlan()}}, exec, storage.NewMemory())

	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, time.Second, func() bool { return m.State().ExecutionsCount >= 1 })
	m.Wait()

	state := m.State()
	record := state.History[len(state.History)-1]
	if record.Success || record.Status != storage.StatusFailed {
		t.Fatalf("failed execution recorded as %+v", record)
	}
	if !state.CumulativeProfitUSD.IsZero() {
		t.Fatalf("failed execution must not add profit, got %s", state.CumulativeProfitUSD)
	}
	waitFor(t, time.Second, func() bool { return m.State().Running })
}

func TestStartTwiceIsNoOp(t *testing.T) {
	var mu sync.Mutex
	var messages []string
	scanner := &stubScanner{}
	m := New(testConfig(), scanner, Feeds{Rotate: stubFeed{}}, stubPlanner{}, nil, storage.NewMemory(), nil,
		Options{
			Wallet: "0x1111111111111111111111111111111111111111",
			OnStatus: func(message string, severity Severity) {
				mu.Lock()
				messages = append(messages, message)
				mu.Unlock()
			},
		}, zerolog.Nop())

	m.Start(context.Background())
	defer m.Stop()
	m.Start(context.Background())

	mu.Lock()
	defer mu.Unlock()
	var warned bool
	for _, msg := range messages {
		if strings.Contains(msg, "already running") {
			warned = true
		}
	}
	if !warned {
		t.Fatal("second start should warn, not spawn a second loop")
	}
}

func TestUpdateConfigValidatesAndPersists(t *testing.T) {
	store := storage.NewMemory()
	m := New(testConfig(), &stubScanner{}, Feeds{Rotate: stubFeed{}}, stubPlanner{}, nil, store, store,
		Options{}, zerolog.Nop())

	bad := testConfig()
	bad.Mode = "yolo"
	if err := m.UpdateConfig(context.Background(), bad); err == nil {
		t.Fatal("invalid mode accepted")
	}

	next := testConfig()
	next.Mode = ModeArbitrage
	next.Cooldown = 5 * time.Minute
	next.CheckInterval = time.Minute
	if err := m.UpdateConfig(context.Background(), next); err != nil {
		t.Fatalf("update config: %v", err)
	}
	if got := m.Config(); got.Mode != ModeArbitrage || got.Cooldown != 5*time.Minute {
		t.Fatalf("live config not replaced: %+v", got)
	}

	raw, err := store.LoadMonitorConfig(context.Background())
	if err != nil {
		t.Fatalf("load persisted config: %v", err)
	}
	var restored Config
	if err := restored.UnmarshalJSON(raw); err != nil {
		t.Fatalf("decode persisted config: %v", err)
	}
	if restored.Mode != ModeArbitrage || restored.Cooldown != 5*time.Minute {
		t.Fatalf("persisted config round-trip: %+v", restored)
	}
}

func TestRestoreLoadsLedgerAndPolicy(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	profit := decimal.NewFromInt(12)
	if err := store.AppendExecution(ctx, storage.ExecutionRecord{ID: "old", Success: true, RealizedProfit: &profit}); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	if err := store.AddProfit(ctx, profit); err != nil {
		t.Fatalf("seed profit: %v", err)
	}
	persisted := testConfig()
	persisted.Mode = ModeArbitrage
	persisted.CheckInterval = time.Minute
	raw, err := persisted.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := store.SaveMonitorConfig(ctx, raw); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	m := New(testConfig(), &stubScanner{}, Feeds{Rotate: stubFeed{}}, stubPlanner{}, nil, store, store,
		Options{}, zerolog.Nop())
	if err := m.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if got := m.Config().Mode; got != ModeArbitrage {
		t.Fatalf("restored mode = %s, want %s", got, ModeArbitrage)
	}
	state := m.State()
	if len(state.History) != 1 || state.History[0].ID != "old" {
		t.Fatalf("restored history: %+v", state.History)
	}
	if !state.CumulativeProfitUSD.Equal(profit) {
		t.Fatalf("restored profit = %s, want %s", state.CumulativeProfitUSD, profit)
	}
}

func TestPhaseTransitionTable(t *testing.T) {
	if PhaseIdle.canEnter(PhaseChecking) {
		t.Fatal("idle must not enter checking directly")
	}
	if !PhaseExecuting.canEnter(PhaseStopped) {
		t.Fatal("stop must be reachable mid-execution")
	}
	if PhaseStopped.canEnter(PhaseExecuting) {
		t.Fatal("a stopped monitor must not resume executing")
	}
	if !PhaseStopped.canEnter(PhaseRunning) {
		t.Fatal("a stopped monitor must be restartable")
	}
}

// recordingPlanner captures the calculator config each tick passes down.
type recordingPlanner struct {
	mu   sync.Mutex
	cfgs []planner.Config
}

func (r *recordingPlanner) Compute(ctx context.Context, kind planner.Kind, positions []market.Position, opportunities []market.Opportunity, cfg planner.Config) ([]planner.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfgs = append(r.cfgs, cfg)
	return nil, nil
}

func TestTickQuotesForOwnedWallet(t *testing.T) {
	wallet := "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	plans := &recordingPlanner{}
	m := New(testConfig(), &stubScanner{}, Feeds{Rotate: stubFeed{}}, plans, nil,
		storage.NewMemory(), nil, Options{Wallet: wallet}, zerolog.Nop())

	m.Start(context.Background())
	defer m.Stop()
	waitFor(t, time.Second, func() bool {
		plans.mu.Lock()
		defer plans.mu.Unlock()
		return len(plans.cfgs) > 0
	})

	plans.mu.Lock()
	defer plans.mu.Unlock()
	if got := plans.cfgs[0].FromAddress; got != wallet {
		t.Fatalf("calculator fromAddress = %q, want wallet %q", got, wallet)
	}
}
