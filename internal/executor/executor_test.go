package executor

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Ashar20/lifi-rotator/internal/lifi"
	"github.com/Ashar20/lifi-rotator/internal/market"
	"github.com/Ashar20/lifi-rotator/internal/planner"
	"github.com/Ashar20/lifi-rotator/internal/storage"
)

type fakeWallet struct {
	active    int64
	switched  []int64
	sent      []TxIntent
	sendErr   error
	minedErr  error
	switchErr error
}

func (w *fakeWallet) Address() common.Address { return common.HexToAddress("0x1") }
func (w *fakeWallet) ActiveChainID() int64    { return w.active }

func (w *fakeWallet) SwitchChain(ctx context.Context, chainID int64) error {
	if w.switchErr != nil {
		return w.switchErr
	}
	w.switched = append(w.switched, chainID)
	w.active = chainID
	return nil
}

func (w *fakeWallet) Send(ctx context.Context, intent TxIntent) (string, error) {
	if w.sendErr != nil {
		return "", w.sendErr
	}
	w.sent = append(w.sent, intent)
	return "0xhash", nil
}

func (w *fakeWallet) WaitMined(ctx context.Context, txHash string) error {
	return w.minedErr
}

func (w *fakeWallet) Close() {}

var _ Wallet = (*fakeWallet)(nil)

func executablePlan() *planner.Plan {
	return &planner.Plan{
		Kind: planner.KindRotation,
		Position: market.Position{
			ChainID:     1,
			TokenSymbol: "USDC",
			ValueUSD:    decimal.NewFromInt(5000),
		},
		Opportunity:   market.Opportunity{ChainID: 42161, TokenSymbol: "USDC"},
		NetBenefitUSD: decimal.NewFromInt(120),
		Quote: &lifi.Quote{
			Tool: "stargate",
			Tx: lifi.TxRequest{
				To:      "0x1231deb6f5749ef6ce6943a275a1d3e7486f4eae",
				Data:    "0xdeadbeef",
				Value:   big.NewInt(0),
				ChainID: 1,
			},
		},
	}
}

func TestExecuteCompletesAndRecords(t *testing.T) {
	wallet := &fakeWallet{active: 10}
	exec := New(wallet, Options{}, zerolog.Nop())

	plan := executablePlan()
	record, err := exec.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if record.Status != storage.StatusCompleted || !record.Success {
		t.Fatalf("record not completed: %+v", record)
	}
	if record.TxHash != "0xhash" {
		t.Fatalf("tx hash = %s", record.TxHash)
	}
	if record.RealizedProfit == nil || !record.RealizedProfit.Equal(plan.NetBenefitUSD) {
		t.Fatalf("realized profit = %v", record.RealizedProfit)
	}
	if record.FromChainID != 1 || record.ToChainID != 42161 {
		t.Fatalf("chain ids = %d -> %d", record.FromChainID, record.ToChainID)
	}
	if len(record.Plan) == 0 {
		t.Fatal("plan payload missing from audit record")
	}
	// The wallet was on another chain and must be switched first.
	if len(wallet.switched) != 1 || wallet.switched[0] != 1 {
		t.Fatalf("switch calls = %v", wallet.switched)
	}
	if len(wallet.sent) != 1 || wallet.sent[0].To != plan.Quote.Tx.To {
		t.Fatalf("sent = %+v", wallet.sent)
	}
}

func TestExecuteRejectsPlanWithoutRoute(t *testing.T) {
	exec := New(&fakeWallet{}, Options{}, zerolog.Nop())

	plan := executablePlan()
	plan.Quote = nil
	record, err := exec.Execute(context.Background(), plan)
	if !errors.Is(err, ErrNotExecutable) {
		t.Fatalf("err = %v, want ErrNotExecutable", err)
	}
	if record.Status != storage.StatusFailed || record.Success {
		t.Fatalf("record = %+v", record)
	}
}

func TestExecuteDryRunNeverBroadcasts(t *testing.T) {
	wallet := &fakeWallet{active: 1}
	exec := New(wallet, Options{DryRun: true}, zerolog.Nop())

	record, err := exec.Execute(context.Background(), executablePlan())
	if err == nil {
		t.Fatal("dry run must settle as failed")
	}
	if record.Status != storage.StatusFailed {
		t.Fatalf("status = %s", record.Status)
	}
	if len(wallet.sent) != 0 {
		t.Fatalf("dry run broadcast %d transactions", len(wallet.sent))
	}
	if !strings.Contains(record.Error, "dry run") {
		t.Fatalf("record error = %q", record.Error)
	}
}

func TestExecuteSendFailureIsPreBroadcastRejection(t *testing.T) {
	wallet := &fakeWallet{active: 1, sendErr: errors.New("insufficient funds")}
	exec := New(wallet, Options{}, zerolog.Nop())

	record, err := exec.Execute(context.Background(), executablePlan())
	if err == nil {
		t.Fatal("send failure must surface")
	}
	// pending -> failed directly; the record never reached confirming.
	if record.Status != storage.StatusFailed || record.TxHash != "" {
		t.Fatalf("record = %+v", record)
	}
}

func TestExecuteConfirmTimeoutFails(t *testing.T) {
	wallet := &fakeWallet{active: 1, minedErr: context.DeadlineExceeded}
	exec := New(wallet, Options{}, zerolog.Nop())

	record, err := exec.Execute(context.Background(), executablePlan())
	if err == nil {
		t.Fatal("confirmation failure must surface")
	}
	if record.Status != storage.StatusFailed {
		t.Fatalf("status = %s", record.Status)
	}
	// The broadcast happened; the hash stays on the failed record.
	if record.TxHash != "0xhash" {
		t.Fatalf("tx hash = %s", record.TxHash)
	}
}

func TestStatusTransitionTable(t *testing.T) {
	tests := []struct {
		from, to string
		ok       bool
	}{
		{storage.StatusPending, storage.StatusConfirming, true},
		{storage.StatusPending, storage.StatusFailed, true},
		{storage.StatusPending, storage.StatusCompleted, false},
		{storage.StatusConfirming, storage.StatusCompleted, true},
		{storage.StatusConfirming, storage.StatusFailed, true},
		{storage.StatusConfirming, storage.StatusPending, false},
		{storage.StatusCompleted, storage.StatusFailed, false},
		{storage.StatusFailed, storage.StatusConfirming, false},
	}
	for _, tt := range tests {
		record := storage.ExecutionRecord{Status: tt.from}
		err := advance(&record, tt.to)
		if tt.ok && err != nil {
			t.Fatalf("%s -> %s should be legal: %v", tt.from, tt.to, err)
		}
		if !tt.ok && err == nil {
			t.Fatalf("%s -> %s should be rejected", tt.from, tt.to)
		}
	}
}
