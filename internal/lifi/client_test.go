package lifi

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
)

const sampleQuoteJSON = `{
	"tool": "stargateV2",
	"toolDetails": {"name": "Stargate V2"},
	"includedSteps": [{}, {}],
	"estimate": {
		"toAmount": "4985000000",
		"executionDuration": 84,
		"gasCosts": [{"amountUSD": "1.20"}, {"amountUSD": "0.30"}],
		"feeCosts": [{"amountUSD": "2.50"}]
	},
	"transactionRequest": {
		"to": "0x1231deb6f5749ef6ce6943a275a1d3e7486f4eae",
		"data": "0xdeadbeef",
		"value": "0x0de0b6b3a7640000",
		"chainId": 1
	}
}`

func sampleRequest() QuoteRequest {
	return QuoteRequest{
		FromChainID: 1,
		ToChainID:   42161,
		FromToken:   "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		ToToken:     "USDC",
		Amount:      "5000000000",
	}
}

func TestGetQuoteParsesRoute(t *testing.T) {
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleQuoteJSON))
	}))
	defer srv.Close()

	client := New(Options{BaseURL: srv.URL, SlippageBps: 50, Integrator: "rotator"}, zerolog.Nop())
	quote, err := client.GetQuote(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("get quote: %v", err)
	}

	if query.Get("fromChain") != "1" || query.Get("toChain") != "42161" {
		t.Fatalf("chain params wrong: %v", query)
	}
	if query.Get("fromAmount") != "5000000000" {
		t.Fatalf("fromAmount = %s", query.Get("fromAmount"))
	}
	if query.Get("slippage") != "0.005000" {
		t.Fatalf("slippage = %s, want 0.005000 for 50 bps", query.Get("slippage"))
	}
	if query.Get("integrator") != "rotator" {
		t.Fatalf("integrator = %s", query.Get("integrator"))
	}
	// Pure quotes get a placeholder sender.
	if query.Get("fromAddress") != "0x0000000000000000000000000000000000000001" {
		t.Fatalf("fromAddress = %s", query.Get("fromAddress"))
	}

	if quote.Tool != "Stargate V2" {
		t.Fatalf("tool = %s", quote.Tool)
	}
	if quote.Steps != 2 || quote.EstimatedSeconds != 84 {
		t.Fatalf("steps=%d seconds=%d", quote.Steps, quote.EstimatedSeconds)
	}
	if got := quote.GasCostUSD.StringFixed(2); got != "1.50" {
		t.Fatalf("gas cost = %s, want 1.50", got)
	}
	if got := quote.FeeCostUSD.StringFixed(2); got != "2.50" {
		t.Fatalf("fee cost = %s, want 2.50", got)
	}
	if got := quote.CostUSD().StringFixed(2); got != "4.00" {
		t.Fatalf("total cost = %s, want 4.00", got)
	}
	if quote.Tx.To == "" || quote.Tx.Data != "0xdeadbeef" || quote.Tx.ChainID != 1 {
		t.Fatalf("tx payload incomplete: %+v", quote.Tx)
	}
	if want := big.NewInt(1_000_000_000_000_000_000); quote.Tx.Value.Cmp(want) != 0 {
		t.Fatalf("tx value = %s, want %s", quote.Tx.Value, want)
	}
}

func TestGetQuoteRejectsBadAmount(t *testing.T) {
	client := New(Options{BaseURL: "http://127.0.0.1:0"}, zerolog.Nop())

	for _, amount := range []string{"", "0", "-5", "1.5", "abc"} {
		req := sampleRequest()
		req.Amount = amount
		if _, err := client.GetQuote(context.Background(), req); err == nil {
			t.Fatalf("amount %q accepted", amount)
		}
	}
}

func TestGetQuoteSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"no route found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := New(Options{BaseURL: srv.URL}, zerolog.Nop())
	if _, err := client.GetQuote(context.Background(), sampleRequest()); err == nil {
		t.Fatal("non-2xx response must return an error")
	}
}

func TestGetQuoteRequiresOutputAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"estimate": {"toAmount": ""}}`))
	}))
	defer srv.Close()

	client := New(Options{BaseURL: srv.URL}, zerolog.Nop())
	if _, err := client.GetQuote(context.Background(), sampleRequest()); err == nil {
		t.Fatal("quote without output amount must be rejected")
	}
}
