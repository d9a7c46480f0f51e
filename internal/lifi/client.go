// Package lifi quotes cross-chain routes through a LI.FI-compatible
// aggregator API.
package lifi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const quotePath = "/quote"

// QuoteRequest identifies a route to price.
type QuoteRequest struct {
	FromChainID int64
	ToChainID   int64
	FromToken   string
	ToToken     string
	// Amount in the source token's base units.
	Amount      string
	FromAddress string
}

// TxRequest is the executable payload for the route's first transaction.
type TxRequest struct {
	To      string
	Data    string
	Value   *big.Int
	ChainID int64
}

// Quote is a priced cross-chain route.
type Quote struct {
	Tool             string
	FromChainID      int64
	ToChainID        int64
	FromToken        string
	ToToken          string
	FromAmount       string
	ToAmount         string
	GasCostUSD       decimal.Decimal
	FeeCostUSD       decimal.Decimal
	EstimatedSeconds int64
	Steps            int
	Tx               TxRequest
}

// CostUSD is the total gas plus bridge fee for the route.
func (q *Quote) CostUSD() decimal.Decimal {
	return q.GasCostUSD.Add(q.FeeCostUSD)
}

// Quoter obtains route quotes. The planner only calls it when source and
// destination chains differ.
type Quoter interface {
	GetQuote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

// Options parameterise the client.
type Options struct {
	BaseURL     string
	SlippageBps int64
	Timeout     time.Duration
	Integrator  string
}

// Client talks to the aggregator's REST API.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// New constructs a quote client.
func New(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://li.quest/v1"
	}
	if opts.SlippageBps <= 0 {
		opts.SlippageBps = 50
	}
	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "lifi").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type quoteResponse struct {
	Estimate struct {
		ToAmount string `json:"toAmount"`
		FeeCosts []struct {
			AmountUSD string `json:"amountUSD"`
		} `json:"feeCosts"`
		GasCosts []struct {
			AmountUSD string `json:"amountUSD"`
		} `json:"gasCosts"`
		ExecutionDuration int64 `json:"executionDuration"`
	} `json:"estimate"`
	ToolDetails struct {
		Name string `json:"name"`
	} `json:"toolDetails"`
	Tool          string            `json:"tool"`
	IncludedSteps []json.RawMessage `json:"includedSteps"`

	TransactionRequest struct {
		To      string `json:"to"`
		Data    string `json:"data"`
		Value   string `json:"value"`
		ChainID int64  `json:"chainId"`
	} `json:"transactionRequest"`
}

// GetQuote prices a route and returns its executable payload.
func (c *Client) GetQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if req.FromToken == "" || req.ToToken == "" {
		return nil, errors.New("lifi: from and to tokens required")
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(req.Amount), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, errors.New("lifi: amount must be a positive base-unit integer")
	}

	vals := url.Values{}
	vals.Set("fromChain", strconv.FormatInt(req.FromChainID, 10))
	vals.Set("toChain", strconv.FormatInt(req.ToChainID, 10))
	vals.Set("fromToken", req.FromToken)
	vals.Set("toToken", req.ToToken)
	vals.Set("fromAmount", amount.String())
	fromAddress := req.FromAddress
	if fromAddress == "" {
		// Pure price quotes do not need a real sender.
		fromAddress = "0x0000000000000000000000000000000000000001"
	}
	vals.Set("fromAddress", fromAddress)
	vals.Set("slippage", strconv.FormatFloat(float64(c.opts.SlippageBps)/10_000, 'f', 6, 64))
	if c.opts.Integrator != "" {
		vals.Set("integrator", c.opts.Integrator)
	}

	endpoint := c.baseURL + quotePath + "?" + vals.Encode()
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	hReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(hReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("lifi quote returned status %d", resp.StatusCode)
	}

	var parsed quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode lifi quote: %w", err)
	}
	if parsed.Estimate.ToAmount == "" {
		return nil, errors.New("lifi quote missing output amount")
	}

	gasUSD := sumAmountUSD(parsed.Estimate.GasCosts)
	feeUSD := sumAmountUSD(parsed.Estimate.FeeCosts)

	value, err := hexOrDecimalValue(parsed.TransactionRequest.Value)
	if err != nil {
		return nil, fmt.Errorf("parse transaction value: %w", err)
	}

	steps := len(parsed.IncludedSteps)
	if steps == 0 {
		steps = 1
	}

	tool := parsed.ToolDetails.Name
	if tool == "" {
		tool = parsed.Tool
	}

	quote := &Quote{
		Tool:             tool,
		FromChainID:      req.FromChainID,
		ToChainID:        req.ToChainID,
		FromToken:        req.FromToken,
		ToToken:          req.ToToken,
		FromAmount:       amount.String(),
		ToAmount:         parsed.Estimate.ToAmount,
		GasCostUSD:       gasUSD,
		FeeCostUSD:       feeUSD,
		EstimatedSeconds: parsed.Estimate.ExecutionDuration,
		Steps:            steps,
		Tx: TxRequest{
			To:      parsed.TransactionRequest.To,
			Data:    parsed.TransactionRequest.Data,
			Value:   value,
			ChainID: parsed.TransactionRequest.ChainID,
		},
	}

	c.logger.Debug().
		Int64("from_chain", req.FromChainID).
		Int64("to_chain", req.ToChainID).
		Str("tool", tool).
		Str("cost_usd", quote.CostUSD().StringFixed(2)).
		Msg("route quoted")
	return quote, nil
}

func sumAmountUSD(items []struct {
	AmountUSD string `json:"amountUSD"`
}) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if v, err := decimal.NewFromString(item.AmountUSD); err == nil {
			total = total.Add(v)
		}
	}
	return total
}

func hexOrDecimalValue(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return big.NewInt(0), nil
	}
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		n, ok := new(big.Int).SetString(clean[2:], 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex value %q", v)
		}
		return n, nil
	}
	n, ok := new(big.Int).SetString(clean, 10)
	if !ok {
		return nil, fmt.Errorf("invalid value %q", v)
	}
	return n, nil
}

var _ Quoter = (*Client)(nil)
