package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Ashar20/lifi-rotator/internal/chain"
	"github.com/Ashar20/lifi-rotator/internal/market"
)

const poolsPath = "/pools"

// Yields fetches yield listings from a DeFiLlama-compatible pools API and
// normalizes them into Opportunities for the configured chain/token universe.
type Yields struct {
	opts    Options
	chains  []chain.Chain
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewYields constructs a yield opportunity source.
func NewYields(opts Options, chains []chain.Chain, logger zerolog.Logger) *Yields {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://yields.llama.fi"
	}
	return &Yields{
		opts:    opts,
		chains:  chains,
		logger:  logger.With().Str("component", "yield_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type poolsEnvelope struct {
	Status string      `json:"status"`
	Data   []poolEntry `json:"data"`
}

type poolEntry struct {
	Pool       string   `json:"pool"`
	Chain      string   `json:"chain"`
	Project    string   `json:"project"`
	Symbol     string   `json:"symbol"`
	APY        *float64 `json:"apy"`
	APYBase    *float64 `json:"apyBase"`
	TVLUSD     *float64 `json:"tvlUsd"`
	ILRisk     string   `json:"ilRisk"`
	Stablecoin bool     `json:"stablecoin"`
	Exposure   string   `json:"exposure"`
}

// Fetch returns listings filtered to the universe, sanity-checked, and
// sorted descending by APY.
func (y *Yields) Fetch(ctx context.Context) []market.Opportunity {
	pools, err := y.getPools(ctx)
	if err != nil {
		y.logger.Warn().Err(err).Msg("yield fetch failed; returning no opportunities")
		return nil
	}

	now := time.Now().UTC()
	out := make([]market.Opportunity, 0, 32)
	for _, p := range pools {
		c, ok := y.chainByName(p.Chain)
		if !ok {
			continue
		}
		symbol, ok := y.trackedSymbol(c, p.Symbol)
		if !ok {
			continue
		}

		apy := numOrZero(p.APY)
		if apy <= 0 {
			apy = numOrZero(p.APYBase)
		}
		tvl := numOrZero(p.TVLUSD)
		if !y.plausible(apy, tvl) {
			continue
		}

		out = append(out, market.Opportunity{
			ChainID:     c.ID,
			ChainName:   c.Name,
			Protocol:    p.Project,
			TokenSymbol: symbol,
			APY:         decimal.NewFromFloat(apy),
			TVLUSD:      decimal.NewFromFloat(tvl),
			Risk:        classifyRisk(p, tvl),
			FetchedAt:   now,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].APY.Equal(out[j].APY) {
			return out[i].APY.GreaterThan(out[j].APY)
		}
		return out[i].TVLUSD.GreaterThan(out[j].TVLUSD)
	})
	return out
}

func (y *Yields) getPools(ctx context.Context) ([]poolEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.baseURL+poolsPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(y.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pools endpoint returned status %d", resp.StatusCode)
	}

	var env poolsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode pools response: %w", err)
	}
	return env.Data, nil
}

// plausible guards the execution logic against fabricated or illiquid
// listings.
func (y *Yields) plausible(apy, tvl float64) bool {
	if apy <= 0 {
		return false
	}
	if y.opts.MaxPlausibleAPY > 0 && apy > y.opts.MaxPlausibleAPY {
		return false
	}
	if tvl < y.opts.MinTVLUSD {
		return false
	}
	return true
}

func (y *Yields) chainByName(name string) (chain.Chain, bool) {
	for _, c := range y.chains {
		if strings.EqualFold(c.Name, name) || strings.EqualFold(c.Slug, name) {
			return c, true
		}
	}
	return chain.Chain{}, false
}

// trackedSymbol matches a pool symbol (possibly a composite like
// "USDC-USDT") against the chain's tracked tokens. Only single-asset pools
// are accepted.
func (y *Yields) trackedSymbol(c chain.Chain, poolSymbol string) (string, bool) {
	symbol := strings.ToUpper(strings.TrimSpace(poolSymbol))
	if strings.ContainsAny(symbol, "-/") {
		return "", false
	}
	for _, t := range c.Tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t.Symbol, true
		}
	}
	return "", false
}

func classifyRisk(p poolEntry, tvl float64) market.RiskTier {
	ilRisk := strings.EqualFold(strings.TrimSpace(p.ILRisk), "yes")
	multi := strings.EqualFold(strings.TrimSpace(p.Exposure), "multi")
	switch {
	case ilRisk || tvl < 1_000_000:
		return market.RiskHigh
	case multi || !p.Stablecoin:
		return market.RiskMedium
	default:
		return market.RiskLow
	}
}

func numOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

var _ OpportunitySource = (*Yields)(nil)
