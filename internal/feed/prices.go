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

const currentPricesPath = "/prices/current/"

var dec100 = decimal.NewFromInt(100)

// Prices fetches live per-chain token prices from a DeFiLlama-compatible
// coins API and turns cross-chain price differences into arbitrage
// Opportunities.
type Prices struct {
	opts    Options
	chains  []chain.Chain
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewPrices constructs an arbitrage opportunity source.
func NewPrices(opts Options, chains []chain.Chain, logger zerolog.Logger) *Prices {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://coins.llama.fi"
	}
	return &Prices{
		opts:    opts,
		chains:  chains,
		logger:  logger.With().Str("component", "price_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type coinsResponse struct {
	Coins map[string]struct {
		Price      float64 `json:"price"`
		Symbol     string  `json:"symbol"`
		Confidence float64 `json:"confidence"`
	} `json:"coins"`
}

// Fetch returns one Opportunity per chain/token price point. SpreadPct is
// the premium over the cheapest listing of the same token; listings are
// sorted descending by that spread.
func (p *Prices) Fetch(ctx context.Context) []market.Opportunity {
	keys, lookup := p.coinKeys()
	if len(keys) == 0 {
		return nil
	}

	resp, err := p.getPrices(ctx, keys)
	if err != nil {
		p.logger.Warn().Err(err).Msg("price fetch failed; returning no opportunities")
		return nil
	}

	now := time.Now().UTC()
	out := make([]market.Opportunity, 0, len(keys))
	floors := map[string]decimal.Decimal{}
	for key, coin := range resp.Coins {
		ref, ok := lookup[strings.ToLower(key)]
		if !ok || coin.Price <= 0 {
			continue
		}
		// Low-confidence prints are as dangerous as fabricated yields.
		if coin.Confidence > 0 && coin.Confidence < 0.9 {
			continue
		}
		price := decimal.NewFromFloat(coin.Price)
		out = append(out, market.Opportunity{
			ChainID:     ref.chainID,
			ChainName:   ref.chainName,
			Protocol:    "spot",
			TokenSymbol: ref.symbol,
			PriceUSD:    price,
			Risk:        market.RiskMedium,
			FetchedAt:   now,
		})
		if floor, ok := floors[ref.symbol]; !ok || price.LessThan(floor) {
			floors[ref.symbol] = price
		}
	}

	for i := range out {
		floor := floors[out[i].TokenSymbol]
		if floor.IsZero() {
			continue
		}
		out[i].SpreadPct = out[i].PriceUSD.Sub(floor).Div(floor).Mul(dec100)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].SpreadPct.GreaterThan(out[j].SpreadPct)
	})
	return out
}

type coinRef struct {
	chainID   int64
	chainName string
	symbol    string
}

func (p *Prices) coinKeys() ([]string, map[string]coinRef) {
	keys := make([]string, 0)
	lookup := map[string]coinRef{}
	for _, c := range p.chains {
		for _, t := range c.Tokens {
			if t.Stable {
				continue
			}
			key := fmt.Sprintf("%s:%s", c.Slug, t.Address)
			keys = append(keys, key)
			lookup[strings.ToLower(key)] = coinRef{chainID: c.ID, chainName: c.Name, symbol: t.Symbol}
		}
	}
	return keys, lookup
}

func (p *Prices) getPrices(ctx context.Context, keys []string) (*coinsResponse, error) {
	url := p.baseURL + currentPricesPath + strings.Join(keys, ",")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(p.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("prices endpoint returned status %d", resp.StatusCode)
	}

	var parsed coinsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode prices response: %w", err)
	}
	return &parsed, nil
}

var _ OpportunitySource = (*Prices)(nil)
