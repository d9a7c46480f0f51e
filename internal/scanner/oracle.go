package scanner

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	errInvalidWallet     = errors.New("scanner: wallet is not a valid hex address")
	errNoEndpoints       = errors.New("scanner: no rpc endpoints configured")
	errBadBalanceOutput  = errors.New("scanner: unexpected balanceOf response")
	errBadDecimalsOutput = errors.New("scanner: unexpected decimals response")
)

// PriceOracle resolves a token symbol to a USD price.
type PriceOracle interface {
	PriceUSD(symbol string) (decimal.Decimal, bool)
}

// StaticOracle values stablecoins at $1 and carries a fixed price table for
// everything else. It is a coarse approximation: prices drift and this
// oracle never refreshes. Inject a live oracle where valuation accuracy
// matters.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticOracle builds the default price table.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{
		prices: map[string]decimal.Decimal{
			"USDC": decimal.NewFromInt(1),
			"USDT": decimal.NewFromInt(1),
			"DAI":  decimal.NewFromInt(1),
			"WETH": decimal.NewFromInt(3500),
			"ETH":  decimal.NewFromInt(3500),
		},
	}
}

// PriceUSD returns the configured price for the symbol.
func (o *StaticOracle) PriceUSD(symbol string) (decimal.Decimal, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[symbol]
	return price, ok
}

// SetPrice overrides or adds a price entry.
func (o *StaticOracle) SetPrice(symbol string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[symbol] = price
}

var _ PriceOracle = (*StaticOracle)(nil)
