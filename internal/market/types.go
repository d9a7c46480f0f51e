// Package market holds the shared domain types produced by the scanner and
// the opportunity feed and consumed by the planner.
package market

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// RiskTier is a coarse risk classification for an opportunity venue.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Position is a wallet's non-zero balance of one token on one chain.
// Positions are created fresh on every scan and never mutated; the next
// scan's results supersede them.
type Position struct {
	ChainID      int64
	ChainName    string
	TokenSymbol  string
	TokenAddress string
	// RawBalance is the balance in the token's smallest unit.
	RawBalance *big.Int
	Balance    decimal.Decimal
	ValueUSD   decimal.Decimal
	// CurrentAPY is the position's yield where known, zero otherwise.
	CurrentAPY decimal.Decimal
}

// Opportunity is a candidate destination for capital: a yield venue, or for
// arbitrage a price point on another chain. Immutable per fetch cycle.
type Opportunity struct {
	ChainID     int64
	ChainName   string
	Protocol    string
	TokenSymbol string
	APY         decimal.Decimal
	// PriceUSD and SpreadPct are populated for arbitrage opportunities; APY
	// is populated for yield listings. The two kinds never mix in one feed.
	PriceUSD  decimal.Decimal
	SpreadPct decimal.Decimal
	TVLUSD    decimal.Decimal
	Risk      RiskTier
	FetchedAt time.Time
}

// Yield reports whether the opportunity is a yield listing rather than an
// arbitrage price point.
func (o Opportunity) Yield() bool {
	return !o.APY.IsZero() || o.PriceUSD.IsZero()
}
