// Package planner pairs positions with opportunities and produces ranked,
// cost/benefit-scored rotation plans.
package planner

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Ashar20/lifi-rotator/internal/lifi"
	"github.com/Ashar20/lifi-rotator/internal/market"
)

// Kind selects the planning variant.
type Kind string

const (
	KindRotation  Kind = "rotation"
	KindArbitrage Kind = "arbitrage"
)

var (
	dec100  = decimal.NewFromInt(100)
	decYear = decimal.NewFromInt(365)
)

// sameChainGasUSD is the flat gas estimate for a move that stays on one
// chain and therefore has no route quote to price it.
var sameChainGasUSD = decimal.NewFromFloat(0.5)

// Config holds the thresholds the calculator applies. Auto-execution gates
// (position value, gas ceiling, absolute profit floor) belong to the
// monitor, not here.
type Config struct {
	// MinAPYImprovement in percentage points (rotation).
	MinAPYImprovement decimal.Decimal
	// MinProfitPercent minimum price spread in percent (arbitrage).
	MinProfitPercent decimal.Decimal
	// MaxTradeAmount caps the quoted amount, in source-token base units.
	// Empty means uncapped.
	MaxTradeAmount string
	// FromAddress is the wallet the quote's transaction payload is built
	// for. The aggregator encodes it into the route calldata, so executable
	// quotes must carry the real sender.
	FromAddress string
}

// Plan binds one Position to one Opportunity with recomputed economics.
type Plan struct {
	Kind        Kind
	Position    market.Position
	Opportunity market.Opportunity
	// ImprovementPct is the APY delta in points (rotation) or the price
	// spread in percent (arbitrage).
	ImprovementPct decimal.Decimal
	// Quote is nil when no cross-chain hop is required.
	Quote      *lifi.Quote
	GasCostUSD decimal.Decimal
	// EstimatedGainUSD is annualized for rotation, absolute for arbitrage.
	EstimatedGainUSD decimal.Decimal
	NetBenefitUSD    decimal.Decimal
	// BreakEvenDays is how long the improved yield takes to recoup the
	// execution cost. Zero for arbitrage.
	BreakEvenDays decimal.Decimal
	ComputedAt    time.Time
}

// CrossChain reports whether executing the plan requires a route.
func (p *Plan) CrossChain() bool {
	return p.Quote != nil
}

// RouteSteps is the quoted step count, zero for same-chain plans.
func (p *Plan) RouteSteps() int {
	if p.Quote == nil {
		return 0
	}
	return p.Quote.Steps
}

// EstimatedSeconds is the quoted route duration, zero for same-chain plans.
func (p *Plan) EstimatedSeconds() int64 {
	if p.Quote == nil {
		return 0
	}
	return p.Quote.EstimatedSeconds
}

// Calculator computes candidate plans. It performs no I/O beyond the route
// quotes it delegates to the injected Quoter, so its selection is a pure
// function of its inputs.
type Calculator struct {
	quoter lifi.Quoter
	logger zerolog.Logger
}

// New constructs a Calculator.
func New(quoter lifi.Quoter, logger zerolog.Logger) *Calculator {
	return &Calculator{quoter: quoter, logger: logger.With().Str("component", "planner").Logger()}
}

// Compute enumerates Position×Opportunity pairings, prices the viable ones,
// and returns candidates sorted best-first. The head of the returned slice
// is the best plan. Candidates with net benefit <= 0 are never returned.
func (c *Calculator) Compute(ctx context.Context, kind Kind, positions []market.Position, opportunities []market.Opportunity, cfg Config) ([]Plan, error) {
	now := time.Now().UTC()
	plans := make([]Plan, 0)

	for _, pos := range positions {
		for _, opp := range opportunities {
			plan, ok := c.evaluate(ctx, kind, pos, opp, cfg, opportunities)
			if !ok {
				continue
			}
			plan.ComputedAt = now
			plans = append(plans, plan)
		}
	}

	sortPlans(plans)
	return plans, nil
}

func (c *Calculator) evaluate(ctx context.Context, kind Kind, pos market.Position, opp market.Opportunity, cfg Config, all []market.Opportunity) (Plan, bool) {
	if pos.TokenSymbol != opp.TokenSymbol {
		return Plan{}, false
	}
	// Arbitrage needs a price difference; one chain has none.
	if pos.ChainID == opp.ChainID && kind == KindArbitrage {
		return Plan{}, false
	}

	var improvement, gain decimal.Decimal
	switch kind {
	case KindRotation:
		// A pairing that does not improve on the position's current yield
		// is a no-op, whether or not the chain differs.
		improvement = opp.APY.Sub(pos.CurrentAPY)
		if improvement.LessThanOrEqual(decimal.Zero) {
			return Plan{}, false
		}
		if improvement.LessThan(cfg.MinAPYImprovement) {
			return Plan{}, false
		}
		gain = pos.ValueUSD.Mul(improvement).Div(dec100)
	case KindArbitrage:
		spread := c.spreadFor(pos, opp, all)
		if spread.LessThanOrEqual(decimal.Zero) || spread.LessThan(cfg.MinProfitPercent) {
			return Plan{}, false
		}
		improvement = spread
		gain = pos.ValueUSD.Mul(spread).Div(dec100)
	default:
		return Plan{}, false
	}

	var quote *lifi.Quote
	gasCost := sameChainGasUSD
	if pos.ChainID != opp.ChainID {
		// The aggregator resolves the destination token from its symbol;
		// the source side uses the exact address we hold.
		q, err := c.quoter.GetQuote(ctx, lifi.QuoteRequest{
			FromChainID: pos.ChainID,
			ToChainID:   opp.ChainID,
			FromToken:   pos.TokenAddress,
			ToToken:     opp.TokenSymbol,
			Amount:      c.tradeAmount(pos, cfg),
			FromAddress: cfg.FromAddress,
		})
		if err != nil {
			c.logger.Warn().Err(err).
				Int64("from_chain", pos.ChainID).
				Int64("to_chain", opp.ChainID).
				Str("token", pos.TokenSymbol).
				Msg("route quote failed; dropping candidate")
			return Plan{}, false
		}
		quote = q
		gasCost = q.CostUSD()
	}

	net := gain.Sub(gasCost)
	if net.LessThanOrEqual(decimal.Zero) {
		return Plan{}, false
	}

	plan := Plan{
		Kind:             kind,
		Position:         pos,
		Opportunity:      opp,
		ImprovementPct:   improvement,
		Quote:            quote,
		GasCostUSD:       gasCost,
		EstimatedGainUSD: gain,
		NetBenefitUSD:    net,
	}
	if kind == KindRotation && gain.IsPositive() {
		plan.BreakEvenDays = gasCost.Div(gain.Div(decYear))
	}
	return plan, true
}

// spreadFor recomputes the price spread between the position's chain and
// the opportunity's chain from the live price set. Never trusts a cached
// SpreadPct.
func (c *Calculator) spreadFor(pos market.Position, opp market.Opportunity, all []market.Opportunity) decimal.Decimal {
	if opp.PriceUSD.IsZero() {
		return decimal.Zero
	}
	var srcPrice decimal.Decimal
	for _, o := range all {
		if o.ChainID == pos.ChainID && o.TokenSymbol == pos.TokenSymbol && !o.PriceUSD.IsZero() {
			srcPrice = o.PriceUSD
			break
		}
	}
	if srcPrice.IsZero() {
		return decimal.Zero
	}
	return opp.PriceUSD.Sub(srcPrice).Div(srcPrice).Mul(dec100)
}

// tradeAmount is the position's raw balance clamped to the configured cap.
func (c *Calculator) tradeAmount(pos market.Position, cfg Config) string {
	amount := pos.RawBalance
	if cfg.MaxTradeAmount != "" {
		if limit, ok := new(big.Int).SetString(cfg.MaxTradeAmount, 10); ok && limit.Sign() > 0 && amount.Cmp(limit) > 0 {
			amount = limit
		}
	}
	return amount.String()
}

// sortPlans orders candidates descending by net benefit, breaking ties by
// fewer route steps, then lower estimated execution time.
func sortPlans(plans []Plan) {
	sort.SliceStable(plans, func(i, j int) bool {
		a, b := plans[i], plans[j]
		if !a.NetBenefitUSD.Equal(b.NetBenefitUSD) {
			return a.NetBenefitUSD.GreaterThan(b.NetBenefitUSD)
		}
		if a.RouteSteps() != b.RouteSteps() {
			return a.RouteSteps() < b.RouteSteps()
		}
		return a.EstimatedSeconds() < b.EstimatedSeconds()
	})
}

// Best returns the head of a sorted candidate list, or nil when there are
// no candidates.
func Best(plans []Plan) *Plan {
	if len(plans) == 0 {
		return nil
	}
	return &plans[0]
}
