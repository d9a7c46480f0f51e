package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/Ashar20/lifi-rotator/internal/chain"
	"github.com/Ashar20/lifi-rotator/internal/monitor"
	"github.com/Ashar20/lifi-rotator/internal/planner"
)

// Plan runs one scan-and-plan cycle and prints the ranked candidates
// without executing anything.
func (a *App) Plan(ctx context.Context, opts PlanOptions) error {
	mode := monitor.Mode(a.Config.Monitor.Mode)
	if opts.Mode != "" {
		mode = monitor.Mode(opts.Mode)
	}
	cfg := monitor.FromAppConfig(a.Config.Monitor)
	cfg.Mode = mode
	if err := cfg.Validate(); err != nil {
		return err
	}

	chains, err := chain.Restrict(chain.Universe(cfg.Testnet), cfg.SourceChainID)
	if err != nil {
		return err
	}

	sc := a.newScanner()
	positions, err := sc.Scan(ctx, a.Config.Wallet.Address, chains)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		fmt.Fprintln(os.Stdout, "no positions found")
		return nil
	}

	feeds := a.newFeeds()
	source := feeds.Rotate
	if mode == monitor.ModeArbitrage {
		source = feeds.Arbitrage
	}
	opportunities := source.Fetch(ctx)
	if len(opportunities) == 0 {
		fmt.Fprintln(os.Stdout, "no opportunities this cycle")
		return nil
	}

	calc := a.newCalculator()
	plans, err := calc.Compute(ctx, cfg.Mode.Kind(), positions, opportunities, plannerConfigFrom(cfg, a.Config.Wallet.Address))
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		fmt.Fprintln(os.Stdout, "no plans above threshold")
		return nil
	}

	limit := opts.Limit
	if limit <= 0 || limit > len(plans) {
		limit = len(plans)
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Kind\tToken\tFrom\tTo\tImprove%\tGain$\tGas$\tNet$\tBreakEven(d)\tRoute")
	for _, plan := range plans[:limit] {
		route := "same-chain"
		if plan.CrossChain() {
			route = fmt.Sprintf("%s (%d steps, ~%ds)", plan.Quote.Tool, plan.RouteSteps(), plan.EstimatedSeconds())
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			plan.Kind,
			plan.Position.TokenSymbol,
			plan.Position.ChainID,
			plan.Opportunity.ChainID,
			plan.ImprovementPct.StringFixed(2),
			plan.EstimatedGainUSD.StringFixed(2),
			plan.GasCostUSD.StringFixed(2),
			plan.NetBenefitUSD.StringFixed(2),
			plan.BreakEvenDays.StringFixed(1),
			route,
		)
	}
	return writer.Flush()
}

func plannerConfigFrom(cfg monitor.Config, fromAddress string) planner.Config {
	return planner.Config{
		MinAPYImprovement: cfg.MinAPYImprovement,
		MinProfitPercent:  cfg.MinProfitPercent,
		MaxTradeAmount:    cfg.MaxTradeAmount,
		FromAddress:       fromAddress,
	}
}
