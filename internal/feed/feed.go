package feed

import (
	"context"
	"time"

	"github.com/Ashar20/lifi-rotator/internal/market"
)

// OpportunitySource lists candidate destinations for capital. A failing
// fetch yields an empty list, never an error: the planner degrades to "no
// opportunities this cycle" and the next tick retries.
type OpportunitySource interface {
	Fetch(ctx context.Context) []market.Opportunity
}

// Options tune an opportunity source.
type Options struct {
	BaseURL string
	// MinTVLUSD excludes illiquid listings.
	MinTVLUSD float64
	// MaxPlausibleAPY excludes fabricated-looking yields, in percent.
	MaxPlausibleAPY float64
	Timeout         time.Duration
	UserAgent       string
}
