// Package quotes maintains continuously refreshed swap quotes: a poll
// loop paced by quote expiry, and tiered price interpolation over the
// live trade amount.
package quotes

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quillwallet/quill/internal/chain"
)

// Direction of a swap relative to the base asset.
type Direction int

// Swap directions.
const (
	Buy Direction = iota
	Sell
)

// String returns the direction name.
func (d Direction) String() string {
	if d == Sell {
		return "sell"
	}
	return "buy"
}

// Pair is a swap pair: trade sizes and tier bounds are denominated in
// the base asset, prices in the counter asset.
type Pair struct {
	Base    chain.Asset
	Counter chain.Asset
}

// Tier is one rung of a tiered price: the rate that applies from
// MinAmount upward, until the next tier takes over.
type Tier struct {
	MinAmount decimal.Decimal
	Rate      decimal.Decimal
}

// Quote is the raw pricing response for a pair: price tiers, fees, a
// sample deposit address, and the expiry that drives the refresh
// cadence.
type Quote struct {
	Identifier           string
	Tiers                []Tier
	NetworkFee           decimal.Decimal
	StaticFee            decimal.Decimal
	SampleDepositAddress string
	ExpiresAt            time.Time
}

// PricedQuote combines a quote with the interpolated price for the
// current trade amount. Superseded by the next poll cycle, never
// mutated in place.
type PricedQuote struct {
	Identifier           string
	Price                decimal.Decimal
	NetworkFee           decimal.Decimal
	StaticFee            decimal.Decimal
	SampleDepositAddress string
	ExpirationDate       time.Time
}

// IsStale reports whether the quote has expired. Persistent fetch
// failures surface as staleness, not as an error from the engine.
func (q *PricedQuote) IsStale(now time.Time) bool {
	return now.After(q.ExpirationDate)
}

// QuoteService fetches the current quote for a direction and pair.
type QuoteService interface {
	Quote(ctx context.Context, direction Direction, pair Pair) (*Quote, error)
}

// InterpolateRate computes the price for a trade amount from the
// quote's tiers by piecewise-linear interpolation: amounts below the
// first tier take its rate, amounts beyond the last tier take the last
// rate, and amounts between two tiers interpolate linearly between
// their rates.
func InterpolateRate(tiers []Tier, amount decimal.Decimal) decimal.Decimal {
	if len(tiers) == 0 {
		return decimal.Zero
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinAmount.LessThan(sorted[j].MinAmount)
	})

	if amount.LessThanOrEqual(sorted[0].MinAmount) {
		return sorted[0].Rate
	}
	last := sorted[len(sorted)-1]
	if amount.GreaterThanOrEqual(last.MinAmount) {
		return last.Rate
	}

	for i := 0; i < len(sorted)-1; i++ {
		lo, hi := sorted[i], sorted[i+1]
		if amount.GreaterThanOrEqual(hi.MinAmount) {
			continue
		}
		span := hi.MinAmount.Sub(lo.MinAmount)
		if span.IsZero() {
			return hi.Rate
		}
		fraction := amount.Sub(lo.MinAmount).Div(span)
		return lo.Rate.Add(hi.Rate.Sub(lo.Rate).Mul(fraction))
	}
	return last.Rate
}

// NextRefreshDelay computes the delay before the next poll:
// expiresAt − now − threshold, clamped to [0, cap]. The clamp keeps the
// loop from sleeping past a server-side expiry extension and from
// busy-looping on an already expired quote.
func NextRefreshDelay(expiresAt, now time.Time, threshold, maxCap time.Duration) time.Duration {
	delay := expiresAt.Sub(now) - threshold
	if delay < 0 {
		return 0
	}
	if delay > maxCap {
		return maxCap
	}
	return delay
}
