// Package strategy computes per-market quotes and simulates fills in paper
// mode. ComputeQuote is a pure function over a candidate, the current net
// position, and the quoting parameters, which keeps the price logic directly
// testable without any venue or store plumbing.
package strategy

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"polymarket-quoter/pkg/types"
)

// Spread bounds in basis points.
const (
	minSpreadBps = 5
	maxSpreadBps = 60
)

// Near-certain edges: beyond these mids one outcome is locked in enough that
// quoting the losing side is pure adverse selection.
const (
	nearYesMid = 0.92
	nearNoMid  = 0.08
)

// skewThresholdFraction of the position cap at which quotes start leaning
// against inventory.
const skewThresholdFraction = 0.6

// Params are the quoting inputs that come from config (possibly overridden
// per run_cycle request).
type Params struct {
	OrderSize     float64
	BaseSpreadBps int
	MaxPosition   float64
}

// Quote is the per-market target the reconciler (or the paper simulator)
// works toward. A paused side places nothing and cancels what rests.
type Quote struct {
	TokenID  string
	NegRisk  bool
	TickSize float64

	BuyPrice  float64
	SellPrice float64
	BuySize   float64
	SellSize  float64

	BuyPaused  bool
	SellPaused bool

	SpreadBps int    // final clamped spread
	SkewLabel string // "", "LONG heavy", "SHORT heavy"
}

// ComputeQuote derives the target quote for one market. It returns an error
// with the skip reason when the market cannot be quoted this cycle (crossed
// prices after tick alignment).
func ComputeQuote(c types.Candidate, position float64, p Params) (Quote, error) {
	q := Quote{
		TokenID:  c.TokenID,
		NegRisk:  c.NegRisk,
		TickSize: c.TickSize,
		BuySize:  p.OrderSize,
		SellSize: p.OrderSize,
	}

	q.SpreadBps = dynamicSpread(p.BaseSpreadBps, c.SponsorPool, c.Range1h)

	// Near-certain override: tighten to the floor and stop quoting the side
	// that accumulates the near-worthless outcome.
	if c.Mid > nearYesMid {
		if q.SpreadBps > minSpreadBps {
			q.SpreadBps = minSpreadBps
		}
		q.SellPaused = true
	} else if c.Mid < nearNoMid {
		if q.SpreadBps > minSpreadBps {
			q.SpreadBps = minSpreadBps
		}
		q.BuyPaused = true
	}

	s := float64(q.SpreadBps) / 10000
	q.BuyPrice = c.Mid - s
	q.SellPrice = c.Mid + s

	applySkew(&q, position, s, p.MaxPosition)

	q.BuyPrice = alignPrice(q.BuyPrice, c.TickSize, false)
	q.SellPrice = alignPrice(q.SellPrice, c.TickSize, true)

	if !q.BuyPaused && !q.SellPaused && q.BuyPrice >= q.SellPrice {
		return Quote{}, fmt.Errorf("crossed after tick alignment: buy %.4f >= sell %.4f", q.BuyPrice, q.SellPrice)
	}
	return q, nil
}

// dynamicSpread applies the sponsor and volatility multipliers to the base
// spread, rounds to whole basis points, and clamps to [5, 60]. Sponsored
// markets quote tighter (the pool compensates for the thinner edge);
// volatile books quote wider.
func dynamicSpread(baseBps int, sponsorPool, range1h float64) int {
	spread := float64(baseBps)

	switch {
	case sponsorPool > 2000:
		spread *= 0.5
	case sponsorPool > 1000:
		spread *= 0.7
	case sponsorPool > 500:
		spread *= 0.85
	}

	switch {
	case range1h > 4:
		spread *= 1.4
	case range1h > 2:
		spread *= 1.2
	}

	bps := int(math.Round(spread))
	if bps < minSpreadBps {
		bps = minSpreadBps
	}
	if bps > maxSpreadBps {
		bps = maxSpreadBps
	}
	return bps
}

// applySkew leans the quote against inventory. Beyond 60% of the cap both
// prices shift away from the heavy side and the accumulating side's size is
// halved (floor 2); beyond the cap itself the accumulating side pauses
// outright.
func applySkew(q *Quote, position, s, maxPosition float64) {
	threshold := skewThresholdFraction * maxPosition

	switch {
	case position > threshold:
		q.BuyPrice -= 0.5 * s
		q.SellPrice -= 0.3 * s
		q.BuySize = math.Max(2, math.Round(q.BuySize*0.5))
		q.SkewLabel = "LONG heavy"
	case position < -threshold:
		q.SellPrice += 0.5 * s
		q.BuyPrice += 0.3 * s
		q.SellSize = math.Max(2, math.Round(q.SellSize*0.5))
		q.SkewLabel = "SHORT heavy"
	}

	if position > maxPosition {
		q.BuyPaused = true
	}
	if position < -maxPosition {
		q.SellPaused = true
	}
}

// alignPrice snaps a price onto the tick grid (floor for buys, ceil for
// sells) and clamps it to [tick, 1−tick]. Decimal arithmetic avoids the
// float drift that would otherwise push 0.40/0.01 to 39.999….
func alignPrice(price, tick float64, ceil bool) float64 {
	t := decimal.NewFromFloat(tick)
	steps := decimal.NewFromFloat(price).Div(t)
	if ceil {
		steps = steps.Ceil()
	} else {
		steps = steps.Floor()
	}

	aligned := steps.Mul(t)
	lo, hi := t, decimal.NewFromInt(1).Sub(t)
	if aligned.LessThan(lo) {
		aligned = lo
	}
	if aligned.GreaterThan(hi) {
		aligned = hi
	}

	out, _ := aligned.Round(int32(types.TickDecimals(tick))).Float64()
	return out
}
