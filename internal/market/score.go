package market

import (
	"math"
	"sort"

	"polymarket-quoter/internal/config"
	"polymarket-quoter/pkg/types"
)

// Score caps and weights. Volume and depth are capped so no single signal
// dominates; the tier-1 multiplier is applied last so tier-1 markets rank
// above otherwise-identical tier-2 ones.
const (
	volumeCap = 500_000.0
	depthCap  = 50_000.0

	volumeWeight  = 0.03
	sponsorWeight = 30.0
	depthWeight   = 0.8

	tier1Multiplier = 4.0
)

// Book-quality penalties.
const (
	coinFlipPenalty    = -2000.0 // |mid − 0.5| < 0.005: pure noise, no edge
	wideBookPenalty    = -3000.0 // spread/mid > 10%
	wideBookSoftPenalty = -1000.0 // spread/mid > 5%
	shallowBookPenalty = -1500.0 // depth below the configured floor
)

// Selection summarizes one selection pass for the cycle report.
type Selection struct {
	Candidates       []types.Candidate
	TotalMarkets     int     // candidates scored before the top-K cut
	SponsoredMarkets int     // scored candidates with a positive sponsor pool
	AvgSponsor       float64 // mean sponsor pool across scored candidates
	ByCategory       map[string]int
}

// Select scores all candidates, sorts descending, and keeps the top
// max_markets. The candidate's Score field arrives holding the category
// bonus from classification; Select adds the volume/sponsor/depth terms and
// penalties, then applies the tier-1 multiplier.
func Select(cands []types.Candidate, cfg config.SelectionConfig) Selection {
	sel := Selection{
		TotalMarkets: len(cands),
		ByCategory:   make(map[string]int),
	}

	var sponsorSum float64
	for i := range cands {
		cands[i].Score = score(cands[i], cfg.MinLiquidityDepth)
		sel.ByCategory[cands[i].Category]++
		if cands[i].SponsorPool > 0 {
			sel.SponsoredMarkets++
		}
		sponsorSum += cands[i].SponsorPool
	}
	if len(cands) > 0 {
		sel.AvgSponsor = sponsorSum / float64(len(cands))
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Score > cands[j].Score
	})

	if len(cands) > cfg.MaxMarkets {
		cands = cands[:cfg.MaxMarkets]
	}
	sel.Candidates = cands
	return sel
}

// score computes the composite selection score for one candidate.
func score(c types.Candidate, minDepth float64) float64 {
	cappedVol := math.Min(c.Volume24h, volumeCap)
	cappedDepth := math.Min(c.LiquidityDepth, depthCap)

	base := volumeWeight*cappedVol + sponsorWeight*c.SponsorPool + depthWeight*cappedDepth
	base += c.Score // category bonus carried from classification
	base += penalties(c, minDepth)

	if c.Tier1 {
		return base * tier1Multiplier
	}
	return base
}

// penalties returns the sum of book-quality penalties for a candidate.
func penalties(c types.Candidate, minDepth float64) float64 {
	var p float64

	if math.Abs(c.Mid-0.5) < 0.005 {
		p += coinFlipPenalty
	}

	// Range1h is the spread as a percentage of mid.
	if c.Range1h > 10 {
		p += wideBookPenalty
	} else if c.Range1h > 5 {
		p += wideBookSoftPenalty
	}

	if c.LiquidityDepth < minDepth {
		p += shallowBookPenalty
	}

	return p
}
