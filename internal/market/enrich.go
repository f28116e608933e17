package market

import (
	"context"
	"log/slog"
	"strconv"

	"polymarket-quoter/internal/config"
	"polymarket-quoter/pkg/types"
)

// minEnrichDepth is the hard floor on top-of-book notional during
// enrichment. Markets below it can't absorb even one quote refresh.
const minEnrichDepth = 80.0

// BookSource is the one venue capability the enricher needs. The exchange
// client satisfies it; tests use a fake.
type BookSource interface {
	GetOrderBook(ctx context.Context, tokenID string) (*types.BookResponse, error)
}

// Enricher turns pre-filtered catalog rows into fully-populated candidates:
// live book mid/depth/tick, sponsor pool, category. Lookups run sequentially
// per market to keep memory bounded and the log linear.
type Enricher struct {
	books   BookSource
	rewards *RewardsClient
	cfg     config.SelectionConfig
	logger  *slog.Logger
}

// NewEnricher creates an enricher.
func NewEnricher(books BookSource, rewards *RewardsClient, cfg config.SelectionConfig, logger *slog.Logger) *Enricher {
	return &Enricher{
		books:   books,
		rewards: rewards,
		cfg:     cfg,
		logger:  logger.With("component", "enricher"),
	}
}

// Enrich processes rows sequentially and returns the candidates that survive
// the hard skips: parseable token ids, a usable mid, depth ≥ 80, sponsor
// pool ≥ the configured floor.
func (e *Enricher) Enrich(ctx context.Context, rows []GammaMarket) []types.Candidate {
	out := make([]types.Candidate, 0, len(rows))
	parseFailures := 0

	for _, row := range rows {
		cand, err := seedCandidate(row)
		if err != nil {
			parseFailures++
			e.logger.Warn("skipping malformed catalog row", "error", err)
			continue
		}

		book, err := e.books.GetOrderBook(ctx, cand.TokenID)
		if err != nil {
			e.logger.Warn("book fetch failed", "market", cand.Title, "error", err)
			continue
		}
		applyBook(&cand, row, book)

		if cand.Mid == 0 || cand.MidSource == types.MidEmpty {
			e.logger.Info("skip: empty book", "market", cand.Title)
			continue
		}
		if cand.LiquidityDepth < minEnrichDepth {
			e.logger.Info("skip: shallow book", "market", cand.Title, "depth", cand.LiquidityDepth)
			continue
		}

		cand.SponsorPool, cand.SponsorMethod = e.rewards.Lookup(ctx, row, cand.TokenID)
		if cand.SponsorPool < e.cfg.MinSponsorPool {
			e.logger.Info("skip: sponsor pool below floor",
				"market", cand.Title, "pool", cand.SponsorPool, "floor", e.cfg.MinSponsorPool)
			continue
		}

		cls := Classify(cand.Title, cand.SponsorPool)
		cand.Category = cls.Category
		cand.Tier1 = cls.Tier1
		cand.Score = cls.Bonus // selector adds the volume/sponsor/depth terms

		out = append(out, cand)
	}

	if parseFailures > 0 {
		e.logger.Warn("catalog rows skipped as malformed", "count", parseFailures)
	}
	return out
}

// applyBook fills the candidate's book-derived fields: best levels, mid with
// source tag, normalized spread, top-of-book depth, tick size.
//
// Mid derivation precedence: both sides ⇒ midpoint; else last trade; else
// the lone bid; else the lone ask; else empty.
func applyBook(cand *types.Candidate, row GammaMarket, book *types.BookResponse) {
	if len(book.Bids) > 0 {
		cand.BestBid = parseLevel(book.Bids[0].Price)
		cand.BestBidSize = parseLevel(book.Bids[0].Size)
	}
	if len(book.Asks) > 0 {
		cand.BestAsk = parseLevel(book.Asks[0].Price)
		cand.BestAskSize = parseLevel(book.Asks[0].Size)
	}

	switch {
	case cand.BestBid > 0 && cand.BestAsk > 0:
		cand.Mid = (cand.BestBid + cand.BestAsk) / 2
		cand.MidSource = types.MidOrderbook
	case row.LastTradePrice > 0:
		cand.Mid = row.LastTradePrice
		cand.MidSource = types.MidLastTrade
	case cand.BestBid > 0:
		cand.Mid = cand.BestBid
		cand.MidSource = types.MidBidOnly
	case cand.BestAsk > 0:
		cand.Mid = cand.BestAsk
		cand.MidSource = types.MidAskOnly
	default:
		cand.Mid = 0
		cand.MidSource = types.MidEmpty
	}

	// Spread as a percentage of mid. Only meaningful with a two-sided book.
	if cand.BestBid > 0 && cand.BestAsk > 0 && cand.Mid > 0 {
		cand.Range1h = (cand.BestAsk - cand.BestBid) / cand.Mid * 100
	}

	cand.LiquidityDepth = cand.BestBid*cand.BestBidSize + cand.BestAsk*cand.BestAskSize

	cand.TickSize = parseLevel(book.TickSize)
	if cand.TickSize == 0 {
		cand.TickSize = 0.01
	}
}

// parseLevel parses a price or size string from the book. The API serves
// them as strings to preserve precision; an unparseable value reads as 0.
func parseLevel(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
