package market

import (
	"context"
	"fmt"
	"testing"

	"polymarket-quoter/internal/config"
	"polymarket-quoter/pkg/types"
)

// fakeBooks serves canned book responses keyed by token ID.
type fakeBooks struct {
	books map[string]*types.BookResponse
}

func (f *fakeBooks) GetOrderBook(_ context.Context, tokenID string) (*types.BookResponse, error) {
	book, ok := f.books[tokenID]
	if !ok {
		return nil, fmt.Errorf("no book for %s", tokenID)
	}
	return book, nil
}

func book(bid, bidSize, ask, askSize, tick string) *types.BookResponse {
	b := &types.BookResponse{TickSize: tick}
	if bid != "" {
		b.Bids = []types.PriceLevel{{Price: bid, Size: bidSize}}
	}
	if ask != "" {
		b.Asks = []types.PriceLevel{{Price: ask, Size: askSize}}
	}
	return b
}

func newTestEnricher(t *testing.T, books map[string]*types.BookResponse, cfg config.SelectionConfig) *Enricher {
	t.Helper()
	srv := rewardsServer(t, nil, nil, nil)
	t.Cleanup(srv.Close)
	rc := NewRewardsClient(srv.URL, testLogger())
	return NewEnricher(&fakeBooks{books: books}, rc, cfg, testLogger())
}

func TestApplyBookMidDerivation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		book       *types.BookResponse
		lastTrade  float64
		wantMid    float64
		wantSource types.MidSource
	}{
		{"two-sided book", book("0.40", "100", "0.42", "100", "0.01"), 0.55, 0.41, types.MidOrderbook},
		{"empty book with last trade", book("", "", "", "", "0.01"), 0.55, 0.55, types.MidLastTrade},
		{"bid only, no last trade", book("0.40", "100", "", "", "0.01"), 0, 0.40, types.MidBidOnly},
		{"ask only, no last trade", book("", "", "0.42", "100", "0.01"), 0, 0.42, types.MidAskOnly},
		{"nothing at all", book("", "", "", "", "0.01"), 0, 0, types.MidEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cand := types.Candidate{}
			row := GammaMarket{LastTradePrice: tt.lastTrade}
			applyBook(&cand, row, tt.book)
			if cand.Mid != tt.wantMid {
				t.Errorf("Mid = %v, want %v", cand.Mid, tt.wantMid)
			}
			if cand.MidSource != tt.wantSource {
				t.Errorf("MidSource = %q, want %q", cand.MidSource, tt.wantSource)
			}
		})
	}
}

func TestApplyBookDepthAndRange(t *testing.T) {
	t.Parallel()

	cand := types.Candidate{}
	applyBook(&cand, GammaMarket{}, book("0.40", "100", "0.42", "50", "0.01"))

	// depth = 0.40·100 + 0.42·50 = 61
	if cand.LiquidityDepth != 61 {
		t.Errorf("LiquidityDepth = %v, want 61", cand.LiquidityDepth)
	}
	// range = (0.42−0.40)/0.41 · 100 ≈ 4.878%
	if cand.Range1h < 4.8 || cand.Range1h > 4.95 {
		t.Errorf("Range1h = %v, want ≈4.88", cand.Range1h)
	}
	if cand.TickSize != 0.01 {
		t.Errorf("TickSize = %v, want 0.01", cand.TickSize)
	}
}

func TestApplyBookTickFallback(t *testing.T) {
	t.Parallel()

	cand := types.Candidate{}
	applyBook(&cand, GammaMarket{}, book("0.40", "100", "0.42", "100", ""))
	if cand.TickSize != 0.01 {
		t.Errorf("TickSize = %v, want fallback 0.01", cand.TickSize)
	}
}

func TestEnrichHardSkips(t *testing.T) {
	t.Parallel()

	books := map[string]*types.BookResponse{
		"tok-good":    book("0.40", "500", "0.42", "500", "0.01"),
		"tok-empty":   book("", "", "", "", "0.01"),
		"tok-shallow": book("0.40", "10", "0.42", "10", "0.01"), // depth 8.2 < 80
	}
	e := newTestEnricher(t, books, config.SelectionConfig{MinLiquidityDepth: 100})

	rows := []GammaMarket{
		tradeableRow("good", 5000),
		tradeableRow("empty", 5000),
		tradeableRow("shallow", 5000),
		tradeableRow("nobookfetch", 5000), // book fetch errors
	}

	out := e.Enrich(context.Background(), rows)
	if len(out) != 1 {
		t.Fatalf("got %d candidates, want 1", len(out))
	}
	if out[0].TokenID != "tok-good" {
		t.Errorf("survivor = %s, want tok-good", out[0].TokenID)
	}
	if out[0].MidSource != types.MidOrderbook {
		t.Errorf("MidSource = %q, want orderbook", out[0].MidSource)
	}
}

func TestEnrichSponsorFloor(t *testing.T) {
	t.Parallel()

	books := map[string]*types.BookResponse{
		"tok-a": book("0.40", "500", "0.42", "500", "0.01"),
	}
	e := newTestEnricher(t, books, config.SelectionConfig{MinSponsorPool: 100})

	// No reward data anywhere and title matches no force keyword: pool 0 < 100.
	out := e.Enrich(context.Background(), []GammaMarket{tradeableRow("a", 5000)})
	if len(out) != 0 {
		t.Fatalf("got %d candidates, want 0 (sponsor floor)", len(out))
	}
}

func TestEnrichSkipsMalformedRows(t *testing.T) {
	t.Parallel()

	books := map[string]*types.BookResponse{
		"tok-a": book("0.40", "500", "0.42", "500", "0.01"),
	}
	e := newTestEnricher(t, books, config.SelectionConfig{})

	bad := tradeableRow("bad", 5000)
	bad.ClobTokenIds = "{{nope"

	out := e.Enrich(context.Background(), []GammaMarket{bad, tradeableRow("a", 5000)})
	if len(out) != 1 || out[0].TokenID != "tok-a" {
		t.Fatalf("got %+v, want only tok-a", out)
	}
}
