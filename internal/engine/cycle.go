package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"polymarket-quoter/internal/config"
	"polymarket-quoter/internal/market"
	"polymarket-quoter/internal/store"
	"polymarket-quoter/internal/strategy"
	"polymarket-quoter/pkg/types"
)

// CycleReport is the summary one cycle returns, also serialized as the
// run_cycle response.
type CycleReport struct {
	Logs             []string `json:"logs"`
	OrdersPlaced     int      `json:"ordersPlaced"`
	CircuitBreaker   bool     `json:"circuitBreaker"`
	SponsoredMarkets int      `json:"sponsoredMarkets"`
	TotalMarkets     int      `json:"totalMarkets"`
	AvgSponsor       float64  `json:"avgSponsor"`
}

// cycleLog collects the cycle's human-readable lines for the run_cycle
// response and the dashboard stream, mirroring each to the logger.
type cycleLog struct {
	mu     sync.Mutex
	lines  []string
	logger *slog.Logger
	sink   func(string)
}

func (cl *cycleLog) Printf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)

	cl.mu.Lock()
	cl.lines = append(cl.lines, line)
	cl.mu.Unlock()

	cl.logger.Info(line)
	if cl.sink != nil {
		cl.sink(line)
	}
}

// RunCycle executes one full quoting cycle with the given configuration and
// returns its report. It is called by the periodic driver with the base
// config and by the run_cycle API action with a per-request overlay.
//
// Early returns must still produce a usable report; the in-flight flag is
// owned by the caller (tick), so there is nothing to release here.
func (e *Engine) RunCycle(ctx context.Context, cfg config.Config) *CycleReport {
	report := &CycleReport{}
	cl := &cycleLog{logger: e.logger, sink: e.logSink}
	started := time.Now()

	for _, note := range cfg.Normalize() {
		cl.Printf("config: %s", note)
	}
	if cfg.Quoting.AggressiveShortTerm {
		cl.Printf("config: aggressive_short_term set (no selection effect yet)")
	}

	// Risk gate before any quoting work.
	tripped, err := e.governor.EvaluateBreaker(ctx, cfg.Risk.TotalCapital)
	if err != nil {
		cl.Printf("risk check failed: %s", types.ErrorText(err))
		report.Logs = cl.lines
		return report
	}
	if tripped {
		cl.Printf("🚨 circuit breaker active — no quoting today")
		report.CircuitBreaker = true
		report.Logs = cl.lines
		return report
	}
	if err := e.governor.RepairPositions(ctx, cfg.Risk.MaxPosition); err != nil {
		cl.Printf("position repair failed: %s", types.ErrorText(err))
	}

	// Candidate pipeline: fetch → pre-filter → enrich → select.
	rows, err := e.catalog.FetchTop(ctx, 90)
	if err != nil {
		cl.Printf("catalog fetch failed, skipping cycle: %s", types.ErrorText(err))
		report.Logs = cl.lines
		return report
	}

	filtered := market.Prefilter(rows, cfg.Selection.MinVolume24h, cfg.Selection.MaxMarkets)
	enricher := market.NewEnricher(e.client, e.rewards, cfg.Selection, e.logger)
	enriched := enricher.Enrich(ctx, filtered)
	sel := market.Select(enriched, cfg.Selection)

	report.TotalMarkets = sel.TotalMarkets
	report.SponsoredMarkets = sel.SponsoredMarkets
	report.AvgSponsor = sel.AvgSponsor

	cl.Printf("cycle: %d catalog rows, %d prefiltered, %d enriched, %d selected",
		len(rows), len(filtered), len(enriched), len(sel.Candidates))

	params := strategy.Params{
		OrderSize:     cfg.Quoting.OrderSize,
		BaseSpreadBps: cfg.Quoting.BaseSpreadBps,
		MaxPosition:   cfg.Risk.MaxPosition,
	}

	// Quote markets in score-descending order (Select already sorted).
	for _, cand := range sel.Candidates {
		position, err := e.store.GetPosition(ctx, cand.ConditionID)
		if err != nil {
			cl.Printf("%s: position read failed: %s", cand.Title, types.ErrorText(err))
			continue
		}

		if cfg.Quoting.UseExternalOracle {
			e.oracle.Observe(ctx, cand.Title, cand.Mid)
		}

		quote, err := strategy.ComputeQuote(cand, position, params)
		if err != nil {
			cl.Printf("%s: skipped: %s", cand.Title, types.ErrorText(err))
			continue
		}

		if quote.SkewLabel != "" {
			cl.Printf("%s: inventory %s (p=%.1f)", cand.Title, quote.SkewLabel, position)
		}

		if cfg.Paper {
			report.OrdersPlaced += e.paperCycle(ctx, cl, cfg, cand, quote, position)
		} else {
			report.OrdersPlaced += e.reconcileMarket(ctx, cl, cfg, cand, quote)
		}
	}

	cl.Printf("cycle done: %d orders placed in %s", report.OrdersPlaced, time.Since(started).Round(time.Millisecond))
	report.Logs = cl.lines
	return report
}

// paperCycle simulates fills for one market's quote and persists the
// results: position deltas, spread-capture PnL, and trade-log rows.
func (e *Engine) paperCycle(ctx context.Context, cl *cycleLog, cfg config.Config, cand types.Candidate, quote strategy.Quote, position float64) int {
	fills, _ := e.sim.Simulate(quote, position, cfg.Risk.MaxPosition)
	date := store.DateKey(time.Now())

	for _, fill := range fills {
		delta := fill.Size
		if fill.Side == types.SELL {
			delta = -fill.Size
		}

		if err := e.store.ApplyFill(ctx, cand.ConditionID, delta); err != nil {
			cl.Printf("%s: paper fill persist failed: %s", cand.Title, types.ErrorText(err))
			continue
		}
		if err := e.store.AddRealizedPnL(ctx, date, fill.PnL, cfg.Risk.TotalCapital); err != nil {
			cl.Printf("%s: paper pnl persist failed: %s", cand.Title, types.ErrorText(err))
		}

		entry := types.TradeLogEntry{
			MarketID:   cand.ConditionID,
			MarketName: cand.Title,
			Action:     types.ActionPlace,
			Side:       string(fill.Side),
			Price:      fill.Price,
			Size:       fill.Size,
			Paper:      true,
			Note:       types.TradeNote{Event: "paper_fill", OrderID: fill.OrderID},
		}
		if err := e.store.AppendTradeLog(ctx, entry); err != nil {
			cl.Printf("%s: trade log write failed: %s", cand.Title, types.ErrorText(err))
		}

		cl.Printf("%s: paper %s %.0f @ %.4f (pnl +%.4f)", cand.Title, fill.Side, fill.Size, fill.Price, fill.PnL)
	}
	return len(fills)
}

// Stats is the get_stats payload.
type Stats struct {
	OpenOrders     int              `json:"openOrders"`
	TotalValue     float64          `json:"totalValue"`
	PnL            float64          `json:"pnl"`
	CumulativePnL  float64          `json:"cumulativePnl"`
	OpenPositions  int              `json:"openPositions"`
	Positions      []types.Position `json:"positions"`
	CircuitBreaker bool             `json:"circuitBreaker"`
}

// GetStats assembles the dashboard statistics snapshot. Safe to call during
// an active cycle; reads go through the store's atomic rows.
func (e *Engine) GetStats(ctx context.Context) (*Stats, error) {
	cfg := e.Config()

	positions, err := e.store.GetPositions(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Positions: positions}
	for _, p := range positions {
		if p.NetPosition != 0 {
			stats.OpenPositions++
		}
		stats.TotalValue += p.NetPosition
	}

	day, err := e.store.GetDaily(ctx, store.DateKey(time.Now()), cfg.Risk.TotalCapital)
	if err != nil {
		return nil, err
	}
	stats.PnL = day.RealizedPnL
	stats.CircuitBreaker = day.CircuitBreaker

	hist, err := e.store.PnLHistory(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(hist) > 0 {
		stats.CumulativePnL = hist[0].CumulativePnL
	}

	if !cfg.Paper && e.client != nil {
		open, err := e.client.GetOpenOrders(ctx, "")
		if err != nil {
			e.logger.Warn("open orders fetch failed for stats", "error", err)
		} else {
			stats.OpenOrders = len(open)
		}
	}

	return stats, nil
}
