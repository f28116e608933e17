package engine

import (
	"context"
	"math"
	"strconv"
	"time"

	"polymarket-quoter/internal/config"
	"polymarket-quoter/internal/store"
	"polymarket-quoter/internal/strategy"
	"polymarket-quoter/pkg/types"
)

// keepTolerance is the price distance (0.5 bp) within which an existing
// resting order is kept instead of being cancelled and re-placed.
const keepTolerance = 0.5 / 10000

// reconcileMarket aligns the venue's resting orders for one market with the
// target quote: BUY side first, then SELL. Returns the number of new
// placements. Individual failures log and continue; a broken market never
// aborts the cycle.
func (e *Engine) reconcileMarket(ctx context.Context, cl *cycleLog, cfg config.Config, cand types.Candidate, quote strategy.Quote) int {
	open, err := e.client.GetOpenOrders(ctx, cand.ConditionID)
	if err != nil {
		cl.Printf("%s: open orders fetch failed: %s", cand.Title, types.ErrorText(err))
		return 0
	}

	placed := e.reconcileSide(ctx, cl, cfg, cand, quote, types.BUY, open)
	placed += e.reconcileSide(ctx, cl, cfg, cand, quote, types.SELL, open)
	return placed
}

func (e *Engine) reconcileSide(ctx context.Context, cl *cycleLog, cfg config.Config, cand types.Candidate, quote strategy.Quote, side types.Side, open []types.OpenOrder) int {
	paused := quote.BuyPaused
	price, size := quote.BuyPrice, quote.BuySize
	if side == types.SELL {
		paused = quote.SellPaused
		price, size = quote.SellPrice, quote.SellSize
	}

	existing := filterOrders(open, quote.TokenID, side)

	if paused {
		for _, o := range existing {
			e.cancelOrder(ctx, cl, cfg, cand, o)
		}
		if len(existing) > 0 {
			cl.Printf("%s: %s paused, cancelled %d resting", cand.Title, side, len(existing))
		}
		return 0
	}

	keep := false
	if len(existing) > 0 {
		restingPrice, _ := strconv.ParseFloat(existing[0].Price, 64)
		if math.Abs(restingPrice-price) <= keepTolerance {
			keep = true
			cl.Printf("%s: ♻️ keeping %s @ %s", cand.Title, side, existing[0].Price)
		}
	}

	placed := 0
	if !keep {
		if len(existing) > 0 {
			e.cancelOrder(ctx, cl, cfg, cand, existing[0])
		}
		if e.placeOrder(ctx, cl, cfg, cand, quote, side, price, size) {
			placed = 1
		}
	}

	// Duplicates beyond the first are always cancelled.
	for _, o := range existing[min(1, len(existing)):] {
		e.cancelOrder(ctx, cl, cfg, cand, o)
	}

	return placed
}

// placeOrder submits one GTC limit order and writes the trade log. Returns
// whether the placement succeeded.
func (e *Engine) placeOrder(ctx context.Context, cl *cycleLog, cfg config.Config, cand types.Candidate, quote strategy.Quote, side types.Side, price, size float64) bool {
	order := types.UserOrder{
		TokenID:   quote.TokenID,
		Price:     price,
		Size:      size,
		Side:      side,
		OrderType: types.OrderTypeGTC,
		TickSize:  quote.TickSize,
		NegRisk:   quote.NegRisk,
	}

	started := time.Now()
	resp, err := e.client.PostOrder(ctx, order)
	latency := time.Since(started).Milliseconds()

	entry := types.TradeLogEntry{
		MarketID:   cand.ConditionID,
		MarketName: cand.Title,
		Side:       string(side),
		Price:      price,
		Size:       size,
		Note:       types.TradeNote{Event: "order_placed", LatencyMS: latency},
	}

	if err != nil {
		entry.Action = types.ActionError
		entry.Note.Event = "order_failed"
		entry.Note.Error = types.ErrorText(err)
		if logErr := e.store.AppendTradeLog(ctx, entry); logErr != nil {
			e.logger.Error("trade log write failed", "error", logErr)
		}
		cl.Printf("%s: %s place failed: %s", cand.Title, side, types.ErrorText(err))
		return false
	}

	entry.Action = types.ActionPlace
	entry.Note.OrderID = resp.OrderID
	if logErr := e.store.AppendTradeLog(ctx, entry); logErr != nil {
		e.logger.Error("trade log write failed", "error", logErr)
	}

	cl.Printf("%s: placed %s %.0f @ %.4f", cand.Title, side, size, price)
	return true
}

// cancelOrder cancels one resting order, first folding any matched quantity
// into the stored position (a partially-filled order being cancelled is the
// only place a live fill becomes visible to us between cycles).
func (e *Engine) cancelOrder(ctx context.Context, cl *cycleLog, cfg config.Config, cand types.Candidate, o types.OpenOrder) {
	e.detectFill(ctx, cl, cfg, cand, o)

	started := time.Now()
	_, err := e.client.CancelOrder(ctx, o.ID)
	latency := time.Since(started).Milliseconds()

	price, _ := strconv.ParseFloat(o.Price, 64)
	size, _ := strconv.ParseFloat(o.OriginalSize, 64)

	entry := types.TradeLogEntry{
		MarketID:   cand.ConditionID,
		MarketName: cand.Title,
		Side:       o.Side,
		Price:      price,
		Size:       size,
		Note:       types.TradeNote{Event: "order_cancelled", OrderID: o.ID, LatencyMS: latency},
	}

	if err != nil {
		entry.Action = types.ActionError
		entry.Note.Event = "cancel_failed"
		entry.Note.Error = types.ErrorText(err)
		cl.Printf("%s: cancel %s failed: %s", cand.Title, o.ID, types.ErrorText(err))
	} else {
		entry.Action = types.ActionCancel
	}

	if logErr := e.store.AppendTradeLog(ctx, entry); logErr != nil {
		e.logger.Error("trade log write failed", "error", logErr)
	}
}

// detectFill applies the matched quantity of a live order to the net
// position before the order is cancelled.
func (e *Engine) detectFill(ctx context.Context, cl *cycleLog, cfg config.Config, cand types.Candidate, o types.OpenOrder) {
	matched, _ := strconv.ParseFloat(o.SizeMatched, 64)
	if matched <= 0 {
		return
	}

	delta := matched
	if types.Side(o.Side) == types.SELL {
		delta = -matched
	}

	if err := e.store.ApplyFill(ctx, cand.ConditionID, delta); err != nil {
		cl.Printf("%s: fill persist failed: %s", cand.Title, types.ErrorText(err))
		return
	}
	if err := e.store.AddRealizedPnL(ctx, store.DateKey(time.Now()), 0, cfg.Risk.TotalCapital); err != nil {
		e.logger.Warn("trade count bump failed", "error", err)
	}
	cl.Printf("%s: detected fill %s %.2f on cancelled order %s", cand.Title, o.Side, matched, o.ID)
}

func filterOrders(open []types.OpenOrder, tokenID string, side types.Side) []types.OpenOrder {
	var out []types.OpenOrder
	for _, o := range open {
		if o.AssetID == tokenID && types.Side(o.Side) == side {
			out = append(out, o)
		}
	}
	return out
}
