// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the quoting engine — order types,
// market candidates, order book snapshots, and trade-log payloads. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"fmt"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// OrderType enumerates the supported order lifecycles.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Til-Cancelled: stays on book until filled or cancelled
)

// SignatureType identifies the signing scheme for the CTF exchange contract.
type SignatureType int

const (
	SigEOA        SignatureType = 0 // externally-owned account (standard wallet)
	SigProxy      SignatureType = 1 // Polymarket proxy / Magic wallet
	SigGnosisSafe SignatureType = 2 // Gnosis Safe multisig
)

// MidSource tags how a candidate's mid price was derived, in precedence order.
type MidSource string

const (
	MidOrderbook MidSource = "orderbook"  // both sides present: (bid+ask)/2
	MidLastTrade MidSource = "last_trade" // book empty, catalog last trade used
	MidBidOnly   MidSource = "bid_only"   // only a bid resting
	MidAskOnly   MidSource = "ask_only"   // only an ask resting
	MidEmpty     MidSource = "empty"      // nothing to derive from
)

// TradeAction is the action column of the trade log.
type TradeAction string

const (
	ActionPlace  TradeAction = "place"
	ActionCancel TradeAction = "cancel"
	ActionError  TradeAction = "error"
)

// ————————————————————————————————————————————————————————————————————————
// Market candidates
// ————————————————————————————————————————————————————————————————————————

// Candidate is a fully-enriched quoting candidate for one cycle. It is built
// by the enricher from a typed catalog row plus a live book snapshot and a
// rewards lookup, scored by the selector, and consumed by the quoter. It is
// discarded at cycle end; only positions and PnL survive.
type Candidate struct {
	ConditionID string // CTF condition ID
	TokenID     string // CLOB token ID of the outcome we quote (YES)
	NegRisk     bool   // neg-risk market flag (affects exchange-side options)
	Title       string // human-readable question

	Volume24h float64 // trailing 24-hour volume in USD

	BestBid     float64
	BestAsk     float64
	BestBidSize float64
	BestAskSize float64

	Mid       float64   // derived fair price
	MidSource MidSource // how Mid was derived

	Range1h  float64 // top-of-book spread as a percentage of mid
	TickSize float64 // price granularity from the book (fallback 0.01)

	LiquidityDepth float64 // top-of-book USDC notional (bid·bidSize + ask·askSize)

	SponsorPool   float64 // USDC/day reward pool paid to liquidity providers
	SponsorMethod string  // which lookup layer produced SponsorPool

	Category string // tier-1 | tier-2 | sponsored | long-term | other
	Tier1    bool   // absolute-priority market (score multiplied)

	Score float64 // composite selection score
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// UserOrder is the high-level order representation produced by the quoter.
// The exchange client converts it to the CLOB API payload.
type UserOrder struct {
	TokenID   string    // which token to trade
	Price     float64   // limit price (0.0 to 1.0 for binary markets)
	Size      float64   // quantity in tokens
	Side      Side      // BUY or SELL
	OrderType OrderType // GTC
	TickSize  float64   // market's price granularity (for amount rounding)
	NegRisk   bool      // routes to the neg-risk CTF exchange
}

// OrderResponse is the REST API response for POST /order.
type OrderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"` // e.g. "live", "matched"
}

// OpenOrder represents a live resting order on the CLOB.
type OpenOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Market       string `json:"market"`   // condition ID
	AssetID      string `json:"asset_id"` // token ID
	Side         string `json:"side"`     // "BUY" or "SELL"
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
}

// CancelResponse is returned by DELETE /order and /cancel-all.
type CancelResponse struct {
	Canceled []string `json:"canceled"` // IDs of successfully cancelled orders
}

// ————————————————————————————————————————————————————————————————————————
// Order book
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level in the order book.
// Price and Size are strings because the CLOB API returns them as strings
// to preserve decimal precision.
type PriceLevel struct {
	Price string `json:"price"` // e.g. "0.55"
	Size  string `json:"size"`  // e.g. "100.5"
}

// BookResponse is the REST response from GET /book for a single token.
type BookResponse struct {
	Market       string       `json:"market"`
	AssetID      string       `json:"asset_id"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	Hash         string       `json:"hash"`
	Timestamp    string       `json:"timestamp"`
	MinOrderSize string       `json:"min_order_size"`
	TickSize     string       `json:"tick_size"`
	NegRisk      bool         `json:"neg_risk"`
}

// ————————————————————————————————————————————————————————————————————————
// Persistence rows
// ————————————————————————————————————————————————————————————————————————

// Position is the persistent net holding for one market, in signed USDC
// units. Positive = net long the quoted outcome.
type Position struct {
	MarketID    string    `json:"market_id"`
	NetPosition float64   `json:"net_position"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DailyPnL is the persistent per-UTC-date risk row. TradeCount is monotone;
// CircuitBreaker latches true for the remainder of the date once set.
type DailyPnL struct {
	Date           string  `json:"date"` // YYYY-MM-DD in UTC
	RealizedPnL    float64 `json:"realized_pnl"`
	TotalCapital   float64 `json:"total_capital"`
	TradeCount     int64   `json:"trade_count"`
	CircuitBreaker bool    `json:"circuit_breaker"`
	CumulativePnL  float64 `json:"cumulative_pnl,omitempty"` // filled by the history view
}

// TradeLogEntry is one append-only audit row. Never mutated after insert.
type TradeLogEntry struct {
	ID         int64       `json:"id"`
	Timestamp  time.Time   `json:"timestamp"`
	MarketID   string      `json:"market_id"`
	MarketName string      `json:"market_name"`
	Action     TradeAction `json:"action"`
	Side       string      `json:"side"`
	Price      float64     `json:"price"`
	Size       float64     `json:"size"`
	Paper      bool        `json:"paper"`
	Note       TradeNote   `json:"note"`
}

// TradeNote is the structured payload column of the trade log.
type TradeNote struct {
	Event     string `json:"event,omitempty"`      // e.g. "order_placed", "order_cancelled", "fill_detected"
	OrderID   string `json:"order_id,omitempty"`   // venue order id, if returned
	LatencyMS int64  `json:"latency_ms,omitempty"` // remote round-trip in milliseconds
	Error     string `json:"error,omitempty"`      // normalized error text on failure
}

// TickDecimals returns the number of decimal places implied by a tick size.
// The venue supports 0.1, 0.01, 0.001 and 0.0001; anything else falls back
// to the standard 2-decimal tick.
func TickDecimals(tick float64) int {
	switch tick {
	case 0.1:
		return 1
	case 0.01:
		return 2
	case 0.001:
		return 3
	case 0.0001:
		return 4
	default:
		return 2
	}
}

// AmountDecimals returns the USDC rounding precision for a tick size.
func AmountDecimals(tick float64) int {
	return TickDecimals(tick) + 2
}

// ————————————————————————————————————————————————————————————————————————
// Error shaping
// ————————————————————————————————————————————————————————————————————————

// ErrorText normalizes any recovered value into a stable human-readable
// string for logging and the trade-log error column. It never returns "".
func ErrorText(v any) string {
	switch e := v.(type) {
	case nil:
		return "unknown error"
	case error:
		if e == nil {
			return "unknown error"
		}
		return e.Error()
	case string:
		if e == "" {
			return "unknown error"
		}
		return e
	default:
		return fmt.Sprintf("%v", e)
	}
}
