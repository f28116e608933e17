// Package oracle fetches an external spot reference price for crypto-titled
// markets. The price is advisory: it is logged next to the book-derived mid
// so a human can spot a stale book, but it never feeds the quoting formula.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// symbolKeywords maps title keywords to spot ticker symbols. First match
// wins; matching is case-insensitive substring.
var symbolKeywords = []struct {
	keyword string
	symbol  string
}{
	{"bitcoin", "BTCUSDT"},
	{"btc", "BTCUSDT"},
	{"ethereum", "ETHUSDT"},
	{"eth", "ETHUSDT"},
	{"solana", "SOLUSDT"},
	{"sol", "SOLUSDT"},
	{"xrp", "XRPUSDT"},
	{"dogecoin", "DOGEUSDT"},
}

// tickerResponse is the spot exchange's price endpoint shape.
type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Client fetches reference spot prices from a public exchange ticker.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// New creates an oracle client.
func New(baseURL string, logger *slog.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(1)

	return &Client{
		http:   client,
		logger: logger.With("component", "oracle"),
	}
}

// Symbol returns the spot symbol for a market title, or "" when the title
// is not crypto-related.
func Symbol(title string) string {
	lower := strings.ToLower(title)
	for _, e := range symbolKeywords {
		if strings.Contains(lower, e.keyword) {
			return e.symbol
		}
	}
	return ""
}

// SpotPrice fetches the current spot price for a symbol.
func (c *Client) SpotPrice(ctx context.Context, symbol string) (float64, error) {
	var result tickerResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&result).
		Get("/api/v3/ticker/price")
	if err != nil {
		return 0, fmt.Errorf("oracle: fetch %s: %w", symbol, err)
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("oracle: fetch %s: status %d", symbol, resp.StatusCode())
	}

	price, err := strconv.ParseFloat(result.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("oracle: parse price %q: %w", result.Price, err)
	}
	return price, nil
}

// Observe logs the spot reference for a crypto-titled market alongside the
// book mid. It never returns an error; a failed fetch is just a debug line.
func (c *Client) Observe(ctx context.Context, title string, bookMid float64) {
	symbol := Symbol(title)
	if symbol == "" {
		return
	}

	price, err := c.SpotPrice(ctx, symbol)
	if err != nil {
		c.logger.Debug("oracle fetch failed", "symbol", symbol, "error", err)
		return
	}

	c.logger.Info("oracle reference",
		"symbol", symbol, "spot", price, "book_mid", bookMid, "market", title)
}
