// Package exchange implements the Polymarket CLOB REST client and auth.
//
// The REST client (Client) talks to the CLOB API for order management:
//   - GetOrderBook:  GET  /book               — fetch L2 book for a token
//   - GetOpenOrders: GET  /data/orders        — list our resting orders
//   - PostOrder:     POST /order              — place one signed GTC order
//   - CancelOrder:   DELETE /order            — cancel a specific order by ID
//   - CancelAll:     DELETE /cancel-all       — emergency cancel everything
//   - DeriveAPIKey:  GET  /auth/derive-api-key — bootstrap L2 creds from L1 wallet
//
// Every request is rate-limited via per-category TokenBuckets, automatically
// retried on 5xx errors, and authenticated with L2 HMAC headers (except book
// reads). Paper mode runs an unauthenticated Client used only for book
// reads; dry-run short-circuits mutating calls for live smoke testing.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-quoter/internal/config"
	"polymarket-quoter/pkg/types"
)

// Client is the Polymarket CLOB REST API client.
// It wraps a resty HTTP client with rate limiting, retry, and auth.
type Client struct {
	http   *resty.Client // HTTP client with retry + base URL
	auth   *Auth         // L1/L2 auth provider for request signing
	rl     *RateLimiter  // per-endpoint-category rate limiting
	dryRun bool          // when true, mutating methods return fake success without HTTP calls
	logger *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(cfg config.Config, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.API.CLOBBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		rl:     NewRateLimiter(),
		dryRun: cfg.DryRun,
		logger: logger,
	}
}

// Auth exposes the auth provider for diagnostics (whoami, derive_creds).
func (c *Client) Auth() *Auth {
	return c.auth
}

// ErrNoSigner is returned by authenticated operations on a client built
// without a wallet (the paper-mode client, which only reads books).
var ErrNoSigner = errors.New("venue client has no signer (paper mode)")

func (c *Client) requireAuth() error {
	if c.auth == nil {
		return ErrNoSigner
	}
	return nil
}

// GetOrderBook fetches the order book for a single token.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*types.BookResponse, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	var result types.BookResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&result).
		Get("/book")
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get book: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// GetOpenOrders lists our resting orders, optionally filtered to one market
// (condition ID). Requires L2 auth.
func (c *Client) GetOpenOrders(ctx context.Context, market string) ([]types.OpenOrder, error) {
	if c.dryRun {
		return nil, nil
	}
	if err := c.requireAuth(); err != nil {
		return nil, err
	}
	if err := c.rl.Data.Wait(ctx); err != nil {
		return nil, err
	}

	path := "/data/orders"
	headers, err := c.auth.L2Headers("GET", path, "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	req := c.http.R().SetContext(ctx).SetHeaders(headers)
	if market != "" {
		req.SetQueryParam("market", market)
	}

	var result []types.OpenOrder
	resp, err := req.SetResult(&result).Get(path)
	if err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get open orders: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

// orderPayload is the REST request body for POST /order.
type orderPayload struct {
	Order     signedOrder     `json:"order"`
	Owner     string          `json:"owner"`     // API key of the order owner
	OrderType types.OrderType `json:"orderType"` // GTC
}

// signedOrder is the on-chain order format the CLOB API expects.
// MakerAmount and TakerAmount are in 6-decimal USDC units (1e6 = $1).
type signedOrder struct {
	Salt          string              `json:"salt"`
	Maker         string              `json:"maker"`  // funder/proxy wallet address
	Signer        string              `json:"signer"` // EOA that signs the order
	Taker         string              `json:"taker"`  // zero address = open order
	TokenID       string              `json:"tokenId"`
	MakerAmount   string              `json:"makerAmount"`
	TakerAmount   string              `json:"takerAmount"`
	Side          types.Side          `json:"side"`
	Expiration    string              `json:"expiration"`
	Nonce         string              `json:"nonce"`
	FeeRateBps    string              `json:"feeRateBps"`
	SignatureType types.SignatureType `json:"signatureType"`
	Signature     string              `json:"signature"`
}

// buildOrderPayload converts a high-level UserOrder into the signed order +
// metadata the REST API expects. Human-readable price/size become maker/taker
// amounts at the market's tick precision; the maker is the funder wallet, the
// signer is the EOA, and the taker is the zero address (anyone can fill).
func (c *Client) buildOrderPayload(order types.UserOrder) orderPayload {
	tick := order.TickSize
	if tick == 0 {
		tick = 0.01
	}
	makerAmt, takerAmt := PriceToAmounts(order.Price, order.Size, order.Side, tick)

	return orderPayload{
		Order: signedOrder{
			Salt:          strconv.FormatInt(rand.Int63(), 10),
			Maker:         c.auth.FunderAddress().Hex(),
			Signer:        c.auth.Address().Hex(),
			Taker:         "0x0000000000000000000000000000000000000000",
			TokenID:       order.TokenID,
			MakerAmount:   makerAmt.String(),
			TakerAmount:   takerAmt.String(),
			Side:          order.Side,
			Expiration:    "0",
			Nonce:         "0",
			FeeRateBps:    "0",
			SignatureType: c.auth.sigType,
		},
		Owner:     c.auth.creds.ApiKey,
		OrderType: order.OrderType,
	}
}

// PostOrder places a single GTC limit order.
func (c *Client) PostOrder(ctx context.Context, order types.UserOrder) (*types.OrderResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would post order",
			"token", order.TokenID, "side", order.Side, "price", order.Price, "size", order.Size)
		return &types.OrderResponse{Success: true, OrderID: fmt.Sprintf("dry-run-%d", rand.Int31()), Status: "live"}, nil
	}
	if err := c.requireAuth(); err != nil {
		return nil, err
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	payload := c.buildOrderPayload(order)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}
	headers, err := c.auth.L2Headers("POST", "/order", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Post("/order")
	if err != nil {
		return nil, fmt.Errorf("post order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("post order: status %d: %s", resp.StatusCode(), resp.String())
	}
	if !result.Success && result.ErrorMsg != "" {
		return &result, fmt.Errorf("post order rejected: %s", result.ErrorMsg)
	}
	return &result, nil
}

// CancelOrder cancels one order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*types.CancelResponse, error) {
	if orderID == "" {
		return &types.CancelResponse{}, nil
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel order", "order_id", orderID)
		return &types.CancelResponse{Canceled: []string{orderID}}, nil
	}
	if err := c.requireAuth(); err != nil {
		return nil, err
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	body := fmt.Sprintf(`{"orderID":%q}`, orderID)
	headers, err := c.auth.L2Headers("DELETE", "/order", body)
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.CancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Delete("/order")
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("cancel order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// CancelAll cancels every open order across all markets.
func (c *Client) CancelAll(ctx context.Context) (*types.CancelResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel all orders")
		return &types.CancelResponse{}, nil
	}
	if err := c.requireAuth(); err != nil {
		return nil, err
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	headers, err := c.auth.L2Headers("DELETE", "/cancel-all", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.CancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Delete("/cancel-all")
	if err != nil {
		return nil, fmt.Errorf("cancel all: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("cancel all: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Warn("all orders cancelled", "count", len(result.Canceled))
	return &result, nil
}

// DeriveAPIKey derives L2 API credentials via L1 authentication.
func (c *Client) DeriveAPIKey(ctx context.Context) (*Credentials, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}
	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return nil, fmt.Errorf("l1 headers: %w", err)
	}

	var result Credentials
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/auth/derive-api-key")
	if err != nil {
		return nil, fmt.Errorf("derive api key: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("derive api key: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.auth.SetCredentials(result)
	c.logger.Info("API key derived", "api_key", c.auth.APIKeyPrefix())
	return &result, nil
}

// ProbeGeoblock checks whether the venue accepts trading requests from this
// deployment's region. It only reports; callers decide what to do with it.
func (c *Client) ProbeGeoblock(ctx context.Context) (bool, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/auth/ban-status/cert-required")
	if err != nil {
		return false, fmt.Errorf("geoblock probe: %w", err)
	}
	return resp.StatusCode() == http.StatusForbidden, nil
}
