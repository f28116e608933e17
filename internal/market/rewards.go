package market

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Sponsor-pool lookup method tags, in the order the layers are tried.
const (
	RewardCatalog     = "catalog"      // pool came from the catalog row itself
	RewardConditionID = "condition_id" // /rewards?condition_id=
	RewardTokenID     = "token_id"     // /rewards?token_id=
	RewardMarketsScan = "markets_scan" // full /rewards/markets scan
	RewardKeyword     = "keyword"      // nominal pool forced by title keyword
	RewardNone        = "none"
)

// forcedSponsorPool is the nominal pool assigned by the keyword fallback.
// Small on purpose: enough to mark the market as sponsored without
// competing with real reward data.
const forcedSponsorPool = 50.0

// forceSponsorKeywords are well-known titles the venue always sponsors but
// whose reward rows are intermittently missing from every endpoint. The
// fallback assigns them a nominal pool so selection doesn't flap.
var forceSponsorKeywords = []string{
	"bitcoin above",
	"ethereum above",
	"fed decision",
	"presidential election",
}

// rewardsRow is the union of field names the rewards endpoints have used
// across revisions. Pool amount fields are tried in order; constraint-only
// responses (max_spread_bps with no amount) yield pool 0.
type rewardsRow struct {
	ConditionID   string  `json:"condition_id"`
	TokenID       string  `json:"token_id"`
	RewardsAmount float64 `json:"rewards_amount"`
	DailyRate     float64 `json:"rewards_daily_rate"`
	Amount        float64 `json:"amount"`
	MaxSpreadBps  float64 `json:"max_spread_bps"`
}

// pool returns the first positive pool amount in the row, or 0.
func (r rewardsRow) pool() float64 {
	for _, v := range []float64{r.RewardsAmount, r.DailyRate, r.Amount} {
		if v > 0 {
			return v
		}
	}
	return 0
}

// RewardsClient resolves the sponsor pool for a market through a layered
// lookup: catalog row, per-condition query, per-token query, full market
// scan, keyword fallback. Each layer tags the result with a method string
// for observability.
type RewardsClient struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewRewardsClient creates a rewards client. baseURL is usually the CLOB
// base, which hosts the /rewards endpoints.
func NewRewardsClient(baseURL string, logger *slog.Logger) *RewardsClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(1).
		SetRetryWaitTime(time.Second)

	return &RewardsClient{
		http:   client,
		logger: logger.With("component", "rewards"),
	}
}

// Lookup resolves (pool, method) for one market. Endpoint errors degrade to
// the next layer rather than failing the market; a market with no reward
// data anywhere gets (0, "none").
func (rc *RewardsClient) Lookup(ctx context.Context, row GammaMarket, tokenID string) (float64, string) {
	if pool := row.rewardPool(); pool > 0 {
		return pool, RewardCatalog
	}

	if pool, ok := rc.query(ctx, "condition_id", row.ConditionID); ok {
		return pool, RewardConditionID
	}
	if pool, ok := rc.query(ctx, "token_id", tokenID); ok {
		return pool, RewardTokenID
	}
	if pool, ok := rc.scanMarkets(ctx, row.ConditionID, tokenID); ok {
		return pool, RewardMarketsScan
	}

	lower := strings.ToLower(row.Question)
	for _, kw := range forceSponsorKeywords {
		if strings.Contains(lower, kw) {
			return forcedSponsorPool, RewardKeyword
		}
	}

	return 0, RewardNone
}

// query hits /rewards with a single id filter. The endpoint returns a list;
// the first row with a positive pool wins.
func (rc *RewardsClient) query(ctx context.Context, param, id string) (float64, bool) {
	if id == "" {
		return 0, false
	}

	var rows []rewardsRow
	resp, err := rc.http.R().
		SetContext(ctx).
		SetQueryParam(param, id).
		SetResult(&rows).
		Get("/rewards")
	if err != nil || resp.StatusCode() != 200 {
		rc.logger.Debug("rewards query failed", "param", param, "error", err, "status", resp.StatusCode())
		return 0, false
	}

	for _, r := range rows {
		if pool := r.pool(); pool > 0 {
			return pool, true
		}
	}
	return 0, false
}

// scanMarkets walks /rewards/markets looking for either id. This is the
// expensive layer; it only runs when the targeted queries came back empty.
func (rc *RewardsClient) scanMarkets(ctx context.Context, conditionID, tokenID string) (float64, bool) {
	var rows []rewardsRow
	resp, err := rc.http.R().
		SetContext(ctx).
		SetResult(&rows).
		Get("/rewards/markets")
	if err != nil || resp.StatusCode() != 200 {
		rc.logger.Debug("rewards markets scan failed", "error", err, "status", resp.StatusCode())
		return 0, false
	}

	for _, r := range rows {
		if r.ConditionID == conditionID || r.TokenID == tokenID {
			if pool := r.pool(); pool > 0 {
				return pool, true
			}
		}
	}
	return 0, false
}
