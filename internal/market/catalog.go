// Package market implements market discovery and selection: the catalog
// fetcher, the candidate enricher, the sponsor-rewards lookup, the keyword
// classifier, and the scorer.
//
// The pipeline each cycle is:
//
//	catalog rows (Gamma) → pre-filter → enrich (book + rewards + category)
//	→ score → top-K candidates
//
// Catalog rows are parsed into a typed schema once, at this boundary;
// malformed rows are counted and skipped, and downstream code never
// re-parses strings.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-quoter/pkg/types"
)

// catalogFetchLimit is how many rows one catalog fetch requests. The
// pre-filter and the enrichment cap cut this down before any per-market I/O.
const catalogFetchLimit = 90

// GammaMarket is the typed JSON shape of one Gamma catalog row. Numeric
// fields the API serves as strings stay strings here and are parsed in
// seedCandidate.
type GammaMarket struct {
	ID              string  `json:"id"`
	Question        string  `json:"question"`
	ConditionID     string  `json:"conditionId"`
	Slug            string  `json:"slug"`
	Active          bool    `json:"active"`
	Closed          bool    `json:"closed"`
	AcceptingOrders bool    `json:"acceptingOrders"`
	EnableOrderBook bool    `json:"enableOrderBook"`
	Liquidity       string  `json:"liquidity"`
	Volume24hr      float64 `json:"volume24hr"`
	ClobTokenIds    string  `json:"clobTokenIds"` // JSON-encoded array of token IDs
	NegRisk         bool    `json:"negRisk"`
	BestBid         float64 `json:"bestBid"`
	BestAsk         float64 `json:"bestAsk"`
	LastTradePrice  float64 `json:"lastTradePrice"`

	// Sponsor-reward fields observed across catalog revisions. Any positive
	// value counts; rewardPool() picks the first.
	RewardsDailyRate float64 `json:"rewardsDailyRate"`
	RewardsAmount    float64 `json:"rewardsAmount"`
	RewardsMinSize   float64 `json:"rewardsMinSize"`
	RewardsMaxSpread float64 `json:"rewardsMaxSpread"`
}

// rewardPool returns the sponsor pool advertised on the catalog row itself,
// or 0 when the row carries none. Min-size and max-spread are participation
// constraints, not pool amounts, so they never count.
func (m GammaMarket) rewardPool() float64 {
	if m.RewardsDailyRate > 0 {
		return m.RewardsDailyRate
	}
	if m.RewardsAmount > 0 {
		return m.RewardsAmount
	}
	return 0
}

// Catalog fetches market rows from the Gamma API.
type Catalog struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewCatalog creates a catalog client for the Gamma API.
func NewCatalog(baseURL string, logger *slog.Logger) *Catalog {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &Catalog{
		http:   client,
		logger: logger.With("component", "catalog"),
	}
}

// FetchTop fetches the most active markets ordered by 24-hour volume
// descending. If the ordered query fails (the ordering parameter has been
// flaky on the Gamma side), it retries once without it.
func (c *Catalog) FetchTop(ctx context.Context, limit int) ([]GammaMarket, error) {
	if limit <= 0 || limit > catalogFetchLimit {
		limit = catalogFetchLimit
	}

	rows, err := c.fetch(ctx, limit, true)
	if err != nil {
		c.logger.Warn("ordered catalog fetch failed, retrying without ordering", "error", err)
		rows, err = c.fetch(ctx, limit, false)
		if err != nil {
			return nil, fmt.Errorf("fetch catalog: %w", err)
		}
	}
	return rows, nil
}

func (c *Catalog) fetch(ctx context.Context, limit int, ordered bool) ([]GammaMarket, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"limit":  strconv.Itoa(limit),
			"active": "true",
			"closed": "false",
		})
	if ordered {
		req.SetQueryParam("order", "volume24hr")
		req.SetQueryParam("ascending", "false")
	}

	var rows []GammaMarket
	resp, err := req.SetResult(&rows).Get("/markets")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	return rows, nil
}

// seedCandidate parses one catalog row into a candidate skeleton. The first
// entry of clobTokenIds is the YES outcome token, which is the side we quote.
func seedCandidate(row GammaMarket) (types.Candidate, error) {
	if row.ConditionID == "" {
		return types.Candidate{}, fmt.Errorf("row %s: missing conditionId", row.ID)
	}

	var tokenIDs []string
	if err := json.Unmarshal([]byte(row.ClobTokenIds), &tokenIDs); err != nil {
		return types.Candidate{}, fmt.Errorf("row %s: malformed clobTokenIds: %w", row.ID, err)
	}
	if len(tokenIDs) == 0 || tokenIDs[0] == "" {
		return types.Candidate{}, fmt.Errorf("row %s: no token ids", row.ID)
	}

	return types.Candidate{
		ConditionID: row.ConditionID,
		TokenID:     tokenIDs[0],
		NegRisk:     row.NegRisk,
		Title:       row.Question,
		Volume24h:   row.Volume24hr,
	}, nil
}

// Prefilter drops rows below the volume floor and rows not currently
// tradeable, then caps the survivors at min(3·maxMarkets, 50) so enrichment
// does a bounded amount of per-market I/O. Rows arrive volume-sorted, so
// capping keeps the most active ones.
func Prefilter(rows []GammaMarket, minVolume float64, maxMarkets int) []GammaMarket {
	capN := 3 * maxMarkets
	if capN > 50 {
		capN = 50
	}

	out := make([]GammaMarket, 0, capN)
	for _, row := range rows {
		if !row.Active || row.Closed || !row.AcceptingOrders || !row.EnableOrderBook {
			continue
		}
		if row.Volume24hr < minVolume {
			continue
		}
		out = append(out, row)
		if len(out) == capN {
			break
		}
	}
	return out
}
