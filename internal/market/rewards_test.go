package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// rewardsServer fakes the /rewards endpoints with canned rows per layer.
func rewardsServer(t *testing.T, byCondition, byToken, scan []rewardsRow) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/rewards":
			if r.URL.Query().Get("condition_id") != "" {
				json.NewEncoder(w).Encode(byCondition)
			} else {
				json.NewEncoder(w).Encode(byToken)
			}
		case "/rewards/markets":
			json.NewEncoder(w).Encode(scan)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestLookupCatalogRowWins(t *testing.T) {
	t.Parallel()

	srv := rewardsServer(t, nil, nil, nil)
	defer srv.Close()
	rc := NewRewardsClient(srv.URL, testLogger())

	row := tradeableRow("a", 100)
	row.RewardsDailyRate = 300

	pool, method := rc.Lookup(context.Background(), row, "tok-a")
	if pool != 300 || method != RewardCatalog {
		t.Errorf("got (%v, %s), want (300, catalog)", pool, method)
	}
}

func TestLookupLayers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		byCondition []rewardsRow
		byToken     []rewardsRow
		scan        []rewardsRow
		wantPool    float64
		wantMethod  string
	}{
		{
			name:        "condition id layer",
			byCondition: []rewardsRow{{RewardsAmount: 150}},
			wantPool:    150,
			wantMethod:  RewardConditionID,
		},
		{
			name:       "token id layer",
			byToken:    []rewardsRow{{DailyRate: 90}},
			wantPool:   90,
			wantMethod: RewardTokenID,
		},
		{
			name:       "markets scan layer",
			scan:       []rewardsRow{{ConditionID: "cond-a", Amount: 40}},
			wantPool:   40,
			wantMethod: RewardMarketsScan,
		},
		{
			name:       "nothing anywhere",
			wantPool:   0,
			wantMethod: RewardNone,
		},
		{
			name:        "constraint-only response yields no pool",
			byCondition: []rewardsRow{{MaxSpreadBps: 3.5}},
			wantPool:    0,
			wantMethod:  RewardNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := rewardsServer(t, tt.byCondition, tt.byToken, tt.scan)
			defer srv.Close()
			rc := NewRewardsClient(srv.URL, testLogger())

			pool, method := rc.Lookup(context.Background(), tradeableRow("a", 100), "tok-a")
			if pool != tt.wantPool || method != tt.wantMethod {
				t.Errorf("got (%v, %s), want (%v, %s)", pool, method, tt.wantPool, tt.wantMethod)
			}
		})
	}
}

func TestLookupKeywordFallback(t *testing.T) {
	t.Parallel()

	srv := rewardsServer(t, nil, nil, nil)
	defer srv.Close()
	rc := NewRewardsClient(srv.URL, testLogger())

	row := tradeableRow("a", 100)
	row.Question = "Bitcoin above $120k on Sunday?"

	pool, method := rc.Lookup(context.Background(), row, "tok-a")
	if pool != forcedSponsorPool || method != RewardKeyword {
		t.Errorf("got (%v, %s), want (%v, keyword)", pool, method, forcedSponsorPool)
	}
}

func TestLookupSurvivesEndpointErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	rc := NewRewardsClient(srv.URL, testLogger())

	pool, method := rc.Lookup(context.Background(), tradeableRow("a", 100), "tok-a")
	if pool != 0 || method != RewardNone {
		t.Errorf("got (%v, %s), want (0, none) when all endpoints fail", pool, method)
	}
}

func TestRewardsRowPoolUnion(t *testing.T) {
	t.Parallel()

	if got := (rewardsRow{RewardsAmount: 10, DailyRate: 20}).pool(); got != 10 {
		t.Errorf("pool = %v, want 10 (first positive field)", got)
	}
	if got := (rewardsRow{Amount: 5}).pool(); got != 5 {
		t.Errorf("pool = %v, want 5", got)
	}
	if got := (rewardsRow{MaxSpreadBps: 4}).pool(); got != 0 {
		t.Errorf("pool = %v, want 0 for constraint-only row", got)
	}
}
