package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"polymarket-quoter/internal/config"
	"polymarket-quoter/internal/engine"
	"polymarket-quoter/internal/exchange"
	"polymarket-quoter/internal/store"
	"polymarket-quoter/pkg/types"
)

// VenueControl is the slice of exchange capability the control API needs
// beyond what the engine already consumes. The exchange REST client
// satisfies it; it is nil in paper mode.
type VenueControl interface {
	GetOpenOrders(ctx context.Context, market string) ([]types.OpenOrder, error)
	CancelAll(ctx context.Context) (*types.CancelResponse, error)
	DeriveAPIKey(ctx context.Context) (*exchange.Credentials, error)
	ProbeGeoblock(ctx context.Context) (bool, error)
	Auth() *exchange.Auth
}

// Handlers holds the control API's dependencies.
type Handlers struct {
	eng    *engine.Engine
	venue  VenueControl
	store  *store.Store
	logger *slog.Logger
}

func NewHandlers(eng *engine.Engine, venue VenueControl, st *store.Store, logger *slog.Logger) *Handlers {
	return &Handlers{
		eng:    eng,
		venue:  venue,
		store:  st,
		logger: logger.With("component", "api-handlers"),
	}
}

// actionRequest is the POST /api body: an action name plus its flat
// parameters. The run_cycle overlay fields are pointers so that absent
// keys fall through to the base configuration.
type actionRequest struct {
	Action string `json:"action"`

	// get_markets
	Limit int `json:"limit"`

	// run_cycle overlay (same keys as the YAML config)
	Paper               *bool    `json:"paper"`
	OrderSize           *float64 `json:"order_size"`
	BaseSpreadBps       *int     `json:"base_spread_bps"`
	UseExternalOracle   *bool    `json:"use_external_oracle"`
	AggressiveShortTerm *bool    `json:"aggressive_short_term"`
	MaxMarkets          *int     `json:"max_markets"`
	MinSponsorPool      *float64 `json:"min_sponsor_pool"`
	MinLiquidityDepth   *float64 `json:"min_liquidity_depth"`
	MinVolume24h        *float64 `json:"min_volume_24h"`
	MaxPosition         *float64 `json:"max_position"`
	TotalCapital        *float64 `json:"total_capital"`
}

// overlay applies the request's optional fields on top of the base config.
func (req *actionRequest) overlay(base config.Config) config.Config {
	cfg := base
	if req.Paper != nil {
		cfg.Paper = *req.Paper
	}
	if req.OrderSize != nil {
		cfg.Quoting.OrderSize = *req.OrderSize
	}
	if req.BaseSpreadBps != nil {
		cfg.Quoting.BaseSpreadBps = *req.BaseSpreadBps
	}
	if req.UseExternalOracle != nil {
		cfg.Quoting.UseExternalOracle = *req.UseExternalOracle
	}
	if req.AggressiveShortTerm != nil {
		cfg.Quoting.AggressiveShortTerm = *req.AggressiveShortTerm
	}
	if req.MaxMarkets != nil {
		cfg.Selection.MaxMarkets = *req.MaxMarkets
	}
	if req.MinSponsorPool != nil {
		cfg.Selection.MinSponsorPool = *req.MinSponsorPool
	}
	if req.MinLiquidityDepth != nil {
		cfg.Selection.MinLiquidityDepth = *req.MinLiquidityDepth
	}
	if req.MinVolume24h != nil {
		cfg.Selection.MinVolume24h = *req.MinVolume24h
	}
	if req.MaxPosition != nil {
		cfg.Risk.MaxPosition = *req.MaxPosition
	}
	if req.TotalCapital != nil {
		cfg.Risk.TotalCapital = *req.TotalCapital
	}
	return cfg
}

// HandleAction dispatches POST /api requests by action name.
func (h *Handlers) HandleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	ctx := r.Context()
	switch req.Action {
	case "derive_creds":
		h.deriveCreds(ctx, w)
	case "get_markets":
		h.getMarkets(ctx, w, req.Limit)
	case "get_stats":
		h.getStats(ctx, w)
	case "get_positions":
		h.getPositions(ctx, w)
	case "get_pnl_history":
		h.getPnLHistory(ctx, w)
	case "cancel_all":
		h.cancelAll(ctx, w)
	case "reset_positions":
		h.resetPositions(ctx, w)
	case "run_cycle":
		h.runCycle(ctx, w, &req)
	case "whoami":
		h.whoami(ctx, w)
	case "start":
		h.eng.Start()
		writeJSON(w, map[string]any{"running": true})
	case "stop":
		h.eng.Stop()
		writeJSON(w, map[string]any{"running": false})
	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+req.Action)
	}
}

func (h *Handlers) deriveCreds(ctx context.Context, w http.ResponseWriter) {
	if h.venue == nil {
		writeError(w, http.StatusBadRequest, "no venue client in paper mode")
		return
	}
	if _, err := h.venue.DeriveAPIKey(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"apiKey": h.venue.Auth().APIKeyPrefix()})
}

func (h *Handlers) getMarkets(ctx context.Context, w http.ResponseWriter, limit int) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.eng.Markets(ctx, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, rows)
}

func (h *Handlers) getStats(ctx context.Context, w http.ResponseWriter) {
	stats, err := h.eng.GetStats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, stats)
}

func (h *Handlers) getPositions(ctx context.Context, w http.ResponseWriter) {
	positions, err := h.store.GetPositions(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if positions == nil {
		positions = []types.Position{}
	}
	writeJSON(w, positions)
}

func (h *Handlers) getPnLHistory(ctx context.Context, w http.ResponseWriter) {
	rows, err := h.store.PnLHistory(ctx, 30)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []types.DailyPnL{}
	}
	writeJSON(w, rows)
}

func (h *Handlers) cancelAll(ctx context.Context, w http.ResponseWriter) {
	if h.venue == nil {
		writeError(w, http.StatusBadRequest, "no venue client in paper mode")
		return
	}
	result, err := h.venue.CancelAll(ctx)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, result)
}

func (h *Handlers) resetPositions(ctx context.Context, w http.ResponseWriter) {
	n, err := h.store.ResetPositions(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logger.Warn("positions reset", "rows", n)
	writeJSON(w, map[string]int64{"reset": n})
}

func (h *Handlers) runCycle(ctx context.Context, w http.ResponseWriter, req *actionRequest) {
	cfg := req.overlay(h.eng.Config())

	// A live cycle needs a signing client; a process booted in paper mode
	// has none, so the overlay cannot flip it live.
	if !cfg.Paper && h.venue == nil {
		writeError(w, http.StatusBadRequest, "live cycle requires a signing venue client; this process was started in paper mode")
		return
	}

	report, err := h.eng.TriggerCycle(ctx, cfg)
	if err != nil {
		if errors.Is(err, engine.ErrCycleInFlight) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, report)
}

// whoami bundles identity and connectivity diagnostics: signer address,
// API-key prefix, geoblock probe, a sample of open orders, and the most
// recent trade-log entries.
func (h *Handlers) whoami(ctx context.Context, w http.ResponseWriter) {
	out := map[string]any{
		"mode": map[bool]string{true: "paper", false: "live"}[h.eng.Config().Paper],
	}

	recent, err := h.store.RecentTradeLog(ctx, 10)
	if err == nil {
		out["recentActions"] = recent
	}

	if h.venue == nil || h.venue.Auth() == nil {
		out["identity"] = "none (paper mode)"
		writeJSON(w, out)
		return
	}

	auth := h.venue.Auth()
	out["address"] = auth.Address().Hex()
	out["apiKey"] = auth.APIKeyPrefix()
	out["hasCredentials"] = auth.HasL2Credentials()

	if blocked, err := h.venue.ProbeGeoblock(ctx); err != nil {
		out["geoblocked"] = "probe failed: " + err.Error()
	} else {
		out["geoblocked"] = blocked
	}

	if open, err := h.venue.GetOpenOrders(ctx, ""); err != nil {
		out["openOrders"] = "fetch failed: " + err.Error()
	} else {
		if len(open) > 5 {
			open = open[:5]
		}
		out["openOrders"] = open
	}

	writeJSON(w, out)
}

// HandleRoot serves the engine health snapshot on GET /.
func (h *Handlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, h.eng.HealthSnapshot())
}

// HandleHealthCheck is the load-balancer probe: plain "OK".
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
