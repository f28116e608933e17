// Package engine is the quoting engine: a periodic trading cycle that picks
// markets worth quoting, computes two-sided quotes, and reconciles them
// against resting orders (or simulates fills in paper mode).
//
// The cycle is single-threaded and cooperative: the driver fires one cycle
// per interval and drops ticks that would overlap a still-running cycle.
// The dashboard-facing read API runs concurrently against the store, which
// provides atomic row-level upserts.
//
// Lifecycle: New() → Start() → [runs until Stop or SIGINT] → Stop()
package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"polymarket-quoter/internal/config"
	"polymarket-quoter/internal/market"
	"polymarket-quoter/internal/oracle"
	"polymarket-quoter/internal/risk"
	"polymarket-quoter/internal/store"
	"polymarket-quoter/internal/strategy"
	"polymarket-quoter/pkg/types"
)

// overlapWarnInterval rate-limits "cycle overlap" warnings: drops within
// this window of the last warning stay silent.
const overlapWarnInterval = 15 * time.Second

// ErrCycleInFlight rejects a manual cycle trigger while another cycle runs.
var ErrCycleInFlight = errors.New("a cycle is already running")

// VenueClient is the slice of exchange capability the engine consumes.
// The exchange REST client satisfies it; tests substitute a fake.
type VenueClient interface {
	GetOrderBook(ctx context.Context, tokenID string) (*types.BookResponse, error)
	GetOpenOrders(ctx context.Context, market string) ([]types.OpenOrder, error)
	PostOrder(ctx context.Context, order types.UserOrder) (*types.OrderResponse, error)
	CancelOrder(ctx context.Context, orderID string) (*types.CancelResponse, error)
	CancelAll(ctx context.Context) (*types.CancelResponse, error)
}

// Engine owns the trading cycle and its collaborators.
type Engine struct {
	client   VenueClient
	catalog  *market.Catalog
	rewards  *market.RewardsClient
	store    *store.Store
	governor *risk.Governor
	oracle   *oracle.Client
	sim      *strategy.Simulator
	logger   *slog.Logger

	// cfg is the base configuration; run_cycle requests overlay it for a
	// single cycle without mutating it.
	cfgMu sync.RWMutex
	cfg   config.Config

	// logSink, when set, receives every cycle log line (dashboard stream).
	logSink func(string)

	running  atomic.Bool
	inFlight atomic.Bool
	stopMu   sync.Mutex
	stopCh   chan struct{}

	overlapMu       sync.Mutex
	lastOverlapWarn time.Time

	// Health counters for GET /.
	startedAt   time.Time
	cycles      atomic.Int64
	totalOrders atomic.Int64
	lastCycle   atomic.Int64 // unix seconds, 0 = never
}

// New wires the engine's collaborators. The venue client may be an
// unauthenticated client in paper mode (only book reads are used there).
// The RNG drives the paper-fill simulator; pass a seeded one in tests.
func New(cfg config.Config, client VenueClient, st *store.Store, rng *rand.Rand, logger *slog.Logger) *Engine {
	rewardsBase := cfg.API.RewardsBaseURL
	if rewardsBase == "" {
		rewardsBase = cfg.API.CLOBBaseURL
	}

	e := &Engine{
		client:    client,
		catalog:   market.NewCatalog(cfg.API.GammaBaseURL, logger),
		rewards:   market.NewRewardsClient(rewardsBase, logger),
		store:     st,
		governor:  risk.NewGovernor(st, logger),
		oracle:    oracle.New(cfg.API.OracleBaseURL, logger),
		sim:       strategy.NewSimulator(rng, logger),
		logger:    logger.With("component", "engine"),
		cfg:       cfg,
		startedAt: time.Now(),
	}
	return e
}

// SetLogSink registers a receiver for cycle log lines. Must be called
// before Start.
func (e *Engine) SetLogSink(sink func(string)) {
	e.logSink = sink
}

// Config returns a copy of the current base configuration.
func (e *Engine) Config() config.Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// Running reports whether the periodic driver is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Start launches the periodic driver: an immediate first cycle, then one
// per interval. Starting an already-running engine is a no-op.
func (e *Engine) Start() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}

	e.stopMu.Lock()
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.stopMu.Unlock()

	startCfg := e.Config()
	e.logger.Info("engine started", "interval", startCfg.Interval())
	go e.loop(stopCh)
}

// Stop disables future ticks and best-effort cancels all resting orders.
// It never interrupts an in-flight cycle; that cycle finishes on its own.
// Stop is idempotent.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}

	e.stopMu.Lock()
	if e.stopCh != nil {
		close(e.stopCh)
		e.stopCh = nil
	}
	e.stopMu.Unlock()

	cfg := e.Config()
	if !cfg.Paper && e.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := e.client.CancelAll(ctx); err != nil {
			e.logger.Error("cancel-all on stop failed", "error", err)
		}
	}

	e.logger.Info("engine stopped")
}

func (e *Engine) loop(stopCh chan struct{}) {
	e.tick()

	loopCfg := e.Config()
	ticker := time.NewTicker(loopCfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// tick runs one cycle unless the previous one is still in flight, in which
// case the tick is dropped (with a rate-limited warning).
func (e *Engine) tick() {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.warnOverlap()
		return
	}
	defer e.inFlight.Store(false)

	report := e.RunCycle(context.Background(), e.Config())
	e.cycles.Add(1)
	e.totalOrders.Add(int64(report.OrdersPlaced))
	e.lastCycle.Store(time.Now().Unix())
}

// TriggerCycle runs one cycle on demand with the given configuration,
// typically a per-request overlay of the base config. It shares the
// in-flight guard with the periodic driver, so a manual trigger never
// overlaps a scheduled cycle.
func (e *Engine) TriggerCycle(ctx context.Context, cfg config.Config) (*CycleReport, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil, ErrCycleInFlight
	}
	defer e.inFlight.Store(false)

	report := e.RunCycle(ctx, cfg)
	e.cycles.Add(1)
	e.totalOrders.Add(int64(report.OrdersPlaced))
	e.lastCycle.Store(time.Now().Unix())
	return report, nil
}

// Markets fetches raw catalog rows for diagnostics, bypassing enrichment.
func (e *Engine) Markets(ctx context.Context, limit int) ([]market.GammaMarket, error) {
	return e.catalog.FetchTop(ctx, limit)
}

func (e *Engine) warnOverlap() {
	e.overlapMu.Lock()
	defer e.overlapMu.Unlock()

	if time.Since(e.lastOverlapWarn) < overlapWarnInterval {
		return
	}
	e.lastOverlapWarn = time.Now()
	e.logger.Warn("cycle overlap: tick dropped, previous cycle still running")
}

// Health is the GET / payload.
type Health struct {
	Status      string `json:"status"`
	Mode        string `json:"mode"`
	Cycles      int64  `json:"cycles"`
	LastCycle   string `json:"lastCycle"`
	TotalOrders int64  `json:"totalOrders"`
	Uptime      string `json:"uptime"`
}

// HealthSnapshot returns the engine's health counters.
func (e *Engine) HealthSnapshot() Health {
	status := "paused"
	if e.running.Load() {
		status = "running"
	}
	mode := "live"
	if e.Config().Paper {
		mode = "paper"
	}

	last := "never"
	if ts := e.lastCycle.Load(); ts > 0 {
		last = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}

	return Health{
		Status:      status,
		Mode:        mode,
		Cycles:      e.cycles.Load(),
		LastCycle:   last,
		TotalOrders: e.totalOrders.Load(),
		Uptime:      time.Since(e.startedAt).Round(time.Second).String(),
	}
}
