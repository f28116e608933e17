// Package risk enforces the capital limits that gate every trading cycle:
// the daily loss circuit breaker, the capital-derived size clamps (applied
// via config.Normalize), and position auto-repair.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"polymarket-quoter/internal/config"
	"polymarket-quoter/internal/store"
)

// Governor evaluates risk state against the persistent daily row before any
// quoting work happens.
type Governor struct {
	store  *store.Store
	logger *slog.Logger
}

// NewGovernor creates a governor backed by the persistent store.
func NewGovernor(st *store.Store, logger *slog.Logger) *Governor {
	return &Governor{
		store:  st,
		logger: logger.With("component", "risk"),
	}
}

// EvaluateBreaker checks the daily circuit breaker for the current UTC date.
// It returns true when quoting must stop: either the breaker was already
// latched today, or today's realized loss breaches −3% of capital, in which
// case it latches now. The latch persists for the remainder of the date.
func (g *Governor) EvaluateBreaker(ctx context.Context, capital float64) (bool, error) {
	date := store.DateKey(time.Now())

	day, err := g.store.GetDaily(ctx, date, capital)
	if err != nil {
		return false, fmt.Errorf("risk: read daily row: %w", err)
	}

	if day.CircuitBreaker {
		g.logger.Warn("circuit breaker latched, no quoting today",
			"date", date, "realized_pnl", day.RealizedPnL)
		return true, nil
	}

	limit := -config.CircuitBreakerFraction * capital
	if day.RealizedPnL < limit {
		if err := g.store.SetCircuitBreaker(ctx, date); err != nil {
			return true, fmt.Errorf("risk: latch breaker: %w", err)
		}
		g.logger.Error("🚨 circuit breaker TRIPPED",
			"date", date, "realized_pnl", day.RealizedPnL, "limit", limit)
		return true, nil
	}

	return false, nil
}

// RepairPositions zeroes any stored position whose magnitude exceeds
// 1.5× the position cap. Such values can only come from legacy data or
// drift; quoting math assumes they never occur.
func (g *Governor) RepairPositions(ctx context.Context, maxPosition float64) error {
	positions, err := g.store.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("risk: read positions: %w", err)
	}

	bound := config.PositionRepairFactor * maxPosition
	for _, p := range positions {
		if math.Abs(p.NetPosition) <= bound {
			continue
		}
		g.logger.Warn("auto-zeroing out-of-bound position",
			"market", p.MarketID, "net", p.NetPosition, "bound", bound)
		if err := g.store.SetPosition(ctx, p.MarketID, 0); err != nil {
			return fmt.Errorf("risk: repair %s: %w", p.MarketID, err)
		}
	}
	return nil
}
