package risk

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"polymarket-quoter/internal/store"
)

func newTestGovernor(t *testing.T) (*Governor, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "risk.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewGovernor(st, logger), st
}

func TestBreakerStaysClearUnderLimit(t *testing.T) {
	t.Parallel()
	g, st := newTestGovernor(t)
	ctx := context.Background()

	// −1.90 > −1.95 (= −3% of 65): still inside the limit.
	date := store.DateKey(time.Now())
	if err := st.AddRealizedPnL(ctx, date, -1.90, 65); err != nil {
		t.Fatalf("AddRealizedPnL: %v", err)
	}

	tripped, err := g.EvaluateBreaker(ctx, 65)
	if err != nil {
		t.Fatalf("EvaluateBreaker: %v", err)
	}
	if tripped {
		t.Error("breaker tripped under the loss limit")
	}
}

func TestBreakerTripsAndLatches(t *testing.T) {
	t.Parallel()
	g, st := newTestGovernor(t)
	ctx := context.Background()

	date := store.DateKey(time.Now())
	if err := st.AddRealizedPnL(ctx, date, -2.00, 65); err != nil {
		t.Fatalf("AddRealizedPnL: %v", err)
	}

	tripped, err := g.EvaluateBreaker(ctx, 65)
	if err != nil {
		t.Fatalf("EvaluateBreaker: %v", err)
	}
	if !tripped {
		t.Fatal("breaker did not trip at −2.00 on capital 65")
	}

	// Latched: even if PnL recovers, the day stays halted.
	if err := st.AddRealizedPnL(ctx, date, 5.00, 65); err != nil {
		t.Fatalf("AddRealizedPnL: %v", err)
	}
	tripped, err = g.EvaluateBreaker(ctx, 65)
	if err != nil {
		t.Fatalf("EvaluateBreaker: %v", err)
	}
	if !tripped {
		t.Error("breaker unlatched within the same day")
	}

	day, err := st.GetDaily(ctx, date, 65)
	if err != nil {
		t.Fatalf("GetDaily: %v", err)
	}
	if !day.CircuitBreaker {
		t.Error("breaker flag not persisted")
	}
}

func TestRepairPositions(t *testing.T) {
	t.Parallel()
	g, st := newTestGovernor(t)
	ctx := context.Background()

	// Cap 30 ⇒ repair bound 45.
	if err := st.SetPosition(ctx, "ok", 44); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	if err := st.SetPosition(ctx, "exactly-bound", 45); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	if err := st.SetPosition(ctx, "long-drift", 46); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	if err := st.SetPosition(ctx, "short-drift", -50); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}

	if err := g.RepairPositions(ctx, 30); err != nil {
		t.Fatalf("RepairPositions: %v", err)
	}

	wants := map[string]float64{"ok": 44, "exactly-bound": 45, "long-drift": 0, "short-drift": 0}
	for id, want := range wants {
		net, err := st.GetPosition(ctx, id)
		if err != nil {
			t.Fatalf("GetPosition %s: %v", id, err)
		}
		if net != want {
			t.Errorf("position %s = %v, want %v", id, net, want)
		}
	}
}
