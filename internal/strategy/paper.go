package strategy

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/google/uuid"

	"polymarket-quoter/pkg/types"
)

// Fill probabilities per side per cycle. Tight quotes sit near the touch and
// trade more often.
const (
	tightFillProb     = 0.65
	wideFillProb      = 0.40
	tightSpreadCutoff = 12 // bp
)

// paperCaptureRatio is the fraction of the quoted spread credited as PnL on
// a simulated fill. Half-spread capture is the conservative assumption: we
// earn the spread only when the other side eventually trades too.
const paperCaptureRatio = 0.5

// Fill is one simulated execution.
type Fill struct {
	OrderID string
	Side    types.Side
	Price   float64
	Size    float64
	PnL     float64 // spread capture credited to daily PnL
}

// Simulator models fills against our quotes in paper mode. The RNG is
// injected so tests can seed it.
type Simulator struct {
	rng    *rand.Rand
	logger *slog.Logger
}

// NewSimulator creates a paper-fill simulator.
func NewSimulator(rng *rand.Rand, logger *slog.Logger) *Simulator {
	return &Simulator{
		rng:    rng,
		logger: logger.With("component", "paper"),
	}
}

// Simulate rolls fills for both sides of a quote given the current net
// position and the position cap. Returns the fills applied and the resulting
// position. A side whose fill would push |position| past the cap is skipped.
// BUY is considered before SELL, mirroring live reconciliation order.
func (s *Simulator) Simulate(q Quote, position, maxPosition float64) ([]Fill, float64) {
	var fills []Fill

	if !q.BuyPaused {
		if fill, ok := s.roll(q, types.BUY, q.BuyPrice, q.BuySize, position, maxPosition); ok {
			fills = append(fills, fill)
			position += fill.Size
		}
	}
	if !q.SellPaused {
		if fill, ok := s.roll(q, types.SELL, q.SellPrice, q.SellSize, position, maxPosition); ok {
			fills = append(fills, fill)
			position -= fill.Size
		}
	}

	return fills, position
}

// roll decides whether one side fills and for how much.
func (s *Simulator) roll(q Quote, side types.Side, price, size, position, maxPosition float64) (Fill, bool) {
	prob := wideFillProb
	if q.SpreadBps <= tightSpreadCutoff {
		prob = tightFillProb
	}

	s.logger.Debug("paper intention",
		"token", q.TokenID, "side", side, "price", price, "size", size, "fill_prob", prob)

	if s.rng.Float64() >= prob {
		return Fill{}, false
	}

	headroom := maxPosition - math.Abs(position)
	fillSize := math.Round(math.Min(size, headroom) * (0.3 + s.rng.Float64()*0.7))
	if fillSize <= 0 {
		return Fill{}, false
	}

	// Reject fills that would breach the cap.
	next := position + fillSize
	if side == types.SELL {
		next = position - fillSize
	}
	if math.Abs(next) > maxPosition {
		s.logger.Debug("paper fill skipped: would exceed position cap",
			"token", q.TokenID, "side", side, "next", next, "cap", maxPosition)
		return Fill{}, false
	}

	fill := Fill{
		OrderID: "paper-" + uuid.NewString(),
		Side:    side,
		Price:   price,
		Size:    fillSize,
		PnL:     float64(q.SpreadBps) / 10000 * fillSize * paperCaptureRatio,
	}

	s.logger.Info("paper fill",
		"token", q.TokenID, "side", side, "price", price, "size", fillSize, "pnl", fill.PnL)
	return fill, true
}
