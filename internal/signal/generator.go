package signal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"tradepilot/internal/logger"
	"tradepilot/internal/types"
)

// ErrInsufficientData is returned when the bar history is shorter than
// MinBars. Callers must not act on a request that returns this.
var ErrInsufficientData = errors.New("insufficient bar history for signal generation")

// Composite thresholds and strength buckets.
const (
	entryThreshold = 0.25
	exitThreshold  = 0.10
	strongCutoff   = 0.60
	moderateCutoff = 0.40
)

// Default aggregation weights; they sum to 1.
var defaultWeights = Weights{Trend: 0.35, Momentum: 0.30, Volume: 0.20, Volatility: 0.15}

type Weights struct {
	Momentum   float64
	Trend      float64
	Volatility float64
	Volume     float64
}

// Refiner is the advisory scorer contract; nil disables refinement.
type Refiner interface {
	RefineSignal(ctx context.Context, symbol string, snapshot types.IndicatorSnapshot) (types.Refinement, error)
}

// Request describes one signal computation. HeldSide tells the generator an
// open position exists so momentum reversals classify as exit instead of a
// fresh opposite entry.
type Request struct {
	Symbol   string
	Bars     []types.Bar
	HeldSide types.PositionSide
	TTL      time.Duration
}

// Generator combines indicator sub-scores into a directional signal,
// optionally refined by the advisory scorer.
type Generator struct {
	weights Weights
	refiner Refiner
	nowFn   func() time.Time
}

func NewGenerator(refiner Refiner) *Generator {
	return &Generator{
		weights: defaultWeights,
		refiner: refiner,
		nowFn:   time.Now,
	}
}

// Generate computes a signal for the request, or ErrInsufficientData when
// history is too short. The quantitative result is deterministic; advisory
// failures degrade to Refined=false and never fail the call.
func (g *Generator) Generate(ctx context.Context, req Request) (*types.Signal, error) {
	if len(req.Bars) < MinBars {
		return nil, fmt.Errorf("%w: %s has %d bars, need %d", ErrInsufficientData, req.Symbol, len(req.Bars), MinBars)
	}

	snapshot := computeIndicators(req.Bars)
	composite := g.weights.Trend*snapshot.Trend +
		g.weights.Momentum*snapshot.Momentum +
		g.weights.Volume*snapshot.Volume +
		g.weights.Volatility*snapshot.Volatility
	composite = round4(composite)

	sigType := classify(composite, req.HeldSide)
	strength := bucketStrength(composite)
	confidence := math.Min(1, math.Abs(composite)*1.25)

	now := g.nowFn()
	ttl := req.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	sig := &types.Signal{
		ID:          uuid.NewString(),
		Symbol:      req.Symbol,
		Type:        sigType,
		Strength:    strength,
		Composite:   composite,
		Indicators:  snapshot,
		GeneratedAt: now,
		ValidUntil:  now.Add(ttl),
	}
	attachPriceLevels(sig)

	if g.refiner != nil && sigType != types.SignalHold {
		ref, err := g.refiner.RefineSignal(ctx, req.Symbol, snapshot)
		if err != nil {
			logger.Warnf("advisory refinement for %s failed, using quantitative score: %v", req.Symbol, err)
		} else {
			sig.Advisory = ref
			confidence = 0.7*confidence + 0.3*(ref.Score/100)
		}
	}
	sig.Confidence = round4(confidence)
	return sig, nil
}

// classify maps the composite score onto a signal type. Reversals against an
// open position become exits rather than opposite entries.
func classify(composite float64, held types.PositionSide) types.SignalType {
	switch held {
	case types.PositionLong:
		if composite <= -exitThreshold {
			return types.SignalExit
		}
	case types.PositionShort:
		if composite >= exitThreshold {
			return types.SignalExit
		}
	}
	switch {
	case composite >= entryThreshold:
		return types.SignalEntryLong
	case composite <= -entryThreshold:
		return types.SignalEntryShort
	default:
		return types.SignalHold
	}
}

func bucketStrength(composite float64) types.SignalStrength {
	mag := math.Abs(composite)
	switch {
	case mag >= strongCutoff:
		return types.StrengthStrong
	case mag >= moderateCutoff:
		return types.StrengthModerate
	default:
		return types.StrengthWeak
	}
}

// attachPriceLevels derives stop and target prices from the last close and
// ATR. 2x ATR stop, 3x ATR target.
func attachPriceLevels(sig *types.Signal) {
	close := sig.Indicators.Raw["close"]
	atr := sig.Indicators.Raw["atr"]
	if close <= 0 || atr <= 0 {
		return
	}
	switch sig.Type {
	case types.SignalEntryLong:
		sig.StopLossPrice = round4(close - 2*atr)
		sig.TakeProfitPrice = round4(close + 3*atr)
		sig.TargetPrice = sig.TakeProfitPrice
	case types.SignalEntryShort:
		sig.StopLossPrice = round4(close + 2*atr)
		sig.TakeProfitPrice = round4(close - 3*atr)
		sig.TargetPrice = sig.TakeProfitPrice
	}
}
