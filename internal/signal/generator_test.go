package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tradepilot/internal/types"
)

type MockRefiner struct {
	mock.Mock
}

func (m *MockRefiner) RefineSignal(ctx context.Context, symbol string, snapshot types.IndicatorSnapshot) (types.Refinement, error) {
	args := m.Called(ctx, symbol, snapshot)
	return args.Get(0).(types.Refinement), args.Error(1)
}

// trendingBars builds n chronological bars with a constant per-bar drift.
func trendingBars(n int, start, drift float64) []types.Bar {
	bars := make([]types.Bar, n)
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	price := start
	for i := range bars {
		price += drift
		bars[i] = types.Bar{
			Timestamp: ts.Add(time.Duration(i) * 24 * time.Hour),
			Open:      price - drift/2,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1_000_000,
		}
	}
	return bars
}

func TestGenerate_InsufficientHistory(t *testing.T) {
	g := NewGenerator(nil)
	_, err := g.Generate(context.Background(), Request{
		Symbol: "AAPL",
		Bars:   trendingBars(MinBars-1, 100, 0.5),
	})
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestGenerate_UptrendProducesLongEntry(t *testing.T) {
	g := NewGenerator(nil)
	sig, err := g.Generate(context.Background(), Request{
		Symbol: "AAPL",
		Bars:   trendingBars(250, 100, 0.5),
	})
	require.NoError(t, err)

	assert.Equal(t, types.SignalEntryLong, sig.Type)
	assert.Positive(t, sig.Composite)
	assert.Positive(t, sig.Confidence)
	assert.LessOrEqual(t, sig.Confidence, 1.0)
	assert.False(t, sig.Advisory.Refined)
	assert.True(t, sig.Actionable())

	// Price levels hang off the last close via ATR.
	lastClose := sig.Indicators.Raw["close"]
	assert.Less(t, sig.StopLossPrice, lastClose)
	assert.Greater(t, sig.TakeProfitPrice, lastClose)
}

func TestGenerate_DowntrendProducesShortEntry(t *testing.T) {
	g := NewGenerator(nil)
	sig, err := g.Generate(context.Background(), Request{
		Symbol: "TSLA",
		Bars:   trendingBars(250, 400, -0.5),
	})
	require.NoError(t, err)

	assert.Equal(t, types.SignalEntryShort, sig.Type)
	assert.Negative(t, sig.Composite)
	lastClose := sig.Indicators.Raw["close"]
	assert.Greater(t, sig.StopLossPrice, lastClose)
	assert.Less(t, sig.TakeProfitPrice, lastClose)
}

func TestGenerate_ReversalAgainstHeldPositionIsExit(t *testing.T) {
	g := NewGenerator(nil)
	sig, err := g.Generate(context.Background(), Request{
		Symbol:   "TSLA",
		Bars:     trendingBars(250, 400, -0.5),
		HeldSide: types.PositionLong,
	})
	require.NoError(t, err)
	assert.Equal(t, types.SignalExit, sig.Type)
}

func TestGenerate_AdvisoryRefinementBlendsConfidence(t *testing.T) {
	refiner := new(MockRefiner)
	refiner.On("RefineSignal", mock.Anything, "AAPL", mock.Anything).
		Return(types.Refinement{Refined: true, Score: 90, Conviction: "strong alignment"}, nil)

	g := NewGenerator(refiner)
	sig, err := g.Generate(context.Background(), Request{
		Symbol: "AAPL",
		Bars:   trendingBars(250, 100, 0.5),
	})
	require.NoError(t, err)

	assert.True(t, sig.Advisory.Refined)
	assert.Equal(t, 90.0, sig.Advisory.Score)
	assert.Equal(t, "strong alignment", sig.Advisory.Conviction)
	refiner.AssertExpectations(t)
}

func TestGenerate_AdvisoryFailureFallsBackQuantitative(t *testing.T) {
	refiner := new(MockRefiner)
	refiner.On("RefineSignal", mock.Anything, "AAPL", mock.Anything).
		Return(types.Refinement{}, errors.New("upstream timeout"))

	g := NewGenerator(refiner)
	sig, err := g.Generate(context.Background(), Request{
		Symbol: "AAPL",
		Bars:   trendingBars(250, 100, 0.5),
	})
	require.NoError(t, err, "advisory failure must never fail the call")
	assert.False(t, sig.Advisory.Refined)
	assert.Positive(t, sig.Confidence)
}

func TestGenerate_ValidityWindowFollowsTTL(t *testing.T) {
	g := NewGenerator(nil)
	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	g.nowFn = func() time.Time { return now }

	sig, err := g.Generate(context.Background(), Request{
		Symbol: "AAPL",
		Bars:   trendingBars(250, 100, 0.5),
		TTL:    90 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, now.Add(90*time.Second), sig.ValidUntil)
	assert.False(t, sig.Stale(now.Add(89*time.Second)))
	assert.True(t, sig.Stale(now.Add(91*time.Second)))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		composite float64
		held      types.PositionSide
		want      types.SignalType
	}{
		{"strong positive", 0.5, "", types.SignalEntryLong},
		{"at entry threshold", 0.25, "", types.SignalEntryLong},
		{"weak positive", 0.2, "", types.SignalHold},
		{"weak negative", -0.2, "", types.SignalHold},
		{"strong negative", -0.4, "", types.SignalEntryShort},
		{"long position, mild reversal", -0.15, types.PositionLong, types.SignalExit},
		{"long position, noise", -0.05, types.PositionLong, types.SignalHold},
		{"short position, mild reversal", 0.15, types.PositionShort, types.SignalExit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(tc.composite, tc.held))
		})
	}
}

func TestBucketStrength(t *testing.T) {
	assert.Equal(t, types.StrengthStrong, bucketStrength(0.7))
	assert.Equal(t, types.StrengthStrong, bucketStrength(-0.61))
	assert.Equal(t, types.StrengthModerate, bucketStrength(0.45))
	assert.Equal(t, types.StrengthWeak, bucketStrength(0.3))
}
