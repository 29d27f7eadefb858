package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"tradepilot/internal/types"
)

func TestCalculateMetrics_ExposureAndConcentration(t *testing.T) {
	m := CalculateMetrics(MetricsInput{
		PortfolioValue:  decimal.NewFromInt(100_000),
		StartOfDayValue: decimal.NewFromInt(100_000),
		Positions: []types.PositionSnapshot{
			{Symbol: "AAPL", MarketValue: decimal.NewFromInt(30_000)},
			{Symbol: "TSLA", MarketValue: decimal.NewFromInt(-20_000)}, // short
		},
	})

	assert.InDelta(t, 50.0, m.ExposurePct, 1e-9)
	assert.InDelta(t, 30.0, m.Concentration["AAPL"], 1e-9)
	assert.InDelta(t, 20.0, m.Concentration["TSLA"], 1e-9, "shorts count by absolute value")
	assert.Equal(t, 2, m.PositionCount)
}

func TestCalculateMetrics_DailyLossOnlyOnNegativePnL(t *testing.T) {
	up := CalculateMetrics(MetricsInput{
		PortfolioValue:  decimal.NewFromInt(105_000),
		StartOfDayValue: decimal.NewFromInt(100_000),
		DailyPnL:        decimal.NewFromInt(5_000),
	})
	assert.Zero(t, up.DailyLossPct)
	assert.Zero(t, up.DrawdownPct)

	down := CalculateMetrics(MetricsInput{
		PortfolioValue:  decimal.NewFromInt(97_000),
		StartOfDayValue: decimal.NewFromInt(100_000),
		DailyPnL:        decimal.NewFromInt(-3_000),
	})
	assert.InDelta(t, 3.0, down.DailyLossPct, 1e-9)
	assert.InDelta(t, 3.0, down.DrawdownPct, 1e-9)
}

func TestCalculateMetrics_DrawdownMonotonic(t *testing.T) {
	prev := 0.0
	for _, portfolio := range []int64{99_000, 95_000, 90_000, 80_000} {
		m := CalculateMetrics(MetricsInput{
			PortfolioValue:  decimal.NewFromInt(portfolio),
			StartOfDayValue: decimal.NewFromInt(100_000),
		})
		assert.Greater(t, m.DrawdownPct, prev)
		prev = m.DrawdownPct
	}
}

func TestCalculateMetrics_ZeroStartOfDay(t *testing.T) {
	m := CalculateMetrics(MetricsInput{
		PortfolioValue: decimal.NewFromInt(1_000),
		DailyPnL:       decimal.NewFromInt(-500),
	})
	assert.Zero(t, m.DailyLossPct, "no start-of-day baseline, no percentage")
	assert.Zero(t, m.DrawdownPct)
}
