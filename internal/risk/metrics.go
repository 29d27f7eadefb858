package risk

import (
	"github.com/shopspring/decimal"

	"tradepilot/internal/types"
)

// MetricsInput carries everything CalculateMetrics needs. Monetary values
// stay decimal until the ratio math below.
type MetricsInput struct {
	PortfolioValue  decimal.Decimal
	Cash            decimal.Decimal
	BuyingPower     decimal.Decimal
	Positions       []types.PositionSnapshot
	DailyPnL        decimal.Decimal
	RealizedPnL     decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	StartOfDayValue decimal.Decimal
}

// Metrics are the normalized account risk numbers.
type Metrics struct {
	ExposurePct     float64            `json:"exposure_pct"`
	Concentration   map[string]float64 `json:"concentration"` // symbol -> % of portfolio
	RealizedPnL     float64            `json:"realized_pnl"`
	UnrealizedPnL   float64            `json:"unrealized_pnl"`
	DailyPnL        float64            `json:"daily_pnl"`
	DailyLossPct    float64            `json:"daily_loss_pct"`
	DrawdownPct     float64            `json:"drawdown_pct"`
	PositionCount   int                `json:"position_count"`
	PortfolioValue  float64            `json:"portfolio_value"`
	StartOfDayValue float64            `json:"start_of_day_value"`
}

// MetricsFromSnapshots derives the metrics directly from broker snapshots.
// Read-only callers use this; it never touches breaker state.
func MetricsFromSnapshots(account *types.AccountSnapshot, positions []types.PositionSnapshot) Metrics {
	unrealized := decimal.Zero
	for _, p := range positions {
		unrealized = unrealized.Add(p.UnrealizedPnL)
	}
	return CalculateMetrics(MetricsInput{
		PortfolioValue:  account.PortfolioValue,
		Cash:            account.Cash,
		BuyingPower:     account.BuyingPower,
		Positions:       positions,
		DailyPnL:        account.PortfolioValue.Sub(account.LastEquity),
		UnrealizedPnL:   unrealized,
		StartOfDayValue: account.LastEquity,
	})
}

// CalculateMetrics is a pure function of its inputs; no clock, no broker, no
// manager state. Drawdown is measured against start-of-day equity and is
// monotonic in (startOfDay - portfolioValue).
func CalculateMetrics(in MetricsInput) Metrics {
	portfolio := in.PortfolioValue.InexactFloat64()
	startOfDay := in.StartOfDayValue.InexactFloat64()
	dailyPnL := in.DailyPnL.InexactFloat64()

	m := Metrics{
		Concentration:   make(map[string]float64, len(in.Positions)),
		RealizedPnL:     in.RealizedPnL.InexactFloat64(),
		UnrealizedPnL:   in.UnrealizedPnL.InexactFloat64(),
		DailyPnL:        dailyPnL,
		PositionCount:   len(in.Positions),
		PortfolioValue:  portfolio,
		StartOfDayValue: startOfDay,
	}

	if portfolio > 0 {
		exposure := decimal.Zero
		for _, p := range in.Positions {
			exposure = exposure.Add(p.MarketValue.Abs())
			m.Concentration[p.Symbol] = p.MarketValue.Abs().InexactFloat64() / portfolio * 100
		}
		m.ExposurePct = exposure.InexactFloat64() / portfolio * 100
	}

	if startOfDay > 0 {
		if dailyPnL < 0 {
			m.DailyLossPct = -dailyPnL / startOfDay * 100
		}
		if decline := startOfDay - portfolio; decline > 0 {
			m.DrawdownPct = decline / startOfDay * 100
		}
	}
	return m
}
