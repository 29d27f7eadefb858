package engine

import (
	"github.com/shopspring/decimal"

	"tradepilot/internal/risk"
	"tradepilot/internal/types"
)

// orderQty sizes an entry order: commit PositionRiskPct of buying power,
// capped so no single position exceeds MaxPositionPct of portfolio value,
// rounded down to whole shares. A zero result means the entry is skipped.
func orderQty(account *types.AccountSnapshot, t risk.Thresholds, price decimal.Decimal) decimal.Decimal {
	if account == nil || price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	budget := account.BuyingPower.Mul(decimal.NewFromFloat(t.PositionRiskPct))
	cap := account.PortfolioValue.Mul(decimal.NewFromFloat(t.MaxPositionPct))
	if cap.LessThan(budget) {
		budget = cap
	}
	if budget.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return budget.Div(price).Floor()
}
