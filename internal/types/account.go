package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountSnapshot is an immutable point-in-time view of the brokerage
// account. Snapshots are never mutated, only replaced on refresh.
type AccountSnapshot struct {
	ID             string          `json:"id"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	Cash           decimal.Decimal `json:"cash"`
	BuyingPower    decimal.Decimal `json:"buying_power"`
	Equity         decimal.Decimal `json:"equity"`
	LastEquity     decimal.Decimal `json:"last_equity"` // start-of-day equity
	TradingBlocked bool            `json:"trading_blocked"`
	TakenAt        time.Time       `json:"taken_at"`
}

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// PositionSnapshot is a cached read copy of one broker position. The broker
// holds the book of record; these are refreshed on each risk check.
type PositionSnapshot struct {
	Symbol           string          `json:"symbol"`
	Side             PositionSide    `json:"side"`
	Qty              decimal.Decimal `json:"qty"`
	AvgEntryPrice    decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	MarketValue      decimal.Decimal `json:"market_value"`
	CostBasis        decimal.Decimal `json:"cost_basis"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPct float64         `json:"unrealized_pnl_pct"`
}
