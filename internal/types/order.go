package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

type OrderType string

const (
	Market       OrderType = "market"
	Limit        OrderType = "limit"
	Stop         OrderType = "stop"
	StopLimit    OrderType = "stop_limit"
	TrailingStop OrderType = "trailing_stop"
)

// OrderStatus mirrors the broker-reported lifecycle. Transitions are driven
// exclusively by broker status events after submission.
type OrderStatus string

const (
	OrderSubmitted       OrderStatus = "submitted"
	OrderFilled          OrderStatus = "filled"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderCanceled        OrderStatus = "canceled"
	OrderExpired         OrderStatus = "expired"
	OrderRejected        OrderStatus = "rejected"
)

// OrderRequest is what the engine hands to the broker gateway.
type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Qty        decimal.Decimal
	LimitPrice *decimal.Decimal
}

// Order is the engine's record of a submitted order, linked back to the
// signal that produced it.
type Order struct {
	BrokerID       string          `json:"broker_id"`
	Symbol         string          `json:"symbol"`
	Side           OrderSide       `json:"side"`
	Type           OrderType       `json:"type"`
	Qty            decimal.Decimal `json:"qty"`
	Status         OrderStatus     `json:"status"`
	FilledQty      decimal.Decimal `json:"filled_qty"`
	FilledAvgPrice decimal.Decimal `json:"filled_avg_price"`
	SignalID       string          `json:"signal_id,omitempty"`
	Confidence     float64         `json:"confidence,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	SubmittedAt    time.Time       `json:"submitted_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OrderFilter narrows GetOrders queries.
type OrderFilter struct {
	Status string // open | closed | all
	Limit  int
}
