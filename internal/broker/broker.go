// Package broker defines the gateway contract to the brokerage and its
// Alpaca implementation. The core depends on this contract only; order
// execution, account state, and market data all live on the broker side.
package broker

import (
	"context"
	"errors"
	"time"

	"tradepilot/internal/types"
)

// ErrNotConnected is returned when an operation requires a verified broker
// connection and none exists.
var ErrNotConnected = errors.New("broker not connected")

// CloseResult is the per-symbol outcome of a close-all sweep. Error is empty
// on success; a failed close never aborts the remaining symbols.
type CloseResult struct {
	Symbol  string `json:"symbol"`
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Clock reports market open state.
type Clock struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// Quote is a condensed market snapshot for one symbol.
type Quote struct {
	Symbol      string  `json:"symbol"`
	LatestPrice float64 `json:"latest_price"`
	BidPrice    float64 `json:"bid_price"`
	AskPrice    float64 `json:"ask_price"`
	DailyOpen   float64 `json:"daily_open"`
	DailyHigh   float64 `json:"daily_high"`
	DailyLow    float64 `json:"daily_low"`
	DailyClose  float64 `json:"daily_close"`
	DailyVolume float64 `json:"daily_volume"`
	PrevClose   float64 `json:"prev_close"`
}

// TradeUpdate is a broker-pushed order status event. Order state transitions
// are driven exclusively by these events after submission.
type TradeUpdate struct {
	Event   string
	OrderID string
	Symbol  string
	Status  types.OrderStatus
	At      time.Time
}

// Gateway is the narrow contract the trading core uses to reach the broker.
type Gateway interface {
	GetAccount(ctx context.Context) (*types.AccountSnapshot, error)
	GetPositions(ctx context.Context) ([]types.PositionSnapshot, error)
	GetOrders(ctx context.Context, filter types.OrderFilter) ([]types.Order, error)
	SubmitOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	ClosePosition(ctx context.Context, symbol string, pct float64) (*types.Order, error)
	CloseAllPositions(ctx context.Context) ([]CloseResult, error)
	GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]types.Bar, error)
	GetSnapshot(ctx context.Context, symbol string) (*Quote, error)
	IsMarketOpen(ctx context.Context) (*Clock, error)
	StreamTradeUpdates(ctx context.Context, handler func(TradeUpdate)) error
}
