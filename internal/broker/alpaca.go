package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"tradepilot/internal/logger"
	"tradepilot/internal/types"
)

// Compile-time interface check.
var _ Gateway = (*Alpaca)(nil)

// Alpaca implements Gateway on top of the Alpaca v3 trading and market-data
// clients. All monetary fields cross the wire as decimal strings; the SDK
// surfaces them as decimal.Decimal, which is kept until ratio math happens in
// the risk layer.
type Alpaca struct {
	trading *alpaca.Client
	data    *marketdata.Client
	feed    string
	paper   bool
}

// Options configures the Alpaca gateway.
type Options struct {
	APIKey      string
	APISecret   string
	BaseURL     string
	DataBaseURL string
	Feed        string // iex | sip
	Paper       bool
}

// NewAlpaca builds the gateway without touching the network. Call Verify
// before handing it to an engine.
func NewAlpaca(opts Options) *Alpaca {
	return &Alpaca{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.DataBaseURL,
		}),
		feed:  strings.ToLower(strings.TrimSpace(opts.Feed)),
		paper: opts.Paper,
	}
}

// Verify confirms the credentials reach a usable account. An account the
// broker has blocked from trading still verifies; the risk manager handles
// that state separately.
func (a *Alpaca) Verify(ctx context.Context) (*types.AccountSnapshot, error) {
	snap, err := a.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	logger.Infof("broker verified: account=%s paper=%v portfolio=%s", snap.ID, a.paper, snap.PortfolioValue)
	return snap, nil
}

func (a *Alpaca) GetAccount(ctx context.Context) (*types.AccountSnapshot, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	acct, err := a.trading.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return &types.AccountSnapshot{
		ID:             acct.ID,
		PortfolioValue: acct.PortfolioValue,
		Cash:           acct.Cash,
		BuyingPower:    acct.BuyingPower,
		Equity:         acct.Equity,
		LastEquity:     acct.LastEquity,
		TradingBlocked: acct.TradingBlocked,
		TakenAt:        time.Now(),
	}, nil
}

func (a *Alpaca) GetPositions(ctx context.Context) ([]types.PositionSnapshot, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	positions, err := a.trading.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("GetPositions: %w", err)
	}
	out := make([]types.PositionSnapshot, 0, len(positions))
	for _, p := range positions {
		snap := types.PositionSnapshot{
			Symbol:        strings.ToUpper(p.Symbol),
			Side:          types.PositionSide(strings.ToLower(p.Side)),
			Qty:           p.Qty,
			AvgEntryPrice: p.AvgEntryPrice,
			CostBasis:     p.CostBasis,
		}
		if p.CurrentPrice != nil {
			snap.CurrentPrice = *p.CurrentPrice
		}
		if p.MarketValue != nil {
			snap.MarketValue = *p.MarketValue
		}
		if p.UnrealizedPL != nil {
			snap.UnrealizedPnL = *p.UnrealizedPL
		}
		if p.UnrealizedPLPC != nil {
			snap.UnrealizedPnLPct = p.UnrealizedPLPC.InexactFloat64() * 100
		}
		out = append(out, snap)
	}
	return out, nil
}

func (a *Alpaca) GetOrders(ctx context.Context, filter types.OrderFilter) ([]types.Order, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	status := filter.Status
	if status == "" {
		status = "open"
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	orders, err := a.trading.GetOrders(alpaca.GetOrdersRequest{Status: status, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("GetOrders: %w", err)
	}
	out := make([]types.Order, 0, len(orders))
	for i := range orders {
		out = append(out, fromAlpacaOrder(&orders[i]))
	}
	return out, nil
}

func (a *Alpaca) SubmitOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if req.Qty.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("SubmitOrder %s: quantity must be positive", req.Symbol)
	}
	qty := req.Qty
	placed, err := a.trading.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      strings.ToUpper(req.Symbol),
		Qty:         &qty,
		Side:        toAlpacaSide(req.Side),
		Type:        toAlpacaType(req.Type),
		TimeInForce: alpaca.Day,
		LimitPrice:  req.LimitPrice,
	})
	if err != nil {
		return nil, fmt.Errorf("SubmitOrder %s: %w", req.Symbol, err)
	}
	order := fromAlpacaOrder(placed)
	return &order, nil
}

func (a *Alpaca) CancelOrder(ctx context.Context, orderID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := a.trading.CancelOrder(orderID); err != nil {
		return fmt.Errorf("CancelOrder %s: %w", orderID, err)
	}
	return nil
}

func (a *Alpaca) ClosePosition(ctx context.Context, symbol string, pct float64) (*types.Order, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var req alpaca.ClosePositionRequest
	if pct > 0 && pct < 100 {
		req.Percentage = decimal.NewFromFloat(pct)
	}
	closed, err := a.trading.ClosePosition(strings.ToUpper(symbol), req)
	if err != nil {
		return nil, fmt.Errorf("ClosePosition %s: %w", symbol, err)
	}
	order := fromAlpacaOrder(closed)
	return &order, nil
}

// CloseAllPositions flattens the book one symbol at a time so each outcome is
// reported individually; a failing symbol never blocks the rest.
func (a *Alpaca) CloseAllPositions(ctx context.Context) ([]CloseResult, error) {
	positions, err := a.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]CloseResult, 0, len(positions))
	for _, pos := range positions {
		res := CloseResult{Symbol: pos.Symbol}
		order, err := a.ClosePosition(ctx, pos.Symbol, 0)
		if err != nil {
			res.Error = err.Error()
			logger.Warnf("close %s failed: %v", pos.Symbol, err)
		} else {
			res.OrderID = order.BrokerID
		}
		results = append(results, res)
	}
	return results, nil
}

func (a *Alpaca) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]types.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	tf, err := parseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	req := marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     start,
		End:       end,
	}
	if a.feed == "sip" {
		req.Feed = marketdata.SIP
	} else {
		req.Feed = marketdata.IEX
	}
	bars, err := a.data.GetBars(strings.ToUpper(symbol), req)
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}
	out := make([]types.Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, types.Bar{
			Timestamp:  b.Timestamp,
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     float64(b.Volume),
			TradeCount: int64(b.TradeCount),
			VWAP:       b.VWAP,
		})
	}
	return out, nil
}

func (a *Alpaca) GetSnapshot(ctx context.Context, symbol string) (*Quote, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	snap, err := a.data.GetSnapshot(strings.ToUpper(symbol), marketdata.GetSnapshotRequest{})
	if err != nil {
		return nil, fmt.Errorf("GetSnapshot %s: %w", symbol, err)
	}
	q := &Quote{Symbol: strings.ToUpper(symbol)}
	if snap.LatestTrade != nil {
		q.LatestPrice = snap.LatestTrade.Price
	}
	if snap.LatestQuote != nil {
		q.BidPrice = snap.LatestQuote.BidPrice
		q.AskPrice = snap.LatestQuote.AskPrice
	}
	if snap.DailyBar != nil {
		q.DailyOpen = snap.DailyBar.Open
		q.DailyHigh = snap.DailyBar.High
		q.DailyLow = snap.DailyBar.Low
		q.DailyClose = snap.DailyBar.Close
		q.DailyVolume = float64(snap.DailyBar.Volume)
	}
	if snap.PrevDailyBar != nil {
		q.PrevClose = snap.PrevDailyBar.Close
	}
	return q, nil
}

func (a *Alpaca) IsMarketOpen(ctx context.Context) (*Clock, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	clock, err := a.trading.GetClock()
	if err != nil {
		return nil, fmt.Errorf("GetClock: %w", err)
	}
	return &Clock{
		IsOpen:    clock.IsOpen,
		NextOpen:  clock.NextOpen,
		NextClose: clock.NextClose,
	}, nil
}

// StreamTradeUpdates blocks delivering order status events until ctx is
// cancelled.
func (a *Alpaca) StreamTradeUpdates(ctx context.Context, handler func(TradeUpdate)) error {
	return a.trading.StreamTradeUpdates(ctx, func(tu alpaca.TradeUpdate) {
		update := TradeUpdate{
			Event:   tu.Event,
			OrderID: tu.Order.ID,
			Symbol:  strings.ToUpper(tu.Order.Symbol),
			Status:  mapOrderStatus(tu.Order.Status),
			At:      tu.At,
		}
		handler(update)
	}, alpaca.StreamTradeUpdatesRequest{})
}

func fromAlpacaOrder(o *alpaca.Order) types.Order {
	order := types.Order{
		BrokerID:    o.ID,
		Symbol:      strings.ToUpper(o.Symbol),
		Side:        types.OrderSide(o.Side),
		Type:        types.OrderType(o.Type),
		Status:      mapOrderStatus(o.Status),
		FilledQty:   o.FilledQty,
		SubmittedAt: o.SubmittedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	if o.Qty != nil {
		order.Qty = *o.Qty
	}
	if o.FilledAvgPrice != nil {
		order.FilledAvgPrice = *o.FilledAvgPrice
	}
	return order
}

func mapOrderStatus(status string) types.OrderStatus {
	switch strings.ToLower(status) {
	case "filled":
		return types.OrderFilled
	case "partially_filled":
		return types.OrderPartiallyFilled
	case "canceled", "pending_cancel":
		return types.OrderCanceled
	case "expired":
		return types.OrderExpired
	case "rejected":
		return types.OrderRejected
	default:
		return types.OrderSubmitted
	}
}

func toAlpacaSide(side types.OrderSide) alpaca.Side {
	if side == types.Sell {
		return alpaca.Sell
	}
	return alpaca.Buy
}

func toAlpacaType(t types.OrderType) alpaca.OrderType {
	switch t {
	case types.Limit:
		return alpaca.Limit
	case types.Stop:
		return alpaca.Stop
	case types.StopLimit:
		return alpaca.StopLimit
	case types.TrailingStop:
		return alpaca.TrailingStop
	default:
		return alpaca.Market
	}
}

func parseTimeframe(tf string) (marketdata.TimeFrame, error) {
	switch strings.ToLower(strings.TrimSpace(tf)) {
	case "", "1day", "day":
		return marketdata.OneDay, nil
	case "1hour", "hour":
		return marketdata.OneHour, nil
	case "1min", "min":
		return marketdata.OneMin, nil
	case "5min":
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case "15min":
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported timeframe %q", tf)
	}
}
