package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tradepilot/internal/broker"
	"tradepilot/internal/risk"
	"tradepilot/internal/signal"
	"tradepilot/internal/store"
	"tradepilot/internal/types"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) GetAccount(ctx context.Context) (*types.AccountSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.AccountSnapshot), args.Error(1)
}

func (m *MockGateway) GetPositions(ctx context.Context) ([]types.PositionSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.PositionSnapshot), args.Error(1)
}

func (m *MockGateway) GetOrders(ctx context.Context, filter types.OrderFilter) ([]types.Order, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Order), args.Error(1)
}

func (m *MockGateway) SubmitOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Order), args.Error(1)
}

func (m *MockGateway) CancelOrder(ctx context.Context, orderID string) error {
	return m.Called(ctx, orderID).Error(0)
}

func (m *MockGateway) ClosePosition(ctx context.Context, symbol string, pct float64) (*types.Order, error) {
	args := m.Called(ctx, symbol, pct)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Order), args.Error(1)
}

func (m *MockGateway) CloseAllPositions(ctx context.Context) ([]broker.CloseResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]broker.CloseResult), args.Error(1)
}

func (m *MockGateway) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]types.Bar, error) {
	args := m.Called(ctx, symbol, timeframe, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Bar), args.Error(1)
}

func (m *MockGateway) GetSnapshot(ctx context.Context, symbol string) (*broker.Quote, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*broker.Quote), args.Error(1)
}

func (m *MockGateway) IsMarketOpen(ctx context.Context) (*broker.Clock, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*broker.Clock), args.Error(1)
}

func (m *MockGateway) StreamTradeUpdates(ctx context.Context, handler func(broker.TradeUpdate)) error {
	return m.Called(ctx, handler).Error(0)
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func healthyAccount() *types.AccountSnapshot {
	return &types.AccountSnapshot{
		ID:             "acct-1",
		PortfolioValue: dec(100_000),
		Equity:         dec(100_000),
		LastEquity:     dec(100_000),
		Cash:           dec(60_000),
		BuyingPower:    dec(120_000),
	}
}

func bars(n int, start, drift float64) []types.Bar {
	out := make([]types.Bar, n)
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	price := start
	for i := range out {
		price += drift
		out[i] = types.Bar{
			Timestamp: ts.Add(time.Duration(i) * 24 * time.Hour),
			Open:      price - drift/2,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1_000_000,
		}
	}
	return out
}

func newTestEngine(gw *MockGateway, cfg Config) *Engine {
	return New(Deps{
		AccountID: "acct-1",
		Gateway:   gw,
		Cache:     broker.NewStateCache(gw),
		Signals:   signal.NewGenerator(nil),
		Audit:     store.Nop{},
		Cooldown:  time.Minute,
	}, cfg)
}

func TestStart_FailsWithoutBroker(t *testing.T) {
	gw := new(MockGateway)
	gw.On("GetAccount", mock.Anything).Return(nil, errors.New("connection refused"))

	eng := newTestEngine(gw, Config{Symbols: []string{"AAPL"}})
	err := eng.Start(context.Background())
	require.ErrorIs(t, err, broker.ErrNotConnected)
	assert.Equal(t, Idle, eng.GetState())
}

func TestLifecycle_StartPauseResumeStop(t *testing.T) {
	gw := new(MockGateway)
	gw.On("GetAccount", mock.Anything).Return(healthyAccount(), nil)
	gw.On("GetPositions", mock.Anything).Return([]types.PositionSnapshot{}, nil)
	gw.On("GetOrders", mock.Anything, mock.Anything).Return([]types.Order{}, nil).Maybe()
	// Short history: every cycle skips the symbol without ordering.
	gw.On("GetBars", mock.Anything, "AAPL", mock.Anything, mock.Anything, mock.Anything).
		Return(bars(10, 100, 0.5), nil).Maybe()

	eng := newTestEngine(gw, Config{Symbols: []string{"AAPL"}, CycleInterval: time.Hour})

	require.NoError(t, eng.Start(context.Background()))
	assert.Equal(t, Running, eng.GetState())
	assert.ErrorIs(t, eng.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, eng.Pause())
	assert.Equal(t, Paused, eng.GetState())
	assert.Error(t, eng.Pause(), "pause is only valid while running")

	require.NoError(t, eng.Resume())
	assert.Equal(t, Running, eng.GetState())

	require.NoError(t, eng.Stop())
	assert.Equal(t, Stopped, eng.GetState())
	require.NoError(t, eng.Stop(), "stop is idempotent")
}

func TestEmergencyStop_FlattensAndRecordsFailures(t *testing.T) {
	gw := new(MockGateway)
	gw.On("GetAccount", mock.Anything).Return(healthyAccount(), nil)
	gw.On("GetPositions", mock.Anything).Return([]types.PositionSnapshot{}, nil)
	gw.On("GetOrders", mock.Anything, mock.Anything).Return([]types.Order{}, nil).Maybe()
	gw.On("GetBars", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(bars(10, 100, 0.5), nil).Maybe()
	gw.On("CloseAllPositions", mock.Anything).Return([]broker.CloseResult{
		{Symbol: "AAPL", OrderID: "ord-1"},
		{Symbol: "TSLA", Error: "position locked"},
	}, nil)

	eng := newTestEngine(gw, Config{Symbols: []string{"AAPL"}, CycleInterval: time.Hour})
	require.NoError(t, eng.Start(context.Background()))

	results, err := eng.EmergencyStop(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "position locked", results[1].Error)
	assert.Equal(t, Stopped, eng.GetState(), "engine ends stopped even when closes fail")
}

func TestEmergencyStop_InvalidFromIdle(t *testing.T) {
	eng := newTestEngine(new(MockGateway), Config{})
	_, err := eng.EmergencyStop(context.Background())
	assert.ErrorIs(t, err, ErrNotRunnable)
}

func TestRunCycle_SubmitsEntryOrder(t *testing.T) {
	gw := new(MockGateway)
	gw.On("GetAccount", mock.Anything).Return(healthyAccount(), nil)
	gw.On("GetPositions", mock.Anything).Return([]types.PositionSnapshot{}, nil)
	gw.On("GetOrders", mock.Anything, mock.Anything).Return([]types.Order{}, nil)
	gw.On("GetBars", mock.Anything, "AAPL", "1Day", mock.Anything, mock.Anything).
		Return(bars(250, 100, 0.5), nil)
	gw.On("SubmitOrder", mock.Anything, mock.MatchedBy(func(req types.OrderRequest) bool {
		return req.Symbol == "AAPL" && req.Side == types.Buy && req.Qty.IsPositive()
	})).Return(&types.Order{BrokerID: "ord-1", Symbol: "AAPL", Status: types.OrderSubmitted}, nil)

	eng := newTestEngine(gw, Config{Symbols: []string{"AAPL"}})
	eng.riskMgr = risk.NewManager(risk.Moderate, time.Minute, nil)

	eng.runCycle(context.Background())
	gw.AssertExpectations(t)
}

func TestRunCycle_TrippedBreakerBlocksEntriesAllowsExits(t *testing.T) {
	blown := healthyAccount()
	blown.PortfolioValue = dec(85_000) // 15% down, past moderate 10% daily loss

	held := []types.PositionSnapshot{{
		Symbol:        "TSLA",
		Side:          types.PositionLong,
		Qty:           dec(50),
		MarketValue:   dec(10_000),
		UnrealizedPnL: dec(-4_000),
	}}

	gw := new(MockGateway)
	gw.On("GetAccount", mock.Anything).Return(blown, nil)
	gw.On("GetPositions", mock.Anything).Return(held, nil)
	gw.On("GetOrders", mock.Anything, mock.Anything).Return([]types.Order{}, nil)
	// AAPL trends up (entry candidate), TSLA trends down against the long.
	gw.On("GetBars", mock.Anything, "AAPL", mock.Anything, mock.Anything, mock.Anything).
		Return(bars(250, 100, 0.5), nil)
	gw.On("GetBars", mock.Anything, "TSLA", mock.Anything, mock.Anything, mock.Anything).
		Return(bars(250, 400, -0.5), nil)
	gw.On("ClosePosition", mock.Anything, "TSLA", 100.0).
		Return(&types.Order{BrokerID: "ord-close", Symbol: "TSLA"}, nil)

	eng := newTestEngine(gw, Config{Symbols: []string{"AAPL", "TSLA"}})
	eng.riskMgr = risk.NewManager(risk.Moderate, time.Hour, nil)

	eng.runCycle(context.Background())

	gw.AssertNotCalled(t, "SubmitOrder", mock.Anything, mock.Anything)
	gw.AssertCalled(t, "ClosePosition", mock.Anything, "TSLA", 100.0)
	assert.False(t, eng.riskMgr.EntriesAllowed())
}

func TestRunCycle_SuppressesSymbolAfterConsecutiveFailures(t *testing.T) {
	gw := new(MockGateway)
	gw.On("GetAccount", mock.Anything).Return(healthyAccount(), nil)
	gw.On("GetPositions", mock.Anything).Return([]types.PositionSnapshot{}, nil)
	gw.On("GetOrders", mock.Anything, mock.Anything).Return([]types.Order{}, nil)
	gw.On("GetBars", mock.Anything, "AAPL", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("feed outage"))

	eng := newTestEngine(gw, Config{Symbols: []string{"AAPL"}, MaxSymbolFailures: 3})
	eng.riskMgr = risk.NewManager(risk.Moderate, time.Minute, nil)

	for i := 0; i < 4; i++ {
		eng.runCycle(context.Background())
	}

	assert.True(t, eng.symbolSuppressed("AAPL"))
	// Suppressed symbols stop hitting the data feed.
	gw.AssertNumberOfCalls(t, "GetBars", 3)
}

func TestOrderQty_BudgetAndCap(t *testing.T) {
	acct := healthyAccount() // 120k buying power, 100k portfolio
	moderate := risk.ThresholdsFor(risk.Moderate)

	// Budget: 120k * 10% = 12k; cap: 100k * 20% = 20k; 12k / 150 = 80 shares.
	qty := orderQty(acct, moderate, dec(150))
	assert.True(t, qty.Equal(decimal.NewFromInt(80)), "got %s", qty)

	// High buying power hits the portfolio cap instead.
	rich := healthyAccount()
	rich.BuyingPower = dec(400_000)
	qty = orderQty(rich, moderate, dec(100)) // budget 40k capped to 20k -> 200
	assert.True(t, qty.Equal(decimal.NewFromInt(200)), "got %s", qty)
}

func TestOrderQty_ZeroCases(t *testing.T) {
	moderate := risk.ThresholdsFor(risk.Moderate)
	assert.True(t, orderQty(nil, moderate, dec(100)).IsZero())
	assert.True(t, orderQty(healthyAccount(), moderate, decimal.Zero).IsZero())

	broke := healthyAccount()
	broke.BuyingPower = decimal.Zero
	assert.True(t, orderQty(broke, moderate, dec(100)).IsZero())

	// Price above the whole budget floors to zero shares.
	assert.True(t, orderQty(healthyAccount(), moderate, dec(50_000)).IsZero())
}

func TestConfigMerge(t *testing.T) {
	base := Config{}
	base.applyDefaults()

	symbols := []string{"NVDA", "AMD"}
	level := risk.Aggressive
	interval := 30
	next := base.merge(ConfigPatch{
		Symbols:           &symbols,
		RiskLevel:         &level,
		CycleIntervalSecs: &interval,
	})

	assert.Equal(t, []string{"NVDA", "AMD"}, next.Symbols)
	assert.Equal(t, risk.Aggressive, next.RiskLevel)
	assert.Equal(t, 30*time.Second, next.CycleInterval)
	assert.Equal(t, base.BarTimeframe, next.BarTimeframe, "unset fields keep current values")
}

func TestRegistry(t *testing.T) {
	built := 0
	reg := NewRegistry(func(accountID string) *Engine {
		built++
		return newTestEngine(new(MockGateway), Config{})
	})

	_, err := reg.Get("acct-1")
	assert.ErrorIs(t, err, ErrUnknownAccount)

	a := reg.GetOrCreate("acct-1")
	b := reg.GetOrCreate("acct-1")
	assert.Same(t, a, b)
	assert.Equal(t, 1, built)

	reg.GetOrCreate("acct-2")
	assert.Equal(t, []string{"acct-1", "acct-2"}, reg.AccountIDs())
}
