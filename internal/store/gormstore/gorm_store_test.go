package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepilot/internal/broker"
	"tradepilot/internal/risk"
	"tradepilot/internal/types"
)

func openTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSignalOrderLinkage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sig := &types.Signal{
		ID:          "sig-1",
		Symbol:      "AAPL",
		Type:        types.SignalEntryLong,
		Strength:    types.StrengthStrong,
		Confidence:  0.82,
		Composite:   0.66,
		GeneratedAt: time.Now(),
		ValidUntil:  time.Now().Add(5 * time.Minute),
	}
	require.NoError(t, s.SaveSignal(ctx, "acct-1", sig))

	order := &types.Order{
		BrokerID:    "ord-1",
		Symbol:      "AAPL",
		Side:        types.Buy,
		Type:        types.Market,
		Qty:         decimal.NewFromInt(80),
		Status:      types.OrderSubmitted,
		SignalID:    "sig-1",
		SubmittedAt: time.Now(),
	}
	require.NoError(t, s.SaveOrder(ctx, "acct-1", order))
	require.NoError(t, s.LinkSignalOrder(ctx, "sig-1", "ord-1"))
	require.NoError(t, s.UpdateOrderStatus(ctx, "ord-1", types.OrderFilled))

	var savedSignal signalModel
	require.NoError(t, s.db.Where("signal_id = ?", "sig-1").First(&savedSignal).Error)
	assert.Equal(t, "ord-1", savedSignal.OrderID)

	var savedOrder orderModel
	require.NoError(t, s.db.Where("broker_order_id = ?", "ord-1").First(&savedOrder).Error)
	assert.Equal(t, string(types.OrderFilled), savedOrder.Status)
}

func TestAlertResolution(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alert := &types.RiskAlert{
		ID:       "alert-1",
		Type:     types.AlertDailyLossLimit,
		Severity: types.SeverityCritical,
		Message:  "daily loss 6.00% exceeds limit 5.00%",
		Action:   types.ActionPausedTrading,
	}
	require.NoError(t, s.SaveAlert(ctx, "acct-1", alert))
	require.NoError(t, s.ResolveAlert(ctx, "alert-1"))

	var saved alertModel
	require.NoError(t, s.db.Where("alert_id = ?", "alert-1").First(&saved).Error)
	assert.True(t, saved.Resolved)
	assert.NotNil(t, saved.ResolvedAt)
}

func TestSnapshotAndCloseReport(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePortfolioSnapshot(ctx, "acct-1", risk.Metrics{
		PortfolioValue: 98_000,
		DailyLossPct:   2,
		PositionCount:  3,
		Concentration:  map[string]float64{"AAPL": 12.5},
	}))
	require.NoError(t, s.SaveCloseReport(ctx, "acct-1", []broker.CloseResult{
		{Symbol: "AAPL", OrderID: "ord-9"},
		{Symbol: "TSLA", Error: "position locked"},
	}))

	var snapCount, reportCount int64
	s.db.Model(&portfolioSnapshotModel{}).Count(&snapCount)
	s.db.Model(&closeReportModel{}).Count(&reportCount)
	assert.EqualValues(t, 1, snapCount)
	assert.EqualValues(t, 1, reportCount)
}
