// Package store defines the append-only audit persistence contracts. The
// core never reads its own writes back for decision-making within a cycle;
// everything here exists for audit and history.
package store

import (
	"context"

	"tradepilot/internal/broker"
	"tradepilot/internal/risk"
	"tradepilot/internal/types"
)

// AuditStore persists signals, orders, risk alerts, and portfolio snapshots.
// Writes are append-only; the only mutations are broker-driven order status
// transitions, signal execution linkage, and alert resolution.
type AuditStore interface {
	SaveSignal(ctx context.Context, accountID string, sig *types.Signal) error
	LinkSignalOrder(ctx context.Context, signalID, orderID string) error

	SaveOrder(ctx context.Context, accountID string, order *types.Order) error
	// UpdateOrderStatus applies a broker-reported status event. The engine
	// never mutates order state directly after submission.
	UpdateOrderStatus(ctx context.Context, brokerOrderID string, status types.OrderStatus) error

	SaveAlert(ctx context.Context, accountID string, alert *types.RiskAlert) error
	ResolveAlert(ctx context.Context, alertID string) error

	SavePortfolioSnapshot(ctx context.Context, accountID string, metrics risk.Metrics) error
	SaveCloseReport(ctx context.Context, accountID string, results []broker.CloseResult) error

	Close() error
}

// Nop is a no-op store for tests and dry runs.
type Nop struct{}

var _ AuditStore = Nop{}

func (Nop) SaveSignal(context.Context, string, *types.Signal) error { return nil }
func (Nop) LinkSignalOrder(context.Context, string, string) error   { return nil }
func (Nop) SaveOrder(context.Context, string, *types.Order) error   { return nil }
func (Nop) UpdateOrderStatus(context.Context, string, types.OrderStatus) error {
	return nil
}
func (Nop) SaveAlert(context.Context, string, *types.RiskAlert) error { return nil }
func (Nop) ResolveAlert(context.Context, string) error                { return nil }
func (Nop) SavePortfolioSnapshot(context.Context, string, risk.Metrics) error {
	return nil
}
func (Nop) SaveCloseReport(context.Context, string, []broker.CloseResult) error {
	return nil
}
func (Nop) Close() error { return nil }
