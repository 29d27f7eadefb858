// Package gormstore implements the audit store on Gorm + SQLite.
package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradepilot/internal/broker"
	"tradepilot/internal/risk"
	"tradepilot/internal/store"
	"tradepilot/internal/types"
)

var _ store.AuditStore = (*GormStore)(nil)

// GormStore persists the audit trail in a single SQLite file.
type GormStore struct {
	db *gorm.DB
}

// New opens (and migrates) the SQLite audit database at path.
func New(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&signalModel{},
		&orderModel{},
		&alertModel{},
		&portfolioSnapshotModel{},
		&closeReportModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep the writer pool small to avoid lock contention
	// while still allowing concurrent HTTP reads.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) SaveSignal(ctx context.Context, accountID string, sig *types.Signal) error {
	indicators, err := json.Marshal(sig.Indicators)
	if err != nil {
		return fmt.Errorf("encode indicators: %w", err)
	}
	rec := signalModel{
		SignalID:      sig.ID,
		AccountID:     accountID,
		Symbol:        sig.Symbol,
		Type:          string(sig.Type),
		Strength:      string(sig.Strength),
		Confidence:    sig.Confidence,
		Composite:     sig.Composite,
		Indicators:    indicators,
		Refined:       sig.Advisory.Refined,
		AdvisoryScore: sig.Advisory.Score,
		Conviction:    sig.Advisory.Conviction,
		OrderID:       sig.OrderID,
		GeneratedAt:   sig.GeneratedAt,
		ValidUntil:    sig.ValidUntil,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *GormStore) LinkSignalOrder(ctx context.Context, signalID, orderID string) error {
	return s.db.WithContext(ctx).Model(&signalModel{}).
		Where("signal_id = ?", signalID).
		Update("order_id", orderID).Error
}

func (s *GormStore) SaveOrder(ctx context.Context, accountID string, order *types.Order) error {
	rec := orderModel{
		BrokerOrderID:  order.BrokerID,
		AccountID:      accountID,
		Symbol:         order.Symbol,
		Side:           string(order.Side),
		Type:           string(order.Type),
		Qty:            order.Qty.String(),
		Status:         string(order.Status),
		FilledQty:      order.FilledQty.String(),
		FilledAvgPrice: order.FilledAvgPrice.String(),
		SignalID:       order.SignalID,
		Confidence:     order.Confidence,
		Reason:         order.Reason,
		SubmittedAt:    order.SubmittedAt,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *GormStore) UpdateOrderStatus(ctx context.Context, brokerOrderID string, status types.OrderStatus) error {
	return s.db.WithContext(ctx).Model(&orderModel{}).
		Where("broker_order_id = ?", brokerOrderID).
		Update("status", string(status)).Error
}

func (s *GormStore) SaveAlert(ctx context.Context, accountID string, alert *types.RiskAlert) error {
	rec := alertModel{
		AlertID:   alert.ID,
		AccountID: accountID,
		Type:      string(alert.Type),
		Severity:  string(alert.Severity),
		Message:   alert.Message,
		Action:    string(alert.Action),
		Resolved:  alert.Resolved,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *GormStore) ResolveAlert(ctx context.Context, alertID string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&alertModel{}).
		Where("alert_id = ?", alertID).
		Updates(map[string]any{"resolved": true, "resolved_at": &now}).Error
}

func (s *GormStore) SavePortfolioSnapshot(ctx context.Context, accountID string, metrics risk.Metrics) error {
	concentration, err := json.Marshal(metrics.Concentration)
	if err != nil {
		return fmt.Errorf("encode concentration: %w", err)
	}
	rec := portfolioSnapshotModel{
		AccountID:       accountID,
		PortfolioValue:  metrics.PortfolioValue,
		StartOfDayValue: metrics.StartOfDayValue,
		ExposurePct:     metrics.ExposurePct,
		DailyPnL:        metrics.DailyPnL,
		DailyLossPct:    metrics.DailyLossPct,
		DrawdownPct:     metrics.DrawdownPct,
		PositionCount:   metrics.PositionCount,
		Concentration:   concentration,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *GormStore) SaveCloseReport(ctx context.Context, accountID string, results []broker.CloseResult) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode close report: %w", err)
	}
	rec := closeReportModel{
		AccountID: accountID,
		Results:   payload,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
