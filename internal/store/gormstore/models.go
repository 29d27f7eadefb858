package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

type signalModel struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	SignalID      string `gorm:"uniqueIndex;size:64"`
	AccountID     string `gorm:"index;size:64"`
	Symbol        string `gorm:"index;size:16"`
	Type          string `gorm:"size:16"`
	Strength      string `gorm:"size:16"`
	Confidence    float64
	Composite     float64
	Indicators    datatypes.JSON
	Refined       bool
	AdvisoryScore float64
	Conviction    string `gorm:"size:256"`
	OrderID       string `gorm:"index;size:64"`
	GeneratedAt   time.Time
	ValidUntil    time.Time
	CreatedAt     time.Time
}

func (signalModel) TableName() string { return "signals" }

type orderModel struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	BrokerOrderID  string `gorm:"uniqueIndex;size:64"`
	AccountID      string `gorm:"index;size:64"`
	Symbol         string `gorm:"index;size:16"`
	Side           string `gorm:"size:8"`
	Type           string `gorm:"size:16"`
	Qty            string `gorm:"size:32"`
	Status         string `gorm:"index;size:24"`
	FilledQty      string `gorm:"size:32"`
	FilledAvgPrice string `gorm:"size:32"`
	SignalID       string `gorm:"index;size:64"`
	Confidence     float64
	Reason         string `gorm:"size:256"`
	SubmittedAt    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (orderModel) TableName() string { return "orders" }

type alertModel struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	AlertID    string `gorm:"uniqueIndex;size:64"`
	AccountID  string `gorm:"index;size:64"`
	Type       string `gorm:"index;size:24"`
	Severity   string `gorm:"size:12"`
	Message    string `gorm:"size:512"`
	Action     string `gorm:"size:24"`
	Resolved   bool
	ResolvedAt *time.Time
	CreatedAt  time.Time
}

func (alertModel) TableName() string { return "risk_alerts" }

type portfolioSnapshotModel struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	AccountID       string `gorm:"index;size:64"`
	PortfolioValue  float64
	StartOfDayValue float64
	ExposurePct     float64
	DailyPnL        float64
	DailyLossPct    float64
	DrawdownPct     float64
	PositionCount   int
	Concentration   datatypes.JSON
	CreatedAt       time.Time
}

func (portfolioSnapshotModel) TableName() string { return "portfolio_snapshots" }

type closeReportModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	AccountID string `gorm:"index;size:64"`
	Results   datatypes.JSON
	CreatedAt time.Time
}

func (closeReportModel) TableName() string { return "close_reports" }
