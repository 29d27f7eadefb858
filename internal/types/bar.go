// Package types holds the shared domain model: market bars, account and
// position snapshots, orders, trading signals, and risk alerts.
package types

import "time"

// Bar is one OHLCV aggregate for a fixed time interval.
type Bar struct {
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	TradeCount int64     `json:"trade_count,omitempty"`
	VWAP       float64   `json:"vwap,omitempty"`
}
