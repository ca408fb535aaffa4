// Package domain defines the plain data types shared across the traderbot
// core: OHLCV bars, trades, positions, and account snapshots.
package domain

import "time"

// TradeSide identifies the direction of an executed trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// RunType classifies a persisted run.
type RunType string

const (
	RunTypeBacktest RunType = "backtest"
	RunTypePaper    RunType = "paper"
	RunTypeTuning   RunType = "tuning"
	RunTypeWFO      RunType = "wfo"
)

// Bar is one OHLCV price bar for a symbol. Timestamps are UTC, unique and
// ascending within a symbol's series. Bars are immutable once produced.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Trade is one executed paper trade. The price is slippage-adjusted and the
// fee is denominated in account currency. Trade logs are append-only.
type Trade struct {
	Timestamp time.Time
	Symbol    string
	Side      TradeSide
	Qty       float64
	Price     float64
	Fee       float64
}

// Position is a single open long lot for a symbol. Qty is never negative;
// repeated buys blend into this one lot.
type Position struct {
	Symbol   string
	Qty      float64
	AvgPrice float64
}

// AccountSnapshot records the account state at one simulated timestamp.
// Equity == Cash + PositionsValue holds at every snapshot.
type AccountSnapshot struct {
	Timestamp      time.Time
	Equity         float64
	Cash           float64
	PositionsValue float64
}
