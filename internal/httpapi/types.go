// Package httpapi serves a read-only JSON view of persisted runs: equity
// curves, trade logs, and computed performance metrics for dashboards.
package httpapi

import (
	"time"

	"traderbot/internal/domain"
	"traderbot/internal/store"
)

// RunJSON is the JSON representation of a run record.
type RunJSON struct {
	ID        int64     `json:"id"`
	StartedAt time.Time `json:"startedAt"`
	Type      string    `json:"type"`
	Notes     string    `json:"notes,omitempty"`
}

// SnapshotJSON is one point on an equity curve.
type SnapshotJSON struct {
	Ts             time.Time `json:"ts"`
	Equity         float64   `json:"equity"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positionsValue"`
}

// TradeJSON is one executed trade.
type TradeJSON struct {
	Ts     time.Time `json:"ts"`
	Symbol string    `json:"symbol"`
	Side   string    `json:"side"`
	Qty    float64   `json:"qty"`
	Price  float64   `json:"price"`
	Fee    float64   `json:"fee"`
}

// RunsResponse lists run records.
type RunsResponse struct {
	Runs []RunJSON `json:"runs"`
}

// EquityResponse holds a run's equity curve.
type EquityResponse struct {
	RunID  int64          `json:"runId"`
	Equity []SnapshotJSON `json:"equity"`
}

// TradesResponse holds a run's trade log.
type TradesResponse struct {
	RunID  int64       `json:"runId"`
	Trades []TradeJSON `json:"trades"`
}

// MetricsResponse holds a run's computed performance metrics.
type MetricsResponse struct {
	RunID   int64              `json:"runId"`
	Metrics map[string]float64 `json:"metrics"`
}

// DashboardResponse is the combined view of the most recent paper run.
type DashboardResponse struct {
	Run     RunJSON            `json:"run"`
	Equity  []SnapshotJSON     `json:"equity"`
	Trades  []TradeJSON        `json:"trades"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

func convertRun(r store.Run) RunJSON {
	return RunJSON{ID: r.ID, StartedAt: r.StartedAt, Type: string(r.Type), Notes: r.Notes}
}

func convertSnapshots(snaps []domain.AccountSnapshot) []SnapshotJSON {
	out := make([]SnapshotJSON, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, SnapshotJSON{
			Ts:             s.Timestamp,
			Equity:         s.Equity,
			Cash:           s.Cash,
			PositionsValue: s.PositionsValue,
		})
	}
	return out
}

func convertTrades(trades []domain.Trade) []TradeJSON {
	out := make([]TradeJSON, 0, len(trades))
	for _, t := range trades {
		out = append(out, TradeJSON{
			Ts:     t.Timestamp,
			Symbol: t.Symbol,
			Side:   string(t.Side),
			Qty:    t.Qty,
			Price:  t.Price,
			Fee:    t.Fee,
		})
	}
	return out
}
