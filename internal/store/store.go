// Package store persists market data and run artifacts: OHLCV bars live in
// Parquet files on disk, run records (trades, equity snapshots, strategy
// versions) live in SQLite.
package store

import (
	"context"
	"time"

	"traderbot/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars, merged and deduplicated by
	// timestamp against what is already stored.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the symbol and timeframe within
	// [start, end], sorted by timestamp.
	ReadBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all symbols with stored bar data.
	ListSymbols(ctx context.Context) ([]string, error)
}

// Run is one persisted simulation or live session.
type Run struct {
	ID        int64
	StartedAt time.Time
	Type      domain.RunType
	Notes     string
}

// RunStore persists run records and their artifacts.
type RunStore interface {
	// CreateRun inserts a run record and returns its ID.
	CreateRun(ctx context.Context, runType domain.RunType, notes string) (int64, error)

	// ListRuns returns the most recent runs of the given type, newest
	// first, up to limit. An empty runType matches all runs.
	ListRuns(ctx context.Context, runType domain.RunType, limit int) ([]Run, error)

	// SaveStrategyVersion records the strategy name and parameters used
	// by a run.
	SaveStrategyVersion(ctx context.Context, runID int64, name string, params map[string]int) error

	// SaveTrades appends executed trades to a run.
	SaveTrades(ctx context.Context, runID int64, trades []domain.Trade) error

	// SaveSnapshots appends account snapshots to a run.
	SaveSnapshots(ctx context.Context, runID int64, snapshots []domain.AccountSnapshot) error

	// SavePositions replaces the stored open positions for a run.
	SavePositions(ctx context.Context, runID int64, positions []domain.Position) error

	// ReadTrades returns a run's trades ordered by timestamp.
	ReadTrades(ctx context.Context, runID int64) ([]domain.Trade, error)

	// ReadSnapshots returns a run's snapshots ordered by timestamp.
	ReadSnapshots(ctx context.Context, runID int64) ([]domain.AccountSnapshot, error)
}
