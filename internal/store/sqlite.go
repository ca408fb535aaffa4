package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"traderbot/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TIMESTAMP NOT NULL,
	type       TEXT NOT NULL,
	notes      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS trades (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES runs(id),
	ts     TIMESTAMP NOT NULL,
	symbol TEXT NOT NULL,
	side   TEXT NOT NULL,
	qty    REAL NOT NULL,
	price  REAL NOT NULL,
	fee    REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);

CREATE TABLE IF NOT EXISTS account_snapshots (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          INTEGER NOT NULL REFERENCES runs(id),
	ts              TIMESTAMP NOT NULL,
	equity          REAL NOT NULL,
	cash            REAL NOT NULL,
	positions_value REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_run ON account_snapshots(run_id);

CREATE TABLE IF NOT EXISTS positions (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    INTEGER NOT NULL REFERENCES runs(id),
	symbol    TEXT NOT NULL,
	qty       REAL NOT NULL,
	avg_price REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_run ON positions(run_id);

CREATE TABLE IF NOT EXISTS strategy_versions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      INTEGER NOT NULL REFERENCES runs(id),
	name        TEXT NOT NULL,
	params_json TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a run record and returns its ID.
func (s *SQLiteStore) CreateRun(ctx context.Context, runType domain.RunType, notes string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (started_at, type, notes) VALUES (?, ?, ?)`,
		time.Now().UTC(), string(runType), notes)
	if err != nil {
		return 0, fmt.Errorf("creating run: %w", err)
	}
	return res.LastInsertId()
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, runType domain.RunType, limit int) ([]Run, error) {
	query := `SELECT id, started_at, type, notes FROM runs`
	args := []any{}
	if runType != "" {
		query += ` WHERE type = ?`
		args = append(args, string(runType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var typ string
		if err := rows.Scan(&r.ID, &r.StartedAt, &typ, &r.Notes); err != nil {
			return nil, err
		}
		r.Type = domain.RunType(typ)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveStrategyVersion records the strategy name and parameters used by a run.
func (s *SQLiteStore) SaveStrategyVersion(ctx context.Context, runID int64, name string, params map[string]int) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO strategy_versions (run_id, name, params_json, created_at) VALUES (?, ?, ?, ?)`,
		runID, name, string(paramsJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving strategy version: %w", err)
	}
	return nil
}

// SaveTrades appends executed trades to a run in one transaction.
func (s *SQLiteStore) SaveTrades(ctx context.Context, runID int64, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO trades (run_id, ts, symbol, side, qty, price, fee) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, t := range trades {
			if _, err := stmt.ExecContext(ctx, runID, t.Timestamp.UTC(), t.Symbol, string(t.Side), t.Qty, t.Price, t.Fee); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveSnapshots appends account snapshots to a run in one transaction.
func (s *SQLiteStore) SaveSnapshots(ctx context.Context, runID int64, snapshots []domain.AccountSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO account_snapshots (run_id, ts, equity, cash, positions_value) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, snap := range snapshots {
			if _, err := stmt.ExecContext(ctx, runID, snap.Timestamp.UTC(), snap.Equity, snap.Cash, snap.PositionsValue); err != nil {
				return err
			}
		}
		return nil
	})
}

// SavePositions replaces the stored open positions for a run.
func (s *SQLiteStore) SavePositions(ctx context.Context, runID int64, positions []domain.Position) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE run_id = ?`, runID); err != nil {
			return err
		}
		for _, p := range positions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO positions (run_id, symbol, qty, avg_price) VALUES (?, ?, ?, ?)`,
				runID, p.Symbol, p.Qty, p.AvgPrice); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadTrades returns a run's trades ordered by timestamp.
func (s *SQLiteStore) ReadTrades(ctx context.Context, runID int64) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, symbol, side, qty, price, fee FROM trades WHERE run_id = ? ORDER BY ts, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("reading trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(&t.Timestamp, &t.Symbol, &side, &t.Qty, &t.Price, &t.Fee); err != nil {
			return nil, err
		}
		t.Side = domain.TradeSide(side)
		t.Timestamp = t.Timestamp.UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ReadSnapshots returns a run's snapshots ordered by timestamp.
func (s *SQLiteStore) ReadSnapshots(ctx context.Context, runID int64) ([]domain.AccountSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, equity, cash, positions_value FROM account_snapshots WHERE run_id = ? ORDER BY ts, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("reading snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.AccountSnapshot
	for rows.Next() {
		var snap domain.AccountSnapshot
		if err := rows.Scan(&snap.Timestamp, &snap.Equity, &snap.Cash, &snap.PositionsValue); err != nil {
			return nil, err
		}
		snap.Timestamp = snap.Timestamp.UTC()
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
