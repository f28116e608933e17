// Package store persists engine state in SQLite (pure Go driver, no CGo):
// net positions per market, one risk row per UTC date, and an append-only
// trade log. A view adds a running cumulative-PnL column for the dashboard
// history chart.
//
// The engine is the single writer; the dashboard reads concurrently. All
// position and daily-row writes are atomic upserts so a reader never sees a
// half-applied update. Path ":memory:" is supported for ephemeral
// deployments, with the documented trade-off of losing state on restart.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"polymarket-quoter/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
    market_id    TEXT PRIMARY KEY,
    net_position REAL     NOT NULL DEFAULT 0,
    updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_pnl (
    date            TEXT PRIMARY KEY,          -- YYYY-MM-DD (UTC)
    realized_pnl    REAL    NOT NULL DEFAULT 0,
    total_capital   REAL    NOT NULL DEFAULT 0,
    trade_count     INTEGER NOT NULL DEFAULT 0,
    circuit_breaker INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trade_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ts          DATETIME NOT NULL,
    market_id   TEXT NOT NULL,
    market_name TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    side        TEXT NOT NULL DEFAULT '',
    price       REAL NOT NULL DEFAULT 0,
    size        REAL NOT NULL DEFAULT 0,
    paper       INTEGER NOT NULL DEFAULT 0,
    note        TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_trade_log_ts ON trade_log(ts DESC);

CREATE VIEW IF NOT EXISTS daily_pnl_cumulative AS
SELECT date,
       realized_pnl,
       total_capital,
       trade_count,
       circuit_breaker,
       SUM(realized_pnl) OVER (ORDER BY date) AS cumulative_pnl
FROM daily_pnl;
`

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	// SQLite is single-writer; one connection also keeps :memory: databases
	// from silently splitting into independent instances.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DateKey formats a time as the daily_pnl primary key (UTC calendar date).
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ————————————————————————————————————————————————————————————————————————
// Positions
// ————————————————————————————————————————————————————————————————————————

// ApplyFill atomically adds delta to the net position for a market,
// creating the row if needed.
func (s *Store) ApplyFill(ctx context.Context, marketID string, delta float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (market_id, net_position, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(market_id) DO UPDATE SET
		    net_position = net_position + excluded.net_position,
		    updated_at   = excluded.updated_at`,
		marketID, delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: apply fill %s: %w", marketID, err)
	}
	return nil
}

// SetPosition overwrites the net position for a market.
func (s *Store) SetPosition(ctx context.Context, marketID string, net float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (market_id, net_position, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(market_id) DO UPDATE SET
		    net_position = excluded.net_position,
		    updated_at   = excluded.updated_at`,
		marketID, net, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: set position %s: %w", marketID, err)
	}
	return nil
}

// GetPosition returns the net position for one market (0 if absent).
func (s *Store) GetPosition(ctx context.Context, marketID string) (float64, error) {
	var net float64
	err := s.db.QueryRowContext(ctx,
		`SELECT net_position FROM positions WHERE market_id = ?`, marketID).Scan(&net)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: get position %s: %w", marketID, err)
	}
	return net, nil
}

// GetPositions returns every stored position.
func (s *Store) GetPositions(ctx context.Context) ([]types.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT market_id, net_position, updated_at FROM positions ORDER BY market_id`)
	if err != nil {
		return nil, fmt.Errorf("store: get positions: %w", err)
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		var p types.Position
		if err := rows.Scan(&p.MarketID, &p.NetPosition, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ResetPositions zeroes every stored position.
func (s *Store) ResetPositions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE positions SET net_position = 0, updated_at = ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("store: reset positions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ————————————————————————————————————————————————————————————————————————
// Daily PnL
// ————————————————————————————————————————————————————————————————————————

// GetDaily returns the risk row for a date, creating a zero row lazily if
// this is the first touch of a new calendar date.
func (s *Store) GetDaily(ctx context.Context, date string, capital float64) (types.DailyPnL, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_pnl (date, total_capital) VALUES (?, ?)
		ON CONFLICT(date) DO NOTHING`,
		date, capital); err != nil {
		return types.DailyPnL{}, fmt.Errorf("store: ensure daily row %s: %w", date, err)
	}

	var d types.DailyPnL
	err := s.db.QueryRowContext(ctx, `
		SELECT date, realized_pnl, total_capital, trade_count, circuit_breaker
		FROM daily_pnl WHERE date = ?`, date).
		Scan(&d.Date, &d.RealizedPnL, &d.TotalCapital, &d.TradeCount, &d.CircuitBreaker)
	if err != nil {
		return types.DailyPnL{}, fmt.Errorf("store: get daily %s: %w", date, err)
	}
	return d, nil
}

// AddRealizedPnL atomically adds delta to the day's realized PnL and bumps
// the trade count.
func (s *Store) AddRealizedPnL(ctx context.Context, date string, delta float64, capital float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_pnl (date, realized_pnl, total_capital, trade_count) VALUES (?, ?, ?, 1)
		ON CONFLICT(date) DO UPDATE SET
		    realized_pnl = realized_pnl + excluded.realized_pnl,
		    trade_count  = trade_count + 1`,
		date, delta, capital)
	if err != nil {
		return fmt.Errorf("store: add realized pnl %s: %w", date, err)
	}
	return nil
}

// SetCircuitBreaker latches the breaker flag for a date. The flag is only
// ever set true; a new calendar date starts a fresh row.
func (s *Store) SetCircuitBreaker(ctx context.Context, date string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_pnl (date, circuit_breaker) VALUES (?, 1)
		ON CONFLICT(date) DO UPDATE SET circuit_breaker = 1`,
		date)
	if err != nil {
		return fmt.Errorf("store: set circuit breaker %s: %w", date, err)
	}
	return nil
}

// PnLHistory returns the most recent daily rows (newest first) with the
// running cumulative column from the view.
func (s *Store) PnLHistory(ctx context.Context, limit int) ([]types.DailyPnL, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, realized_pnl, total_capital, trade_count, circuit_breaker, cumulative_pnl
		FROM daily_pnl_cumulative ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: pnl history: %w", err)
	}
	defer rows.Close()

	var out []types.DailyPnL
	for rows.Next() {
		var d types.DailyPnL
		if err := rows.Scan(&d.Date, &d.RealizedPnL, &d.TotalCapital, &d.TradeCount, &d.CircuitBreaker, &d.CumulativePnL); err != nil {
			return nil, fmt.Errorf("store: scan pnl row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ————————————————————————————————————————————————————————————————————————
// Trade log
// ————————————————————————————————————————————————————————————————————————

// AppendTradeLog inserts one audit row. Rows are never updated or deleted.
func (s *Store) AppendTradeLog(ctx context.Context, e types.TradeLogEntry) error {
	note, err := json.Marshal(e.Note)
	if err != nil {
		return fmt.Errorf("store: marshal trade note: %w", err)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trade_log (ts, market_id, market_name, action, side, price, size, paper, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp, e.MarketID, e.MarketName, string(e.Action), e.Side, e.Price, e.Size, e.Paper, string(note))
	if err != nil {
		return fmt.Errorf("store: append trade log: %w", err)
	}
	return nil
}

// RecentTradeLog returns the newest trade-log rows, newest first.
func (s *Store) RecentTradeLog(ctx context.Context, limit int) ([]types.TradeLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, market_id, market_name, action, side, price, size, paper, note
		FROM trade_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent trade log: %w", err)
	}
	defer rows.Close()

	var out []types.TradeLogEntry
	for rows.Next() {
		var e types.TradeLogEntry
		var action, note string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.MarketID, &e.MarketName, &action, &e.Side, &e.Price, &e.Size, &e.Paper, &note); err != nil {
			return nil, fmt.Errorf("store: scan trade log: %w", err)
		}
		e.Action = types.TradeAction(action)
		if err := json.Unmarshal([]byte(note), &e.Note); err != nil {
			e.Note = types.TradeNote{Error: types.ErrorText(err)}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
