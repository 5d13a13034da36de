package storage

// sqlite.go — durable engine state on a single-file database.
//
// Layout:
//   - `grid_groups` / `grid_levels`: one active group per symbol, old
//     groups kept deactivated for post-mortems.
//   - `indicators`: one row per bar, doubles as restart seed for the
//     TR window and the EMA chain.
//   - `spot_orders` / `futures_orders`: every placed or simulated order.
//   - `balance_snapshots`: SPOT/FUTURES/COMBINED rows after each
//     state-changing event in the simulated modes.

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS grid_groups (
    id                TEXT PRIMARY KEY,
    symbol            TEXT NOT NULL,
    base_price        REAL NOT NULL,
    spacing           REAL NOT NULL,
    active            INTEGER NOT NULL DEFAULT 1,
    deactivate_reason TEXT,
    created_at        INTEGER NOT NULL,
    deactivated_at    INTEGER
);

CREATE TABLE IF NOT EXISTS grid_levels (
    group_id TEXT NOT NULL,
    symbol   TEXT NOT NULL,
    price    REAL NOT NULL,
    filled   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (group_id, price)
);

-- One row per closed bar; also the restart seed for indicator state
CREATE TABLE IF NOT EXISTS indicators (
    symbol    TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    open      REAL NOT NULL,
    high      REAL NOT NULL,
    low       REAL NOT NULL,
    close     REAL NOT NULL,
    volume    REAL NOT NULL,
    tr        REAL NOT NULL,
    atr14     REAL NOT NULL,
    atr28     REAL NOT NULL,
    ema14     REAL NOT NULL,
    ema28     REAL NOT NULL,
    ema50     REAL NOT NULL,
    ema100    REAL NOT NULL,
    ema200    REAL NOT NULL,
    PRIMARY KEY (symbol, timestamp)
);

CREATE TABLE IF NOT EXISTS spot_orders (
    order_id     TEXT PRIMARY KEY,
    symbol       TEXT NOT NULL,
    side         TEXT NOT NULL,
    type         TEXT NOT NULL,
    status       TEXT NOT NULL,
    price        REAL NOT NULL,
    qty          REAL NOT NULL,
    executed_qty REAL NOT NULL DEFAULT 0,
    quote_qty    REAL NOT NULL DEFAULT 0,
    grid_id      TEXT,
    timestamp    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS futures_orders (
    order_ref    TEXT PRIMARY KEY,
    symbol       TEXT NOT NULL,
    side         TEXT NOT NULL DEFAULT 'SELL',
    qty          REAL NOT NULL,
    entry_price  REAL NOT NULL,
    leverage     INTEGER NOT NULL,
    status       TEXT NOT NULL DEFAULT 'OPEN',
    close_price  REAL,
    realized_pnl REAL,
    opened_at    INTEGER NOT NULL,
    closed_at    INTEGER
);

CREATE TABLE IF NOT EXISTS balance_snapshots (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    account_type   TEXT NOT NULL,
    symbol         TEXT NOT NULL,
    timestamp      INTEGER NOT NULL,
    start_balance  REAL NOT NULL,
    end_balance    REAL NOT NULL,
    net_flow       REAL NOT NULL DEFAULT 0,
    realized_pnl   REAL NOT NULL DEFAULT 0,
    unrealized_pnl REAL NOT NULL DEFAULT 0,
    fees           REAL NOT NULL DEFAULT 0,
    notes          TEXT
);

CREATE INDEX IF NOT EXISTS idx_groups_active   ON grid_groups(symbol, active);
CREATE INDEX IF NOT EXISTS idx_indicators_ts   ON indicators(symbol, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_spot_grid       ON spot_orders(grid_id, status);
CREATE INDEX IF NOT EXISTS idx_balance_ts      ON balance_snapshots(symbol, timestamp DESC);
`

// SQLiteStorage implements ports.Storage on SQLite (pure Go, no CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at the given path and
// applies the schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// SaveGridGroup writes the group header and all its rungs in one
// transaction. The previous active group, if any, must be deactivated
// by the caller first.
func (s *SQLiteStorage) SaveGridGroup(ctx context.Context, group domain.GridGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveGridGroup: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO grid_groups (id, symbol, base_price, spacing, active, created_at)
		 VALUES (?, ?, ?, ?, 1, strftime('%s','now')*1000)`,
		group.ID, group.Symbol, group.BasePrice, group.Spacing,
	); err != nil {
		return fmt.Errorf("storage.SaveGridGroup: insert group: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO grid_levels (group_id, symbol, price, filled) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveGridGroup: prepare: %w", err)
	}
	defer stmt.Close()

	for _, level := range group.Levels {
		filled := 0
		if level.Filled {
			filled = 1
		}
		if _, err := stmt.ExecContext(ctx, group.ID, group.Symbol, level.Price, filled); err != nil {
			return fmt.Errorf("storage.SaveGridGroup: insert level %.4f: %w", level.Price, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveGridGroup: commit: %w", err)
	}
	return nil
}

// LoadActiveGridGroup returns the active group with its rungs in
// ascending price order, or nil when the symbol has none.
func (s *SQLiteStorage) LoadActiveGridGroup(ctx context.Context, symbol string) (*domain.GridGroup, error) {
	var group domain.GridGroup
	err := s.db.QueryRowContext(ctx,
		`SELECT id, symbol, base_price, spacing FROM grid_groups
		 WHERE symbol = ? AND active = 1 ORDER BY created_at DESC LIMIT 1`,
		symbol,
	).Scan(&group.ID, &group.Symbol, &group.BasePrice, &group.Spacing)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.LoadActiveGridGroup: query group: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT price, filled FROM grid_levels WHERE group_id = ? ORDER BY price ASC`,
		group.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadActiveGridGroup: query levels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var level domain.GridLevel
		var filled int
		if err := rows.Scan(&level.Price, &filled); err != nil {
			return nil, fmt.Errorf("storage.LoadActiveGridGroup: scan level: %w", err)
		}
		level.Filled = filled == 1
		group.Levels = append(group.Levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.LoadActiveGridGroup: iterate levels: %w", err)
	}

	return &group, nil
}

// MarkLevelFilled flips the fill flag on one rung.
func (s *SQLiteStorage) MarkLevelFilled(ctx context.Context, symbol, groupID string, price float64, filled bool) error {
	v := 0
	if filled {
		v = 1
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE grid_levels SET filled = ? WHERE group_id = ? AND symbol = ? AND price = ?`,
		v, groupID, symbol, price,
	); err != nil {
		return fmt.Errorf("storage.MarkLevelFilled: %w", err)
	}
	return nil
}

// DeactivateGroup retires a group; its rows stay for history.
func (s *SQLiteStorage) DeactivateGroup(ctx context.Context, symbol, groupID, reason string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE grid_groups SET active = 0, deactivate_reason = ?,
		        deactivated_at = strftime('%s','now')*1000
		 WHERE id = ? AND symbol = ?`,
		reason, groupID, symbol,
	); err != nil {
		return fmt.Errorf("storage.DeactivateGroup: %w", err)
	}
	return nil
}

// CancelOpenOrders marks every still-open spot order of a group canceled.
func (s *SQLiteStorage) CancelOpenOrders(ctx context.Context, symbol, groupID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE spot_orders SET status = 'CANCELED'
		 WHERE grid_id = ? AND symbol = ? AND status = 'NEW'`,
		groupID, symbol,
	); err != nil {
		return fmt.Errorf("storage.CancelOpenOrders: %w", err)
	}
	return nil
}

// SaveIndicator upserts one indicator row keyed by (symbol, timestamp),
// so replaying a bar after a crash does not duplicate it.
func (s *SQLiteStorage) SaveIndicator(ctx context.Context, snap domain.IndicatorSnapshot) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO indicators
			(symbol, timestamp, open, high, low, close, volume,
			 tr, atr14, atr28, ema14, ema28, ema50, ema100, ema200)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timestamp) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume,
			tr = excluded.tr, atr14 = excluded.atr14, atr28 = excluded.atr28,
			ema14 = excluded.ema14, ema28 = excluded.ema28, ema50 = excluded.ema50,
			ema100 = excluded.ema100, ema200 = excluded.ema200`,
		snap.Symbol, snap.Timestamp, snap.Open, snap.High, snap.Low, snap.Close, snap.Volume,
		snap.TR, snap.ATR14, snap.ATR28, snap.EMA14, snap.EMA28, snap.EMA50, snap.EMA100, snap.EMA200,
	); err != nil {
		return fmt.Errorf("storage.SaveIndicator: %w", err)
	}
	return nil
}

// LoadRecentIndicators returns up to limit rows, most recent first.
func (s *SQLiteStorage) LoadRecentIndicators(ctx context.Context, symbol string, limit int) ([]domain.IndicatorSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timestamp, open, high, low, close, volume,
		       tr, atr14, atr28, ema14, ema28, ema50, ema100, ema200
		FROM indicators WHERE symbol = ?
		ORDER BY timestamp DESC LIMIT ?`,
		symbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadRecentIndicators: query: %w", err)
	}
	defer rows.Close()

	var out []domain.IndicatorSnapshot
	for rows.Next() {
		var snap domain.IndicatorSnapshot
		if err := rows.Scan(
			&snap.Symbol, &snap.Timestamp, &snap.Open, &snap.High, &snap.Low,
			&snap.Close, &snap.Volume, &snap.TR, &snap.ATR14, &snap.ATR28,
			&snap.EMA14, &snap.EMA28, &snap.EMA50, &snap.EMA100, &snap.EMA200,
		); err != nil {
			return nil, fmt.Errorf("storage.LoadRecentIndicators: scan row: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// SaveSpotOrder upserts one spot order row keyed by order id.
func (s *SQLiteStorage) SaveSpotOrder(ctx context.Context, rec domain.OrderRecord) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO spot_orders
			(order_id, symbol, side, type, status, price, qty,
			 executed_qty, quote_qty, grid_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			status = excluded.status,
			executed_qty = excluded.executed_qty,
			quote_qty = excluded.quote_qty`,
		rec.OrderID, rec.Symbol, string(rec.Side), rec.Type, rec.Status,
		rec.Price, rec.Qty, rec.ExecutedQty, rec.QuoteQty, rec.GridID, rec.Timestamp,
	); err != nil {
		return fmt.Errorf("storage.SaveSpotOrder: %s: %w", rec.OrderID, err)
	}
	return nil
}

// SaveHedgeOpen records a hedge open/extend and returns the reference
// used to close it.
func (s *SQLiteStorage) SaveHedgeOpen(ctx context.Context, symbol string, qty, price float64, leverage int) (string, error) {
	ref := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO futures_orders (order_ref, symbol, qty, entry_price, leverage, status, opened_at)
		VALUES (?, ?, ?, ?, ?, 'OPEN', strftime('%s','now')*1000)`,
		ref, symbol, qty, price, leverage,
	); err != nil {
		return "", fmt.Errorf("storage.SaveHedgeOpen: %w", err)
	}
	return ref, nil
}

// CloseHedgeOrder marks the referenced hedge order closed.
func (s *SQLiteStorage) CloseHedgeOrder(ctx context.Context, orderRef string, closePrice, realizedPnL float64) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE futures_orders
		SET status = 'CLOSED', close_price = ?, realized_pnl = ?,
		    closed_at = strftime('%s','now')*1000
		WHERE order_ref = ?`,
		closePrice, realizedPnL, orderRef,
	); err != nil {
		return fmt.Errorf("storage.CloseHedgeOrder: %s: %w", orderRef, err)
	}
	return nil
}

// SaveBalanceSnapshot appends one balance row.
func (s *SQLiteStorage) SaveBalanceSnapshot(ctx context.Context, snap domain.BalanceSnapshot) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO balance_snapshots
			(account_type, symbol, timestamp, start_balance, end_balance,
			 net_flow, realized_pnl, unrealized_pnl, fees, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(snap.AccountType), snap.Symbol, snap.Timestamp,
		snap.StartBalance, snap.EndBalance, snap.NetFlow,
		snap.RealizedPnL, snap.UnrealizedPnL, snap.Fees, snap.Notes,
	); err != nil {
		return fmt.Errorf("storage.SaveBalanceSnapshot: %w", err)
	}
	return nil
}

// Close shuts the database connection down.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
