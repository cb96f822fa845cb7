// Package storage persists trades and daily summaries to SQLite for
// reporting. It is not a durability layer: the trading core keeps its state
// in memory and never reads from here.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
	"github.com/iDechart/polymarket-arbitrage/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    trade_id   TEXT PRIMARY KEY,
    order_id   TEXT NOT NULL,
    market_id  TEXT NOT NULL,
    token      TEXT NOT NULL,
    side       TEXT NOT NULL,
    price      REAL NOT NULL,
    size       REAL NOT NULL,
    fee        REAL NOT NULL DEFAULT 0,
    executed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_summaries (
    day            TEXT PRIMARY KEY,
    trade_count    INTEGER NOT NULL DEFAULT 0,
    realized_pnl   REAL    NOT NULL DEFAULT 0,
    unrealized_pnl REAL    NOT NULL DEFAULT 0,
    fees_paid      REAL    NOT NULL DEFAULT 0,
    volume         REAL    NOT NULL DEFAULT 0,
    win_rate       REAL    NOT NULL DEFAULT 0,
    exposure       REAL    NOT NULL DEFAULT 0,
    saved_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_market ON trades(market_id);
CREATE INDEX IF NOT EXISTS idx_trades_at     ON trades(executed_at DESC);
`

// Trades older than this are pruned at startup.
const tradeRetention = 30 * 24 * time.Hour

// TradeJournal implements ports.TradeJournal on SQLite (pure Go, no CGo).
type TradeJournal struct {
	db *sql.DB
	mu sync.Mutex
}

var _ ports.TradeJournal = (*TradeJournal)(nil)

// NewTradeJournal opens (or creates) the database at the given path, applies
// the schema, and prunes old rows.
func NewTradeJournal(path string) (*TradeJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewTradeJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewTradeJournal: apply schema: %w", err)
	}

	j := &TradeJournal{db: db}
	j.pruneOld(context.Background())
	return j, nil
}

// SaveTrade inserts one fill. Duplicate trade ids are ignored so replayed
// fills never double-count.
func (j *TradeJournal) SaveTrade(ctx context.Context, trade domain.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades
		  (trade_id, order_id, market_id, token, side, price, size, fee, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.TradeID, trade.OrderID, trade.MarketID,
		string(trade.Token), string(trade.Side),
		trade.Price, trade.Size, trade.Fee,
		trade.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: %w", err)
	}
	return nil
}

// GetTrades returns trades executed in [from, to), oldest first.
func (j *TradeJournal) GetTrades(ctx context.Context, from, to time.Time) ([]domain.Trade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx, `
		SELECT trade_id, order_id, market_id, token, side, price, size, fee, executed_at
		FROM trades
		WHERE executed_at >= ? AND executed_at < ?
		ORDER BY executed_at ASC`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.GetTrades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var token, side string
		if err := rows.Scan(&t.TradeID, &t.OrderID, &t.MarketID, &token, &side,
			&t.Price, &t.Size, &t.Fee, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("storage.GetTrades: scan: %w", err)
		}
		t.Token = domain.TokenKind(token)
		t.Side = domain.OrderSide(side)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.GetTrades: %w", err)
	}
	return trades, nil
}

// SaveDailySummary upserts the summary row for the summary's date.
func (j *TradeJournal) SaveDailySummary(ctx context.Context, s ports.DailySummary) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	day := s.Date.UTC().Format("2006-01-02")
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO daily_summaries
		  (day, trade_count, realized_pnl, unrealized_pnl, fees_paid, volume, win_rate, exposure, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
		  trade_count    = excluded.trade_count,
		  realized_pnl   = excluded.realized_pnl,
		  unrealized_pnl = excluded.unrealized_pnl,
		  fees_paid      = excluded.fees_paid,
		  volume         = excluded.volume,
		  win_rate       = excluded.win_rate,
		  exposure       = excluded.exposure,
		  saved_at       = excluded.saved_at`,
		day, s.TradeCount, s.RealizedPnL, s.UnrealizedPnL,
		s.FeesPaid, s.Volume, s.WinRate, s.Exposure,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveDailySummary: %w", err)
	}
	return nil
}

// GetDailySummary returns the stored summary for a date, if any.
func (j *TradeJournal) GetDailySummary(ctx context.Context, date time.Time) (ports.DailySummary, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	day := date.UTC().Format("2006-01-02")
	var s ports.DailySummary
	var dayStr string
	err := j.db.QueryRowContext(ctx, `
		SELECT day, trade_count, realized_pnl, unrealized_pnl, fees_paid, volume, win_rate, exposure
		FROM daily_summaries WHERE day = ?`, day,
	).Scan(&dayStr, &s.TradeCount, &s.RealizedPnL, &s.UnrealizedPnL,
		&s.FeesPaid, &s.Volume, &s.WinRate, &s.Exposure)
	if err == sql.ErrNoRows {
		return ports.DailySummary{}, false, nil
	}
	if err != nil {
		return ports.DailySummary{}, false, fmt.Errorf("storage.GetDailySummary: %w", err)
	}
	s.Date, _ = time.Parse("2006-01-02", dayStr)
	return s, true, nil
}

func (j *TradeJournal) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-tradeRetention)
	if _, err := j.db.ExecContext(ctx, `DELETE FROM trades WHERE executed_at < ?`, cutoff); err != nil {
		// Pruning is best effort.
		return
	}
}

// Close releases the database handle.
func (j *TradeJournal) Close() error {
	return j.db.Close()
}
