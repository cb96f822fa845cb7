package ports

import (
	"context"
	"time"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
)

// DailySummary is the end-of-day snapshot persisted by the journal.
type DailySummary struct {
	Date          time.Time
	TradeCount    int
	RealizedPnL   float64
	UnrealizedPnL float64
	FeesPaid      float64
	Volume        float64
	WinRate       float64
	Exposure      float64
}

// TradeJournal persists fills and daily summaries for reporting. It is not a
// durability layer; core state stays in memory.
type TradeJournal interface {
	SaveTrade(ctx context.Context, trade domain.Trade) error
	GetTrades(ctx context.Context, from, to time.Time) ([]domain.Trade, error)

	SaveDailySummary(ctx context.Context, summary DailySummary) error

	Close() error
}
