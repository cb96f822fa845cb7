// Package portfolio keeps the authoritative record of positions and PnL.
// The ledger is mutated only by trade fills; everything else is read-only
// reporting.
package portfolio

import (
	"log/slog"
	"sync"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
)

const recentTradesDefault = 50

// Stats aggregates portfolio-level counters.
type Stats struct {
	TotalRealizedPnL   float64
	TotalUnrealizedPnL float64
	TotalFeesPaid      float64
	TotalTrades        int
	WinningTrades      int
	LosingTrades       int
	TotalVolume        float64
}

// TotalPnL returns realized plus unrealized PnL.
func (s Stats) TotalPnL() float64 {
	return s.TotalRealizedPnL + s.TotalUnrealizedPnL
}

// WinRate returns winning trades over total closed trades.
func (s Stats) WinRate() float64 {
	closed := s.WinningTrades + s.LosingTrades
	if closed == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(closed)
}

// Exposure is the per-market notional breakdown.
type Exposure struct {
	YesSize       float64
	NoSize        float64
	YesNotional   float64
	NoNotional    float64
	TotalNotional float64
	NetPosition   float64
}

// Ledger tracks positions per (market, token) and computes PnL with
// weighted-average cost accounting. Safe for concurrent use.
type Ledger struct {
	mu sync.RWMutex

	initialBalance float64
	cashBalance    float64

	positions map[string]map[domain.TokenKind]*domain.Position
	trades    []domain.Trade
	prices    map[string]map[domain.TokenKind]float64

	stats Stats
}

// NewLedger creates a ledger seeded with the given cash balance.
func NewLedger(initialBalance float64) *Ledger {
	slog.Info("portfolio: ledger initialized", "balance", initialBalance)
	return &Ledger{
		initialBalance: initialBalance,
		cashBalance:    initialBalance,
		positions:      make(map[string]map[domain.TokenKind]*domain.Position),
		prices:         make(map[string]map[domain.TokenKind]float64),
	}
}

// UpdateFromFill is the single mutation entry point. It locates or creates
// the position for (market, token) and applies the fill.
func (l *Ledger) UpdateFromFill(trade domain.Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.position(trade.MarketID, trade.Token)

	if trade.Side == domain.SideBuy {
		l.processBuy(pos, trade)
		l.cashBalance -= trade.NetCost()
	} else {
		l.processSell(pos, trade)
		l.cashBalance += trade.Notional() - trade.Fee
	}
	pos.TradeCount++

	l.trades = append(l.trades, trade)
	l.stats.TotalTrades++
	l.stats.TotalFeesPaid += trade.Fee
	l.stats.TotalVolume += trade.Notional()

	slog.Debug("portfolio: fill applied",
		"market", trade.MarketID,
		"token", trade.Token,
		"size", pos.Size,
		"avg_entry", pos.AvgEntryPrice,
	)
}

// position returns the position for (market, token), creating it lazily.
// Caller must hold the lock.
func (l *Ledger) position(marketID string, token domain.TokenKind) *domain.Position {
	byToken, ok := l.positions[marketID]
	if !ok {
		byToken = make(map[domain.TokenKind]*domain.Position)
		l.positions[marketID] = byToken
	}
	pos, ok := byToken[token]
	if !ok {
		pos = &domain.Position{MarketID: marketID, Token: token}
		byToken[token] = pos
	}
	return pos
}

// processBuy applies a buy fill: weighted-average when adding to a long,
// realizing PnL when covering a short, flipping long on an over-cover.
func (l *Ledger) processBuy(pos *domain.Position, trade domain.Trade) {
	newSize := pos.Size + trade.Size

	switch {
	case pos.Size >= 0:
		// Adding to or opening a long.
		totalCost := pos.AvgEntryPrice*pos.Size + trade.Price*trade.Size
		if newSize > 0 {
			pos.AvgEntryPrice = totalCost / newSize
		} else {
			pos.AvgEntryPrice = 0
		}
		pos.CostBasis += trade.NetCost()

	case trade.Size <= -pos.Size:
		// Covering part (or all) of a short at unchanged average price.
		l.realize(pos, (pos.AvgEntryPrice-trade.Price)*trade.Size)

	default:
		// Cover the whole short, then open a long with the excess.
		shortSize := -pos.Size
		l.realize(pos, (pos.AvgEntryPrice-trade.Price)*shortSize)
		longSize := trade.Size - shortSize
		pos.AvgEntryPrice = trade.Price
		pos.CostBasis = longSize * trade.Price
	}

	pos.Size = newSize
	pos.TotalBought += trade.Size
}

// processSell is the mirror of processBuy.
func (l *Ledger) processSell(pos *domain.Position, trade domain.Trade) {
	newSize := pos.Size - trade.Size

	switch {
	case pos.Size <= 0:
		// Adding to or opening a short.
		totalValue := pos.AvgEntryPrice*(-pos.Size) + trade.Price*trade.Size
		newShort := -newSize
		if newShort > 0 {
			pos.AvgEntryPrice = totalValue / newShort
		} else {
			pos.AvgEntryPrice = 0
		}
		pos.CostBasis += trade.Notional()

	case trade.Size <= pos.Size:
		// Reducing (or closing) the long.
		l.realize(pos, (trade.Price-pos.AvgEntryPrice)*trade.Size)

	default:
		// Close the whole long, then open a short with the excess.
		longSize := pos.Size
		l.realize(pos, (trade.Price-pos.AvgEntryPrice)*longSize)
		shortSize := trade.Size - longSize
		pos.AvgEntryPrice = trade.Price
		pos.CostBasis = shortSize * trade.Price
	}

	pos.Size = newSize
	pos.TotalSold += trade.Size
}

// realize books a realized gain or loss and updates the win/loss counters.
// Caller must hold the lock.
func (l *Ledger) realize(pos *domain.Position, pnl float64) {
	pos.RealizedPnL += pnl
	l.stats.TotalRealizedPnL += pnl
	if pnl > 0 {
		l.stats.WinningTrades++
	} else {
		l.stats.LosingTrades++
	}
}

// UpdatePrices records current token prices for a market and recomputes
// aggregate unrealized PnL across all open positions.
func (l *Ledger) UpdatePrices(marketID string, yesPrice, noPrice float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	byToken, ok := l.prices[marketID]
	if !ok {
		byToken = make(map[domain.TokenKind]float64)
		l.prices[marketID] = byToken
	}
	byToken[domain.TokenYes] = yesPrice
	byToken[domain.TokenNo] = noPrice

	var total float64
	for mid, tokens := range l.positions {
		current, ok := l.prices[mid]
		if !ok {
			continue
		}
		for token, pos := range tokens {
			if price, ok := current[token]; ok {
				total += pos.UnrealizedPnL(price)
			}
		}
	}
	l.stats.TotalUnrealizedPnL = total
}

// Position returns a copy of the position for (market, token).
// ok is false when no fill has touched the pair yet.
func (l *Ledger) Position(marketID string, token domain.TokenKind) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byToken, ok := l.positions[marketID]
	if !ok {
		return domain.Position{}, false
	}
	pos, ok := byToken[token]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// MarketExposure returns the notional breakdown for a market.
func (l *Ledger) MarketExposure(marketID string) Exposure {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var exp Exposure
	byToken, ok := l.positions[marketID]
	if !ok {
		return exp
	}
	if yes, ok := byToken[domain.TokenYes]; ok {
		exp.YesSize = yes.Size
		exp.YesNotional = yes.Notional()
	}
	if no, ok := byToken[domain.TokenNo]; ok {
		exp.NoSize = no.Size
		exp.NoNotional = no.Notional()
	}
	exp.TotalNotional = exp.YesNotional + exp.NoNotional
	exp.NetPosition = exp.YesSize - exp.NoSize
	return exp
}

// TotalExposure returns total notional across all markets.
func (l *Ledger) TotalExposure() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total float64
	for _, tokens := range l.positions {
		for _, pos := range tokens {
			total += pos.Notional()
		}
	}
	return total
}

// PnL is the profit and loss breakdown.
type PnL struct {
	Realized   float64
	Unrealized float64
	Total      float64
	FeesPaid   float64
	Net        float64
}

// GetPnL returns the current PnL breakdown.
func (l *Ledger) GetPnL() PnL {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return PnL{
		Realized:   l.stats.TotalRealizedPnL,
		Unrealized: l.stats.TotalUnrealizedPnL,
		Total:      l.stats.TotalPnL(),
		FeesPaid:   l.stats.TotalFeesPaid,
		Net:        l.stats.TotalPnL() - l.stats.TotalFeesPaid,
	}
}

// Stats returns a copy of the aggregate counters.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// CashBalance returns the reporting cash balance. It is not a risk
// constraint.
func (l *Ledger) CashBalance() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cashBalance
}

// RecentTrades returns up to limit most recent fills (default 50 when
// limit <= 0).
func (l *Ledger) RecentTrades(limit int) []domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		limit = recentTradesDefault
	}
	if len(l.trades) < limit {
		limit = len(l.trades)
	}
	out := make([]domain.Trade, limit)
	copy(out, l.trades[len(l.trades)-limit:])
	return out
}

// Summary returns the portfolio snapshot for observers.
func (l *Ledger) Summary() map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var totalExposure float64
	positionCount := 0
	for _, tokens := range l.positions {
		positionCount += len(tokens)
		for _, pos := range tokens {
			totalExposure += pos.Notional()
		}
	}

	return map[string]any{
		"initial_balance": l.initialBalance,
		"cash_balance":    l.cashBalance,
		"total_exposure":  totalExposure,
		"realized_pnl":    l.stats.TotalRealizedPnL,
		"unrealized_pnl":  l.stats.TotalUnrealizedPnL,
		"total_pnl":       l.stats.TotalPnL(),
		"fees_paid":       l.stats.TotalFeesPaid,
		"total_trades":    l.stats.TotalTrades,
		"win_rate":        l.stats.WinRate(),
		"total_volume":    l.stats.TotalVolume,
		"positions_count": positionCount,
		"markets_traded":  len(l.positions),
	}
}

// Reset clears positions, trade history, and stats back to the initial
// balance.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.positions = make(map[string]map[domain.TokenKind]*domain.Position)
	l.trades = nil
	l.prices = make(map[string]map[domain.TokenKind]float64)
	l.cashBalance = l.initialBalance
	l.stats = Stats{}
	slog.Info("portfolio: reset")
}
