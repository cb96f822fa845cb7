// Package risk enforces pre-trade limits and owns the kill switch.
package risk

import (
	"log/slog"
	"sync"
	"time"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
)

// Config holds the risk limits.
type Config struct {
	// Position limits (notional).
	MaxPositionPerMarket float64
	MaxGlobalExposure    float64

	// Loss limits.
	MaxDailyLoss   float64
	MaxDrawdownPct float64 // fraction of peak, e.g. 0.10

	// Market filters.
	TradeOnlyHighVolume bool
	Min24hVolume        float64

	Whitelist []string
	Blacklist []string

	KillSwitchEnabled bool
}

// DefaultConfig returns conservative production limits.
func DefaultConfig() Config {
	return Config{
		MaxPositionPerMarket: 200,
		MaxGlobalExposure:    5000,
		MaxDailyLoss:         500,
		MaxDrawdownPct:       0.10,
		TradeOnlyHighVolume:  true,
		Min24hVolume:         10000,
		KillSwitchEnabled:    true,
	}
}

// State is the current risk state snapshot.
type State struct {
	DailyPnL            float64
	PeakPnL             float64
	CurrentDrawdown     float64
	GlobalExposure      float64
	ReservedExposure    float64
	KillSwitchTriggered bool
	KillSwitchReason    string
	LastCheck           time.Time
}

// reservation is exposure committed at placement but not yet filled.
type reservation struct {
	marketID string
	amount   float64
}

// Guard validates orders against risk limits and tracks overall exposure.
// CheckOrder is read-only except that a breached loss or drawdown limit
// trips the kill switch. The switch is sticky: once tripped it stays
// tripped until ResetKillSwitch.
type Guard struct {
	mu    sync.Mutex
	cfg   Config
	state State

	marketExposure map[string]float64
	marketReserved map[string]float64
	reservations   map[string]reservation // order id -> outstanding reserve

	marketVolumes map[string]float64

	whitelist map[string]bool
	blacklist map[string]bool

	sessionStart  time.Time
	sessionTrades int
}

// NewGuard creates a guard with the given limits.
func NewGuard(cfg Config) *Guard {
	g := &Guard{
		cfg:            cfg,
		marketExposure: make(map[string]float64),
		marketReserved: make(map[string]float64),
		reservations:   make(map[string]reservation),
		marketVolumes:  make(map[string]float64),
		whitelist:      make(map[string]bool, len(cfg.Whitelist)),
		blacklist:      make(map[string]bool, len(cfg.Blacklist)),
		sessionStart:   time.Now().UTC(),
	}
	for _, id := range cfg.Whitelist {
		g.whitelist[id] = true
	}
	for _, id := range cfg.Blacklist {
		g.blacklist[id] = true
	}
	slog.Info("risk: guard initialized",
		"max_per_market", cfg.MaxPositionPerMarket,
		"max_global", cfg.MaxGlobalExposure,
		"max_daily_loss", cfg.MaxDailyLoss,
	)
	return g
}

// CheckOrder evaluates all risk checks in order and returns false on the
// first failure. Exposure counters are never mutated here.
func (g *Guard) CheckOrder(order domain.Order) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.KillSwitchTriggered {
		slog.Warn("risk: order rejected, kill switch tripped", "reason", g.state.KillSwitchReason)
		return false
	}

	if g.blacklist[order.MarketID] {
		slog.Warn("risk: order rejected, market blacklisted", "market", order.MarketID)
		return false
	}

	if len(g.whitelist) > 0 && !g.whitelist[order.MarketID] {
		slog.Warn("risk: order rejected, market not whitelisted", "market", order.MarketID)
		return false
	}

	if g.cfg.TradeOnlyHighVolume {
		volume := g.marketVolumes[order.MarketID]
		if volume < g.cfg.Min24hVolume {
			slog.Warn("risk: order rejected, volume below floor",
				"market", order.MarketID,
				"volume", volume,
				"min", g.cfg.Min24hVolume,
			)
			return false
		}
	}

	signed := order.SignedNotional()

	current := g.marketExposure[order.MarketID] + g.marketReserved[order.MarketID]
	projected := abs(current + signed)
	if projected > g.cfg.MaxPositionPerMarket {
		slog.Warn("risk: order rejected, market limit",
			"market", order.MarketID,
			"current", current,
			"projected", projected,
			"limit", g.cfg.MaxPositionPerMarket,
		)
		return false
	}

	projectedGlobal := g.state.GlobalExposure + g.state.ReservedExposure + abs(signed)
	if projectedGlobal > g.cfg.MaxGlobalExposure {
		slog.Warn("risk: order rejected, global limit",
			"projected", projectedGlobal,
			"limit", g.cfg.MaxGlobalExposure,
		)
		return false
	}

	if g.state.DailyPnL < -g.cfg.MaxDailyLoss {
		slog.Warn("risk: order rejected, daily loss limit",
			"daily_pnl", g.state.DailyPnL,
			"limit", g.cfg.MaxDailyLoss,
		)
		if g.cfg.KillSwitchEnabled {
			g.triggerKillSwitch("daily loss limit exceeded")
		}
		return false
	}

	if g.state.CurrentDrawdown > g.cfg.MaxDrawdownPct {
		slog.Warn("risk: order rejected, drawdown limit",
			"drawdown", g.state.CurrentDrawdown,
			"limit", g.cfg.MaxDrawdownPct,
		)
		if g.cfg.KillSwitchEnabled {
			g.triggerKillSwitch("drawdown limit exceeded")
		}
		return false
	}

	return true
}

// Reserve commits the order's notional against the limits until the order
// fills or is released. Call only after CheckOrder passed and the order was
// accepted by the exchange.
func (g *Guard) Reserve(order domain.Order) {
	g.mu.Lock()
	defer g.mu.Unlock()

	amount := abs(order.SignedNotional())
	g.reservations[order.OrderID] = reservation{marketID: order.MarketID, amount: amount}
	g.marketReserved[order.MarketID] += amount
	g.state.ReservedExposure += amount
}

// ReleaseOrder frees any outstanding reservation for the order
// (cancellation, rejection, timeout).
func (g *Guard) ReleaseOrder(orderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releaseLocked(orderID, 0)
}

// releaseLocked reduces the order's reservation by consumed notional,
// dropping the remainder entirely when consumed is zero.
func (g *Guard) releaseLocked(orderID string, consumed float64) {
	res, ok := g.reservations[orderID]
	if !ok {
		return
	}
	freed := res.amount
	if consumed > 0 && consumed < res.amount {
		freed = consumed
		res.amount -= consumed
		g.reservations[orderID] = res
	} else {
		delete(g.reservations, orderID)
	}
	g.marketReserved[res.marketID] = max0(g.marketReserved[res.marketID] - freed)
	g.state.ReservedExposure = max0(g.state.ReservedExposure - freed)
}

// UpdatePosition adjusts per-market and global exposure by
// |sizeDelta × price|, clamped to non-negative.
func (g *Guard) UpdatePosition(marketID string, token domain.TokenKind, sizeDelta, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	notional := abs(sizeDelta * price)
	if sizeDelta > 0 {
		g.marketExposure[marketID] += notional
		g.state.GlobalExposure += notional
	} else {
		g.marketExposure[marketID] = max0(g.marketExposure[marketID] - notional)
		g.state.GlobalExposure = max0(g.state.GlobalExposure - notional)
	}
	g.state.LastCheck = time.Now().UTC()
}

// UpdateFromFill updates exposure from a fill and converts the matching
// reservation into real exposure.
func (g *Guard) UpdateFromFill(trade domain.Trade) {
	g.mu.Lock()
	g.releaseLocked(trade.OrderID, trade.Notional())
	g.sessionTrades++
	g.mu.Unlock()

	g.UpdatePosition(trade.MarketID, trade.Token, trade.SignedSize(), trade.Price)
}

// UpdatePnL records the latest PnL, tracks the running peak, recomputes the
// drawdown, and trips the kill switch on a breached limit.
func (g *Guard) UpdatePnL(realized, unrealized float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := realized + unrealized
	g.state.DailyPnL = total

	if total > g.state.PeakPnL {
		g.state.PeakPnL = total
	}
	if g.state.PeakPnL > 0 {
		g.state.CurrentDrawdown = (g.state.PeakPnL - total) / g.state.PeakPnL
	} else {
		g.state.CurrentDrawdown = 0
	}

	if total < -g.cfg.MaxDailyLoss && g.cfg.KillSwitchEnabled && !g.state.KillSwitchTriggered {
		g.triggerKillSwitch("daily loss limit exceeded")
	}
	if g.state.CurrentDrawdown > g.cfg.MaxDrawdownPct && g.cfg.KillSwitchEnabled && !g.state.KillSwitchTriggered {
		g.triggerKillSwitch("drawdown limit exceeded")
	}
}

// UpdateMarketVolume caches a market's 24h volume for the volume floor
// check.
func (g *Guard) UpdateMarketVolume(marketID string, volume24h float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.marketVolumes[marketID] = volume24h
}

// SetMarketVolumes bulk-updates the volume cache.
func (g *Guard) SetMarketVolumes(volumes map[string]float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, v := range volumes {
		g.marketVolumes[id] = v
	}
}

// triggerKillSwitch flips the sticky kill switch. Caller must hold the lock.
func (g *Guard) triggerKillSwitch(reason string) {
	g.state.KillSwitchTriggered = true
	g.state.KillSwitchReason = reason
	slog.Error("risk: KILL SWITCH TRIGGERED", "reason", reason)
}

// ResetKillSwitch re-arms trading. This is the only way back after a trip;
// there is no automatic re-arm.
func (g *Guard) ResetKillSwitch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.KillSwitchTriggered = false
	g.state.KillSwitchReason = ""
	slog.Warn("risk: kill switch reset")
}

// WithinGlobalLimits reports whether trading is currently allowed at the
// global level.
func (g *Guard) WithinGlobalLimits() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.KillSwitchTriggered {
		return false
	}
	if g.state.DailyPnL < -g.cfg.MaxDailyLoss {
		return false
	}
	if g.state.CurrentDrawdown > g.cfg.MaxDrawdownPct {
		return false
	}
	if g.state.GlobalExposure > g.cfg.MaxGlobalExposure {
		return false
	}
	return true
}

// MarketExposure returns the current filled exposure for a market.
func (g *Guard) MarketExposure(marketID string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.marketExposure[marketID]
}

// AvailableExposure returns remaining per-market capacity.
func (g *Guard) AvailableExposure(marketID string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return max0(g.cfg.MaxPositionPerMarket - g.marketExposure[marketID] - g.marketReserved[marketID])
}

// GlobalAvailable returns remaining global capacity.
func (g *Guard) GlobalAvailable() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return max0(g.cfg.MaxGlobalExposure - g.state.GlobalExposure - g.state.ReservedExposure)
}

// State returns a copy of the current risk state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// ResetDailyStats clears the daily PnL tracking at the start of a trading
// day.
func (g *Guard) ResetDailyStats() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.DailyPnL = 0
	g.state.PeakPnL = 0
	g.state.CurrentDrawdown = 0
	g.sessionStart = time.Now().UTC()
	g.sessionTrades = 0
	slog.Info("risk: daily stats reset")
}

// Summary returns the risk snapshot for observers.
func (g *Guard) Summary() map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()

	utilization := 0.0
	if g.cfg.MaxGlobalExposure > 0 {
		utilization = g.state.GlobalExposure / g.cfg.MaxGlobalExposure * 100
	}

	exposed := 0
	for _, e := range g.marketExposure {
		if e > 0 {
			exposed++
		}
	}

	withinLimits := !g.state.KillSwitchTriggered &&
		g.state.DailyPnL >= -g.cfg.MaxDailyLoss &&
		g.state.CurrentDrawdown <= g.cfg.MaxDrawdownPct &&
		g.state.GlobalExposure <= g.cfg.MaxGlobalExposure

	return map[string]any{
		"global_exposure":       g.state.GlobalExposure,
		"reserved_exposure":     g.state.ReservedExposure,
		"max_global_exposure":   g.cfg.MaxGlobalExposure,
		"utilization_pct":       utilization,
		"daily_pnl":             g.state.DailyPnL,
		"max_daily_loss":        g.cfg.MaxDailyLoss,
		"peak_pnl":              g.state.PeakPnL,
		"current_drawdown_pct":  g.state.CurrentDrawdown * 100,
		"max_drawdown_pct":      g.cfg.MaxDrawdownPct * 100,
		"kill_switch_triggered": g.state.KillSwitchTriggered,
		"kill_switch_reason":    g.state.KillSwitchReason,
		"markets_with_exposure": exposed,
		"session_trade_count":   g.sessionTrades,
		"within_limits":         withinLimits,
	}
}

// AddToBlacklist blocks a market from all future orders.
func (g *Guard) AddToBlacklist(marketID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.blacklist[marketID] {
		g.blacklist[marketID] = true
		slog.Info("risk: market blacklisted", "market", marketID)
	}
}

// RemoveFromBlacklist lifts a market block.
func (g *Guard) RemoveFromBlacklist(marketID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.blacklist[marketID] {
		delete(g.blacklist, marketID)
		slog.Info("risk: market removed from blacklist", "market", marketID)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
