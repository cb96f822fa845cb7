// Package bot wires the market feed, detector, executor, risk guard, and
// portfolio ledger into a running trading loop.
package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iDechart/polymarket-arbitrage/internal/detector"
	"github.com/iDechart/polymarket-arbitrage/internal/domain"
	"github.com/iDechart/polymarket-arbitrage/internal/executor"
	"github.com/iDechart/polymarket-arbitrage/internal/portfolio"
	"github.com/iDechart/polymarket-arbitrage/internal/ports"
	"github.com/iDechart/polymarket-arbitrage/internal/risk"
)

// Config holds orchestration parameters.
type Config struct {
	DryRun          bool
	MonitorInterval time.Duration
	FillSim         FillSimConfig
}

// DefaultConfig returns standard orchestration parameters.
func DefaultConfig() Config {
	return Config{
		DryRun:          true,
		MonitorInterval: 30 * time.Second,
		FillSim:         DefaultFillSimConfig(),
	}
}

// Bot owns the trading loop. Market updates flow through the detector into
// the executor; the monitoring loop feeds PnL back into the risk guard and
// reports status.
type Bot struct {
	cfg Config

	feed     ports.MarketFeed
	detector *detector.Detector
	executor *executor.Controller
	guard    *risk.Guard
	ledger   *portfolio.Ledger
	journal  ports.TradeJournal
	notifier ports.Notifier
	simBook  FilledMarker

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started time.Time
}

// Deps are the collaborators the bot orchestrates. Journal and Notifier may
// be nil; SimExchange is set only for dry runs.
type Deps struct {
	Feed        ports.MarketFeed
	Detector    *detector.Detector
	Executor    *executor.Controller
	Guard       *risk.Guard
	Ledger      *portfolio.Ledger
	Journal     ports.TradeJournal
	Notifier    ports.Notifier
	SimExchange FilledMarker
}

// New creates the bot from prebuilt components.
func New(cfg Config, deps Deps) *Bot {
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = DefaultConfig().MonitorInterval
	}
	return &Bot{
		cfg:      cfg,
		feed:     deps.Feed,
		detector: deps.Detector,
		executor: deps.Executor,
		guard:    deps.Guard,
		ledger:   deps.Ledger,
		journal:  deps.Journal,
		notifier: deps.Notifier,
		simBook:  deps.SimExchange,
	}
}

// Start launches the executor, the feed, the monitoring loop, and (in dry
// run) the fill simulator. A feed startup failure aborts the whole start.
func (b *Bot) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.started = time.Now()

	b.executor.Start(runCtx)

	if err := b.feed.Start(runCtx, b.onMarketUpdate); err != nil {
		cancel()
		b.executor.Stop(ctx)
		return err
	}

	b.wg.Add(1)
	go b.runMonitor(runCtx)

	if b.cfg.DryRun {
		sim := newFillSimulator(b.cfg.FillSim, b.executor, b.simBook)
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			sim.run(runCtx)
		}()
	}

	slog.Info("bot: started", "dry_run", b.cfg.DryRun)
	return nil
}

// Stop shuts everything down in order: feed first so no new signals arrive,
// then the executor (cancelling open orders), then reporting.
func (b *Bot) Stop(ctx context.Context) {
	slog.Info("bot: stopping")

	if err := b.feed.Stop(ctx); err != nil {
		slog.Warn("bot: feed stop failed", "error", err)
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.executor.Stop(ctx)
	b.wg.Wait()

	b.saveDailySummary(ctx)
	b.logFinalSummary()
}

// onMarketUpdate is the feed callback: refresh caches, gate on global
// limits, analyze, submit. Runs on the feed goroutine and must not block.
func (b *Bot) onMarketUpdate(marketID string, state domain.MarketState) {
	b.guard.UpdateMarketVolume(marketID, state.Market.Volume24h)

	yesMid, okYes := state.Book.Yes.MidPrice()
	noMid, okNo := state.Book.No.MidPrice()
	if okYes && okNo {
		b.ledger.UpdatePrices(marketID, yesMid, noMid)
	}

	if !b.guard.WithinGlobalLimits() {
		return
	}

	for _, sig := range b.detector.Analyze(b.enrichState(marketID, state)) {
		b.executor.Submit(sig)
	}
}

// enrichState completes the feed snapshot with our positions and open
// orders. The feed only knows the venue's book.
func (b *Bot) enrichState(marketID string, state domain.MarketState) domain.MarketState {
	for _, token := range []domain.TokenKind{domain.TokenYes, domain.TokenNo} {
		pos, ok := b.ledger.Position(marketID, token)
		if !ok {
			continue
		}
		if state.Positions == nil {
			state.Positions = make(map[domain.TokenKind]domain.Position, 2)
		}
		state.Positions[token] = pos
	}
	state.OpenOrders = b.executor.OpenOrders(marketID)
	return state
}

// runMonitor periodically feeds PnL into the risk guard, prunes the
// detector's caches, and reports status.
func (b *Bot) runMonitor(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.monitorTick(ctx)
		}
	}
}

func (b *Bot) monitorTick(ctx context.Context) {
	pnl := b.ledger.GetPnL()
	b.guard.UpdatePnL(pnl.Realized, pnl.Unrealized)
	b.detector.ClearExpiredOpportunities()

	execStats := b.executor.Stats()
	slog.Info("bot: status",
		"uptime", time.Since(b.started).Round(time.Second),
		"realized_pnl", pnl.Realized,
		"unrealized_pnl", pnl.Unrealized,
		"open_orders", execStats.OpenOrders,
		"queue_depth", b.executor.QueueDepth(),
	)

	if b.notifier != nil {
		if err := b.notifier.Notify(ctx, b.statusReport()); err != nil {
			slog.Warn("bot: notify failed", "error", err)
		}
	}
}

func (b *Bot) statusReport() ports.StatusReport {
	detStats := b.detector.Stats()
	execStats := b.executor.Stats()
	timing := b.detector.TimingStats()

	return ports.StatusReport{
		Engine: map[string]any{
			"analyzed":               detStats.Analyzed,
			"opportunities_detected": detStats.OpportunitiesDetected,
			"signals_emitted":        detStats.SignalsEmitted,
			"signals_processed":      execStats.SignalsProcessed,
			"signals_dropped":        execStats.SignalsDropped,
			"orders_placed":          execStats.OrdersPlaced,
			"orders_filled":          execStats.OrdersFilled,
			"orders_cancelled":       execStats.OrdersCancelled,
			"orders_rejected":        execStats.OrdersRejected,
			"risk_rejections":        execStats.RiskRejections,
			"slippage_rejections":    execStats.SlippageRejections,
			"open_orders":            execStats.OpenOrders,
			"uptime_seconds":         int(time.Since(b.started).Seconds()),
		},
		Risk:      b.guard.Summary(),
		Portfolio: b.ledger.Summary(),
		Timing: map[string]any{
			"active_count":   timing.ActiveCount,
			"expired_count":  timing.ExpiredCount,
			"executed_count": timing.ExecutedCount,
			"mean_ms":        timing.MeanMs,
			"min_ms":         timing.MinMs,
			"max_ms":         timing.MaxMs,
			"buckets":        timing.Buckets,
		},
	}
}

func (b *Bot) saveDailySummary(ctx context.Context) {
	if b.journal == nil {
		return
	}

	pnl := b.ledger.GetPnL()
	stats := b.ledger.Stats()
	summary := ports.DailySummary{
		Date:          time.Now().UTC(),
		TradeCount:    stats.TotalTrades,
		RealizedPnL:   pnl.Realized,
		UnrealizedPnL: pnl.Unrealized,
		FeesPaid:      pnl.FeesPaid,
		Volume:        stats.TotalVolume,
		WinRate:       stats.WinRate(),
		Exposure:      b.ledger.TotalExposure(),
	}
	if err := b.journal.SaveDailySummary(ctx, summary); err != nil {
		slog.Warn("bot: daily summary save failed", "error", err)
	}
}

func (b *Bot) logFinalSummary() {
	pnl := b.ledger.GetPnL()
	stats := b.ledger.Stats()
	slog.Info("bot: final summary",
		"uptime", time.Since(b.started).Round(time.Second),
		"trades", stats.TotalTrades,
		"realized_pnl", pnl.Realized,
		"unrealized_pnl", pnl.Unrealized,
		"fees_paid", pnl.FeesPaid,
		"win_rate", stats.WinRate(),
		"cash_balance", b.ledger.CashBalance(),
	)
}

// StatusReport exposes the current observer snapshot.
func (b *Bot) StatusReport() ports.StatusReport {
	return b.statusReport()
}

// JournalingLedger forwards fills to the portfolio ledger and records them
// in the trade journal. Journal failures are logged, never propagated.
type JournalingLedger struct {
	Ledger  *portfolio.Ledger
	Journal ports.TradeJournal
}

func (j *JournalingLedger) UpdateFromFill(trade domain.Trade) {
	j.Ledger.UpdateFromFill(trade)
	if j.Journal != nil {
		if err := j.Journal.SaveTrade(context.Background(), trade); err != nil {
			slog.Warn("bot: trade journal write failed", "trade", trade.TradeID, "error", err)
		}
	}
}
