package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iDechart/polymarket-arbitrage/config"
	"github.com/iDechart/polymarket-arbitrage/internal/adapters/notify"
	"github.com/iDechart/polymarket-arbitrage/internal/adapters/polymarket"
	"github.com/iDechart/polymarket-arbitrage/internal/adapters/sim"
	"github.com/iDechart/polymarket-arbitrage/internal/adapters/storage"
	"github.com/iDechart/polymarket-arbitrage/internal/bot"
	"github.com/iDechart/polymarket-arbitrage/internal/detector"
	"github.com/iDechart/polymarket-arbitrage/internal/executor"
	"github.com/iDechart/polymarket-arbitrage/internal/portfolio"
	"github.com/iDechart/polymarket-arbitrage/internal/ports"
	"github.com/iDechart/polymarket-arbitrage/internal/risk"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "simulate order placement and fills (overrides config)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	compact := flag.Bool("compact", false, "one-line status reports instead of tables")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *dryRun {
		cfg.Mode.DryRun = true
	}
	setupLogger(cfg.Log)

	slog.Info("arbbot starting",
		"config", *configPath,
		"dry_run", cfg.Mode.DryRun,
		"min_edge", cfg.Trading.MinEdge,
		"max_markets", cfg.API.MaxMarkets,
	)

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	markets, err := polymarket.FetchActiveMarkets(ctx, client, cfg.Risk.Min24hVolume, cfg.API.MaxMarkets)
	if err != nil {
		slog.Error("failed to discover markets", "err", err)
		os.Exit(1)
	}
	if len(markets) == 0 {
		slog.Error("no tradeable markets found")
		os.Exit(1)
	}

	var exchange ports.ExchangeClient
	var simExchange *sim.Exchange
	if cfg.Mode.DryRun {
		simExchange = sim.NewExchange()
		exchange = simExchange
	} else {
		live := polymarket.NewExchange(client, cfg.Trading.TickSize)
		for _, m := range markets {
			live.RegisterMarket(m)
		}
		exchange = live
	}

	var journal ports.TradeJournal
	if cfg.Storage.DSN != "" {
		journal, err = storage.NewTradeJournal(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open trade journal", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer journal.Close()
	}

	det := detector.NewDetector(detector.Config{
		MinEdge:          cfg.Trading.MinEdge,
		MinSpread:        cfg.Trading.MinSpread,
		TickSize:         cfg.Trading.TickSize,
		DefaultOrderSize: cfg.Trading.DefaultOrderSize,
		MinOrderSize:     cfg.Trading.MinOrderSize,
		MaxOrderSize:     cfg.Trading.MaxOrderSize,
		TakerFeeBps:      cfg.Trading.TakerFeeBps,
		GasCostPerOrder:  cfg.Trading.GasCostPerOrder,
		SignalExpiry:     5 * time.Second,
		BundleCooldown:   2 * time.Second,
		MMCooldown:       5 * time.Second,
	})

	guard := risk.NewGuard(risk.Config{
		MaxPositionPerMarket: cfg.Risk.MaxPositionPerMarket,
		MaxGlobalExposure:    cfg.Risk.MaxGlobalExposure,
		MaxDailyLoss:         cfg.Risk.MaxDailyLoss,
		MaxDrawdownPct:       cfg.Risk.MaxDrawdownPct,
		TradeOnlyHighVolume:  cfg.Risk.TradeOnlyHighVolume,
		Min24hVolume:         cfg.Risk.Min24hVolume,
		Whitelist:            cfg.Risk.Whitelist,
		Blacklist:            cfg.Risk.Blacklist,
		KillSwitchEnabled:    cfg.Risk.KillSwitchEnabled,
	})

	ledger := portfolio.NewLedger(cfg.Risk.InitialBalance)

	exec := executor.NewController(executor.Config{
		MaxRetries:        cfg.Execution.MaxRetries,
		RetryDelay:        cfg.RetryDelay(),
		SlippageTolerance: cfg.Execution.SlippageTolerance,
		OrderTimeout:      cfg.OrderTimeout(),
		QueueCapacity:     cfg.Execution.QueueCapacity,
		MonitorInterval:   10 * time.Second,
	}, exchange, guard, &bot.JournalingLedger{Ledger: ledger, Journal: journal}, det.MarkOpportunityExecuted)

	feed := polymarket.NewStream(cfg.API.WSBase, markets)

	b := bot.New(bot.Config{
		DryRun:          cfg.Mode.DryRun,
		MonitorInterval: cfg.MonitorInterval(),
		FillSim: bot.FillSimConfig{
			Interval:        time.Second,
			FillProbability: cfg.Mode.FillProbability,
			FeeRate:         cfg.Trading.TakerFeeBps / 10000,
		},
	}, bot.Deps{
		Feed:        feed,
		Detector:    det,
		Executor:    exec,
		Guard:       guard,
		Ledger:      ledger,
		Journal:     journal,
		Notifier:    notify.NewConsole(*compact),
		SimExchange: simDep(simExchange),
	})

	if err := b.Start(ctx); err != nil {
		slog.Error("failed to start bot", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	b.Stop(shutdownCtx)

	slog.Info("arbbot stopped cleanly")
}

// simDep avoids handing the bot a typed nil when running live.
func simDep(e *sim.Exchange) bot.FilledMarker {
	if e == nil {
		return nil
	}
	return e
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
