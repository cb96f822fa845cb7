package bot

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
	"github.com/iDechart/polymarket-arbitrage/internal/executor"
)

// FillSimConfig controls dry-run fill simulation.
type FillSimConfig struct {
	Interval        time.Duration
	FillProbability float64 // chance per tick that an open order fills
	FeeRate         float64 // taker fee fraction applied to simulated fills
}

// DefaultFillSimConfig returns the standard simulation parameters.
func DefaultFillSimConfig() FillSimConfig {
	return FillSimConfig{
		Interval:        time.Second,
		FillProbability: 0.10,
		FeeRate:         0.015,
	}
}

// FilledMarker is implemented by the simulated exchange so dry-run fills
// clear the order from its book. Fills come from this simulator, not the
// venue, so the venue side has to be told.
type FilledMarker interface {
	MarkFilled(orderID string)
}

// fillSimulator fills open orders at their limit price with a configurable
// probability, so dry runs exercise the full fill path.
type fillSimulator struct {
	cfg  FillSimConfig
	exec *executor.Controller
	book FilledMarker
	rng  *rand.Rand
	now  func() time.Time
}

func newFillSimulator(cfg FillSimConfig, exec *executor.Controller, book FilledMarker) *fillSimulator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultFillSimConfig().Interval
	}
	return &fillSimulator{
		cfg:  cfg,
		exec: exec,
		book: book,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		now:  time.Now,
	}
}

func (s *fillSimulator) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick rolls for each open order and fills the winners completely.
func (s *fillSimulator) tick() {
	for _, order := range s.exec.OpenOrders("") {
		if s.rng.Float64() >= s.cfg.FillProbability {
			continue
		}
		s.exec.HandleFill(s.simulatedFill(order))
		if s.book != nil {
			s.book.MarkFilled(order.OrderID)
		}
	}
}

func (s *fillSimulator) simulatedFill(order domain.Order) domain.Trade {
	size := order.RemainingSize()
	notional := order.Price * size
	trade := domain.Trade{
		TradeID:   "simfill_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		OrderID:   order.OrderID,
		MarketID:  order.MarketID,
		Token:     order.Token,
		Side:      order.Side,
		Price:     order.Price,
		Size:      size,
		Fee:       notional * s.cfg.FeeRate,
		Timestamp: s.now(),
	}
	slog.Debug("bot: simulated fill",
		"order", order.OrderID,
		"market", order.MarketID,
		"price", trade.Price,
		"size", trade.Size,
	)
	return trade
}
