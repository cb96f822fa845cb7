// Package executor consumes trading signals, runs pre-trade checks, and
// drives the order lifecycle against the exchange.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
	"github.com/iDechart/polymarket-arbitrage/internal/ports"
)

// Config holds execution parameters.
type Config struct {
	MaxRetries        int
	RetryDelay        time.Duration
	SlippageTolerance float64
	OrderTimeout      time.Duration
	QueueCapacity     int
	MonitorInterval   time.Duration
}

// DefaultConfig returns the standard execution parameters.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		RetryDelay:        500 * time.Millisecond,
		SlippageTolerance: 0.02,
		OrderTimeout:      60 * time.Second,
		QueueCapacity:     256,
		MonitorInterval:   10 * time.Second,
	}
}

// Stats counts execution activity since start.
type Stats struct {
	SignalsProcessed   int     `json:"signals_processed"`
	SignalsDropped     int     `json:"signals_dropped"`
	OrdersPlaced       int     `json:"orders_placed"`
	OrdersFilled       int     `json:"orders_filled"`
	OrdersCancelled    int     `json:"orders_cancelled"`
	OrdersRejected     int     `json:"orders_rejected"`
	RiskRejections     int     `json:"risk_rejections"`
	SlippageRejections int     `json:"slippage_rejections"`
	PlacedNotional     float64 `json:"placed_notional"`
	OpenOrders         int     `json:"open_orders"`
}

// riskChecker is the risk-guard surface the controller needs.
type riskChecker interface {
	CheckOrder(domain.Order) bool
	Reserve(domain.Order)
	ReleaseOrder(orderID string)
	UpdateFromFill(domain.Trade)
}

// fillLedger receives every fill exactly once.
type fillLedger interface {
	UpdateFromFill(domain.Trade)
}

// ExecutedFunc is notified when a signal's opportunity gets orders placed.
type ExecutedFunc func(marketID string, kind domain.OpportunityKind)

// Controller owns open-order tracking. Signals go through a bounded FIFO
// queue; when the queue is full the oldest signal is dropped, since a stale
// signal is worthless and the newest one reflects the current book.
type Controller struct {
	cfg      Config
	exchange ports.ExchangeClient
	guard    riskChecker
	ledger   fillLedger
	retry    retryPolicy
	now      func() time.Time

	onExecuted ExecutedFunc

	queue chan domain.Signal

	mu         sync.Mutex
	orders     map[string]*domain.Order
	byMarket   map[string]map[string]bool
	byStrategy map[string]map[string]bool
	stats      Stats

	loopCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewController wires the controller to its collaborators. onExecuted may be
// nil.
func NewController(cfg Config, exchange ports.ExchangeClient, guard riskChecker, ledger fillLedger, onExecuted ExecutedFunc) *Controller {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultConfig().QueueCapacity
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = DefaultConfig().MonitorInterval
	}
	return &Controller{
		cfg:        cfg,
		exchange:   exchange,
		guard:      guard,
		ledger:     ledger,
		retry:      newRetryPolicy(cfg.MaxRetries, cfg.RetryDelay),
		now:        time.Now,
		onExecuted: onExecuted,
		queue:      make(chan domain.Signal, cfg.QueueCapacity),
		orders:     make(map[string]*domain.Order),
		byMarket:   make(map[string]map[string]bool),
		byStrategy: make(map[string]map[string]bool),
	}
}

// Start launches the signal-processing loop and the order-timeout monitor.
func (c *Controller) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	c.loopCancel = cancel

	c.wg.Add(2)
	go c.runLoop(loopCtx)
	go c.runTimeoutMonitor(loopCtx)

	slog.Info("executor: started",
		"queue_capacity", c.cfg.QueueCapacity,
		"order_timeout", c.cfg.OrderTimeout,
	)
}

// Stop cancels the processing loop, waits for it, then cancels all open
// orders.
func (c *Controller) Stop(ctx context.Context) {
	if c.loopCancel != nil {
		c.loopCancel()
	}
	c.wg.Wait()

	cancelled := c.CancelAllOrders(ctx, "")
	slog.Info("executor: stopped", "orders_cancelled", cancelled)
}

// Submit enqueues a signal. When the queue is full the oldest queued signal
// is discarded to make room.
func (c *Controller) Submit(sig domain.Signal) {
	for {
		select {
		case c.queue <- sig:
			return
		default:
		}
		select {
		case dropped := <-c.queue:
			c.mu.Lock()
			c.stats.SignalsDropped++
			c.mu.Unlock()
			slog.Warn("executor: queue full, dropped oldest signal",
				"dropped_signal", dropped.SignalID,
				"market", dropped.MarketID,
			)
		default:
		}
	}
}

// QueueDepth returns the number of signals waiting.
func (c *Controller) QueueDepth() int {
	return len(c.queue)
}

func (c *Controller) runLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-c.queue:
			c.processSignal(ctx, sig)
		}
	}
}

// processSignal handles one signal. Failures on one order leg never abort
// the remaining legs.
func (c *Controller) processSignal(ctx context.Context, sig domain.Signal) {
	c.mu.Lock()
	c.stats.SignalsProcessed++
	c.mu.Unlock()

	switch sig.Action {
	case domain.ActionCancelOrders:
		for _, id := range sig.CancelOrderIDs {
			if err := c.cancelOrder(ctx, id); err != nil {
				slog.Warn("executor: cancel failed", "order", id, "error", err)
			}
		}
	case domain.ActionPlaceOrders:
		placed := 0
		for _, spec := range sig.Orders {
			if c.placeLeg(ctx, sig, spec) {
				placed++
			}
		}
		if placed > 0 && sig.Opportunity != nil && c.onExecuted != nil {
			c.onExecuted(sig.MarketID, sig.Opportunity.Kind)
		}
	default:
		slog.Warn("executor: unknown signal action", "action", sig.Action, "signal", sig.SignalID)
	}
}

// placeLeg runs slippage and risk checks, then places one order with retry.
func (c *Controller) placeLeg(ctx context.Context, sig domain.Signal, spec domain.OrderSpec) bool {
	if !c.slippageOK(sig.Opportunity, spec) {
		c.mu.Lock()
		c.stats.SlippageRejections++
		c.mu.Unlock()
		slog.Info("executor: slippage rejection",
			"signal", sig.SignalID,
			"market", sig.MarketID,
			"token", spec.Token,
			"price", spec.Price,
		)
		return false
	}

	candidate := domain.Order{
		MarketID: sig.MarketID,
		Token:    spec.Token,
		Side:     spec.Side,
		Price:    spec.Price,
		Size:     spec.Size,
	}
	if !c.guard.CheckOrder(candidate) {
		c.mu.Lock()
		c.stats.RiskRejections++
		c.mu.Unlock()
		return false
	}

	req := ports.PlaceOrderRequest{
		MarketID:    sig.MarketID,
		Token:       spec.Token,
		Side:        spec.Side,
		Price:       spec.Price,
		Size:        spec.Size,
		StrategyTag: spec.StrategyTag,
	}

	var order domain.Order
	err := c.retry.do(ctx, func() error {
		var placeErr error
		order, placeErr = c.exchange.PlaceOrder(ctx, req)
		return placeErr
	})
	if err != nil {
		c.mu.Lock()
		c.stats.OrdersRejected++
		c.mu.Unlock()
		slog.Error("executor: order placement failed",
			"signal", sig.SignalID,
			"market", sig.MarketID,
			"token", spec.Token,
			"error", err,
		)
		return false
	}

	if order.Status == "" {
		order.Status = domain.StatusOpen
	}
	if order.StrategyTag == "" {
		order.StrategyTag = spec.StrategyTag
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = c.now()
	}

	c.guard.Reserve(order)
	c.trackOrder(order)

	slog.Info("executor: order placed",
		"order", order.OrderID,
		"market", order.MarketID,
		"token", order.Token,
		"side", order.Side,
		"price", order.Price,
		"size", order.Size,
		"tag", order.StrategyTag,
	)
	return true
}

// slippageOK compares the intended price against the opportunity snapshot.
// Buys check ask-side drift, sells bid-side. No snapshot means no check.
func (c *Controller) slippageOK(opp *domain.Opportunity, spec domain.OrderSpec) bool {
	if opp == nil || !opp.Snapshot.Valid {
		return true
	}

	var ref float64
	if spec.Side == domain.SideBuy {
		ref = opp.Snapshot.Ask(spec.Token)
	} else {
		ref = opp.Snapshot.Bid(spec.Token)
	}
	if ref <= 0 {
		return true
	}

	drift := spec.Price - ref
	if drift < 0 {
		drift = -drift
	}
	return drift/ref <= c.cfg.SlippageTolerance
}

func (c *Controller) trackOrder(order domain.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o := order
	c.orders[o.OrderID] = &o
	addIndex(c.byMarket, o.MarketID, o.OrderID)
	if o.StrategyTag != "" {
		addIndex(c.byStrategy, o.StrategyTag, o.OrderID)
	}
	c.stats.OrdersPlaced++
	c.stats.PlacedNotional += o.Notional()
	c.stats.OpenOrders = len(c.orders)
}

func addIndex(idx map[string]map[string]bool, key, orderID string) {
	set, ok := idx[key]
	if !ok {
		set = make(map[string]bool)
		idx[key] = set
	}
	set[orderID] = true
}

// untrackLocked removes an order from all indices. Caller holds the lock.
func (c *Controller) untrackLocked(o *domain.Order) {
	delete(c.orders, o.OrderID)
	if set := c.byMarket[o.MarketID]; set != nil {
		delete(set, o.OrderID)
		if len(set) == 0 {
			delete(c.byMarket, o.MarketID)
		}
	}
	if set := c.byStrategy[o.StrategyTag]; set != nil {
		delete(set, o.OrderID)
		if len(set) == 0 {
			delete(c.byStrategy, o.StrategyTag)
		}
	}
	c.stats.OpenOrders = len(c.orders)
}

// HandleFill applies a trade to the matching order, then forwards it to the
// ledger and the risk guard exactly once.
func (c *Controller) HandleFill(trade domain.Trade) {
	c.mu.Lock()
	order, ok := c.orders[trade.OrderID]
	if ok {
		order.FilledSize += trade.Size
		order.UpdatedAt = trade.Timestamp
		if order.RemainingSize() <= 0 {
			order.Status = domain.StatusFilled
			c.stats.OrdersFilled++
			c.untrackLocked(order)
		} else {
			order.Status = domain.StatusPartiallyFilled
		}
	}
	c.mu.Unlock()

	if !ok {
		slog.Warn("executor: fill for unknown order", "order", trade.OrderID, "trade", trade.TradeID)
	}

	c.ledger.UpdateFromFill(trade)
	c.guard.UpdateFromFill(trade)

	slog.Info("executor: fill applied",
		"order", trade.OrderID,
		"market", trade.MarketID,
		"side", trade.Side,
		"price", trade.Price,
		"size", trade.Size,
	)
}

// cancelOrder cancels one tracked order and releases its risk reservation.
func (c *Controller) cancelOrder(ctx context.Context, orderID string) error {
	if err := c.exchange.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("executor.cancelOrder: %w", err)
	}

	c.mu.Lock()
	if order, ok := c.orders[orderID]; ok {
		order.Status = domain.StatusCancelled
		order.UpdatedAt = c.now()
		c.stats.OrdersCancelled++
		c.untrackLocked(order)
	}
	c.mu.Unlock()

	c.guard.ReleaseOrder(orderID)
	return nil
}

// CancelAllOrders cancels every tracked open order, or only those on the
// given market when marketID is non-empty. Returns the number cancelled.
func (c *Controller) CancelAllOrders(ctx context.Context, marketID string) int {
	ids := c.openOrderIDs(marketID, "")
	cancelled := 0
	for _, id := range ids {
		if err := c.cancelOrder(ctx, id); err != nil {
			slog.Warn("executor: cancel failed", "order", id, "error", err)
			continue
		}
		cancelled++
	}
	return cancelled
}

// CancelOrdersByStrategy cancels all open orders carrying the strategy tag.
func (c *Controller) CancelOrdersByStrategy(ctx context.Context, tag string) int {
	ids := c.openOrderIDs("", tag)
	cancelled := 0
	for _, id := range ids {
		if err := c.cancelOrder(ctx, id); err != nil {
			slog.Warn("executor: cancel failed", "order", id, "error", err)
			continue
		}
		cancelled++
	}
	return cancelled
}

func (c *Controller) openOrderIDs(marketID, tag string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []string
	switch {
	case marketID != "":
		for id := range c.byMarket[marketID] {
			ids = append(ids, id)
		}
	case tag != "":
		for id := range c.byStrategy[tag] {
			ids = append(ids, id)
		}
	default:
		for id := range c.orders {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *Controller) runTimeoutMonitor(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.expireStaleOrders(ctx)
		}
	}
}

// expireStaleOrders cancels tracked orders older than the timeout.
func (c *Controller) expireStaleOrders(ctx context.Context) {
	now := c.now()

	c.mu.Lock()
	var stale []string
	for id, order := range c.orders {
		if now.Sub(order.CreatedAt) > c.cfg.OrderTimeout {
			stale = append(stale, id)
		}
	}
	c.mu.Unlock()

	for _, id := range stale {
		slog.Info("executor: cancelling timed-out order", "order", id)
		if err := c.cancelOrder(ctx, id); err != nil {
			slog.Warn("executor: timeout cancel failed", "order", id, "error", err)
		}
	}
}

// OpenOrders returns copies of all tracked orders, optionally filtered by
// market.
func (c *Controller) OpenOrders(marketID string) []domain.Order {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []domain.Order
	for _, order := range c.orders {
		if marketID != "" && order.MarketID != marketID {
			continue
		}
		out = append(out, *order)
	}
	return out
}

// Order returns a copy of one tracked order.
func (c *Controller) Order(orderID string) (domain.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	order, ok := c.orders[orderID]
	if !ok {
		return domain.Order{}, false
	}
	return *order, true
}

// Stats returns a copy of the activity counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.OpenOrders = len(c.orders)
	return s
}
