package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
	"github.com/iDechart/polymarket-arbitrage/internal/ports"
)

type mockExchange struct {
	mu         sync.Mutex
	placed     []ports.PlaceOrderRequest
	cancelled  []string
	failPlaces int // fail this many PlaceOrder calls before succeeding
	cancelErr  error
	nextID     int
}

func (m *mockExchange) PlaceOrder(_ context.Context, req ports.PlaceOrderRequest) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPlaces > 0 {
		m.failPlaces--
		return domain.Order{}, errors.New("exchange unavailable")
	}
	m.nextID++
	m.placed = append(m.placed, req)
	return domain.Order{
		OrderID:     fmt.Sprintf("ord-%d", m.nextID),
		MarketID:    req.MarketID,
		Token:       req.Token,
		Side:        req.Side,
		Price:       req.Price,
		Size:        req.Size,
		Status:      domain.StatusOpen,
		StrategyTag: req.StrategyTag,
		CreatedAt:   time.Now(),
	}, nil
}

func (m *mockExchange) CancelOrder(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, orderID)
	return nil
}

func (m *mockExchange) GetOpenOrders(context.Context, string) ([]domain.Order, error) {
	return nil, nil
}

func (m *mockExchange) placedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.placed)
}

type mockGuard struct {
	mu       sync.Mutex
	allow    bool
	checked  []domain.Order
	reserved []string
	released []string
	fills    []domain.Trade
}

func (m *mockGuard) CheckOrder(o domain.Order) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checked = append(m.checked, o)
	return m.allow
}

func (m *mockGuard) Reserve(o domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserved = append(m.reserved, o.OrderID)
}

func (m *mockGuard) ReleaseOrder(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, orderID)
}

func (m *mockGuard) UpdateFromFill(t domain.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fills = append(m.fills, t)
}

type mockLedger struct {
	mu    sync.Mutex
	fills []domain.Trade
}

func (m *mockLedger) UpdateFromFill(t domain.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fills = append(m.fills, t)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func newTestController(exchange *mockExchange, guard *mockGuard, onExecuted ExecutedFunc) (*Controller, *mockLedger) {
	ledger := &mockLedger{}
	c := NewController(fastConfig(), exchange, guard, ledger, onExecuted)
	c.retry.sleep = func(context.Context, time.Duration) error { return nil }
	return c, ledger
}

func bundleSignal() domain.Signal {
	opp := domain.Opportunity{
		OpportunityID: "bundle_long_abc12345",
		Kind:          domain.BundleLong,
		MarketID:      "mkt-1",
		Edge:          0.05,
		Snapshot: domain.PriceSnapshot{
			BidYes: 0.43, AskYes: 0.45,
			BidNo: 0.48, AskNo: 0.50,
			Valid: true,
		},
	}
	return domain.Signal{
		SignalID:    "sig-1",
		Action:      domain.ActionPlaceOrders,
		MarketID:    "mkt-1",
		Opportunity: &opp,
		Orders: []domain.OrderSpec{
			{Token: domain.TokenYes, Side: domain.SideBuy, Price: 0.45, Size: 100, StrategyTag: "bundle_arbitrage"},
			{Token: domain.TokenNo, Side: domain.SideBuy, Price: 0.50, Size: 100, StrategyTag: "bundle_arbitrage"},
		},
		Priority:  10,
		CreatedAt: time.Now(),
	}
}

func TestPlaceSignalBothLegs(t *testing.T) {
	exchange := &mockExchange{}
	guard := &mockGuard{allow: true}

	var executed []string
	c, _ := newTestController(exchange, guard, func(marketID string, kind domain.OpportunityKind) {
		executed = append(executed, marketID+"/"+string(kind))
	})

	c.processSignal(context.Background(), bundleSignal())

	assert.Equal(t, 2, exchange.placedCount())
	assert.Len(t, guard.reserved, 2)
	assert.Equal(t, []string{"mkt-1/bundle_long"}, executed)

	stats := c.Stats()
	assert.Equal(t, 2, stats.OrdersPlaced)
	assert.Equal(t, 2, stats.OpenOrders)
	assert.InDelta(t, 0.45*100+0.50*100, stats.PlacedNotional, 1e-9)
	assert.Len(t, c.OpenOrders("mkt-1"), 2)
}

func TestRiskRejection(t *testing.T) {
	exchange := &mockExchange{}
	guard := &mockGuard{allow: false}
	c, _ := newTestController(exchange, guard, nil)

	c.processSignal(context.Background(), bundleSignal())

	assert.Zero(t, exchange.placedCount())
	assert.Equal(t, 2, c.Stats().RiskRejections)
	assert.Empty(t, guard.reserved)
}

func TestSlippageRejection(t *testing.T) {
	exchange := &mockExchange{}
	guard := &mockGuard{allow: true}
	c, _ := newTestController(exchange, guard, nil)

	sig := bundleSignal()
	sig.Orders[0].Price = 0.47 // 4.4% above the 0.45 snapshot ask

	c.processSignal(context.Background(), sig)

	assert.Equal(t, 1, exchange.placedCount(), "only the unmoved leg places")
	assert.Equal(t, 1, c.Stats().SlippageRejections)
}

func TestSlippageSkippedWithoutSnapshot(t *testing.T) {
	exchange := &mockExchange{}
	guard := &mockGuard{allow: true}
	c, _ := newTestController(exchange, guard, nil)

	sig := bundleSignal()
	sig.Opportunity.Snapshot.Valid = false
	sig.Orders[0].Price = 0.60

	c.processSignal(context.Background(), sig)

	assert.Equal(t, 2, exchange.placedCount())
	assert.Zero(t, c.Stats().SlippageRejections)
}

func TestPlacementRetriesThenSucceeds(t *testing.T) {
	exchange := &mockExchange{failPlaces: 2}
	guard := &mockGuard{allow: true}
	c, _ := newTestController(exchange, guard, nil)

	sig := bundleSignal()
	sig.Orders = sig.Orders[:1]

	c.processSignal(context.Background(), sig)

	assert.Equal(t, 1, exchange.placedCount())
	assert.Equal(t, 1, c.Stats().OrdersPlaced)
	assert.Zero(t, c.Stats().OrdersRejected)
}

func TestPlacementFailsClosed(t *testing.T) {
	exchange := &mockExchange{failPlaces: 10}
	guard := &mockGuard{allow: true}
	c, _ := newTestController(exchange, guard, nil)

	sig := bundleSignal()
	sig.Orders = sig.Orders[:1]

	c.processSignal(context.Background(), sig)

	assert.Zero(t, exchange.placedCount())
	assert.Equal(t, 1, c.Stats().OrdersRejected)
	assert.Zero(t, c.Stats().OpenOrders)
}

func TestHandleFillLifecycle(t *testing.T) {
	exchange := &mockExchange{}
	guard := &mockGuard{allow: true}
	c, ledger := newTestController(exchange, guard, nil)

	sig := bundleSignal()
	sig.Orders = sig.Orders[:1]
	c.processSignal(context.Background(), sig)

	orders := c.OpenOrders("mkt-1")
	require.Len(t, orders, 1)
	orderID := orders[0].OrderID

	partial := domain.Trade{
		TradeID: "trd-1", OrderID: orderID, MarketID: "mkt-1",
		Token: domain.TokenYes, Side: domain.SideBuy,
		Price: 0.45, Size: 40, Timestamp: time.Now(),
	}
	c.HandleFill(partial)

	order, ok := c.Order(orderID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusPartiallyFilled, order.Status)
	assert.InDelta(t, 40, order.FilledSize, 1e-9)

	rest := partial
	rest.TradeID = "trd-2"
	rest.Size = 60
	c.HandleFill(rest)

	_, ok = c.Order(orderID)
	assert.False(t, ok, "filled order leaves tracking")
	assert.Equal(t, 1, c.Stats().OrdersFilled)

	assert.Len(t, ledger.fills, 2)
	assert.Len(t, guard.fills, 2)
}

func TestFillForUnknownOrderStillForwarded(t *testing.T) {
	exchange := &mockExchange{}
	guard := &mockGuard{allow: true}
	c, ledger := newTestController(exchange, guard, nil)

	c.HandleFill(domain.Trade{TradeID: "trd-x", OrderID: "nope", MarketID: "mkt-1", Size: 10})

	assert.Len(t, ledger.fills, 1)
	assert.Len(t, guard.fills, 1)
}

func TestCancelSignal(t *testing.T) {
	exchange := &mockExchange{}
	guard := &mockGuard{allow: true}
	c, _ := newTestController(exchange, guard, nil)

	c.processSignal(context.Background(), bundleSignal())
	orders := c.OpenOrders("")
	require.Len(t, orders, 2)

	c.processSignal(context.Background(), domain.Signal{
		SignalID:       "sig-cancel",
		Action:         domain.ActionCancelOrders,
		MarketID:       "mkt-1",
		CancelOrderIDs: []string{orders[0].OrderID, orders[1].OrderID},
	})

	assert.Empty(t, c.OpenOrders(""))
	assert.Equal(t, 2, c.Stats().OrdersCancelled)
	assert.Len(t, guard.released, 2)
}

func TestCancelOrdersByStrategy(t *testing.T) {
	exchange := &mockExchange{}
	guard := &mockGuard{allow: true}
	c, _ := newTestController(exchange, guard, nil)

	c.processSignal(context.Background(), bundleSignal())

	mm := bundleSignal()
	mm.SignalID = "sig-mm"
	mm.Opportunity = nil
	mm.Orders = []domain.OrderSpec{
		{Token: domain.TokenYes, Side: domain.SideBuy, Price: 0.41, Size: 50, StrategyTag: "market_making"},
	}
	c.processSignal(context.Background(), mm)

	cancelled := c.CancelOrdersByStrategy(context.Background(), "market_making")
	assert.Equal(t, 1, cancelled)
	assert.Len(t, c.OpenOrders(""), 2)
}

func TestTimeoutMonitorCancelsStaleOrders(t *testing.T) {
	exchange := &mockExchange{}
	guard := &mockGuard{allow: true}
	c, _ := newTestController(exchange, guard, nil)

	c.processSignal(context.Background(), bundleSignal())
	require.Len(t, c.OpenOrders(""), 2)

	c.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	c.expireStaleOrders(context.Background())

	assert.Empty(t, c.OpenOrders(""))
	assert.Equal(t, 2, c.Stats().OrdersCancelled)
	assert.Len(t, exchange.cancelled, 2)
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	exchange := &mockExchange{}
	guard := &mockGuard{allow: true}
	cfg := fastConfig()
	cfg.QueueCapacity = 2
	c := NewController(cfg, exchange, guard, &mockLedger{}, nil)

	for i := 1; i <= 3; i++ {
		sig := bundleSignal()
		sig.SignalID = fmt.Sprintf("sig-%d", i)
		c.Submit(sig)
	}

	assert.Equal(t, 2, c.QueueDepth())
	assert.Equal(t, 1, c.Stats().SignalsDropped)

	first := <-c.queue
	assert.Equal(t, "sig-2", first.SignalID, "oldest signal was dropped")
}

func TestStartStopProcessesQueue(t *testing.T) {
	exchange := &mockExchange{}
	guard := &mockGuard{allow: true}
	c, _ := newTestController(exchange, guard, nil)

	ctx := context.Background()
	c.Start(ctx)
	c.Submit(bundleSignal())

	require.Eventually(t, func() bool {
		return exchange.placedCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	c.Stop(ctx)
	assert.Empty(t, c.OpenOrders(""))
	assert.Len(t, exchange.cancelled, 2)
}
