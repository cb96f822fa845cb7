// Package sim provides an in-memory exchange for dry runs and backtests.
// Orders are accepted locally and never reach a venue; fills come from the
// bot's fill simulator.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
	"github.com/iDechart/polymarket-arbitrage/internal/ports"
)

// Exchange implements ports.ExchangeClient in memory.
type Exchange struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	now    func() time.Time
}

var _ ports.ExchangeClient = (*Exchange)(nil)

// NewExchange creates an empty simulated exchange.
func NewExchange() *Exchange {
	return &Exchange{
		orders: make(map[string]domain.Order),
		now:    time.Now,
	}
}

// PlaceOrder accepts every well-formed order immediately.
func (e *Exchange) PlaceOrder(_ context.Context, req ports.PlaceOrderRequest) (domain.Order, error) {
	if req.Price <= 0 || req.Price >= 1 {
		return domain.Order{}, fmt.Errorf("sim.PlaceOrder: price %.4f outside (0, 1)", req.Price)
	}
	if req.Size <= 0 {
		return domain.Order{}, fmt.Errorf("sim.PlaceOrder: non-positive size %.4f", req.Size)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	order := domain.Order{
		OrderID:     uuid.NewString(),
		MarketID:    req.MarketID,
		Token:       req.Token,
		Side:        req.Side,
		Price:       req.Price,
		Size:        req.Size,
		Status:      domain.StatusOpen,
		StrategyTag: req.StrategyTag,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.orders[order.OrderID] = order

	slog.Debug("sim: order accepted",
		"order", order.OrderID,
		"market", order.MarketID,
		"side", order.Side,
		"price", order.Price,
		"size", order.Size,
	)
	return order, nil
}

// CancelOrder removes an open order. Cancelling an unknown id is an error,
// matching real venue behavior.
func (e *Exchange) CancelOrder(_ context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.orders[orderID]; !ok {
		return fmt.Errorf("sim.CancelOrder: unknown order %q", orderID)
	}
	delete(e.orders, orderID)
	return nil
}

// GetOpenOrders returns open orders, optionally filtered by market.
func (e *Exchange) GetOpenOrders(_ context.Context, marketID string) ([]domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []domain.Order
	for _, order := range e.orders {
		if marketID != "" && order.MarketID != marketID {
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

// MarkFilled removes an order once the fill simulator has fully filled it.
func (e *Exchange) MarkFilled(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.orders, orderID)
}
