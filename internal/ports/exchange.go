package ports

import (
	"context"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
)

// PlaceOrderRequest is sent to the exchange client.
type PlaceOrderRequest struct {
	MarketID    string
	Token       domain.TokenKind
	Side        domain.OrderSide
	Price       float64
	Size        float64
	StrategyTag string
}

// ExchangeClient places and cancels orders on the venue. Retries and error
// classification are the execution controller's responsibility, not the
// client's.
type ExchangeClient interface {
	// PlaceOrder submits a limit order and returns the accepted order.
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.Order, error)

	// CancelOrder cancels a specific order by id.
	CancelOrder(ctx context.Context, orderID string) error

	// GetOpenOrders returns open orders, optionally filtered by market
	// (empty marketID means all markets).
	GetOpenOrders(ctx context.Context, marketID string) ([]domain.Order, error)
}
