package polymarket

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
	"github.com/iDechart/polymarket-arbitrage/internal/ports"
)

// Exchange implements ports.ExchangeClient against the CLOB. Prices snap to
// the venue tick and sizes to two decimals before submission; the CLOB
// rejects off-grid values.
type Exchange struct {
	client *Client
	tick   decimal.Decimal

	mu      sync.Mutex
	markets map[string]domain.Market // market id -> token ids
}

var _ ports.ExchangeClient = (*Exchange)(nil)

// NewExchange wraps the REST client. tickSize is the venue price grid,
// normally 0.01.
func NewExchange(client *Client, tickSize float64) *Exchange {
	if tickSize <= 0 {
		tickSize = 0.01
	}
	return &Exchange{
		client:  client,
		tick:    decimal.NewFromFloat(tickSize),
		markets: make(map[string]domain.Market),
	}
}

// RegisterMarket stores the token ids for a market so orders can be routed.
// The feed calls this for every market it streams.
func (e *Exchange) RegisterMarket(market domain.Market) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.markets[market.MarketID] = market
}

// PlaceOrder submits a normalized limit order.
func (e *Exchange) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (domain.Order, error) {
	e.mu.Lock()
	market, ok := e.markets[req.MarketID]
	e.mu.Unlock()
	if !ok {
		return domain.Order{}, fmt.Errorf("polymarket.PlaceOrder: unknown market %q", req.MarketID)
	}

	price := e.normalizePrice(req.Price)
	size := normalizeSize(req.Size)
	if price <= 0 || price >= 1 {
		return domain.Order{}, fmt.Errorf("polymarket.PlaceOrder: normalized price %.4f outside (0, 1)", price)
	}
	if size <= 0 {
		return domain.Order{}, fmt.Errorf("polymarket.PlaceOrder: normalized size is zero")
	}

	resp, err := e.client.PostOrder(ctx, restOrderRequest{
		TokenID: market.TokenID(req.Token),
		Price:   price,
		Size:    size,
		Side:    wireSide(req.Side),
		Type:    "GTC",
	})
	if err != nil {
		return domain.Order{}, err
	}

	now := time.Now()
	return domain.Order{
		OrderID:     resp.OrderID,
		MarketID:    req.MarketID,
		Token:       req.Token,
		Side:        req.Side,
		Price:       price,
		Size:        size,
		Status:      orderStatus(resp.Status),
		StrategyTag: req.StrategyTag,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CancelOrder cancels one order by id.
func (e *Exchange) CancelOrder(ctx context.Context, orderID string) error {
	return e.client.DeleteOrder(ctx, orderID)
}

// GetOpenOrders fetches open orders from the CLOB, mapped into the domain.
func (e *Exchange) GetOpenOrders(ctx context.Context, marketID string) ([]domain.Order, error) {
	wire, err := e.client.GetOpenOrders(ctx, marketID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Order, 0, len(wire))
	for _, w := range wire {
		order, ok := e.toDomainOrder(w)
		if !ok {
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

func (e *Exchange) toDomainOrder(w restOrder) (domain.Order, bool) {
	price, err := strconv.ParseFloat(w.Price, 64)
	if err != nil {
		return domain.Order{}, false
	}
	size, err := strconv.ParseFloat(w.OriginalSize, 64)
	if err != nil {
		return domain.Order{}, false
	}
	matched, _ := strconv.ParseFloat(w.SizeMatched, 64)

	e.mu.Lock()
	token := domain.TokenYes
	for _, m := range e.markets {
		if m.NoTokenID == w.AssetID {
			token = domain.TokenNo
			break
		}
	}
	e.mu.Unlock()

	return domain.Order{
		OrderID:    w.ID,
		MarketID:   w.Market,
		Token:      token,
		Side:       domainSide(w.Side),
		Price:      price,
		Size:       size,
		FilledSize: matched,
		Status:     orderStatus(w.Status),
		CreatedAt:  time.Unix(w.CreatedAt, 0),
	}, true
}

// normalizePrice snaps a price onto the venue tick grid.
func (e *Exchange) normalizePrice(price float64) float64 {
	p := decimal.NewFromFloat(price)
	snapped := p.Div(e.tick).Round(0).Mul(e.tick)
	f, _ := snapped.Float64()
	return f
}

// normalizeSize truncates to two decimals; the CLOB rejects finer lots.
func normalizeSize(size float64) float64 {
	f, _ := decimal.NewFromFloat(size).Truncate(2).Float64()
	return f
}

func wireSide(side domain.OrderSide) string {
	if side == domain.SideBuy {
		return "BUY"
	}
	return "SELL"
}

func domainSide(side string) domain.OrderSide {
	if side == "BUY" {
		return domain.SideBuy
	}
	return domain.SideSell
}

func orderStatus(status string) domain.OrderStatus {
	switch status {
	case "live", "LIVE", "open":
		return domain.StatusOpen
	case "matched", "MATCHED", "filled":
		return domain.StatusFilled
	case "cancelled", "CANCELED":
		return domain.StatusCancelled
	case "":
		return domain.StatusOpen
	default:
		return domain.StatusPending
	}
}
