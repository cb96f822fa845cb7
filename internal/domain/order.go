package domain

import "time"

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderStatus is the lifecycle state of an order.
// pending → open → {partially_filled ⇄ filled}, or pending/open →
// cancelled/expired/rejected. Terminal states are final.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusOpen            OrderStatus = "open"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusExpired         OrderStatus = "expired"
	StatusRejected        OrderStatus = "rejected"
)

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// Order is a tracked trading order. Invariant: FilledSize <= Size.
type Order struct {
	OrderID    string
	MarketID   string
	Token      TokenKind
	Side       OrderSide
	Price      float64
	Size       float64
	FilledSize float64
	Status     OrderStatus

	StrategyTag string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RemainingSize returns the unfilled size.
func (o Order) RemainingSize() float64 {
	return o.Size - o.FilledSize
}

// Notional returns price × size.
func (o Order) Notional() float64 {
	return o.Price * o.Size
}

// IsOpen reports whether the order can still receive fills.
func (o Order) IsOpen() bool {
	switch o.Status {
	case StatusPending, StatusOpen, StatusPartiallyFilled:
		return true
	}
	return false
}

// SignedNotional returns the notional with buy positive and sell negative.
func (o Order) SignedNotional() float64 {
	if o.Side == SideBuy {
		return o.Notional()
	}
	return -o.Notional()
}

// Trade is an immutable fill record. It feeds the portfolio ledger and the
// risk guard exactly once per fill.
type Trade struct {
	TradeID   string
	OrderID   string
	MarketID  string
	Token     TokenKind
	Side      OrderSide
	Price     float64
	Size      float64
	Fee       float64
	Timestamp time.Time
}

// Notional returns price × size.
func (t Trade) Notional() float64 {
	return t.Price * t.Size
}

// NetCost returns notional plus fee.
func (t Trade) NetCost() float64 {
	return t.Notional() + t.Fee
}

// SignedSize returns the size with buy positive and sell negative.
func (t Trade) SignedSize() float64 {
	if t.Side == SideBuy {
		return t.Size
	}
	return -t.Size
}
