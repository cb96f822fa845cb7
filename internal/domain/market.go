package domain

import "time"

// TokenKind identifies one side of a binary market.
type TokenKind string

const (
	TokenYes TokenKind = "yes"
	TokenNo  TokenKind = "no"
)

// Market is an immutable snapshot of a binary prediction market.
// Refreshed by the data feed; never mutated by the core.
type Market struct {
	MarketID    string
	ConditionID string
	Question    string

	YesTokenID string
	NoTokenID  string

	Active   bool
	Closed   bool
	Resolved bool

	Volume24h float64
	Liquidity float64

	EndDate time.Time
}

// TokenID returns the token identifier for the given side.
func (m Market) TokenID(kind TokenKind) string {
	if kind == TokenYes {
		return m.YesTokenID
	}
	return m.NoTokenID
}

// Tradeable reports whether the market accepts new orders.
func (m Market) Tradeable() bool {
	return m.Active && !m.Closed && !m.Resolved
}

// MarketState is the complete read-only snapshot delivered by the data feed:
// market metadata, both order-book ladders, and current positions.
type MarketState struct {
	Market     Market
	Book       OrderBook
	Positions  map[TokenKind]Position
	OpenOrders []Order
	Timestamp  time.Time
}

// NetExposure returns the combined notional of both positions in this market.
func (s MarketState) NetExposure() float64 {
	var total float64
	for _, p := range s.Positions {
		total += p.Notional()
	}
	return total
}
