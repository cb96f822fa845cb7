package domain

import "time"

// BookLevel is a single price level in an order book ladder.
type BookLevel struct {
	Price float64
	Size  float64
}

// TokenBook holds the two ladders for one token.
// Bids are ordered best (highest) first, asks best (lowest) first.
type TokenBook struct {
	Bids []BookLevel
	Asks []BookLevel
}

// BestBid returns the highest bid price. ok is false on an empty side.
func (b TokenBook) BestBid() (price float64, ok bool) {
	if len(b.Bids) == 0 {
		return 0, false
	}
	return b.Bids[0].Price, true
}

// BestAsk returns the lowest ask price. ok is false on an empty side.
func (b TokenBook) BestAsk() (price float64, ok bool) {
	if len(b.Asks) == 0 {
		return 0, false
	}
	return b.Asks[0].Price, true
}

// BestBidSize returns the size resting at the best bid.
func (b TokenBook) BestBidSize() (size float64, ok bool) {
	if len(b.Bids) == 0 {
		return 0, false
	}
	return b.Bids[0].Size, true
}

// BestAskSize returns the size resting at the best ask.
func (b TokenBook) BestAskSize() (size float64, ok bool) {
	if len(b.Asks) == 0 {
		return 0, false
	}
	return b.Asks[0].Size, true
}

// Spread returns best ask minus best bid.
func (b TokenBook) Spread() (spread float64, ok bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask - bid, true
}

// MidPrice returns the midpoint between best bid and best ask.
func (b TokenBook) MidPrice() (mid float64, ok bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// OrderBook is the complete book for a market: one ladder per token.
// Recomputed on every update; no history is kept.
type OrderBook struct {
	MarketID  string
	Yes       TokenBook
	No        TokenBook
	Timestamp time.Time
}

// Token returns the ladder for the given side.
func (ob OrderBook) Token(kind TokenKind) TokenBook {
	if kind == TokenYes {
		return ob.Yes
	}
	return ob.No
}

// TotalAsk returns best ask YES + best ask NO.
// ok is false when either side is missing.
func (ob OrderBook) TotalAsk() (total float64, ok bool) {
	yes, okYes := ob.Yes.BestAsk()
	no, okNo := ob.No.BestAsk()
	if !okYes || !okNo {
		return 0, false
	}
	return yes + no, true
}

// TotalBid returns best bid YES + best bid NO.
// ok is false when either side is missing.
func (ob OrderBook) TotalBid() (total float64, ok bool) {
	yes, okYes := ob.Yes.BestBid()
	no, okNo := ob.No.BestBid()
	if !okYes || !okNo {
		return 0, false
	}
	return yes + no, true
}
