package domain

// Position is the signed holding for one (market, token) pair.
// Positive size is long, negative is short. Mutated only through the
// portfolio ledger's fill processing.
type Position struct {
	MarketID      string
	Token         TokenKind
	Size          float64
	AvgEntryPrice float64
	RealizedPnL   float64
	CostBasis     float64

	TotalBought float64
	TotalSold   float64
	TradeCount  int
}

// Notional returns |size| × average entry price.
func (p Position) Notional() float64 {
	size := p.Size
	if size < 0 {
		size = -size
	}
	return size * p.AvgEntryPrice
}

// IsLong reports whether the position is net long.
func (p Position) IsLong() bool { return p.Size > 0 }

// IsShort reports whether the position is net short.
func (p Position) IsShort() bool { return p.Size < 0 }

// UnrealizedPnL returns size × (currentPrice − avg entry).
func (p Position) UnrealizedPnL(currentPrice float64) float64 {
	if p.Size == 0 {
		return 0
	}
	return p.Size * (currentPrice - p.AvgEntryPrice)
}

// TotalPnL returns realized plus unrealized PnL at the given price.
func (p Position) TotalPnL(currentPrice float64) float64 {
	return p.RealizedPnL + p.UnrealizedPnL(currentPrice)
}
