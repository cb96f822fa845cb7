package domain

import "time"

// OpportunityKind classifies a detected mispricing.
type OpportunityKind string

const (
	BundleLong  OpportunityKind = "bundle_long"  // buy YES + NO when total ask < 1
	BundleShort OpportunityKind = "bundle_short" // sell YES + NO when total bid > 1
	MMBid       OpportunityKind = "mm_bid"       // market-making quote, YES token
	MMAsk       OpportunityKind = "mm_ask"       // market-making quote, NO token
)

// IsBundle reports whether the kind is a bundle arbitrage.
func (k OpportunityKind) IsBundle() bool {
	return k == BundleLong || k == BundleShort
}

// PriceSnapshot captures the top of both ladders at detection time.
// Valid is false when the detector had no complete snapshot (market making).
type PriceSnapshot struct {
	BidYes float64
	AskYes float64
	BidNo  float64
	AskNo  float64
	Valid  bool
}

// Bid returns the snapshot bid for the given token.
func (s PriceSnapshot) Bid(kind TokenKind) float64 {
	if kind == TokenYes {
		return s.BidYes
	}
	return s.BidNo
}

// Ask returns the snapshot ask for the given token.
func (s PriceSnapshot) Ask(kind TokenKind) float64 {
	if kind == TokenYes {
		return s.AskYes
	}
	return s.AskNo
}

// Opportunity is a mispricing detected by the opportunity detector.
// Consumed read-only by downstream components via the Signal.
type Opportunity struct {
	OpportunityID string
	Kind          OpportunityKind
	MarketID      string
	Edge          float64 // net of fees and gas for bundles, half-spread for quotes

	Snapshot PriceSnapshot

	SuggestedSize float64
	MaxSize       float64 // bounded by visible liquidity

	DetectedAt time.Time
	ExpiresAt  time.Time
	ActedUpon  bool
}

// SignalAction selects what the execution controller should do.
type SignalAction string

const (
	ActionPlaceOrders  SignalAction = "place_orders"
	ActionCancelOrders SignalAction = "cancel_orders"
)

// OrderSpec is one desired order inside a Signal.
type OrderSpec struct {
	Token       TokenKind
	Side        OrderSide
	Price       float64
	Size        float64
	StrategyTag string
}

// Signal is the sole contract between the detector and the execution
// controller. Priority is metadata only; the controller consumes signals
// in FIFO order.
type Signal struct {
	SignalID       string
	Action         SignalAction
	MarketID       string
	Opportunity    *Opportunity
	Orders         []OrderSpec
	CancelOrderIDs []string
	Priority       int
	CreatedAt      time.Time
}

// IsPlace reports whether the signal requests order placement.
func (s Signal) IsPlace() bool { return s.Action == ActionPlaceOrders }

// IsCancel reports whether the signal requests order cancellation.
func (s Signal) IsCancel() bool { return s.Action == ActionCancelOrders }
