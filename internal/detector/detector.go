// Package detector turns market snapshots into trading signals. It finds
// bundle arbitrage (YES+NO priced away from 1.0 net of fees) and wide
// spreads worth quoting inside, with per-market cooldowns so the same
// mispricing is not signalled on every book tick.
package detector

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
)

const (
	// Strategy tags carried on order specs.
	TagBundleArbitrage = "bundle_arbitrage"
	TagMarketMaking    = "market_making"

	PriorityBundle      = 10
	PriorityMarketMaker = 5
)

// Config holds detection thresholds and sizing parameters.
type Config struct {
	MinEdge   float64 // net edge floor for bundle signals
	MinSpread float64 // spread floor for market making
	TickSize  float64

	DefaultOrderSize float64 // target notional per order
	MinOrderSize     float64 // shares
	MaxOrderSize     float64 // shares

	TakerFeeBps     float64
	GasCostPerOrder float64

	SignalExpiry   time.Duration
	BundleCooldown time.Duration
	MMCooldown     time.Duration
}

// DefaultConfig returns the standard detection parameters.
func DefaultConfig() Config {
	return Config{
		MinEdge:          0.01,
		MinSpread:        0.05,
		TickSize:         0.01,
		DefaultOrderSize: 50,
		MinOrderSize:     5,
		MaxOrderSize:     200,
		TakerFeeBps:      150,
		GasCostPerOrder:  0.02,
		SignalExpiry:     5 * time.Second,
		BundleCooldown:   2 * time.Second,
		MMCooldown:       5 * time.Second,
	}
}

// Stats counts detector activity since start.
type Stats struct {
	Analyzed              int   `json:"analyzed"`
	OpportunitiesDetected int   `json:"opportunities_detected"`
	SignalsEmitted        int   `json:"signals_emitted"`
	BundleLong            int   `json:"bundle_long"`
	BundleShort           int   `json:"bundle_short"`
	MarketMaking          int   `json:"market_making"`
	CooldownSuppressed    int   `json:"cooldown_suppressed"`
	LastAnalysis          int64 `json:"last_analysis_unix"`
}

// Detector analyzes one market snapshot at a time. Safe for concurrent use,
// though in normal operation a single stream callback drives it.
type Detector struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	cooldowns map[string]time.Time
	tracker   *timingTracker
	recent    []domain.Opportunity
	stats     Stats
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg Config) *Detector {
	d := &Detector{
		cfg:       cfg,
		now:       time.Now,
		cooldowns: make(map[string]time.Time),
	}
	d.tracker = newTimingTracker(func() time.Time { return d.now() })
	slog.Info("detector: initialized",
		"min_edge", cfg.MinEdge,
		"min_spread", cfg.MinSpread,
		"taker_fee_bps", cfg.TakerFeeBps,
	)
	return d
}

// feeRate converts the configured basis points to a fraction.
func (d *Detector) feeRate() float64 {
	return d.cfg.TakerFeeBps / 10000
}

// Analyze inspects one market snapshot and returns zero or more signals.
// Never blocks; runs inside the market-data callback.
func (d *Detector) Analyze(state domain.MarketState) []domain.Signal {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.stats.Analyzed++
	d.stats.LastAnalysis = now.Unix()

	d.tracker.sweep(state.Market.MarketID, state.Book, d.cfg.MinEdge)

	if !state.Market.Tradeable() {
		return nil
	}

	var signals []domain.Signal
	if sig, ok := d.checkBundle(state, now); ok {
		signals = append(signals, sig)
	}
	signals = append(signals, d.checkMarketMaking(state, now)...)

	d.stats.SignalsEmitted += len(signals)
	return signals
}

// checkBundle evaluates bundle arbitrage on both sides. Long is checked
// first; at most one bundle signal per market per cycle.
func (d *Detector) checkBundle(state domain.MarketState, now time.Time) (domain.Signal, bool) {
	book := state.Book

	askYes, okAY := book.Yes.BestAsk()
	askNo, okAN := book.No.BestAsk()
	bidYes, okBY := book.Yes.BestBid()
	bidNo, okBN := book.No.BestBid()
	if !okAY || !okAN || !okBY || !okBN {
		return domain.Signal{}, false
	}

	snapshot := domain.PriceSnapshot{
		BidYes: bidYes, AskYes: askYes,
		BidNo: bidNo, AskNo: askNo,
		Valid: true,
	}

	totalAsk := askYes + askNo
	netLong := (1 - totalAsk) - d.feeRate()*totalAsk - 2*d.cfg.GasCostPerOrder
	if netLong >= d.cfg.MinEdge {
		sizeYes, _ := book.Yes.BestAskSize()
		sizeNo, _ := book.No.BestAskSize()
		return d.emitBundle(state, now, domain.BundleLong, netLong, snapshot,
			askYes, askNo, sizeYes, sizeNo, domain.SideBuy)
	}

	totalBid := bidYes + bidNo
	netShort := (totalBid - 1) - d.feeRate()*totalBid - 2*d.cfg.GasCostPerOrder
	if netShort >= d.cfg.MinEdge {
		sizeYes, _ := book.Yes.BestBidSize()
		sizeNo, _ := book.No.BestBidSize()
		return d.emitBundle(state, now, domain.BundleShort, netShort, snapshot,
			bidYes, bidNo, sizeYes, sizeNo, domain.SideSell)
	}

	return domain.Signal{}, false
}

func (d *Detector) emitBundle(
	state domain.MarketState, now time.Time,
	kind domain.OpportunityKind, edge float64, snapshot domain.PriceSnapshot,
	priceYes, priceNo, sizeYes, sizeNo float64,
	side domain.OrderSide,
) (domain.Signal, bool) {
	marketID := state.Market.MarketID

	key := marketID + "_" + string(kind)
	if !d.cooldownOK(key, d.cfg.BundleCooldown, now) {
		d.stats.CooldownSuppressed++
		return domain.Signal{}, false
	}

	maxSize := min(sizeYes, sizeNo)
	size := min(d.cfg.DefaultOrderSize/max(priceYes, priceNo), maxSize)
	if size < d.cfg.MinOrderSize {
		size = d.cfg.MinOrderSize
	}

	opp := domain.Opportunity{
		OpportunityID: newID(string(kind), 8),
		Kind:          kind,
		MarketID:      marketID,
		Edge:          edge,
		Snapshot:      snapshot,
		SuggestedSize: size,
		MaxSize:       maxSize,
		DetectedAt:    now,
		ExpiresAt:     now.Add(d.cfg.SignalExpiry),
	}
	d.tracker.track(opp)
	d.rememberOpportunity(opp)
	d.stats.OpportunitiesDetected++
	if kind == domain.BundleLong {
		d.stats.BundleLong++
	} else {
		d.stats.BundleShort++
	}

	slog.Info("detector: bundle opportunity",
		"market", marketID,
		"kind", kind,
		"edge", edge,
		"size", size,
	)

	sig := domain.Signal{
		SignalID:    newID("sig", 12),
		Action:      domain.ActionPlaceOrders,
		MarketID:    marketID,
		Opportunity: &opp,
		Orders: []domain.OrderSpec{
			{Token: domain.TokenYes, Side: side, Price: priceYes, Size: size, StrategyTag: TagBundleArbitrage},
			{Token: domain.TokenNo, Side: side, Price: priceNo, Size: size, StrategyTag: TagBundleArbitrage},
		},
		Priority:  PriorityBundle,
		CreatedAt: now,
	}
	return sig, true
}

// checkMarketMaking quotes inside wide spreads, one signal per token side.
func (d *Detector) checkMarketMaking(state domain.MarketState, now time.Time) []domain.Signal {
	var signals []domain.Signal
	marketID := state.Market.MarketID

	for _, token := range []domain.TokenKind{domain.TokenYes, domain.TokenNo} {
		tb := state.Book.Token(token)

		bestBid, okB := tb.BestBid()
		bestAsk, okA := tb.BestAsk()
		if !okB || !okA {
			continue
		}
		spread := bestAsk - bestBid
		if spread < d.cfg.MinSpread {
			continue
		}

		key := "mm_" + marketID + "_" + string(token)
		if !d.cooldownOK(key, d.cfg.MMCooldown, now) {
			d.stats.CooldownSuppressed++
			continue
		}

		ourBid := bestBid + d.cfg.TickSize
		ourAsk := bestAsk - d.cfg.TickSize
		if ourAsk <= ourBid || ourAsk-ourBid < 2*d.cfg.TickSize {
			continue
		}

		ourSpread := ourAsk - ourBid
		mid := (bestBid + bestAsk) / 2
		size := clamp(d.cfg.DefaultOrderSize/mid, d.cfg.MinOrderSize, d.cfg.MaxOrderSize)

		kind := domain.MMBid
		if token == domain.TokenNo {
			kind = domain.MMAsk
		}
		opp := domain.Opportunity{
			OpportunityID: newID("mm_"+string(token), 8),
			Kind:          kind,
			MarketID:      marketID,
			Edge:          ourSpread / 2, // expected capture per side
			Snapshot: domain.PriceSnapshot{
				BidYes: bestBid, AskYes: bestAsk,
				BidNo: bestBid, AskNo: bestAsk,
				Valid: false, // single-token quote, bundle snapshot not applicable
			},
			SuggestedSize: size,
			MaxSize:       size * 2, // both quotes can fill
			DetectedAt:    now,
			ExpiresAt:     now.Add(d.cfg.SignalExpiry),
		}
		d.rememberOpportunity(opp)
		d.stats.OpportunitiesDetected++
		d.stats.MarketMaking++

		slog.Info("detector: market-making opportunity",
			"market", marketID,
			"token", token,
			"spread", spread,
			"bid", ourBid,
			"ask", ourAsk,
		)

		signals = append(signals, domain.Signal{
			SignalID:    newID("sig", 12),
			Action:      domain.ActionPlaceOrders,
			MarketID:    marketID,
			Opportunity: &opp,
			Orders: []domain.OrderSpec{
				{Token: token, Side: domain.SideBuy, Price: ourBid, Size: size, StrategyTag: TagMarketMaking},
				{Token: token, Side: domain.SideSell, Price: ourAsk, Size: size, StrategyTag: TagMarketMaking},
			},
			Priority:  PriorityMarketMaker,
			CreatedAt: now,
		})
	}
	return signals
}

// cooldownOK reports whether the key is out of cooldown and arms it if so.
func (d *Detector) cooldownOK(key string, window time.Duration, now time.Time) bool {
	if last, ok := d.cooldowns[key]; ok && now.Sub(last) < window {
		return false
	}
	d.cooldowns[key] = now
	if len(d.cooldowns) > 4096 {
		d.pruneCooldowns(now)
	}
	return true
}

func (d *Detector) pruneCooldowns(now time.Time) {
	keep := d.cfg.MMCooldown
	if d.cfg.BundleCooldown > keep {
		keep = d.cfg.BundleCooldown
	}
	for key, last := range d.cooldowns {
		if now.Sub(last) >= keep {
			delete(d.cooldowns, key)
		}
	}
}

// rememberOpportunity appends to the bounded recent cache.
func (d *Detector) rememberOpportunity(opp domain.Opportunity) {
	d.recent = append(d.recent, opp)
	if len(d.recent) > historyCap {
		d.recent = append(d.recent[:0:0], d.recent[len(d.recent)-historyKeep:]...)
	}
}

// MarkOpportunityExecuted records a detected opportunity as acted upon. A
// tracked bundle entry has its timing finished on the spot.
func (d *Detector) MarkOpportunityExecuted(marketID string, kind domain.OpportunityKind) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := len(d.recent) - 1; i >= 0; i-- {
		if d.recent[i].MarketID == marketID && d.recent[i].Kind == kind {
			d.recent[i].ActedUpon = true
			break
		}
	}

	if d.tracker.markExecuted(marketID, kind) {
		slog.Debug("detector: opportunity marked executed", "market", marketID, "kind", kind)
	}
}

// GetRecentOpportunities returns detected opportunities no older than maxAge,
// newest last.
func (d *Detector) GetRecentOpportunities(maxAge time.Duration) []domain.Opportunity {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.now().Add(-maxAge)
	var out []domain.Opportunity
	for _, opp := range d.recent {
		if opp.DetectedAt.After(cutoff) {
			out = append(out, opp)
		}
	}
	return out
}

// ClearExpiredOpportunities drops recent-cache entries past their expiry.
func (d *Detector) ClearExpiredOpportunities() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	kept := d.recent[:0]
	removed := 0
	for _, opp := range d.recent {
		if opp.ExpiresAt.After(now) {
			kept = append(kept, opp)
		} else {
			removed++
		}
	}
	d.recent = kept
	return removed
}

// Stats returns a copy of the activity counters.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// TimingStats returns the opportunity-duration snapshot.
func (d *Detector) TimingStats() TimingStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracker.stats()
}

// newID builds a prefixed identifier with n hex characters of randomness.
func newID(prefix string, n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + hex[:n]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
