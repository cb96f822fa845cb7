package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
)

func feeFreeConfig() Config {
	cfg := DefaultConfig()
	cfg.TakerFeeBps = 0
	cfg.GasCostPerOrder = 0
	return cfg
}

func newTestDetector(cfg Config) (*Detector, *time.Time) {
	d := NewDetector(cfg)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	d.now = func() time.Time { return *clock }
	return d, clock
}

func bookState(bidYes, askYes, bidNo, askNo float64) domain.MarketState {
	return domain.MarketState{
		Market: domain.Market{
			MarketID: "mkt-1",
			Active:   true,
		},
		Book: domain.OrderBook{
			MarketID: "mkt-1",
			Yes: domain.TokenBook{
				Bids: []domain.BookLevel{{Price: bidYes, Size: 500}},
				Asks: []domain.BookLevel{{Price: askYes, Size: 500}},
			},
			No: domain.TokenBook{
				Bids: []domain.BookLevel{{Price: bidNo, Size: 500}},
				Asks: []domain.BookLevel{{Price: askNo, Size: 500}},
			},
		},
	}
}

func TestBundleLongDetected(t *testing.T) {
	d, _ := newTestDetector(feeFreeConfig())

	signals := d.Analyze(bookState(0.43, 0.45, 0.48, 0.50))
	require.Len(t, signals, 1)

	sig := signals[0]
	require.NotNil(t, sig.Opportunity)
	assert.Equal(t, domain.BundleLong, sig.Opportunity.Kind)
	assert.InDelta(t, 0.05, sig.Opportunity.Edge, 1e-9)
	assert.Equal(t, PriorityBundle, sig.Priority)

	require.Len(t, sig.Orders, 2)
	for _, spec := range sig.Orders {
		assert.Equal(t, domain.SideBuy, spec.Side)
		assert.Equal(t, TagBundleArbitrage, spec.StrategyTag)
		assert.GreaterOrEqual(t, spec.Size, d.cfg.MinOrderSize)
	}
	assert.Equal(t, domain.TokenYes, sig.Orders[0].Token)
	assert.InDelta(t, 0.45, sig.Orders[0].Price, 1e-9)
	assert.Equal(t, domain.TokenNo, sig.Orders[1].Token)
	assert.InDelta(t, 0.50, sig.Orders[1].Price, 1e-9)
}

func TestBundleShortDetected(t *testing.T) {
	d, _ := newTestDetector(feeFreeConfig())

	// Bids sum to 1.06, asks nearly touching so no long and no MM quote.
	signals := d.Analyze(bookState(0.53, 0.54, 0.53, 0.54))
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, domain.BundleShort, sig.Opportunity.Kind)
	assert.InDelta(t, 0.06, sig.Opportunity.Edge, 1e-9)
	for _, spec := range sig.Orders {
		assert.Equal(t, domain.SideSell, spec.Side)
	}
}

func TestNoBundleAtFairPricing(t *testing.T) {
	d, _ := newTestDetector(feeFreeConfig())

	assert.Empty(t, d.Analyze(bookState(0.49, 0.50, 0.49, 0.50)))
}

func TestNoBundleBelowMinEdge(t *testing.T) {
	d, _ := newTestDetector(feeFreeConfig())

	// total_ask = 0.995 gives 0.005 edge, below min_edge 0.01.
	assert.Empty(t, d.Analyze(bookState(0.48, 0.495, 0.48, 0.50)))
}

func TestFeesEatEdge(t *testing.T) {
	cfg := feeFreeConfig()
	cfg.GasCostPerOrder = 0.03 // 0.06 fixed cost swamps the 0.05 gross edge
	d, _ := newTestDetector(cfg)

	assert.Empty(t, d.Analyze(bookState(0.43, 0.45, 0.48, 0.50)))
}

func TestBundleCooldown(t *testing.T) {
	d, clock := newTestDetector(feeFreeConfig())
	state := bookState(0.43, 0.45, 0.48, 0.50)

	require.Len(t, d.Analyze(state), 1)
	assert.Empty(t, d.Analyze(state), "within cooldown window")

	*clock = clock.Add(3 * time.Second)
	assert.Len(t, d.Analyze(state), 1, "cooldown elapsed")
}

func TestMissingSideSkipsBundle(t *testing.T) {
	d, _ := newTestDetector(feeFreeConfig())

	state := bookState(0.43, 0.45, 0.48, 0.50)
	state.Book.No.Asks = nil

	assert.Empty(t, d.Analyze(state))
}

func TestInactiveMarketSkipped(t *testing.T) {
	d, _ := newTestDetector(feeFreeConfig())

	state := bookState(0.43, 0.45, 0.48, 0.50)
	state.Market.Active = false

	assert.Empty(t, d.Analyze(state))
}

func TestMarketMakingQuote(t *testing.T) {
	d, _ := newTestDetector(feeFreeConfig())

	// YES spread 0.10, NO spread tight. Asks sum > 1 so no bundle long;
	// bids sum to 0.94 so no short.
	signals := d.Analyze(bookState(0.40, 0.50, 0.54, 0.56))
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, PriorityMarketMaker, sig.Priority)
	require.Len(t, sig.Orders, 2)

	buy, sell := sig.Orders[0], sig.Orders[1]
	assert.Equal(t, domain.SideBuy, buy.Side)
	assert.InDelta(t, 0.41, buy.Price, 1e-9)
	assert.Equal(t, domain.SideSell, sell.Side)
	assert.InDelta(t, 0.49, sell.Price, 1e-9)
	assert.Equal(t, TagMarketMaking, buy.StrategyTag)
	assert.Equal(t, buy.Size, sell.Size)

	mid := 0.45
	want := clamp(d.cfg.DefaultOrderSize/mid, d.cfg.MinOrderSize, d.cfg.MaxOrderSize)
	assert.InDelta(t, want, buy.Size, 1e-9)

	// Edge is the half-spread we quote, our_ask 0.49 minus our_bid 0.41
	// over two; both quotes filling doubles the exposure.
	require.NotNil(t, sig.Opportunity)
	assert.InDelta(t, 0.04, sig.Opportunity.Edge, 1e-9)
	assert.InDelta(t, 2*buy.Size, sig.Opportunity.MaxSize, 1e-9)
}

func TestMarketMakingNarrowSpreadSkipped(t *testing.T) {
	d, _ := newTestDetector(feeFreeConfig())

	// Spread 0.04 below min_spread 0.05.
	assert.Empty(t, d.Analyze(bookState(0.46, 0.50, 0.53, 0.56)))
}

func TestMarketMakingCooldown(t *testing.T) {
	d, clock := newTestDetector(feeFreeConfig())
	state := bookState(0.40, 0.50, 0.54, 0.56)

	require.Len(t, d.Analyze(state), 1)
	assert.Empty(t, d.Analyze(state))

	*clock = clock.Add(6 * time.Second)
	assert.Len(t, d.Analyze(state), 1)
}

func TestTimingTrackerExpiry(t *testing.T) {
	d, clock := newTestDetector(feeFreeConfig())
	mispriced := bookState(0.43, 0.45, 0.48, 0.50)

	require.Len(t, d.Analyze(mispriced), 1)
	assert.Equal(t, 1, d.TimingStats().ActiveCount)

	// Asks climb back above 1.0 some 300ms later, closing the window.
	*clock = clock.Add(300 * time.Millisecond)
	d.Analyze(bookState(0.49, 0.51, 0.49, 0.50))

	stats := d.TimingStats()
	assert.Zero(t, stats.ActiveCount)
	assert.Equal(t, 1, stats.ExpiredCount)
	assert.Equal(t, 1, stats.Buckets["<500ms"])
	assert.InDelta(t, 300, stats.MeanMs, 1)
	require.Len(t, stats.Recent, 1)
	assert.Equal(t, domain.BundleLong, stats.Recent[0].Kind)
}

func TestTimingTrackerAgeCeiling(t *testing.T) {
	d, clock := newTestDetector(feeFreeConfig())
	mispriced := bookState(0.43, 0.45, 0.48, 0.50)

	require.Len(t, d.Analyze(mispriced), 1)

	// Mispricing persists past the 10s ceiling.
	*clock = clock.Add(11 * time.Second)
	d.Analyze(mispriced)

	stats := d.TimingStats()
	assert.Equal(t, 1, stats.ExpiredCount)
	assert.Equal(t, 1, stats.Buckets[">=1s"])
}

func TestPersistentMispricingAgesToCeiling(t *testing.T) {
	d, clock := newTestDetector(feeFreeConfig())
	mispriced := bookState(0.43, 0.45, 0.48, 0.50)

	require.Len(t, d.Analyze(mispriced), 1)

	// Re-emits every cooldown lapse without restarting the timing entry.
	for i := 0; i < 4; i++ {
		*clock = clock.Add(2500 * time.Millisecond)
		d.Analyze(mispriced)
		stats := d.TimingStats()
		assert.Equal(t, 1, stats.ActiveCount)
		assert.Zero(t, stats.ExpiredCount)
	}

	// 12.5s after first detection the ceiling expires the original entry;
	// the still-open window is tracked anew.
	*clock = clock.Add(2500 * time.Millisecond)
	d.Analyze(mispriced)

	stats := d.TimingStats()
	assert.Equal(t, 1, stats.ExpiredCount)
	assert.Equal(t, 1, stats.ActiveCount)
	require.Len(t, stats.Recent, 1)
	assert.InDelta(t, 12500, stats.Recent[0].DurationMs, 1)
}

func TestMarkOpportunityExecuted(t *testing.T) {
	d, clock := newTestDetector(feeFreeConfig())

	require.Len(t, d.Analyze(bookState(0.43, 0.45, 0.48, 0.50)), 1)

	*clock = clock.Add(700 * time.Millisecond)
	d.MarkOpportunityExecuted("mkt-1", domain.BundleLong)

	// Timing finishes at execution, not when prices later recover.
	stats := d.TimingStats()
	assert.Zero(t, stats.ActiveCount)
	assert.Equal(t, 1, stats.ExpiredCount)
	assert.Equal(t, 1, stats.ExecutedCount)
	require.Len(t, stats.Recent, 1)
	assert.True(t, stats.Recent[0].Executed)
	assert.InDelta(t, 700, stats.Recent[0].DurationMs, 1)

	opps := d.GetRecentOpportunities(time.Minute)
	require.Len(t, opps, 1)
	assert.True(t, opps[0].ActedUpon)
}

func TestMarkExecutedFollowedByReEmission(t *testing.T) {
	d, clock := newTestDetector(feeFreeConfig())
	mispriced := bookState(0.43, 0.45, 0.48, 0.50)

	require.Len(t, d.Analyze(mispriced), 1)
	d.MarkOpportunityExecuted("mkt-1", domain.BundleLong)

	// The next re-emission starts a fresh timing entry instead of touching
	// the finished executed sample.
	*clock = clock.Add(3 * time.Second)
	require.Len(t, d.Analyze(mispriced), 1)

	stats := d.TimingStats()
	assert.Equal(t, 1, stats.ExecutedCount)
	assert.Equal(t, 1, stats.ActiveCount)
}

func TestRecentOpportunities(t *testing.T) {
	d, clock := newTestDetector(feeFreeConfig())

	require.Len(t, d.Analyze(bookState(0.43, 0.45, 0.48, 0.50)), 1)

	assert.Len(t, d.GetRecentOpportunities(time.Minute), 1)

	*clock = clock.Add(2 * time.Minute)
	assert.Empty(t, d.GetRecentOpportunities(time.Minute))

	removed := d.ClearExpiredOpportunities()
	assert.Equal(t, 1, removed)
	assert.Empty(t, d.GetRecentOpportunities(time.Hour))
}

func TestStatsIdempotent(t *testing.T) {
	d, _ := newTestDetector(feeFreeConfig())
	d.Analyze(bookState(0.43, 0.45, 0.48, 0.50))

	first := d.Stats()
	second := d.Stats()
	assert.Equal(t, first, second)

	assert.Equal(t, 1, first.OpportunitiesDetected)
	assert.Equal(t, 1, first.SignalsEmitted)
	assert.Equal(t, 1, first.BundleLong)
}
