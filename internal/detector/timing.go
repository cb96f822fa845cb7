package detector

import (
	"log/slog"
	"time"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
)

const (
	maxOpportunityAge = 10 * time.Second
	historyCap        = 1000
	historyKeep       = 500
	recentSamples     = 20
)

// activeOpportunity is a mispricing currently being timed.
type activeOpportunity struct {
	MarketID   string
	Kind       domain.OpportunityKind
	Edge       float64
	DetectedAt time.Time
	Executed   bool
}

// expiredSample is a finished timing measurement.
type expiredSample struct {
	MarketID   string
	Kind       domain.OpportunityKind
	Edge       float64
	DurationMs float64
	Executed   bool
	ExpiredAt  time.Time
}

// timingTracker measures how long bundle mispricings persist before the
// market closes them. One active entry per (market, kind); finished entries
// go into a bounded history with duration-bucket statistics.
type timingTracker struct {
	now func() time.Time

	active  map[string]*activeOpportunity
	history []expiredSample

	count    int
	executed int
	sumMs    float64
	minMs    float64
	maxMs    float64

	bucketSub100ms int
	bucketSub500ms int
	bucketSub1s    int
	bucket1sPlus   int
}

func newTimingTracker(now func() time.Time) *timingTracker {
	return &timingTracker{
		now:    now,
		active: make(map[string]*activeOpportunity),
	}
}

func trackerKey(marketID string, kind domain.OpportunityKind) string {
	return marketID + "_" + string(kind)
}

// track starts timing an opportunity. A persistent mispricing re-emits on
// every cooldown lapse; the entry from the first detection keeps aging, so
// an already-active key is left alone.
func (t *timingTracker) track(opp domain.Opportunity) {
	key := trackerKey(opp.MarketID, opp.Kind)
	if _, ok := t.active[key]; ok {
		return
	}
	t.active[key] = &activeOpportunity{
		MarketID:   opp.MarketID,
		Kind:       opp.Kind,
		Edge:       opp.Edge,
		DetectedAt: opp.DetectedAt,
	}
}

// markExecuted records the active entry as acted upon and finishes its
// timing immediately, so the sample measures detection to execution rather
// than detection to price recovery.
func (t *timingTracker) markExecuted(marketID string, kind domain.OpportunityKind) bool {
	key := trackerKey(marketID, kind)
	a, ok := t.active[key]
	if !ok {
		return false
	}
	a.Executed = true
	t.expire(key, a, t.now())
	return true
}

// sweep expires active entries for the market whose qualifying edge has
// collapsed below half the threshold or whose age exceeds the ceiling.
func (t *timingTracker) sweep(marketID string, book domain.OrderBook, minEdge float64) {
	now := t.now()
	for key, a := range t.active {
		if a.MarketID != marketID {
			continue
		}
		age := now.Sub(a.DetectedAt)
		if age > maxOpportunityAge {
			t.expire(key, a, now)
			continue
		}
		edge, ok := grossEdge(a.Kind, book)
		if !ok || edge < minEdge*0.5 {
			t.expire(key, a, now)
		}
	}
}

// grossEdge recomputes the raw (pre-fee) edge for a bundle kind from the
// current book.
func grossEdge(kind domain.OpportunityKind, book domain.OrderBook) (float64, bool) {
	switch kind {
	case domain.BundleLong:
		total, ok := book.TotalAsk()
		if !ok {
			return 0, false
		}
		return 1 - total, true
	case domain.BundleShort:
		total, ok := book.TotalBid()
		if !ok {
			return 0, false
		}
		return total - 1, true
	}
	return 0, false
}

func (t *timingTracker) expire(key string, a *activeOpportunity, now time.Time) {
	delete(t.active, key)

	durMs := float64(now.Sub(a.DetectedAt)) / float64(time.Millisecond)
	sample := expiredSample{
		MarketID:   a.MarketID,
		Kind:       a.Kind,
		Edge:       a.Edge,
		DurationMs: durMs,
		Executed:   a.Executed,
		ExpiredAt:  now,
	}

	t.history = append(t.history, sample)
	if len(t.history) > historyCap {
		t.history = append(t.history[:0:0], t.history[len(t.history)-historyKeep:]...)
	}

	t.count++
	if a.Executed {
		t.executed++
	}
	t.sumMs += durMs
	if t.count == 1 || durMs < t.minMs {
		t.minMs = durMs
	}
	if durMs > t.maxMs {
		t.maxMs = durMs
	}

	switch {
	case durMs < 100:
		t.bucketSub100ms++
	case durMs < 500:
		t.bucketSub500ms++
	case durMs < 1000:
		t.bucketSub1s++
	default:
		t.bucket1sPlus++
	}

	slog.Debug("detector: opportunity expired",
		"market", a.MarketID,
		"kind", a.Kind,
		"duration_ms", durMs,
		"executed", a.Executed,
	)
}

// TimingStats is a read-only snapshot of opportunity-duration statistics.
type TimingStats struct {
	ActiveCount   int             `json:"active_count"`
	ExpiredCount  int             `json:"expired_count"`
	ExecutedCount int             `json:"executed_count"`
	MeanMs        float64         `json:"mean_ms"`
	MinMs         float64         `json:"min_ms"`
	MaxMs         float64         `json:"max_ms"`
	Buckets       map[string]int  `json:"buckets"`
	Recent        []expiredSample `json:"recent"`
}

func (t *timingTracker) stats() TimingStats {
	mean := 0.0
	if t.count > 0 {
		mean = t.sumMs / float64(t.count)
	}

	recent := t.history
	if len(recent) > recentSamples {
		recent = recent[len(recent)-recentSamples:]
	}
	out := make([]expiredSample, len(recent))
	copy(out, recent)

	return TimingStats{
		ActiveCount:   len(t.active),
		ExpiredCount:  t.count,
		ExecutedCount: t.executed,
		MeanMs:        mean,
		MinMs:         t.minMs,
		MaxMs:         t.maxMs,
		Buckets: map[string]int{
			"<100ms": t.bucketSub100ms,
			"<500ms": t.bucketSub500ms,
			"<1s":    t.bucketSub1s,
			">=1s":   t.bucket1sPlus,
		},
		Recent: out,
	}
}
