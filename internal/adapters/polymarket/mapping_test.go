package polymarket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
)

func TestTokenIDsDecode(t *testing.T) {
	m := restMarket{ClobTokenIDs: `["tok-yes","tok-no"]`}
	yes, no, ok := m.tokenIDs()
	require.True(t, ok)
	assert.Equal(t, "tok-yes", yes)
	assert.Equal(t, "tok-no", no)

	_, _, ok = restMarket{ClobTokenIDs: "garbage"}.tokenIDs()
	assert.False(t, ok)

	_, _, ok = restMarket{ClobTokenIDs: `["only-one"]`}.tokenIDs()
	assert.False(t, ok)
}

func TestToDomainMarket(t *testing.T) {
	m, ok := toDomainMarket(restMarket{
		ID:           "mkt-1",
		ConditionID:  "0xabc",
		Question:     "Will it rain?",
		Active:       true,
		Volume24hr:   42000,
		Liquidity:    9000,
		EndDate:      "2026-12-31T00:00:00Z",
		ClobTokenIDs: `["tok-yes","tok-no"]`,
	})
	require.True(t, ok)
	assert.Equal(t, "mkt-1", m.MarketID)
	assert.Equal(t, "tok-yes", m.YesTokenID)
	assert.Equal(t, "tok-no", m.NoTokenID)
	assert.True(t, m.Tradeable())
	assert.Equal(t, 2026, m.EndDate.Year())
}

func TestParseLevelsSortsAndDrops(t *testing.T) {
	bids := parseLevels([]restLevel{
		{Price: "0.40", Size: "100"},
		{Price: "0.45", Size: "50"},
		{Price: "bad", Size: "10"},
		{Price: "0.42", Size: "nan-ish"},
	}, true)
	require.Len(t, bids, 2)
	assert.InDelta(t, 0.45, bids[0].Price, 1e-9)
	assert.InDelta(t, 0.40, bids[1].Price, 1e-9)

	asks := parseLevels([]restLevel{
		{Price: "0.55", Size: "10"},
		{Price: "0.50", Size: "20"},
	}, false)
	require.Len(t, asks, 2)
	assert.InDelta(t, 0.50, asks[0].Price, 1e-9)
}

func TestParseWireTimestamp(t *testing.T) {
	at := parseWireTimestamp("1767225600000")
	assert.Equal(t, time.UnixMilli(1767225600000), at)

	// Unparseable timestamps fall back to now.
	assert.WithinDuration(t, time.Now(), parseWireTimestamp("not-a-number"), time.Second)
}

func TestNormalizePriceAndSize(t *testing.T) {
	e := NewExchange(NewClient("", ""), 0.01)

	assert.InDelta(t, 0.45, e.normalizePrice(0.4512), 1e-9)
	assert.InDelta(t, 0.46, e.normalizePrice(0.455), 1e-9)
	assert.InDelta(t, 0.45, e.normalizePrice(0.45), 1e-9)

	assert.InDelta(t, 111.11, normalizeSize(111.1111), 1e-9)
	assert.InDelta(t, 5.0, normalizeSize(5), 1e-9)
}

func TestStreamAppliesBookEvents(t *testing.T) {
	market := domain.Market{
		MarketID:   "mkt-1",
		YesTokenID: "tok-yes",
		NoTokenID:  "tok-no",
		Active:     true,
	}
	s := NewStream("", []domain.Market{market})

	var updates []domain.MarketState
	s.onUpdate = func(_ string, state domain.MarketState) {
		updates = append(updates, state)
	}

	s.handleMessage([]byte(`[
		{"event_type":"book","asset_id":"tok-yes","market":"0xabc",
		 "bids":[{"price":"0.43","size":"500"}],
		 "asks":[{"price":"0.45","size":"500"}],
		 "timestamp":"1767225600000"},
		{"event_type":"book","asset_id":"tok-no","market":"0xabc",
		 "bids":[{"price":"0.48","size":"300"}],
		 "asks":[{"price":"0.50","size":"300"}],
		 "timestamp":"1767225600001"}
	]`))

	require.Len(t, updates, 2)

	final := updates[1]
	assert.Equal(t, "mkt-1", final.Market.MarketID)

	yesAsk, ok := final.Book.Yes.BestAsk()
	require.True(t, ok)
	assert.InDelta(t, 0.45, yesAsk, 1e-9)

	total, ok := final.Book.TotalAsk()
	require.True(t, ok)
	assert.InDelta(t, 0.95, total, 1e-9)
}

func TestStreamIgnoresUnknownAssetsAndEvents(t *testing.T) {
	s := NewStream("", []domain.Market{{MarketID: "mkt-1", YesTokenID: "tok-yes", NoTokenID: "tok-no"}})

	called := false
	s.onUpdate = func(string, domain.MarketState) { called = true }

	s.handleMessage([]byte(`{"event_type":"book","asset_id":"tok-other"}`))
	s.handleMessage([]byte(`{"event_type":"price_change","asset_id":"tok-yes"}`))
	s.handleMessage([]byte(`not json`))

	assert.False(t, called)
}
