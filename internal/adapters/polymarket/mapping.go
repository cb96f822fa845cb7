package polymarket

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
)

// Wire types. Polymarket sends prices and sizes as strings.

type restMarket struct {
	ID           string  `json:"id"`
	ConditionID  string  `json:"conditionId"`
	Question     string  `json:"question"`
	Active       bool    `json:"active"`
	Closed       bool    `json:"closed"`
	Volume24hr   float64 `json:"volume24hr"`
	Liquidity    float64 `json:"liquidityNum"`
	EndDate      string  `json:"endDate"`
	ClobTokenIDs string  `json:"clobTokenIds"` // JSON-encoded array of two ids
}

type restLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type restBook struct {
	Market    string      `json:"market"`
	AssetID   string      `json:"asset_id"`
	Bids      []restLevel `json:"bids"`
	Asks      []restLevel `json:"asks"`
	Timestamp string      `json:"timestamp"`
}

type restOrderRequest struct {
	TokenID string  `json:"tokenID"`
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
	Side    string  `json:"side"`
	Type    string  `json:"orderType"`
}

type restOrderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

type restCancelRequest struct {
	OrderID string `json:"orderID"`
}

type restCancelResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
}

type restOrder struct {
	ID           string `json:"id"`
	Market       string `json:"market"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"`
}

// wsBookEvent is the "book" snapshot pushed on the market channel.
type wsBookEvent struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"`
	Bids      []restLevel `json:"bids"`
	Asks      []restLevel `json:"asks"`
	Timestamp string      `json:"timestamp"`
}

type wsSubscribe struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

// tokenIDs decodes the clobTokenIds field: a JSON array [yes, no] encoded as
// a string.
func (m restMarket) tokenIDs() (yes, no string, ok bool) {
	var ids []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil || len(ids) < 2 {
		return "", "", false
	}
	return ids[0], ids[1], true
}

// toDomainMarket converts a Gamma market row. Markets with unparseable token
// ids are reported as not ok.
func toDomainMarket(m restMarket) (domain.Market, bool) {
	yes, no, ok := m.tokenIDs()
	if !ok {
		return domain.Market{}, false
	}

	endDate, _ := time.Parse(time.RFC3339, m.EndDate)
	return domain.Market{
		MarketID:    m.ID,
		ConditionID: m.ConditionID,
		Question:    m.Question,
		YesTokenID:  yes,
		NoTokenID:   no,
		Active:      m.Active,
		Closed:      m.Closed,
		Volume24h:   m.Volume24hr,
		Liquidity:   m.Liquidity,
		EndDate:     endDate,
	}, true
}

// parseLevels converts wire levels to book levels, dropping unparseable
// entries. Bids sort best (highest) first, asks best (lowest) first.
func parseLevels(levels []restLevel, descending bool) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(levels))
	for _, lvl := range levels {
		price, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(lvl.Size, 64)
		if err != nil {
			continue
		}
		out = append(out, domain.BookLevel{Price: price, Size: size})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

// toTokenBook converts one wire book to a domain ladder.
func toTokenBook(bids, asks []restLevel) domain.TokenBook {
	return domain.TokenBook{
		Bids: parseLevels(bids, true),
		Asks: parseLevels(asks, false),
	}
}

// parseWireTimestamp decodes Polymarket's millisecond epoch strings.
func parseWireTimestamp(ts string) time.Time {
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
