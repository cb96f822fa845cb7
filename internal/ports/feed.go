package ports

import (
	"context"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
)

// MarketUpdateFunc is invoked for every market state refresh. It runs on the
// feed's goroutine and must not block.
type MarketUpdateFunc func(marketID string, state domain.MarketState)

// MarketFeed streams market state snapshots. The core treats every snapshot
// as read-only.
type MarketFeed interface {
	// Start begins streaming. The callback fires until Stop or context
	// cancellation.
	Start(ctx context.Context, onUpdate MarketUpdateFunc) error

	// Stop shuts the feed down and waits for in-flight callbacks.
	Stop(ctx context.Context) error
}
