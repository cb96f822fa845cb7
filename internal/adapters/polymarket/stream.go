package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iDechart/polymarket-arbitrage/internal/domain"
	"github.com/iDechart/polymarket-arbitrage/internal/ports"
)

const (
	pingInterval  = 10 * time.Second
	readTimeout   = 30 * time.Second
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
	writeWait     = 5 * time.Second
)

// assetRef locates one token inside its market.
type assetRef struct {
	market domain.Market
	token  domain.TokenKind
}

// Stream implements ports.MarketFeed over the CLOB market websocket. It
// subscribes to both tokens of every configured market, maintains the
// latest book per market, and invokes the callback whenever a side updates.
// Disconnects trigger reconnection with exponential backoff and jitter; the
// subscription is replayed on every reconnect.
type Stream struct {
	url     string
	byAsset map[string]assetRef

	mu       sync.Mutex
	books    map[string]*domain.OrderBook
	onUpdate ports.MarketUpdateFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ ports.MarketFeed = (*Stream)(nil)

// NewStream creates a feed for the given markets. url may be empty to use
// the production endpoint.
func NewStream(url string, markets []domain.Market) *Stream {
	if url == "" {
		url = defaultWSBase
	}
	s := &Stream{
		url:     url,
		byAsset: make(map[string]assetRef, 2*len(markets)),
		books:   make(map[string]*domain.OrderBook),
	}
	for _, m := range markets {
		s.byAsset[m.YesTokenID] = assetRef{market: m, token: domain.TokenYes}
		s.byAsset[m.NoTokenID] = assetRef{market: m, token: domain.TokenNo}
	}
	return s
}

// Start begins streaming. Fails fast when no markets are configured.
func (s *Stream) Start(ctx context.Context, onUpdate ports.MarketUpdateFunc) error {
	if len(s.byAsset) == 0 {
		return fmt.Errorf("polymarket.Stream: no markets configured")
	}
	s.onUpdate = onUpdate

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(runCtx)

	slog.Info("polymarket: stream started", "assets", len(s.byAsset))
	return nil
}

// Stop shuts the stream down and waits for the reader to exit.
func (s *Stream) Stop(context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

// run owns the connect/read/reconnect cycle.
func (s *Stream) run(ctx context.Context) {
	defer s.wg.Done()

	backoff := reconnectBase
	for ctx.Err() == nil {
		if err := s.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("polymarket: stream disconnected", "error", err, "retry_in", backoff)

			wait := backoff + time.Duration(rand.Int63n(int64(backoff)/2+1))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			backoff = min(backoff*2, reconnectMax)
			continue
		}
		backoff = reconnectBase
	}
}

func (s *Stream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := s.subscribe(conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	slog.Info("polymarket: stream connected")

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go s.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		s.handleMessage(data)
	}
}

func (s *Stream) subscribe(conn *websocket.Conn) error {
	assets := make([]string, 0, len(s.byAsset))
	for id := range s.byAsset {
		assets = append(assets, id)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsSubscribe{Type: "market", AssetsIDs: assets})
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses one frame. The market channel batches events into
// arrays; a single object is tolerated too. Malformed frames are dropped.
func (s *Stream) handleMessage(data []byte) {
	var events []wsBookEvent
	if err := json.Unmarshal(data, &events); err != nil {
		var single wsBookEvent
		if err := json.Unmarshal(data, &single); err != nil {
			return
		}
		events = []wsBookEvent{single}
	}

	for _, ev := range events {
		if ev.EventType != "book" {
			continue
		}
		s.applyBook(ev)
	}
}

// applyBook merges one token's snapshot into the market book and emits the
// updated state.
func (s *Stream) applyBook(ev wsBookEvent) {
	ref, ok := s.byAsset[ev.AssetID]
	if !ok {
		return
	}
	marketID := ref.market.MarketID

	s.mu.Lock()
	book, ok := s.books[marketID]
	if !ok {
		book = &domain.OrderBook{MarketID: marketID}
		s.books[marketID] = book
	}
	tb := toTokenBook(ev.Bids, ev.Asks)
	if ref.token == domain.TokenYes {
		book.Yes = tb
	} else {
		book.No = tb
	}
	book.Timestamp = parseWireTimestamp(ev.Timestamp)
	snapshot := *book
	s.mu.Unlock()

	if s.onUpdate != nil {
		s.onUpdate(marketID, domain.MarketState{
			Market:    ref.market,
			Book:      snapshot,
			Timestamp: snapshot.Timestamp,
		})
	}
}

// FetchActiveMarkets pages through Gamma and returns tradeable markets with
// at least minVolume 24h volume, up to maxMarkets.
func FetchActiveMarkets(ctx context.Context, client *Client, minVolume float64, maxMarkets int) ([]domain.Market, error) {
	const pageSize = 100

	var out []domain.Market
	for offset := 0; len(out) < maxMarkets; offset += pageSize {
		page, err := client.GetMarkets(ctx, pageSize, offset)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, raw := range page {
			m, ok := toDomainMarket(raw)
			if !ok || !m.Tradeable() || m.Volume24h < minVolume {
				continue
			}
			out = append(out, m)
			if len(out) >= maxMarkets {
				break
			}
		}
	}
	slog.Info("polymarket: markets discovered", "count", len(out), "min_volume", minVolume)
	return out, nil
}
