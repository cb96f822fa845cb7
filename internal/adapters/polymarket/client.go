// Package polymarket adapts the Polymarket CLOB and Gamma APIs to the
// trading core's ports.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCLOBBase  = "https://clob.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"
	defaultWSBase    = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

	// Rate limits at 60% of the documented API limits.
	// CLOB /book: 500/10s -> 30/s
	booksRatePerSec = 30
	// Gamma /markets: 300/10s -> 18/s
	gammaRatePerSec = 18
	// CLOB general: 9000/10s -> 540/s
	generalRatePerSec = 540

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client is the Polymarket HTTP client with rate limiting and retries.
type Client struct {
	http         *http.Client
	clobBase     string
	gammaBase    string
	clobLimiter  *rate.Limiter
	gammaLimiter *rate.Limiter
	booksLimiter *rate.Limiter
}

// NewClient creates a Client for the given base URLs. Empty strings select
// the production endpoints.
func NewClient(clobBase, gammaBase string) *Client {
	if clobBase == "" {
		clobBase = defaultCLOBBase
	}
	if gammaBase == "" {
		gammaBase = defaultGammaBase
	}
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		clobBase:     clobBase,
		gammaBase:    gammaBase,
		clobLimiter:  rate.NewLimiter(generalRatePerSec, 50),
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
		booksLimiter: rate.NewLimiter(booksRatePerSec, 5),
	}
}

// GetMarkets fetches active markets from Gamma, paginated by offset.
func (c *Client) GetMarkets(ctx context.Context, limit, offset int) ([]restMarket, error) {
	u := fmt.Sprintf("%s/markets?active=true&closed=false&limit=%d&offset=%d",
		c.gammaBase, limit, offset)
	var out []restMarket
	if err := c.get(ctx, c.gammaLimiter, u, &out); err != nil {
		return nil, fmt.Errorf("polymarket.GetMarkets: %w", err)
	}
	return out, nil
}

// GetOrderBook fetches the book for one token.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (restBook, error) {
	u := fmt.Sprintf("%s/book?token_id=%s", c.clobBase, url.QueryEscape(tokenID))
	var out restBook
	if err := c.get(ctx, c.booksLimiter, u, &out); err != nil {
		return restBook{}, fmt.Errorf("polymarket.GetOrderBook: %w", err)
	}
	return out, nil
}

// PostOrder submits a limit order to the CLOB.
func (c *Client) PostOrder(ctx context.Context, req restOrderRequest) (restOrderResponse, error) {
	var out restOrderResponse
	if err := c.post(ctx, c.clobLimiter, c.clobBase+"/order", req, &out); err != nil {
		return restOrderResponse{}, fmt.Errorf("polymarket.PostOrder: %w", err)
	}
	if !out.Success {
		return restOrderResponse{}, fmt.Errorf("polymarket.PostOrder: rejected: %s", out.ErrorMsg)
	}
	return out, nil
}

// DeleteOrder cancels an order on the CLOB.
func (c *Client) DeleteOrder(ctx context.Context, orderID string) error {
	var out restCancelResponse
	if err := c.do(ctx, c.clobLimiter, http.MethodDelete, c.clobBase+"/order",
		restCancelRequest{OrderID: orderID}, &out); err != nil {
		return fmt.Errorf("polymarket.DeleteOrder: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("polymarket.DeleteOrder: rejected: %s", out.ErrorMsg)
	}
	return nil
}

// GetOpenOrders fetches open orders, optionally filtered by market.
func (c *Client) GetOpenOrders(ctx context.Context, marketID string) ([]restOrder, error) {
	u := c.clobBase + "/data/orders"
	if marketID != "" {
		u += "?market=" + url.QueryEscape(marketID)
	}
	var out []restOrder
	if err := c.get(ctx, c.clobLimiter, u, &out); err != nil {
		return nil, fmt.Errorf("polymarket.GetOpenOrders: %w", err)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, limiter *rate.Limiter, u string, out any) error {
	return c.do(ctx, limiter, http.MethodGet, u, nil, out)
}

func (c *Client) post(ctx context.Context, limiter *rate.Limiter, u string, body, out any) error {
	return c.do(ctx, limiter, http.MethodPost, u, body, out)
}

// do runs one request with rate limiting, exponential backoff, and jitter.
func (c *Client) do(ctx context.Context, limiter *rate.Limiter, method, u string, body, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := c.send(ctx, method, u, body)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("polymarket: rate limited by API", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(b))
		}

		defer resp.Body.Close()
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (c *Client) send(ctx context.Context, method, u string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.http.Do(req)
}

// sleep waits with exponential backoff plus jitter, respecting the context.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	wait += time.Duration(rand.Int63n(int64(baseRetryWait)))

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
