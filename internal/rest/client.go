// internal/rest/client.go
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/NPascu6/npascu-marketfeed/internal/book"
	"github.com/NPascu6/npascu-marketfeed/internal/models"
)

// Client fetches seed snapshots from the REST API. Seeding is
// best-effort: callers log failures and fall back to the stream.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.SugaredLogger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// GetQuoteSnapshot fetches the current quote for a symbol.
func (c *Client) GetQuoteSnapshot(ctx context.Context, symbol string) (*models.Quote, error) {
	u := fmt.Sprintf("%s/api/snapshot/%s", c.baseURL, url.PathEscape(symbol))

	var snap models.QuoteSnapshot
	if err := c.getJSON(ctx, u, &snap); err != nil {
		return nil, fmt.Errorf("quote snapshot for %s: %w", symbol, err)
	}
	return snap.ToQuote(), nil
}

// GetOrderBook fetches the order book at the requested depth, already
// normalized to the reducer's invariants.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth int) (book.OrderBook, error) {
	u := fmt.Sprintf("%s/api/orderbook/%s?depth=%d", c.baseURL, url.PathEscape(symbol), depth)

	var snap models.BookSnapshot
	if err := c.getJSON(ctx, u, &snap); err != nil {
		return book.OrderBook{}, fmt.Errorf("order book for %s: %w", symbol, err)
	}
	return book.FromSnapshot(snap.Bids, snap.Asks, depth), nil
}

func (c *Client) getJSON(ctx context.Context, url string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api returned status: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	return nil
}
