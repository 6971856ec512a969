// Package binance fetches reference spot prices: the hourly kline open and
// the live ticker price, used to compute the directional diff recorded next
// to order-book quotes.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client wraps the Binance public REST endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Binance client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func pair(symbol string) string {
	return strings.ToUpper(symbol) + "USDT"
}

// HourlyOpen returns the open price of the current 1h kline for symbol
// (e.g. "btc" -> BTCUSDT).
func (c *Client) HourlyOpen(ctx context.Context, symbol string) (float64, error) {
	u := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=1h&limit=1", c.baseURL, pair(symbol))
	body, err := c.get(ctx, u)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch hourly kline: %w", err)
	}

	// Kline rows are positional arrays; index 1 is the open price string.
	var klines [][]json.RawMessage
	if err := json.Unmarshal(body, &klines); err != nil {
		return 0, fmt.Errorf("failed to decode klines: %w", err)
	}
	if len(klines) == 0 || len(klines[0]) < 2 {
		return 0, fmt.Errorf("kline response has no rows")
	}
	var openStr string
	if err := json.Unmarshal(klines[0][1], &openStr); err != nil {
		return 0, fmt.Errorf("failed to decode open price: %w", err)
	}
	open, err := strconv.ParseFloat(openStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse open price %q: %w", openStr, err)
	}
	return open, nil
}

// TickerPrice returns the live ticker price for symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	u := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.baseURL, pair(symbol))
	body, err := c.get(ctx, u)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch ticker: %w", err)
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode ticker: %w", err)
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ticker price %q: %w", resp.Price, err)
	}
	return price, nil
}

func (c *Client) get(ctx context.Context, urlStr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
