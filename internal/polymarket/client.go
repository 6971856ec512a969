// Package polymarket provides read-only access to the Polymarket Gamma and
// CLOB APIs: market metadata lookup by slug, midpoints, order books, and
// price history.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/k1ic/pm-stats/internal/models"
)

// Client wraps the Gamma and CLOB HTTP endpoints.
type Client struct {
	gammaAPIURL string
	clobAPIURL  string
	httpClient  *http.Client

	maxRetries     int
	retryDelayBase time.Duration
}

// ClientConfig tunes retry behavior.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
}

// NewClient creates a Polymarket client.
func NewClient(gammaAPIURL, clobAPIURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	return &Client{
		gammaAPIURL: gammaAPIURL,
		clobAPIURL:  clobAPIURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// gammaMarket is one market object from GET {gamma}/markets. The outcome
// fields arrive as JSON-in-a-string and must be parsed into ordered lists.
type gammaMarket struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	Slug          string `json:"slug"`
	Outcomes      string `json:"outcomes"`      // e.g. "[\"Up\", \"Down\"]"
	OutcomePrices string `json:"outcomePrices"` // e.g. "[\"0.62\", \"0.38\"]"
	ClobTokenIds  string `json:"clobTokenIds"`  // e.g. "[\"123...\", \"456...\"]"
	Volume        string `json:"volume"`
}

// FetchMarketBySlug looks up the market for window's slug and parses it into
// a typed Market. The raw response body is returned alongside so the caller
// can persist it as an audit snapshot. An empty result list maps to
// ErrMarketNotFound; unparsable outcome lists map to MalformedPayloadError.
func (c *Client) FetchMarketBySlug(ctx context.Context, w models.MarketWindow) (*models.Market, []byte, error) {
	u, err := url.Parse(c.gammaAPIURL + "/markets")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse gamma URL: %w", err)
	}
	q := u.Query()
	q.Set("slug", w.Slug)
	u.RawQuery = q.Encode()

	raw, err := c.get(ctx, u.String())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch market %s: %w", w.Slug, err)
	}

	market, err := ParseSnapshot(w, raw)
	if err != nil {
		return nil, raw, err
	}
	return market, raw, nil
}

// ParseSnapshot rebuilds a typed Market from a raw metadata payload,
// applying the same parsing rules as a live fetch. Used when replaying
// persisted markets.json snapshots for historical reports.
func ParseSnapshot(w models.MarketWindow, raw []byte) (*models.Market, error) {
	var payload []gammaMarket
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &models.MalformedPayloadError{Field: "markets", Err: err}
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrMarketNotFound, w.Slug)
	}
	return parseMarket(w, payload[0])
}

// parseMarket converts a raw gamma market into a typed Market, preserving
// index alignment between tokens, labels and prices end-to-end.
func parseMarket(w models.MarketWindow, gm gammaMarket) (*models.Market, error) {
	var tokenIDs []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIds), &tokenIDs); err != nil {
		return nil, &models.MalformedPayloadError{Field: "clobTokenIds", Err: err}
	}
	var outcomes []string
	if err := json.Unmarshal([]byte(gm.Outcomes), &outcomes); err != nil {
		return nil, &models.MalformedPayloadError{Field: "outcomes", Err: err}
	}
	var priceStrs []string
	if err := json.Unmarshal([]byte(gm.OutcomePrices), &priceStrs); err != nil {
		return nil, &models.MalformedPayloadError{Field: "outcomePrices", Err: err}
	}
	if len(tokenIDs) != len(outcomes) || len(tokenIDs) != len(priceStrs) {
		return nil, &models.MalformedPayloadError{
			Field: "clobTokenIds",
			Err:   fmt.Errorf("mismatched lengths: %d tokens, %d outcomes, %d prices", len(tokenIDs), len(outcomes), len(priceStrs)),
		}
	}

	prices := make([]float64, len(priceStrs))
	for i, ps := range priceStrs {
		p, err := strconv.ParseFloat(ps, 64)
		if err != nil {
			return nil, &models.MalformedPayloadError{Field: "outcomePrices", Err: err}
		}
		prices[i] = p
	}

	var volume float64
	if gm.Volume != "" {
		v, err := strconv.ParseFloat(gm.Volume, 64)
		if err != nil {
			return nil, &models.MalformedPayloadError{Field: "volume", Err: err}
		}
		volume = v
	}

	m := &models.Market{
		Window:   w,
		TokenIDs: tokenIDs,
		Outcomes: outcomes,
		Prices:   prices,
		Volume:   volume,
	}
	if err := m.Validate(); err != nil {
		return nil, &models.MalformedPayloadError{Field: "markets", Err: err}
	}
	return m, nil
}

// midpointResponse is the CLOB midpoint payload: {"mid": "0.55"}.
type midpointResponse struct {
	Mid string `json:"mid"`
}

// Midpoint fetches the current mid-price for one outcome token.
func (c *Client) Midpoint(ctx context.Context, tokenID string) (float64, error) {
	u := fmt.Sprintf("%s/midpoint?token_id=%s", c.clobAPIURL, url.QueryEscape(tokenID))
	raw, err := c.get(ctx, u)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch midpoint for %s: %w", tokenID, err)
	}
	var resp midpointResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode midpoint for %s: %w", tokenID, err)
	}
	if resp.Mid == "" {
		return 0, fmt.Errorf("midpoint response for %s has no mid field", tokenID)
	}
	mid, err := strconv.ParseFloat(resp.Mid, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse midpoint %q for %s: %w", resp.Mid, tokenID, err)
	}
	return mid, nil
}

// Book fetches the order book for one outcome token. The raw body is
// returned alongside for snapshot persistence.
func (c *Client) Book(ctx context.Context, tokenID string) (*models.OrderBook, []byte, error) {
	u := fmt.Sprintf("%s/book?token_id=%s", c.clobAPIURL, url.QueryEscape(tokenID))
	raw, err := c.get(ctx, u)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch book for %s: %w", tokenID, err)
	}
	var book models.OrderBook
	if err := json.Unmarshal(raw, &book); err != nil {
		return nil, raw, fmt.Errorf("failed to decode book for %s: %w", tokenID, err)
	}
	return &book, raw, nil
}

// PricesHistory fetches the last hour of minute-fidelity trade prices for
// one outcome token, returned as the raw JSON payload.
func (c *Client) PricesHistory(ctx context.Context, tokenID string) ([]byte, error) {
	u := fmt.Sprintf("%s/prices-history?market=%s&interval=1h&fidelity=1", c.clobAPIURL, url.QueryEscape(tokenID))
	raw, err := c.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price history for %s: %w", tokenID, err)
	}
	return raw, nil
}

// get performs a GET with linear-backoff retry on network errors and 5xx.
func (c *Client) get(ctx context.Context, urlStr string) ([]byte, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
