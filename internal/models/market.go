// Package models defines the core domain entities: market windows, resolved
// markets, and time-series samples.
package models

import (
	"errors"
	"time"
)

// MarketWindow identifies a single one-hour market instance. All fields are
// derived from the window anchor in the exchange reference timezone (ET),
// never from the caller's local clock.
type MarketWindow struct {
	Symbol    string    // short symbol, e.g. "btc"
	Asset     string    // market family name used in the slug, e.g. "bitcoin"
	Date      string    // ET calendar date, YYYYMMDD
	Hour      int       // ET hour of day, 0-23
	HourLabel string    // 12-hour label, e.g. "3pm", "12am"
	Slug      string    // deterministic market lookup slug
	Anchor    time.Time // start of the clock-hour in ET
}

// Market is a resolved hourly market: the window plus the ordered outcome
// triple parsed from the metadata payload. TokenIDs[i], Outcomes[i] and
// Prices[i] always refer to the same outcome; index alignment is preserved
// from the raw response.
type Market struct {
	Window   MarketWindow
	TokenIDs []string
	Outcomes []string
	Prices   []float64
	Volume   float64
}

// Validate checks the index-alignment invariant and basic field constraints.
func (m *Market) Validate() error {
	if m.Window.Slug == "" {
		return errors.New("market window slug must not be empty")
	}
	if len(m.TokenIDs) == 0 {
		return errors.New("market must have at least one outcome token")
	}
	if len(m.TokenIDs) != len(m.Outcomes) || len(m.TokenIDs) != len(m.Prices) {
		return errors.New("outcome token, label and price lists must be the same length")
	}
	for _, p := range m.Prices {
		if p < 0.0 || p > 1.0 {
			return errors.New("outcome price must be between 0.0 and 1.0")
		}
	}
	if m.Volume < 0 {
		return errors.New("volume must not be negative")
	}
	return nil
}

// Dominant returns the index of the outcome with the numerically largest
// price. Ties break to the lowest index, so repeated calls on equal prices
// always return the same outcome.
func (m *Market) Dominant() int {
	best := 0
	for i := 1; i < len(m.Prices); i++ {
		if m.Prices[i] > m.Prices[best] {
			best = i
		}
	}
	return best
}
