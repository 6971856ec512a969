// Package window maps wall-clock time to the canonical hourly market window
// in the exchange reference timezone.
package window

import (
	"fmt"
	"strings"
	"time"

	"github.com/k1ic/pm-stats/internal/models"
)

// ReferenceTimezone is the exchange convention for hourly market boundaries.
const ReferenceTimezone = "America/New_York"

// Resolver turns timestamps into MarketWindows. It holds the reference
// location and the symbol-to-asset map as immutable state loaded once at
// startup.
type Resolver struct {
	loc    *time.Location
	assets map[string]string
}

// NewResolver loads the reference timezone and copies the symbol map.
func NewResolver(assets map[string]string) (*Resolver, error) {
	loc, err := time.LoadLocation(ReferenceTimezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference timezone: %w", err)
	}
	copied := make(map[string]string, len(assets))
	for k, v := range assets {
		copied[strings.ToLower(k)] = v
	}
	return &Resolver{loc: loc, assets: copied}, nil
}

// Symbols returns the supported symbols in unspecified order.
func (r *Resolver) Symbols() []string {
	out := make([]string, 0, len(r.assets))
	for s := range r.assets {
		out = append(out, s)
	}
	return out
}

// Resolve maps now to the current hourly window for symbol. The anchor is
// now converted to the reference timezone and truncated to the start of the
// clock-hour, so any two timestamps inside the same ET hour yield an
// identical slug. Fails with ErrUnsupportedSymbol before any network access.
func (r *Resolver) Resolve(now time.Time, symbol string) (models.MarketWindow, error) {
	symbol = strings.ToLower(symbol)
	asset, ok := r.assets[symbol]
	if !ok {
		return models.MarketWindow{}, fmt.Errorf("%w: %s", models.ErrUnsupportedSymbol, symbol)
	}

	et := now.In(r.loc)
	anchor := time.Date(et.Year(), et.Month(), et.Day(), et.Hour(), 0, 0, 0, r.loc)
	return r.window(symbol, asset, anchor), nil
}

// ResolveAt rebuilds the window for a stored (date, hour) partition, e.g.
// when replaying persisted data for a historical report. The hour is a
// reference-timezone clock hour, matching what the partition was written
// under.
func (r *Resolver) ResolveAt(date string, hour int, symbol string) (models.MarketWindow, error) {
	symbol = strings.ToLower(symbol)
	asset, ok := r.assets[symbol]
	if !ok {
		return models.MarketWindow{}, fmt.Errorf("%w: %s", models.ErrUnsupportedSymbol, symbol)
	}
	if hour < 0 || hour > 23 {
		return models.MarketWindow{}, fmt.Errorf("hour %d out of range", hour)
	}
	day, err := time.ParseInLocation("20060102", date, r.loc)
	if err != nil {
		return models.MarketWindow{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	anchor := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, r.loc)
	return r.window(symbol, asset, anchor), nil
}

func (r *Resolver) window(symbol, asset string, anchor time.Time) models.MarketWindow {
	label := HourLabel(anchor.Hour())
	slug := fmt.Sprintf("%s-up-or-down-%s-%d-%s-et",
		asset, strings.ToLower(anchor.Month().String()), anchor.Day(), label)

	return models.MarketWindow{
		Symbol:    symbol,
		Asset:     asset,
		Date:      anchor.Format("20060102"),
		Hour:      anchor.Hour(),
		HourLabel: label,
		Slug:      slug,
		Anchor:    anchor,
	}
}

// HourLabel renders a 0-23 hour as its 12-hour clock label with no leading
// zero and a lowercase am/pm suffix ("12am", "3pm").
func HourLabel(hour int) string {
	h12 := hour % 12
	if h12 == 0 {
		h12 = 12
	}
	suffix := "am"
	if hour >= 12 {
		suffix = "pm"
	}
	return fmt.Sprintf("%d%s", h12, suffix)
}
