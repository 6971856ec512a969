// Package report rebuilds stored sampling data into per-band, per-hour
// normalized series suitable for rendering. It only reads the store; live
// network access never happens here.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/k1ic/pm-stats/internal/logger"
	"github.com/k1ic/pm-stats/internal/models"
	"github.com/k1ic/pm-stats/internal/polymarket"
	"github.com/k1ic/pm-stats/internal/store"
	"github.com/k1ic/pm-stats/internal/window"
)

// Point is one normalized sample: fractional minutes into the hour, price in
// cents on a 0-100 scale.
type Point struct {
	Minute float64
	Cents  float64
}

// HourSeries is one hour's dominant-outcome series with its display label.
type HourSeries struct {
	Hour    int
	Label   string
	Outcome string
	Points  []Point
}

// Builder assembles historical reports from persisted partitions.
type Builder struct {
	resolver *window.Resolver
	store    *store.Store
	bandSize int
}

// NewBuilder creates a Builder. bandSize is the number of consecutive hours
// grouped into one band; it must divide 24 evenly (validated at config load).
func NewBuilder(resolver *window.Resolver, st *store.Store, bandSize int) *Builder {
	if bandSize <= 0 {
		bandSize = 6
	}
	return &Builder{resolver: resolver, store: st, bandSize: bandSize}
}

// Build walks hours 0 through upToHour inclusive for one symbol and date,
// selecting each hour's dominant outcome from its persisted metadata snapshot
// and normalizing that outcome's series. Hours with no snapshot, no series or
// an empty filtered range are skipped with a warning, never represented as
// empty entries. The result maps each band's starting hour to the band's
// series in increasing hour order; bands with no qualifying hours are absent.
func (b *Builder) Build(symbol, date string, upToHour int, now time.Time) (map[int][]HourSeries, error) {
	if upToHour > 23 {
		upToHour = 23
	}

	bands := make(map[int][]HourSeries)
	for hour := 0; hour <= upToHour; hour++ {
		w, err := b.resolver.ResolveAt(date, hour, symbol)
		if err != nil {
			return nil, err
		}

		hs, ok := b.buildHour(w, now)
		if !ok {
			continue
		}

		bandStart := (hour / b.bandSize) * b.bandSize
		if len(bands[bandStart]) >= b.bandSize {
			// Band is full; later hours are dropped, oldest kept.
			logger.Warn("Band %d full, dropping hour %d", bandStart, hour)
			continue
		}
		bands[bandStart] = append(bands[bandStart], hs)
	}
	return bands, nil
}

// buildHour assembles one hour's series. ok is false when the hour has no
// usable data and should be excluded from its band.
func (b *Builder) buildHour(w models.MarketWindow, now time.Time) (HourSeries, bool) {
	part := store.Partition{Symbol: w.Symbol, Date: w.Date, HourLabel: w.HourLabel}

	raw, err := b.store.ReadSnapshot(part, polymarket.MarketSnapshotName)
	if err != nil {
		logger.Warn("No market snapshot for %s %s: %v", w.Date, w.HourLabel, err)
		return HourSeries{}, false
	}
	market, err := polymarket.ParseSnapshot(w, raw)
	if err != nil {
		logger.Warn("Unusable market snapshot for %s %s: %v", w.Date, w.HourLabel, err)
		return HourSeries{}, false
	}

	dom := market.Dominant()
	hourStart := w.Anchor.Unix()
	hourEnd := hourStart + 3600
	if nowTS := now.Unix(); nowTS >= hourStart && nowTS < hourEnd {
		// In-progress hour: include only what has been observed so far.
		hourEnd = nowTS
	}

	key := store.SeriesKey{Partition: part, TokenID: market.TokenIDs[dom]}
	samples, err := b.store.ReadRange(key, hourStart, hourEnd)
	if err != nil {
		logger.Warn("No series for %s %s (%s): %v", w.Date, w.HourLabel, market.Outcomes[dom], err)
		return HourSeries{}, false
	}
	if len(samples) == 0 {
		logger.Warn("Empty series for %s %s (%s) in [%d, %d)", w.Date, w.HourLabel, market.Outcomes[dom], hourStart, hourEnd)
		return HourSeries{}, false
	}

	points := make([]Point, len(samples))
	for i, s := range samples {
		points[i] = Point{
			Minute: float64(s.Timestamp-hourStart) / 60,
			Cents:  s.Value * 100,
		}
	}

	price := math.Round(market.Prices[dom]*1000) / 1000
	label := fmt.Sprintf("%s_%s_%s", w.HourLabel, market.Outcomes[dom],
		strconv.FormatFloat(price, 'f', -1, 64))
	return HourSeries{
		Hour:    w.Hour,
		Label:   label,
		Outcome: market.Outcomes[dom],
		Points:  points,
	}, true
}

// HourlyVolumes returns the per-hour traded volume for one symbol and date as
// a 24-slot slice indexed by hour. Hours without a snapshot stay zero.
func (b *Builder) HourlyVolumes(symbol, date string) ([24]float64, error) {
	var volumes [24]float64
	for hour := 0; hour < 24; hour++ {
		w, err := b.resolver.ResolveAt(date, hour, symbol)
		if err != nil {
			return volumes, err
		}
		part := store.Partition{Symbol: w.Symbol, Date: w.Date, HourLabel: w.HourLabel}
		raw, err := b.store.ReadSnapshot(part, polymarket.MarketSnapshotName)
		if err != nil {
			continue
		}
		market, err := polymarket.ParseSnapshot(w, raw)
		if err != nil {
			logger.Warn("Unusable market snapshot for %s %s: %v", w.Date, w.HourLabel, err)
			continue
		}
		volumes[hour] = market.Volume
	}
	return volumes, nil
}

// WriteCSV renders a built report as flat CSV rows, one row per point, with
// bands and hours in increasing order.
func WriteCSV(w io.Writer, bands map[int][]HourSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"band", "hour", "label", "minute", "cents"}); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}

	starts := make([]int, 0, len(bands))
	for s := range bands {
		starts = append(starts, s)
	}
	sort.Ints(starts)

	for _, start := range starts {
		for _, hs := range bands[start] {
			for _, p := range hs.Points {
				row := []string{
					strconv.Itoa(start),
					strconv.Itoa(hs.Hour),
					hs.Label,
					strconv.FormatFloat(p.Minute, 'f', 4, 64),
					strconv.FormatFloat(p.Cents, 'f', 2, 64),
				}
				if err := cw.Write(row); err != nil {
					return fmt.Errorf("failed to write report row: %w", err)
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
