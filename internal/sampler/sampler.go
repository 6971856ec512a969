// Package sampler runs the bounded per-window sampling loop: one cycle
// visits every outcome token sequentially, appends midpoints to the series
// store, optionally snapshots order books and reference-price quotes, then
// sleeps a fixed interval.
package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/k1ic/pm-stats/internal/binance"
	"github.com/k1ic/pm-stats/internal/catalog"
	"github.com/k1ic/pm-stats/internal/logger"
	"github.com/k1ic/pm-stats/internal/models"
	"github.com/k1ic/pm-stats/internal/polymarket"
	"github.com/k1ic/pm-stats/internal/store"
)

// Config holds the per-run sampling options.
type Config struct {
	SnapshotBooks bool
	QuoteCSV      bool
}

// Sampler drives the sampling loop for one market window at a time. It is
// single-threaded by design: no concurrency across outcomes or cycles, so
// one writer per series key holds without locking.
type Sampler struct {
	clob    *polymarket.Client
	ref     *binance.Client
	store   *store.Store
	catalog *catalog.Catalog
	config  Config
}

// New creates a Sampler. ref may be nil when the quote CSV is disabled;
// cat may be nil to skip run bookkeeping.
func New(clob *polymarket.Client, ref *binance.Client, st *store.Store, cat *catalog.Catalog, cfg Config) *Sampler {
	return &Sampler{
		clob:    clob,
		ref:     ref,
		store:   st,
		catalog: cat,
		config:  cfg,
	}
}

// Run samples market for duration at the given interval. Individual fetch
// failures are logged and skipped; the next cycle is the retry. Scalar
// append failures are logged distinctly and counted but do not abort the
// run. Appends are strictly additive, so a re-run over a window with prior
// data extends the existing series.
func (s *Sampler) Run(ctx context.Context, market *models.Market, duration, interval time.Duration) error {
	if err := market.Validate(); err != nil {
		return fmt.Errorf("invalid market: %w", err)
	}

	w := market.Window
	part := store.Partition{Symbol: w.Symbol, Date: w.Date, HourLabel: w.HourLabel}
	start := time.Now()
	deadline := start.Add(duration)

	var runID string
	if s.catalog != nil {
		id, err := s.catalog.StartRun(w.Symbol, w.Date, w.HourLabel, w.Slug, start)
		if err != nil {
			logger.Warn("Failed to record run start: %v", err)
		} else {
			runID = id
		}
	}

	logger.Info("Sampling %s for %v at %v intervals (%d outcome tokens)",
		w.Slug, duration, interval, len(market.TokenIDs))

	var cycles, samples, failures int
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		cycles++

		appended, failed := s.cycle(ctx, market, part)
		samples += appended
		failures += failed

		select {
		case <-ctx.Done():
		case <-time.After(interval):
		}
	}

	if ctx.Err() == nil {
		s.saveHistory(ctx, market, part)
	}

	if s.catalog != nil && runID != "" {
		if err := s.catalog.FinishRun(runID, time.Now(), cycles, samples, failures); err != nil {
			logger.Warn("Failed to record run finish: %v", err)
		}
	}

	logger.Info("Sampling run for %s done: %d cycles, %d samples, %d failures",
		w.Slug, cycles, samples, failures)

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// cycle performs one pass over all outcome tokens. It returns the number of
// samples appended and the number of per-outcome failures; a failure for one
// outcome never affects the others.
func (s *Sampler) cycle(ctx context.Context, market *models.Market, part store.Partition) (appended, failed int) {
	for _, tokenID := range market.TokenIDs {
		mid, err := s.clob.Midpoint(ctx, tokenID)
		observedAt := time.Now()
		if err != nil {
			failed++
			logger.Warn("Midpoint fetch failed for %s: %v", tokenID, err)
			continue
		}

		key := store.SeriesKey{Partition: part, TokenID: tokenID}
		sample := models.ScalarSample{Timestamp: observedAt.Unix(), Value: mid}
		if err := s.store.Append(key, sample); err != nil {
			// A failed scalar append is data loss, not a fetch hiccup.
			failed++
			logger.Error("Series append failed for %s: %v", tokenID, err)
			continue
		}
		appended++
		logger.Debug("%s: midpoint=%v", tokenID, mid)
	}

	if s.config.SnapshotBooks || s.config.QuoteCSV {
		books := s.fetchBooks(ctx, market, part)
		if s.config.QuoteCSV {
			s.recordQuotes(ctx, market, part, books)
		}
	}

	return appended, failed
}

// saveHistory persists each outcome's last-hour traded-price history as a
// snapshot once the run ends. Best-effort: the scalar series is the primary
// record, the history is a cross-check against upstream.
func (s *Sampler) saveHistory(ctx context.Context, market *models.Market, part store.Partition) {
	for _, tokenID := range market.TokenIDs {
		raw, err := s.clob.PricesHistory(ctx, tokenID)
		if err != nil {
			logger.Warn("Price history fetch failed for %s: %v", tokenID, err)
			continue
		}
		name := tokenID + "_history.json"
		if err := s.store.WriteSnapshot(part, name, raw); err != nil {
			logger.Warn("Price history write failed for %s: %v", tokenID, err)
		}
	}
}

// fetchBooks fetches the order book for every outcome token, persisting raw
// snapshots when enabled. The returned slice is index-aligned with the
// market's token list; failed fetches leave nil entries.
func (s *Sampler) fetchBooks(ctx context.Context, market *models.Market, part store.Partition) []*models.OrderBook {
	books := make([]*models.OrderBook, len(market.TokenIDs))
	for i, tokenID := range market.TokenIDs {
		book, raw, err := s.clob.Book(ctx, tokenID)
		if err != nil {
			logger.Warn("Book fetch failed for %s: %v", tokenID, err)
			continue
		}
		books[i] = book

		if s.config.SnapshotBooks {
			name := fmt.Sprintf("%d_%d.json", time.Now().Unix(), i)
			if err := s.store.WriteSnapshot(part, name, raw); err != nil {
				logger.Warn("Book snapshot write failed for %s: %v", tokenID, err)
			}
		}
	}
	return books
}

// recordQuotes appends one best ask/bid CSV row combining both outcomes'
// books with the reference open and live prices. Best-effort: any failure is
// logged and the row skipped.
func (s *Sampler) recordQuotes(ctx context.Context, market *models.Market, part store.Partition, books []*models.OrderBook) {
	if s.ref == nil || len(books) < 2 {
		return
	}

	open, err := s.ref.HourlyOpen(ctx, market.Window.Symbol)
	if err != nil {
		logger.Warn("Reference open price fetch failed: %v", err)
		return
	}
	current, err := s.ref.TickerPrice(ctx, market.Window.Symbol)
	if err != nil {
		logger.Warn("Reference ticker price fetch failed: %v", err)
		return
	}

	row := store.QuoteRow{
		Time:         time.Now(),
		OpenPrice:    open,
		CurrentPrice: current,
	}
	if up := books[0]; up != nil {
		if ask := up.BestAsk(); ask != nil {
			row.UpAskPrice, row.UpAskSize = ask.Price, ask.Size
		}
		if bid := up.BestBid(); bid != nil {
			row.UpBidPrice, row.UpBidSize = bid.Price, bid.Size
		}
	}
	if down := books[1]; down != nil {
		if ask := down.BestAsk(); ask != nil {
			row.DownAskPrice, row.DownAskSize = ask.Price, ask.Size
		}
		if bid := down.BestBid(); bid != nil {
			row.DownBidPrice, row.DownBidSize = bid.Price, bid.Size
		}
	}

	if err := s.store.AppendQuoteRow(part, row); err != nil {
		logger.Warn("Quote row append failed: %v", err)
	}
}
