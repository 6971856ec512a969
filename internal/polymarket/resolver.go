package polymarket

import (
	"context"

	"github.com/k1ic/pm-stats/internal/logger"
	"github.com/k1ic/pm-stats/internal/models"
	"github.com/k1ic/pm-stats/internal/store"
)

// SnapshotStore is where the resolver persists raw metadata payloads.
type SnapshotStore interface {
	WriteSnapshot(p store.Partition, name string, blob []byte) error
}

// MarketSnapshotName is the file the raw metadata payload is persisted
// under; the aggregator reads it back when rebuilding historical reports.
const MarketSnapshotName = "markets.json"

// Resolver combines the Gamma lookup with the snapshot side effect.
type Resolver struct {
	client    *Client
	snapshots SnapshotStore
}

// NewResolver creates a Resolver. snapshots may be nil to disable snapshot
// persistence.
func NewResolver(client *Client, snapshots SnapshotStore) *Resolver {
	return &Resolver{client: client, snapshots: snapshots}
}

// ResolveMarket fetches and parses the market for window. The raw payload is
// written best-effort to the window's partition as markets.json; a snapshot
// write failure is logged and never blocks returning the parsed market.
func (r *Resolver) ResolveMarket(ctx context.Context, w models.MarketWindow) (*models.Market, error) {
	market, raw, err := r.client.FetchMarketBySlug(ctx, w)
	if err != nil {
		return nil, err
	}

	if r.snapshots != nil && len(raw) > 0 {
		p := store.Partition{Symbol: w.Symbol, Date: w.Date, HourLabel: w.HourLabel}
		if err := r.snapshots.WriteSnapshot(p, MarketSnapshotName, raw); err != nil {
			logger.Warn("Failed to persist market snapshot for %s: %v", w.Slug, err)
		}
	}

	return market, nil
}
