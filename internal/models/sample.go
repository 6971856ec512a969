package models

// ScalarSample is one timestamped midpoint observation. Timestamp is the
// unix second captured at fetch time.
type ScalarSample struct {
	Timestamp int64
	Value     float64
}

// BookLevel is one order-book level. Prices and sizes stay as the decimal
// strings the CLOB API returns; snapshots are persisted verbatim.
type BookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderBook is a structured order-book snapshot for one outcome token.
// Sides are ordered worst-first: the last element of Asks/Bids is the best
// (nearest-to-mid) level.
type OrderBook struct {
	Market    string      `json:"market"`
	AssetID   string      `json:"asset_id"`
	Timestamp string      `json:"timestamp"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
}

// BestAsk returns the best ask level, or nil when the side is empty.
func (b *OrderBook) BestAsk() *BookLevel {
	if len(b.Asks) == 0 {
		return nil
	}
	return &b.Asks[len(b.Asks)-1]
}

// BestBid returns the best bid level, or nil when the side is empty.
func (b *OrderBook) BestBid() *BookLevel {
	if len(b.Bids) == 0 {
		return nil
	}
	return &b.Bids[len(b.Bids)-1]
}
