package polymarket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/k1ic/pm-stats/internal/models"
	"github.com/k1ic/pm-stats/internal/store"
)

func testWindow() models.MarketWindow {
	return models.MarketWindow{
		Symbol:    "btc",
		Asset:     "bitcoin",
		Date:      "20250717",
		Hour:      15,
		HourLabel: "3pm",
		Slug:      "bitcoin-up-or-down-july-17-3pm-et",
		Anchor:    time.Date(2025, 7, 17, 15, 0, 0, 0, time.UTC),
	}
}

const validMarketsBody = `[{
	"id": "512329",
	"question": "Bitcoin Up or Down - July 17, 3PM ET",
	"slug": "bitcoin-up-or-down-july-17-3pm-et",
	"outcomes": "[\"Up\", \"Down\"]",
	"outcomePrices": "[\"0.62\", \"0.38\"]",
	"clobTokenIds": "[\"111\", \"222\"]",
	"volume": "45123.50"
}]`

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient(srv.URL, srv.URL, 5*time.Second, ClientConfig{
		MaxRetries:     2,
		RetryDelayBase: time.Millisecond,
	})
	return c, srv
}

func TestFetchMarketBySlug(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("slug"); got != "bitcoin-up-or-down-july-17-3pm-et" {
			t.Errorf("slug query: got %q", got)
		}
		fmt.Fprint(w, validMarketsBody)
	})
	defer srv.Close()

	m, raw, err := c.FetchMarketBySlug(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("FetchMarketBySlug: %v", err)
	}
	if len(raw) == 0 {
		t.Error("raw payload should be returned for snapshotting")
	}
	if len(m.TokenIDs) != 2 || m.TokenIDs[0] != "111" || m.TokenIDs[1] != "222" {
		t.Errorf("token IDs: got %v", m.TokenIDs)
	}
	if m.Outcomes[0] != "Up" || m.Outcomes[1] != "Down" {
		t.Errorf("outcomes: got %v", m.Outcomes)
	}
	if m.Prices[0] != 0.62 || m.Prices[1] != 0.38 {
		t.Errorf("prices: got %v", m.Prices)
	}
	if m.Volume != 45123.50 {
		t.Errorf("volume: got %v", m.Volume)
	}
	if m.Dominant() != 0 {
		t.Errorf("dominant outcome: got %d, want 0", m.Dominant())
	}
}

func TestFetchMarketBySlug_NotFound(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	})
	defer srv.Close()

	_, _, err := c.FetchMarketBySlug(context.Background(), testWindow())
	if !errors.Is(err, models.ErrMarketNotFound) {
		t.Errorf("got %v, want ErrMarketNotFound", err)
	}
}

func TestFetchMarketBySlug_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "unparsable token list",
			body: `[{"outcomes": "[\"Up\", \"Down\"]", "outcomePrices": "[\"0.6\", \"0.4\"]", "clobTokenIds": "not json"}]`,
		},
		{
			name: "mismatched list lengths",
			body: `[{"outcomes": "[\"Up\", \"Down\"]", "outcomePrices": "[\"0.6\"]", "clobTokenIds": "[\"1\", \"2\"]"}]`,
		},
		{
			name: "non-numeric price",
			body: `[{"outcomes": "[\"Up\", \"Down\"]", "outcomePrices": "[\"x\", \"0.4\"]", "clobTokenIds": "[\"1\", \"2\"]"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			})
			defer srv.Close()

			_, _, err := c.FetchMarketBySlug(context.Background(), testWindow())
			var malformed *models.MalformedPayloadError
			if !errors.As(err, &malformed) {
				t.Errorf("got %v, want MalformedPayloadError", err)
			}
		})
	}
}

func TestMidpoint(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token_id"); got != "111" {
			t.Errorf("token_id query: got %q", got)
		}
		fmt.Fprint(w, `{"mid": "0.555"}`)
	})
	defer srv.Close()

	mid, err := c.Midpoint(context.Background(), "111")
	if err != nil {
		t.Fatalf("Midpoint: %v", err)
	}
	if mid != 0.555 {
		t.Errorf("got %v, want 0.555", mid)
	}
}

func TestMidpoint_MissingField(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	defer srv.Close()

	if _, err := c.Midpoint(context.Background(), "111"); err == nil {
		t.Error("expected error for missing mid field")
	}
}

func TestBook_BestLevelsAreLast(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"market": "0xabc",
			"asset_id": "111",
			"timestamp": "1752778845000",
			"asks": [{"price": "0.70", "size": "50"}, {"price": "0.63", "size": "1200"}],
			"bids": [{"price": "0.55", "size": "30"}, {"price": "0.61", "size": "900"}]
		}`)
	})
	defer srv.Close()

	book, raw, err := c.Book(context.Background(), "111")
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if len(raw) == 0 {
		t.Error("raw payload should be returned for snapshotting")
	}
	if ask := book.BestAsk(); ask == nil || ask.Price != "0.63" {
		t.Errorf("best ask: got %+v", ask)
	}
	if bid := book.BestBid(); bid == nil || bid.Price != "0.61" {
		t.Errorf("best bid: got %+v", bid)
	}
}

func TestGet_RetriesOn5xx(t *testing.T) {
	calls := 0
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"mid": "0.5"}`)
	})
	defer srv.Close()

	if _, err := c.Midpoint(context.Background(), "111"); err != nil {
		t.Fatalf("Midpoint after retry: %v", err)
	}
	if calls != 2 {
		t.Errorf("got %d calls, want 2", calls)
	}
}

func TestGet_NoRetryOn4xx(t *testing.T) {
	calls := 0
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	if _, err := c.Midpoint(context.Background(), "111"); err == nil {
		t.Error("expected error for 404")
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1 (client errors are not retried)", calls)
	}
}

func TestResolver_PersistsSnapshot(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, validMarketsBody)
	})
	defer srv.Close()

	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	r := NewResolver(c, st)

	w := testWindow()
	if _, err := r.ResolveMarket(context.Background(), w); err != nil {
		t.Fatalf("ResolveMarket: %v", err)
	}

	p := store.Partition{Symbol: "btc", Date: "20250717", HourLabel: "3pm"}
	blob, err := st.ReadSnapshot(p, MarketSnapshotName)
	if err != nil {
		t.Fatalf("snapshot not persisted: %v", err)
	}
	if string(blob) != validMarketsBody {
		t.Error("snapshot should be the raw payload byte-for-byte")
	}
}

type failingSnapshots struct{}

func (failingSnapshots) WriteSnapshot(store.Partition, string, []byte) error {
	return errors.New("disk full")
}

func TestResolver_SnapshotFailureDoesNotBlock(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, validMarketsBody)
	})
	defer srv.Close()

	r := NewResolver(c, failingSnapshots{})
	m, err := r.ResolveMarket(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("ResolveMarket should succeed despite snapshot failure: %v", err)
	}
	if len(m.TokenIDs) != 2 {
		t.Errorf("parsed market incomplete: %+v", m)
	}
}
