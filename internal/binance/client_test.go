package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHourlyOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol query: got %q", got)
		}
		fmt.Fprint(w, `[[1752778800000, "118000.10", "118500.00", "117900.00", "118200.35", "12.3", 1752782399999, "0", 100, "0", "0", "0"]]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	open, err := c.HourlyOpen(context.Background(), "btc")
	if err != nil {
		t.Fatalf("HourlyOpen: %v", err)
	}
	if open != 118000.10 {
		t.Errorf("got %v, want 118000.10", open)
	}
}

func TestHourlyOpen_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if _, err := c.HourlyOpen(context.Background(), "btc"); err == nil {
		t.Error("expected error for empty kline response")
	}
}

func TestTickerPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "ETHUSDT" {
			t.Errorf("symbol query: got %q", got)
		}
		fmt.Fprint(w, `{"symbol": "ETHUSDT", "price": "3521.77"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	price, err := c.TickerPrice(context.Background(), "eth")
	if err != nil {
		t.Fatalf("TickerPrice: %v", err)
	}
	if price != 3521.77 {
		t.Errorf("got %v, want 3521.77", price)
	}
}

func TestTickerPrice_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if _, err := c.TickerPrice(context.Background(), "btc"); err == nil {
		t.Error("expected error for non-200 status")
	}
}
