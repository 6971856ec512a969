package catalog

import (
	"fmt"
	"testing"
	"time"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test catalog: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCatalog_StartAndFinishRun(t *testing.T) {
	c := newTestCatalog(t)
	start := time.Now().Add(-time.Hour)

	id, err := c.StartRun("btc", "20250717", "3pm", "bitcoin-up-or-down-july-17-3pm-et", start)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if id == "" {
		t.Fatal("StartRun returned empty ID")
	}

	if err := c.FinishRun(id, start.Add(time.Hour), 400, 798, 2); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := c.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	r := runs[0]
	if r.ID != id || r.Cycles != 400 || r.Samples != 798 || r.Failures != 2 {
		t.Errorf("run counters: got %+v", r)
	}
	if r.FinishedAt.IsZero() {
		t.Error("finished run should have a finish time")
	}
}

func TestCatalog_FinishRun_NotFound(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.FinishRun("nonexistent", time.Now(), 0, 0, 0); err == nil {
		t.Error("expected error finishing nonexistent run")
	}
}

func TestCatalog_RecentRuns_Order(t *testing.T) {
	c := newTestCatalog(t)
	base := time.Now().Add(-24 * time.Hour)
	for i := 0; i < 5; i++ {
		_, err := c.StartRun("btc", "20250717", fmt.Sprintf("%dpm", i+1),
			fmt.Sprintf("bitcoin-up-or-down-july-17-%dpm-et", i+1), base.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("StartRun %d: %v", i, err)
		}
	}

	runs, err := c.RecentRuns(3)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].StartedAt.After(runs[i-1].StartedAt) {
			t.Error("runs not ordered newest first")
		}
	}
	if runs[0].HourLabel != "5pm" {
		t.Errorf("newest run: got %q, want 5pm", runs[0].HourLabel)
	}
}

func TestCatalog_RecordAndGetMarket(t *testing.T) {
	c := newTestCatalog(t)
	rec := MarketRecord{
		Slug:       "bitcoin-up-or-down-july-17-3pm-et",
		Symbol:     "btc",
		Date:       "20250717",
		HourLabel:  "3pm",
		TokenUp:    "111",
		TokenDown:  "222",
		Volume:     45123.50,
		ResolvedAt: time.Now(),
	}
	if err := c.RecordMarket(rec); err != nil {
		t.Fatalf("RecordMarket: %v", err)
	}

	got, err := c.GetMarket(rec.Slug)
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if got.TokenUp != "111" || got.TokenDown != "222" || got.Volume != 45123.50 {
		t.Errorf("market record: got %+v", got)
	}

	// Re-resolving the same window replaces the row.
	rec.Volume = 60000
	if err := c.RecordMarket(rec); err != nil {
		t.Fatalf("RecordMarket upsert: %v", err)
	}
	got, _ = c.GetMarket(rec.Slug)
	if got.Volume != 60000 {
		t.Errorf("volume after upsert: got %v, want 60000", got.Volume)
	}
}

func TestCatalog_GetMarket_NotFound(t *testing.T) {
	c := newTestCatalog(t)
	if _, err := c.GetMarket("nonexistent"); err == nil {
		t.Error("expected error for missing market")
	}
}
