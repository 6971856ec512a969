package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// quoteHeader matches the per-hour best ask/bid CSV layout.
var quoteHeader = []string{
	"time", "open_price", "current_price", "diff",
	"up_ask_price", "up_ask_size", "down_ask_price", "down_ask_size",
	"up_bid_price", "up_bid_size", "down_bid_price", "down_bid_size",
}

// QuoteRow is one best-ask/best-bid observation for both outcomes plus the
// reference prices at the same instant. Empty strings mark sides that had no
// levels.
type QuoteRow struct {
	Time         time.Time
	OpenPrice    float64
	CurrentPrice float64
	UpAskPrice   string
	UpAskSize    string
	DownAskPrice string
	DownAskSize  string
	UpBidPrice   string
	UpBidSize    string
	DownBidPrice string
	DownBidSize  string
}

// AppendQuoteRow appends row to {root}/{symbol}/{date}/{hour_label}.csv,
// writing the header first when the file does not exist yet.
func (s *Store) AppendQuoteRow(p Partition, row QuoteRow) error {
	dir := filepath.Join(s.root, p.Symbol, p.Date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create quote directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, p.HourLabel+".csv")

	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open quote file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(quoteHeader); err != nil {
			return fmt.Errorf("failed to write quote header: %w", err)
		}
	}
	diff := row.CurrentPrice - row.OpenPrice
	record := []string{
		row.Time.Format("20060102_15:04:05"),
		fmt.Sprintf("%.2f", row.OpenPrice),
		fmt.Sprintf("%.2f", row.CurrentPrice),
		fmt.Sprintf("%.2f", diff),
		row.UpAskPrice, row.UpAskSize, row.DownAskPrice, row.DownAskSize,
		row.UpBidPrice, row.UpBidSize, row.DownBidPrice, row.DownBidSize,
	}
	if err := w.Write(record); err != nil {
		return fmt.Errorf("failed to write quote row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush quote row: %w", err)
	}
	return nil
}
