// Package store provides the append-only, date/hour-partitioned filesystem
// persistence layer for sampled market data. Two record families: scalar
// series as "<unix_ts>,<value>" lines, and whole-file JSON snapshots.
package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/k1ic/pm-stats/internal/logger"
	"github.com/k1ic/pm-stats/internal/models"
)

// Partition identifies one market window's directory:
// {root}/{symbol}/{date}/{hour_label}.
type Partition struct {
	Symbol    string
	Date      string
	HourLabel string
}

// SeriesKey identifies one outcome's scalar series inside a partition.
type SeriesKey struct {
	Partition
	TokenID string
}

// Store reads and writes under a fixed root directory. One writer per key at
// a time is a precondition, not an enforced lock: appends are plain O_APPEND
// writes.
type Store struct {
	root string
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store root directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// PartitionDir returns the directory for p, without creating it.
func (s *Store) PartitionDir(p Partition) string {
	return filepath.Join(s.root, p.Symbol, p.Date, p.HourLabel)
}

func (s *Store) seriesPath(key SeriesKey) string {
	return filepath.Join(s.PartitionDir(key.Partition), key.TokenID+".data")
}

// Append adds one scalar sample to the series for key. Samples are never
// edited or reordered: re-running a sampler over a partition with existing
// data leaves the prior prefix byte-identical.
func (s *Store) Append(key SeriesKey, sample models.ScalarSample) error {
	dir := s.PartitionDir(key.Partition)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create partition %s: %w", dir, err)
	}

	f, err := os.OpenFile(s.seriesPath(key), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open series file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%d,%s\n", sample.Timestamp, strconv.FormatFloat(sample.Value, 'f', -1, 64))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append sample: %w", err)
	}
	return nil
}

// ReadRange returns the samples for key with start <= ts < end, in file
// order. Malformed lines are logged and skipped; the reader does not assume
// on-disk ordering beyond natural append order.
func (s *Store) ReadRange(key SeriesKey, start, end int64) ([]models.ScalarSample, error) {
	path := s.seriesPath(key)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open series %s: %w", path, err)
	}
	defer f.Close()

	var samples []models.ScalarSample
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sample, err := parseLine(line)
		if err != nil {
			logger.Warn("Skipping malformed line %s:%d: %v", path, lineNo, err)
			continue
		}
		if sample.Timestamp >= start && sample.Timestamp < end {
			samples = append(samples, sample)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read series %s: %w", path, err)
	}
	return samples, nil
}

func parseLine(line string) (models.ScalarSample, error) {
	tsStr, valStr, ok := strings.Cut(line, ",")
	if !ok {
		return models.ScalarSample{}, fmt.Errorf("missing separator in %q", line)
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return models.ScalarSample{}, fmt.Errorf("bad timestamp in %q: %w", line, err)
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return models.ScalarSample{}, fmt.Errorf("bad value in %q: %w", line, err)
	}
	return models.ScalarSample{Timestamp: ts, Value: val}, nil
}

// WriteSnapshot writes blob as {partition}/{name} with whole-file overwrite
// semantics. Used for market metadata and order-book snapshots only, never
// for scalar series.
func (s *Store) WriteSnapshot(p Partition, name string, blob []byte) error {
	dir := s.PartitionDir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create partition %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return nil
}

// ReadSnapshot returns the contents of {partition}/{name}.
func (s *Store) ReadSnapshot(p Partition, name string) ([]byte, error) {
	path := filepath.Join(s.PartitionDir(p), name)
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	return blob, nil
}
