// Package catalog provides a SQLite-backed ledger of sampling runs and
// resolved markets. It is a queryable audit index over the file store, never
// the source of truth for sampled series.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Catalog wraps a SQLite database for run and market bookkeeping.
type Catalog struct {
	db *sql.DB
}

// Run is one bounded sampling run over a market window.
type Run struct {
	ID         string
	Symbol     string
	Date       string
	HourLabel  string
	Slug       string
	StartedAt  time.Time
	FinishedAt time.Time
	Cycles     int
	Samples    int
	Failures   int
}

// MarketRecord is the catalog row for one resolved market.
type MarketRecord struct {
	Slug       string
	Symbol     string
	Date       string
	HourLabel  string
	TokenUp    string
	TokenDown  string
	Volume     float64
	ResolvedAt time.Time
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/pm-stats/catalog.db.
func New(dbPath string) (*Catalog, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "pm-stats", "catalog.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	c := &Catalog{db: db}
	if err := c.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return c, nil
}

// Close closes the underlying database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			symbol      TEXT NOT NULL,
			date        TEXT NOT NULL,
			hour_label  TEXT NOT NULL,
			slug        TEXT NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER,
			cycles      INTEGER NOT NULL DEFAULT 0,
			samples     INTEGER NOT NULL DEFAULT 0,
			failures    INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS markets (
			slug        TEXT PRIMARY KEY,
			symbol      TEXT NOT NULL,
			date        TEXT NOT NULL,
			hour_label  TEXT NOT NULL,
			token_up    TEXT NOT NULL,
			token_down  TEXT NOT NULL,
			volume      REAL NOT NULL DEFAULT 0,
			resolved_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_markets_symbol_date ON markets(symbol, date)`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// StartRun records the start of a sampling run and returns its ID.
func (c *Catalog) StartRun(symbol, date, hourLabel, slug string, startedAt time.Time) (string, error) {
	id := uuid.New().String()
	_, err := c.db.Exec(`
		INSERT INTO runs (id, symbol, date, hour_label, slug, started_at)
		VALUES (?,?,?,?,?,?)`,
		id, symbol, date, hourLabel, slug, startedAt.Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// FinishRun records the end of a run with its counters.
func (c *Catalog) FinishRun(id string, finishedAt time.Time, cycles, samples, failures int) error {
	res, err := c.db.Exec(`
		UPDATE runs SET finished_at=?, cycles=?, samples=?, failures=?
		WHERE id=?`,
		finishedAt.Unix(), cycles, samples, failures, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// RecordMarket upserts the catalog row for a resolved market.
func (c *Catalog) RecordMarket(rec MarketRecord) error {
	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO markets
			(slug, symbol, date, hour_label, token_up, token_down, volume, resolved_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		rec.Slug, rec.Symbol, rec.Date, rec.HourLabel,
		rec.TokenUp, rec.TokenDown, rec.Volume, rec.ResolvedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record market: %w", err)
	}
	return nil
}

// GetMarket returns the catalog row for slug.
func (c *Catalog) GetMarket(slug string) (*MarketRecord, error) {
	row := c.db.QueryRow(`
		SELECT slug, symbol, date, hour_label, token_up, token_down, volume, resolved_at
		FROM markets WHERE slug = ?`, slug)

	var rec MarketRecord
	var resolvedAt int64
	err := row.Scan(&rec.Slug, &rec.Symbol, &rec.Date, &rec.HourLabel,
		&rec.TokenUp, &rec.TokenDown, &rec.Volume, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("market not found: %s", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	rec.ResolvedAt = time.Unix(resolvedAt, 0)
	return &rec, nil
}

// RecentRuns returns the n most recently started runs, newest first.
func (c *Catalog) RecentRuns(n int) ([]Run, error) {
	rows, err := c.db.Query(`
		SELECT id, symbol, date, hour_label, slug, started_at, finished_at, cycles, samples, failures
		FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAt int64
		var finishedAt sql.NullInt64
		err := rows.Scan(&r.ID, &r.Symbol, &r.Date, &r.HourLabel, &r.Slug,
			&startedAt, &finishedAt, &r.Cycles, &r.Samples, &r.Failures)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.Unix(startedAt, 0)
		if finishedAt.Valid {
			r.FinishedAt = time.Unix(finishedAt.Int64, 0)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
