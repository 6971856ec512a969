package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/k1ic/pm-stats/internal/binance"
	"github.com/k1ic/pm-stats/internal/catalog"
	"github.com/k1ic/pm-stats/internal/config"
	"github.com/k1ic/pm-stats/internal/logger"
	"github.com/k1ic/pm-stats/internal/models"
	"github.com/k1ic/pm-stats/internal/polymarket"
	"github.com/k1ic/pm-stats/internal/report"
	"github.com/k1ic/pm-stats/internal/sampler"
	"github.com/k1ic/pm-stats/internal/store"
	"github.com/k1ic/pm-stats/internal/telegram"
	"github.com/k1ic/pm-stats/internal/window"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: pmstats <command> [flags]

Commands:
  sample     resolve the current hourly market for a symbol and sample it
  aggregate  build a normalized per-band report from stored data
  runs       list recent sampling runs from the catalog

Run 'pmstats <command> -h' for command flags.
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "sample":
		cmdSample(os.Args[2:])
	case "aggregate":
		cmdAggregate(os.Args[2:])
	case "runs":
		cmdRuns(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", path)
	return cfg
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()
	return ctx, cancel
}

func cmdSample(args []string) {
	fs := flag.NewFlagSet("sample", flag.ExitOnError)
	configPath := fs.String("config", "configs/config.yaml", "Path to configuration file")
	symbol := fs.String("symbol", "", "Tracked symbol (e.g. btc)")
	durationFlag := fs.Duration("duration", 0, "Sampling duration (default from config)")
	intervalFlag := fs.Duration("interval", 0, "Sampling interval (default from config)")
	fs.Parse(args) //nolint:errcheck

	cfg := loadConfig(*configPath)
	if *durationFlag > 0 {
		cfg.Sampler.Duration = *durationFlag
	}
	if *intervalFlag > 0 {
		cfg.Sampler.Interval = *intervalFlag
	}

	resolver, err := window.NewResolver(cfg.Symbols)
	if err != nil {
		logger.Fatal("Failed to initialize window resolver: %v", err)
	}

	w, err := resolver.Resolve(time.Now(), *symbol)
	if err != nil {
		// Usage error: unsupported symbols fail before any network access.
		fmt.Fprintf(os.Stderr, "pmstats sample: %v (supported: %v)\n", err, resolver.Symbols())
		os.Exit(2)
	}

	st, err := store.New(cfg.Storage.DataDir)
	if err != nil {
		logger.Fatal("Failed to initialize store: %v", err)
	}

	cat, err := catalog.New(cfg.Storage.CatalogPath)
	if err != nil {
		logger.Fatal("Failed to initialize catalog: %v", err)
	}
	defer func() {
		if err := cat.Close(); err != nil {
			logger.Error("Failed to close catalog: %v", err)
		}
	}()

	client := polymarket.NewClient(
		cfg.Polymarket.GammaAPIURL,
		cfg.Polymarket.CLOBAPIURL,
		cfg.Polymarket.Timeout,
		polymarket.ClientConfig{
			MaxRetries:     cfg.Polymarket.MaxRetries,
			RetryDelayBase: cfg.Polymarket.RetryDelayBase,
		},
	)
	marketResolver := polymarket.NewResolver(client, st)

	var ref *binance.Client
	if cfg.Sampler.QuoteCSV {
		ref = binance.NewClient(cfg.Binance.APIURL, cfg.Binance.Timeout)
	}

	var tg *telegram.Client
	if cfg.Telegram.Enabled {
		tg, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	ctx, cancel := signalContext()
	defer cancel()

	windowEnd := w.Anchor.Add(time.Hour)
	logger.Info("Resolved window %s (until %s)", w.Slug, windowEnd.Format(time.RFC3339))

	market, err := resolveWithRetry(ctx, marketResolver, w, windowEnd, cfg.Sampler.ResolveRetryInterval)
	if err != nil {
		if tg != nil {
			if sendErr := tg.SendError(w.Slug, err); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		logger.Fatal("Failed to resolve market: %v", err)
	}

	if err := cat.RecordMarket(marketRecord(market)); err != nil {
		logger.Warn("Failed to record market in catalog: %v", err)
	}

	duration := cfg.Sampler.Duration
	if remaining := time.Until(windowEnd); remaining < duration {
		// Never sample past the window boundary.
		duration = remaining
	}

	s := sampler.New(client, ref, st, cat, sampler.Config{
		SnapshotBooks: cfg.Sampler.SnapshotBooks,
		QuoteCSV:      cfg.Sampler.QuoteCSV,
	})
	if err := s.Run(ctx, market, duration, cfg.Sampler.Interval); err != nil {
		if tg != nil {
			if sendErr := tg.SendError(w.Slug, err); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		logger.Fatal("Sampling run failed: %v", err)
	}

	if tg != nil {
		if runs, err := cat.RecentRuns(1); err == nil && len(runs) == 1 {
			if sendErr := tg.SendRunSummary(runs[0]); sendErr != nil {
				logger.Warn("Failed to send run summary to Telegram: %v", sendErr)
			}
		}
	}
}

// resolveWithRetry polls the metadata source until the hourly market exists
// or the window ends. Hourly markets are often created shortly after the
// hour starts, so not-found responses early in the window are expected.
func resolveWithRetry(ctx context.Context, r *polymarket.Resolver, w models.MarketWindow, windowEnd time.Time, retryInterval time.Duration) (*models.Market, error) {
	for {
		market, err := r.ResolveMarket(ctx, w)
		if err == nil {
			return market, nil
		}
		if !errors.Is(err, models.ErrMarketNotFound) {
			var malformed *models.MalformedPayloadError
			if !errors.As(err, &malformed) {
				return nil, err
			}
		}
		if time.Now().Add(retryInterval).After(windowEnd) {
			return nil, fmt.Errorf("market never appeared for %s: %w", w.Slug, err)
		}

		logger.Warn("Market not available yet for %s, retrying in %v: %v", w.Slug, retryInterval, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

func marketRecord(m *models.Market) catalog.MarketRecord {
	rec := catalog.MarketRecord{
		Slug:       m.Window.Slug,
		Symbol:     m.Window.Symbol,
		Date:       m.Window.Date,
		HourLabel:  m.Window.HourLabel,
		Volume:     m.Volume,
		ResolvedAt: time.Now(),
	}
	if len(m.TokenIDs) > 0 {
		rec.TokenUp = m.TokenIDs[0]
	}
	if len(m.TokenIDs) > 1 {
		rec.TokenDown = m.TokenIDs[1]
	}
	return rec
}

func cmdAggregate(args []string) {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	configPath := fs.String("config", "configs/config.yaml", "Path to configuration file")
	symbol := fs.String("symbol", "", "Tracked symbol (e.g. btc)")
	date := fs.String("date", "", "Calendar date YYYYMMDD in the reference timezone (default today)")
	out := fs.String("out", "", "Output CSV path (default stdout)")
	fs.Parse(args) //nolint:errcheck

	cfg := loadConfig(*configPath)

	resolver, err := window.NewResolver(cfg.Symbols)
	if err != nil {
		logger.Fatal("Failed to initialize window resolver: %v", err)
	}

	loc, err := time.LoadLocation(window.ReferenceTimezone)
	if err != nil {
		logger.Fatal("Failed to load reference timezone: %v", err)
	}
	now := time.Now()
	et := now.In(loc)

	day := *date
	upToHour := 23
	if day == "" {
		day = et.Format("20060102")
	}
	if day == et.Format("20060102") {
		upToHour = et.Hour()
	}

	if _, err := resolver.Resolve(now, *symbol); err != nil {
		fmt.Fprintf(os.Stderr, "pmstats aggregate: %v (supported: %v)\n", err, resolver.Symbols())
		os.Exit(2)
	}

	st, err := store.New(cfg.Storage.DataDir)
	if err != nil {
		logger.Fatal("Failed to initialize store: %v", err)
	}

	builder := report.NewBuilder(resolver, st, cfg.Report.BandSize)
	bands, err := builder.Build(*symbol, day, upToHour, now)
	if err != nil {
		logger.Fatal("Failed to build report: %v", err)
	}
	if len(bands) == 0 {
		logger.Warn("No data for %s on %s", *symbol, day)
	}

	volumes, err := builder.HourlyVolumes(*symbol, day)
	if err == nil {
		var total float64
		for _, v := range volumes {
			total += v
		}
		logger.Info("Report for %s %s: %d bands, total volume %.2f", *symbol, day, len(bands), total)
	}

	var dst io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			logger.Fatal("Failed to create output file: %v", err)
		}
		defer f.Close()
		dst = f
	}
	if err := report.WriteCSV(dst, bands); err != nil {
		logger.Fatal("Failed to write report: %v", err)
	}
}

func cmdRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	configPath := fs.String("config", "configs/config.yaml", "Path to configuration file")
	n := fs.Int("n", 10, "Number of runs to list")
	fs.Parse(args) //nolint:errcheck

	cfg := loadConfig(*configPath)

	cat, err := catalog.New(cfg.Storage.CatalogPath)
	if err != nil {
		logger.Fatal("Failed to open catalog: %v", err)
	}
	defer cat.Close() //nolint:errcheck

	runs, err := cat.RecentRuns(*n)
	if err != nil {
		logger.Fatal("Failed to query runs: %v", err)
	}

	fmt.Printf("%-8s %-10s %-6s %-40s %8s %8s %8s\n",
		"SYMBOL", "DATE", "HOUR", "SLUG", "CYCLES", "SAMPLES", "FAILURES")
	for _, r := range runs {
		fmt.Printf("%-8s %-10s %-6s %-40s %8d %8d %8d\n",
			r.Symbol, r.Date, r.HourLabel, r.Slug, r.Cycles, r.Samples, r.Failures)
	}
}
