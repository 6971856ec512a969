package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration. It is loaded
// once at startup and passed explicitly into every component.
type Config struct {
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Binance    BinanceConfig    `mapstructure:"binance"`
	Sampler    SamplerConfig    `mapstructure:"sampler"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Report     ReportConfig     `mapstructure:"report"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Logging    LoggingConfig    `mapstructure:"logging"`

	// Symbols maps tracked symbols to market family names used in slugs.
	Symbols map[string]string `mapstructure:"symbols"`
}

// PolymarketConfig holds Polymarket API configuration.
type PolymarketConfig struct {
	GammaAPIURL    string        `mapstructure:"gamma_api_url"`
	CLOBAPIURL     string        `mapstructure:"clob_api_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// BinanceConfig holds the reference price source configuration.
type BinanceConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SamplerConfig holds the sampling loop configuration.
type SamplerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Duration time.Duration `mapstructure:"duration"`

	// ResolveRetryInterval is the cadence for re-trying the market lookup
	// when the hourly market has not been created yet.
	ResolveRetryInterval time.Duration `mapstructure:"resolve_retry_interval"`

	// SnapshotBooks enables per-cycle order-book snapshot persistence.
	SnapshotBooks bool `mapstructure:"snapshot_books"`

	// QuoteCSV enables the per-hour best ask/bid CSV with reference prices.
	QuoteCSV bool `mapstructure:"quote_csv"`
}

// StorageConfig holds filesystem store and catalog configuration.
type StorageConfig struct {
	DataDir     string `mapstructure:"data_dir"`
	CatalogPath string `mapstructure:"catalog_path"`
}

// ReportConfig holds aggregation configuration.
type ReportConfig struct {
	// BandSize is the number of consecutive hours grouped into one band,
	// which is also the cap on series per band.
	BandSize int `mapstructure:"band_size"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("PM_STATS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("polymarket.gamma_api_url", "https://gamma-api.polymarket.com")
	v.SetDefault("polymarket.clob_api_url", "https://clob.polymarket.com")
	v.SetDefault("polymarket.timeout", "30s")
	v.SetDefault("polymarket.max_retries", 3)
	v.SetDefault("polymarket.retry_delay_base", "1s")

	v.SetDefault("binance.api_url", "https://api.binance.com")
	v.SetDefault("binance.timeout", "10s")

	v.SetDefault("sampler.interval", "9s")
	v.SetDefault("sampler.duration", "1h")
	v.SetDefault("sampler.resolve_retry_interval", "30s")
	v.SetDefault("sampler.snapshot_books", false)
	v.SetDefault("sampler.quote_csv", false)

	v.SetDefault("storage.data_dir", "./data/midpoint")
	v.SetDefault("storage.catalog_path", "./data/catalog.db")

	v.SetDefault("report.band_size", 6)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("symbols", map[string]string{
		"btc": "bitcoin",
		"eth": "ethereum",
		"sol": "solana",
		"xrp": "xrp",
	})
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Polymarket.GammaAPIURL == "" {
		return fmt.Errorf("polymarket.gamma_api_url is required")
	}
	if c.Polymarket.CLOBAPIURL == "" {
		return fmt.Errorf("polymarket.clob_api_url is required")
	}
	if c.Polymarket.Timeout <= 0 {
		return fmt.Errorf("polymarket.timeout must be positive")
	}
	if c.Polymarket.MaxRetries < 1 {
		return fmt.Errorf("polymarket.max_retries must be at least 1")
	}

	if c.Binance.APIURL == "" {
		return fmt.Errorf("binance.api_url is required")
	}

	if c.Sampler.Interval < time.Second {
		return fmt.Errorf("sampler.interval must be at least 1 second")
	}
	if c.Sampler.Duration < c.Sampler.Interval {
		return fmt.Errorf("sampler.duration must be at least one interval")
	}
	if c.Sampler.ResolveRetryInterval < time.Second {
		return fmt.Errorf("sampler.resolve_retry_interval must be at least 1 second")
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	if c.Report.BandSize < 1 || c.Report.BandSize > 24 {
		return fmt.Errorf("report.band_size must be between 1 and 24")
	}
	if 24%c.Report.BandSize != 0 {
		return fmt.Errorf("report.band_size must divide 24 evenly")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols must contain at least one entry")
	}
	for sym, asset := range c.Symbols {
		if sym == "" || asset == "" {
			return fmt.Errorf("symbols entries must be non-empty")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
