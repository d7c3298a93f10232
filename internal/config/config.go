package config

import (
	"os"
	"regexp"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig marks configuration that failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for adsync.
type Config struct {
	Facebook  Facebook  `yaml:"facebook"`
	Warehouse Warehouse `yaml:"warehouse"`
	Sync      Sync      `yaml:"sync"`
	Logging   Logging   `yaml:"logging"`
	Metrics   Metrics   `yaml:"metrics"`
	StateDir  string    `yaml:"state_dir"`
}

// Facebook holds credentials and endpoint settings for the Graph API.
type Facebook struct {
	AccessToken         string `yaml:"access_token"`
	AdAccountID         string `yaml:"ad_account_id"`
	APIVersion          string `yaml:"api_version"`
	BaseURL             string `yaml:"base_url"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
	PageLimit           int    `yaml:"page_limit"`
}

// Warehouse selects and addresses the sink table.
type Warehouse struct {
	Driver  string `yaml:"driver"` // sqlite | postgres | parquet
	DSN     string `yaml:"dsn"`
	Table   string `yaml:"table"`
	DataDir string `yaml:"data_dir"` // parquet only
}

// Sync controls reconciliation, chunking, pacing and filtering.
type Sync struct {
	DefaultLookbackDays   int      `yaml:"default_lookback_days"`
	BackfillDays          int      `yaml:"backfill_days"`
	RewriteLastNDays      int      `yaml:"rewrite_last_n_days"`
	MonitoringWindowDays  int      `yaml:"monitoring_window_days"`
	MaxChunkDays          int      `yaml:"max_chunk_days"`
	RateLimitDelaySeconds float64  `yaml:"rate_limit_delay_seconds"`
	MinSpendThreshold     string   `yaml:"min_spend_threshold"`
	Timezone              string   `yaml:"timezone"`
	ConversionActionTypes []string `yaml:"conversion_action_types"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Metrics configures the Prometheus textfile written after each run.
type Metrics struct {
	TextfilePath string `yaml:"textfile_path"`
}

// ---------------------------------------------------------------------------
// Derived values
// ---------------------------------------------------------------------------

// RateLimitDelay returns the pause between upstream requests.
func (s Sync) RateLimitDelay() time.Duration {
	return time.Duration(s.RateLimitDelaySeconds * float64(time.Second))
}

// MinSpend returns the parsed minimum-spend threshold. Validate guarantees it
// parses.
func (s Sync) MinSpend() decimal.Decimal {
	d, _ := decimal.NewFromString(s.MinSpendThreshold)
	return d
}

// FetchTimeout returns the hard deadline applied to one upstream fetch.
func (f Facebook) FetchTimeout() time.Duration {
	return time.Duration(f.FetchTimeoutSeconds) * time.Second
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Facebook: Facebook{
			APIVersion:          "v17.0",
			BaseURL:             "https://graph.facebook.com",
			FetchTimeoutSeconds: 300,
			PageLimit:           500,
		},
		Warehouse: Warehouse{
			Driver:  "sqlite",
			DSN:     "adsync.db",
			Table:   "facebook_ads",
			DataDir: "data",
		},
		Sync: Sync{
			DefaultLookbackDays:   30,
			BackfillDays:          365,
			RewriteLastNDays:      1,
			MonitoringWindowDays:  10,
			MaxChunkDays:          7,
			RateLimitDelaySeconds: 30,
			MinSpendThreshold:     "0.01",
			Timezone:              "UTC",
			ConversionActionTypes: []string{
				"offsite_conversion.fb_pixel_purchase",
				"purchase",
				"omni_purchase",
				"lead",
			},
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
		StateDir: ".adsync",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then a .env file in the working directory, then
// environment variable overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing config %s", path)
		}
	}

	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FB_ACCESS_TOKEN"); v != "" {
		cfg.Facebook.AccessToken = v
	}
	if v := os.Getenv("FB_AD_ACCOUNT_ID"); v != "" {
		cfg.Facebook.AdAccountID = v
	}
	if v := os.Getenv("FB_API_VERSION"); v != "" {
		cfg.Facebook.APIVersion = v
	}

	if v := os.Getenv("WAREHOUSE_DRIVER"); v != "" {
		cfg.Warehouse.Driver = v
	}
	if v := os.Getenv("WAREHOUSE_DSN"); v != "" {
		cfg.Warehouse.DSN = v
	}
	if v := os.Getenv("WAREHOUSE_TABLE"); v != "" {
		cfg.Warehouse.Table = v
	}

	if v := os.Getenv("ADSYNC_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks basic positivity and well-formedness. There is no
// cross-field validation.
func (c *Config) Validate() error {
	s := c.Sync
	switch {
	case s.DefaultLookbackDays <= 0:
		return invalid("sync.default_lookback_days must be positive, got %d", s.DefaultLookbackDays)
	case s.BackfillDays <= 0:
		return invalid("sync.backfill_days must be positive, got %d", s.BackfillDays)
	case s.RewriteLastNDays < 0:
		return invalid("sync.rewrite_last_n_days must not be negative, got %d", s.RewriteLastNDays)
	case s.MonitoringWindowDays <= 0:
		return invalid("sync.monitoring_window_days must be positive, got %d", s.MonitoringWindowDays)
	case s.MaxChunkDays <= 0:
		return invalid("sync.max_chunk_days must be positive, got %d", s.MaxChunkDays)
	case s.RateLimitDelaySeconds < 0:
		return invalid("sync.rate_limit_delay_seconds must not be negative, got %v", s.RateLimitDelaySeconds)
	case c.Facebook.FetchTimeoutSeconds <= 0:
		return invalid("facebook.fetch_timeout_seconds must be positive, got %d", c.Facebook.FetchTimeoutSeconds)
	case c.Facebook.PageLimit <= 0:
		return invalid("facebook.page_limit must be positive, got %d", c.Facebook.PageLimit)
	}

	if _, err := decimal.NewFromString(s.MinSpendThreshold); err != nil {
		return invalid("sync.min_spend_threshold %q is not a number", s.MinSpendThreshold)
	}

	switch c.Warehouse.Driver {
	case "sqlite", "postgres", "parquet":
	default:
		return errors.WithHint(
			invalid("unknown warehouse.driver %q", c.Warehouse.Driver),
			"use one of: sqlite, postgres, parquet")
	}
	if !identRe.MatchString(c.Warehouse.Table) {
		return invalid("warehouse.table %q is not a valid identifier", c.Warehouse.Table)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidConfig)
}
