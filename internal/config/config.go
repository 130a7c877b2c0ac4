// Package config loads run settings from the environment (and an optional .env file).
package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/contactkeval/btc-iv-compare/internal/buckets"
	"github.com/contactkeval/btc-iv-compare/internal/chain"
	"github.com/contactkeval/btc-iv-compare/internal/logger"
)

// SupportedETFs are the spot bitcoin ETFs with listed options.
var SupportedETFs = []string{"IBIT", "FBTC", "ARKB", "BRRR", "HODL"}

// Config represents the application configuration.
type Config struct {
	App        AppConfig        `envPrefix:"APP_"`
	Massive    MassiveConfig    `envPrefix:"MASSIVE_"`
	Deribit    DeribitConfig    `envPrefix:"DERIBIT_"`
	InvestDefy InvestDefyConfig `envPrefix:"INVESTDEFY_"`
	Discord    DiscordConfig    `envPrefix:"DISCORD_"`

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"20s"`
	ServerAddr  string        `env:"SERVER_ADDR" envDefault:":8080"`
}

// AppConfig holds the comparison parameters.
type AppConfig struct {
	ETF             string   `env:"ETF" envDefault:"IBIT"`
	Expiry          string   `env:"EXPIRY"` // YYYY-MM-DD; empty picks the first listed expiry
	Rate            float64  `env:"RATE" envDefault:"0.04"`
	Buckets         []string `env:"BUCKETS" envSeparator:"," envDefault:"10D Put,25D Put,50D,25D Call,10D Call"`
	SpreadThreshold float64  `env:"SPREAD_THRESHOLD" envDefault:"0.05"`
	ReportDir       string   `env:"REPORT_DIR" envDefault:"reports"`
	Verbosity       int      `env:"VERBOSITY" envDefault:"1"`
	LogFormat       string   `env:"LOG_FORMAT" envDefault:"console"`
	Synthetic       bool     `env:"SYNTHETIC" envDefault:"false"`
}

// MassiveConfig configures the ETF options chain source.
type MassiveConfig struct {
	APIKey string `env:"API_KEY"`
}

// DeribitConfig configures the exchange source.
type DeribitConfig struct {
	BaseURL     string `env:"BASE_URL" envDefault:"https://www.deribit.com/api/v2"`
	Currency    string `env:"CURRENCY" envDefault:"BTC"`
	Concurrency int    `env:"CONCURRENCY" envDefault:"8"`
}

// InvestDefyConfig configures the volatility-surface source.
type InvestDefyConfig struct {
	BaseURL string `env:"BASE_URL" envDefault:"https://api.investdefy.com"`
	APIKey  string `env:"API_KEY"`
}

// DiscordConfig configures divergence alerts; an empty token disables them.
type DiscordConfig struct {
	Token     string `env:"TOKEN"`
	ChannelID string `env:"CHANNEL_ID"`
}

// Load loads the configuration from the environment.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	logger.Tracef("config loaded: etf=%s expiry=%q synthetic=%t", cfg.App.ETF, cfg.App.Expiry, cfg.App.Synthetic)
	return cfg, nil
}

// LoadFrom parses the configuration from the given variables only.
func LoadFrom(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate normalises the ETF symbol and rejects settings no run can use.
func (c *Config) Validate() error {
	var errs []error

	c.App.ETF = strings.ToUpper(strings.TrimSpace(c.App.ETF))
	if !slices.Contains(SupportedETFs, c.App.ETF) {
		errs = append(errs, fmt.Errorf("unsupported ETF %q (want one of %s)", c.App.ETF, strings.Join(SupportedETFs, ", ")))
	}
	if c.App.Expiry != "" {
		if _, err := chain.ParseExpiry(c.App.Expiry); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := c.Labels(); err != nil {
		errs = append(errs, err)
	}
	if c.App.SpreadThreshold < 0 || math.IsNaN(c.App.SpreadThreshold) {
		errs = append(errs, fmt.Errorf("spread threshold must be >= 0, got %v", c.App.SpreadThreshold))
	}
	if math.IsNaN(c.App.Rate) || math.IsInf(c.App.Rate, 0) {
		errs = append(errs, fmt.Errorf("rate must be finite, got %v", c.App.Rate))
	}
	if c.Deribit.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("deribit concurrency must be >= 1, got %d", c.Deribit.Concurrency))
	}
	switch logger.Format(c.App.LogFormat) {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.App.LogFormat))
	}

	return errors.Join(errs...)
}

// Labels parses the configured bucket list.
func (c *Config) Labels() ([]buckets.Label, error) {
	out := make([]buckets.Label, 0, len(c.App.Buckets))
	for _, s := range c.App.Buckets {
		l, err := buckets.ParseLabel(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// ExpiryDate returns the configured expiry, or the zero time when unset.
func (c *Config) ExpiryDate() time.Time {
	if c.App.Expiry == "" {
		return time.Time{}
	}
	t, err := chain.ParseExpiry(c.App.Expiry)
	if err != nil {
		return time.Time{}
	}
	return t
}
