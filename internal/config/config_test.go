package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/btc-iv-compare/internal/buckets"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "IBIT", cfg.App.ETF)
	assert.Equal(t, "", cfg.App.Expiry)
	assert.Equal(t, 0.04, cfg.App.Rate)
	assert.Equal(t, 0.05, cfg.App.SpreadThreshold)
	assert.Equal(t, "reports", cfg.App.ReportDir)
	assert.Equal(t, 1, cfg.App.Verbosity)
	assert.Equal(t, "console", cfg.App.LogFormat)
	assert.False(t, cfg.App.Synthetic)
	assert.Equal(t, "https://www.deribit.com/api/v2", cfg.Deribit.BaseURL)
	assert.Equal(t, "BTC", cfg.Deribit.Currency)
	assert.Equal(t, 8, cfg.Deribit.Concurrency)
	assert.Equal(t, "https://api.investdefy.com", cfg.InvestDefy.BaseURL)
	assert.Equal(t, 20*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, ":8080", cfg.ServerAddr)

	labels, err := cfg.Labels()
	require.NoError(t, err)
	assert.Equal(t, buckets.Canonical(), labels)
	assert.True(t, cfg.ExpiryDate().IsZero())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"APP_ETF":              "fbtc",
		"APP_EXPIRY":           "2025-03-28",
		"APP_BUCKETS":          "50D, 25D Call",
		"APP_SPREAD_THRESHOLD": "0.1",
		"APP_SYNTHETIC":        "true",
		"MASSIVE_API_KEY":      "mk",
		"INVESTDEFY_API_KEY":   "ik",
		"DISCORD_TOKEN":        "tok",
		"DISCORD_CHANNEL_ID":   "42",
		"HTTP_TIMEOUT":         "5s",
	})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "FBTC", cfg.App.ETF)
	assert.True(t, cfg.ExpiryDate().Equal(time.Date(2025, 3, 28, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0.1, cfg.App.SpreadThreshold)
	assert.True(t, cfg.App.Synthetic)
	assert.Equal(t, "mk", cfg.Massive.APIKey)
	assert.Equal(t, "ik", cfg.InvestDefy.APIKey)
	assert.Equal(t, "tok", cfg.Discord.Token)
	assert.Equal(t, "42", cfg.Discord.ChannelID)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)

	labels, err := cfg.Labels()
	require.NoError(t, err)
	assert.Equal(t, []buckets.Label{buckets.ATM, buckets.Call25}, labels)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"unknown etf", map[string]string{"APP_ETF": "SPY"}, "unsupported ETF"},
		{"unknown bucket", map[string]string{"APP_BUCKETS": "35D Call"}, "unknown delta bucket"},
		{"negative threshold", map[string]string{"APP_SPREAD_THRESHOLD": "-0.1"}, "spread threshold"},
		{"bad expiry", map[string]string{"APP_EXPIRY": "28/03/2025"}, "parse expiry"},
		{"bad log format", map[string]string{"APP_LOG_FORMAT": "xml"}, "log format"},
		{"no concurrency", map[string]string{"DERIBIT_CONCURRENCY": "0"}, "concurrency"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadFrom(tc.vars)
			require.NoError(t, err)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func TestLoadFrom_ParseError(t *testing.T) {
	_, err := LoadFrom(map[string]string{"APP_RATE": "four percent"})
	assert.Error(t, err)
}
