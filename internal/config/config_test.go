package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
environment:
  log_level: debug
data:
  provider: alpaca
  api_key: ${TEST_ALPACA_KEY}
  secret_key: ${TEST_ALPACA_SECRET}
backtest:
  start: "2023-01-01"
  end: "2023-12-31"
  initial_capital: 100000
strategy:
  watchlist:
    - symbol: AAPL
      max_position_frac: 0.25
    - symbol: MSFT
      max_position_frac: 0.25
  entry:
    min_delta: 0.20
    max_delta: 0.35
  calls:
    min_delta: 0.20
    max_delta: 0.40
    min_premium: 0.10
  liquidity:
    min_volume: 100
    min_open_interest: 500
    max_spread_pct: 10
storage:
  out_dir: results
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_ALPACA_KEY", "key-from-env")
	t.Setenv("TEST_ALPACA_SECRET", "secret-from-env")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "key-from-env", cfg.Data.APIKey)
	assert.Equal(t, "secret-from-env", cfg.Data.SecretKey)

	// Fields the file omits come from defaults.
	assert.Equal(t, "iex", cfg.Data.Feed)
	assert.Equal(t, 30, cfg.Data.LookbackDays)
	assert.Equal(t, "decimal", cfg.Backtest.Precision)
	assert.Equal(t, defaultRSIOversold, cfg.Strategy.Entry.RSIOversold)
	assert.Equal(t, 14, cfg.Strategy.Entry.RSIPeriod)
	assert.Equal(t, defaultVolatility, cfg.Strategy.Volatility)
	assert.Equal(t, defaultTargetDTE, cfg.Strategy.TargetDTE)
	assert.True(t, cfg.UseDecimal())
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, validYAML+"\nunknown_section:\n  foo: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("TEST_ALPACA_KEY", "k")
	t.Setenv("TEST_ALPACA_SECRET", "s")

	base := func(t *testing.T) *Config {
		cfg, err := Load(writeConfig(t, validYAML))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"bad log level", func(c *Config) { c.Environment.LogLevel = "verbose" }, "log_level"},
		{"bad provider", func(c *Config) { c.Data.Provider = "yahoo" }, "provider"},
		{"alpaca without keys", func(c *Config) { c.Data.APIKey = "" }, "api_key"},
		{"csv without dir", func(c *Config) { c.Data.Provider = "csv" }, "csv_dir"},
		{"negative lookback", func(c *Config) { c.Data.LookbackDays = -1 }, "lookback_days"},
		{"bad start date", func(c *Config) { c.Backtest.Start = "Jan 1" }, "backtest.start"},
		{"zero capital", func(c *Config) { c.Backtest.InitialCapital = 0 }, "initial_capital"},
		{"bad precision", func(c *Config) { c.Backtest.Precision = "exact" }, "precision"},
		{"empty watchlist", func(c *Config) { c.Strategy.Watchlist = nil }, "watchlist"},
		{"oversized fraction", func(c *Config) { c.Strategy.Watchlist[0].MaxPositionFrac = 2 }, "max_position_frac"},
		{"inverted entry band", func(c *Config) { c.Strategy.Entry.MinDelta = 0.9 }, "entry delta band"},
		{"inverted call band", func(c *Config) { c.Strategy.Calls.MaxDelta = 0.1 }, "calls delta band"},
		{"zero spread cap", func(c *Config) { c.Strategy.Liquidity.MaxSpreadPct = 0 }, "max_spread_pct"},
		{"absurd volatility", func(c *Config) { c.Strategy.Volatility = 5 }, "volatility"},
		{"zero dte", func(c *Config) { c.Strategy.TargetDTE = -1 }, "target_dte"},
		{"rolls without window", func(c *Config) {
			c.Strategy.Rolls.Enabled = true
			c.Strategy.Rolls.MaxDTE = -1
		}, "rolls.max_dte"},
		{"take profit over 100", func(c *Config) {
			c.Strategy.TakeProfit.Enabled = true
			c.Strategy.TakeProfit.Pct = 150
		}, "take_profit.pct"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSub)
		})
	}
}

func TestRollDefaultAppliesOnlyWhenEnabled(t *testing.T) {
	t.Setenv("TEST_ALPACA_KEY", "k")
	t.Setenv("TEST_ALPACA_SECRET", "s")

	withRolls := strings.Replace(validYAML, "  entry:",
		"  rolls:\n    enabled: true\n  entry:", 1)
	cfg, err := Load(writeConfig(t, withRolls))
	require.NoError(t, err)
	assert.Equal(t, defaultRollMaxDTE, cfg.Strategy.Rolls.MaxDTE)

	cfg, err = Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Zero(t, cfg.Strategy.Rolls.MaxDTE)
}

func TestEngineConfig(t *testing.T) {
	t.Setenv("TEST_ALPACA_KEY", "k")
	t.Setenv("TEST_ALPACA_SECRET", "s")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	ec, err := cfg.EngineConfig()
	require.NoError(t, err)

	start, _ := cfg.StartDate()
	end, _ := cfg.EndDate()
	assert.Equal(t, start, ec.Start)
	assert.Equal(t, end, ec.End)
	assert.Equal(t, 100000.0, ec.InitialCapital)
	require.Len(t, ec.Watchlist, 2)
	assert.Equal(t, "AAPL", ec.Watchlist[0].Symbol)
	assert.Equal(t, 0.25, ec.Watchlist[0].MaxPositionFrac)
	assert.Equal(t, 0.20, ec.MinDelta)
	assert.Equal(t, 0.35, ec.MaxDelta)
	assert.Equal(t, 0.10, ec.MinCallPremium)
	assert.Equal(t, 10.0, ec.Liquidity.MaxSpreadPct)
	assert.Equal(t, defaultTargetDTE, ec.TargetDTE)
	require.NoError(t, ec.Validate())
}
