// Package config provides configuration management for the backtester.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/dmaloney/wheelhouse/internal/backtest"
	"github.com/dmaloney/wheelhouse/internal/strategy"
)

const (
	// defaultRSIOversold is used when strategy.rsi_oversold is unset.
	defaultRSIOversold = 30.0
	// defaultVolatility is the flat implied volatility assumed when
	// pricing synthetic chains.
	defaultVolatility = 0.35
	// defaultRiskFree approximates the short-term treasury rate.
	defaultRiskFree = 0.05
	// defaultTargetDTE is the contract tenor when monthly expirations are
	// disabled.
	defaultTargetDTE = 30
	// defaultRollMaxDTE is the near-expiry window for defensive rolls.
	defaultRollMaxDTE = 5
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Data        DataConfig        `yaml:"data"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Storage     StorageConfig     `yaml:"storage"`
}

// EnvironmentConfig defines the runtime environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// DataConfig defines where daily price history comes from.
type DataConfig struct {
	Provider  string `yaml:"provider"` // alpaca | csv
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
	Feed      string `yaml:"feed"` // iex | sip
	CSVDir    string `yaml:"csv_dir"`
	// LookbackDays of extra history fetched before the start date so the
	// RSI window is warm on day one.
	LookbackDays int `yaml:"lookback_days"`
}

// BacktestConfig defines the simulation window and capital.
type BacktestConfig struct {
	Start          string  `yaml:"start"` // YYYY-MM-DD
	End            string  `yaml:"end"`
	InitialCapital float64 `yaml:"initial_capital"`
	// Precision selects the ledger arithmetic: decimal | float.
	Precision string `yaml:"precision"`
}

// StrategyConfig defines the wheel parameters.
type StrategyConfig struct {
	Watchlist          []WatchlistEntry `yaml:"watchlist"`
	Entry              EntryConfig      `yaml:"entry"`
	Calls              CallConfig       `yaml:"calls"`
	Liquidity          LiquidityConfig  `yaml:"liquidity"`
	Rolls              RollConfig       `yaml:"rolls"`
	TakeProfit         TakeProfitConfig `yaml:"take_profit"`
	Volatility         float64          `yaml:"volatility"`
	RiskFree           float64          `yaml:"risk_free"`
	TargetDTE          int              `yaml:"target_dte"`
	MonthlyExpirations bool             `yaml:"monthly_expirations"`
}

// WatchlistEntry names one underlying and its capital cap.
type WatchlistEntry struct {
	Symbol          string  `yaml:"symbol"`
	MaxPositionFrac float64 `yaml:"max_position_frac"`
}

// EntryConfig defines cash-secured put entry criteria.
type EntryConfig struct {
	RSIOversold float64 `yaml:"rsi_oversold"`
	RSIPeriod   int     `yaml:"rsi_period"`
	MinDelta    float64 `yaml:"min_delta"`
	MaxDelta    float64 `yaml:"max_delta"`
}

// CallConfig defines covered call criteria.
type CallConfig struct {
	MinDelta   float64 `yaml:"min_delta"`
	MaxDelta   float64 `yaml:"max_delta"`
	MinPremium float64 `yaml:"min_premium"`
}

// LiquidityConfig defines minimum contract quality.
type LiquidityConfig struct {
	MinVolume       int     `yaml:"min_volume"`
	MinOpenInterest int     `yaml:"min_open_interest"`
	MaxSpreadPct    float64 `yaml:"max_spread_pct"`
}

// RollConfig controls rolling near-expiry OTM options.
type RollConfig struct {
	Enabled bool `yaml:"enabled"`
	MaxDTE  int  `yaml:"max_dte"`
}

// TakeProfitConfig controls early buy-backs of decayed options.
type TakeProfitConfig struct {
	Enabled bool    `yaml:"enabled"`
	Pct     float64 `yaml:"pct"`
}

// StorageConfig defines where results are persisted.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
	OutDir string `yaml:"out_dir"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Data.Provider == "" {
		c.Data.Provider = "alpaca"
	}
	if c.Data.Feed == "" {
		c.Data.Feed = "iex"
	}
	if c.Data.LookbackDays == 0 {
		c.Data.LookbackDays = 30
	}
	if c.Backtest.Precision == "" {
		c.Backtest.Precision = "decimal"
	}
	if c.Strategy.Entry.RSIOversold == 0 {
		c.Strategy.Entry.RSIOversold = defaultRSIOversold
	}
	if c.Strategy.Entry.RSIPeriod == 0 {
		c.Strategy.Entry.RSIPeriod = strategy.DefaultRSIPeriod
	}
	if c.Strategy.Volatility == 0 {
		c.Strategy.Volatility = defaultVolatility
	}
	if c.Strategy.RiskFree == 0 {
		c.Strategy.RiskFree = defaultRiskFree
	}
	if c.Strategy.TargetDTE == 0 {
		c.Strategy.TargetDTE = defaultTargetDTE
	}
	if c.Strategy.Rolls.Enabled && c.Strategy.Rolls.MaxDTE == 0 {
		c.Strategy.Rolls.MaxDTE = defaultRollMaxDTE
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be debug, info, warn, or error")
	}

	switch c.Data.Provider {
	case "alpaca":
		if c.Data.APIKey == "" || c.Data.SecretKey == "" {
			return fmt.Errorf("data.api_key and data.secret_key are required for the alpaca provider")
		}
	case "csv":
		if c.Data.CSVDir == "" {
			return fmt.Errorf("data.csv_dir is required for the csv provider")
		}
	default:
		return fmt.Errorf("data.provider must be 'alpaca' or 'csv'")
	}
	if c.Data.LookbackDays < 0 {
		return fmt.Errorf("data.lookback_days must be >= 0")
	}

	if _, err := c.StartDate(); err != nil {
		return fmt.Errorf("backtest.start invalid: %w", err)
	}
	if _, err := c.EndDate(); err != nil {
		return fmt.Errorf("backtest.end invalid: %w", err)
	}
	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be > 0")
	}
	if c.Backtest.Precision != "decimal" && c.Backtest.Precision != "float" {
		return fmt.Errorf("backtest.precision must be 'decimal' or 'float'")
	}

	if len(c.Strategy.Watchlist) == 0 {
		return fmt.Errorf("strategy.watchlist is required")
	}
	for _, w := range c.Strategy.Watchlist {
		if w.Symbol == "" {
			return fmt.Errorf("strategy.watchlist entry with empty symbol")
		}
		if w.MaxPositionFrac <= 0 || w.MaxPositionFrac > 1 {
			return fmt.Errorf("strategy.watchlist %s: max_position_frac must be in (0, 1]", w.Symbol)
		}
	}
	if c.Strategy.Entry.MinDelta < 0 || c.Strategy.Entry.MaxDelta <= 0 ||
		c.Strategy.Entry.MinDelta >= c.Strategy.Entry.MaxDelta {
		return fmt.Errorf("strategy.entry delta band [%.2f, %.2f] invalid",
			c.Strategy.Entry.MinDelta, c.Strategy.Entry.MaxDelta)
	}
	if c.Strategy.Calls.MinDelta < 0 || c.Strategy.Calls.MaxDelta <= 0 ||
		c.Strategy.Calls.MinDelta >= c.Strategy.Calls.MaxDelta {
		return fmt.Errorf("strategy.calls delta band [%.2f, %.2f] invalid",
			c.Strategy.Calls.MinDelta, c.Strategy.Calls.MaxDelta)
	}
	if c.Strategy.Liquidity.MaxSpreadPct <= 0 {
		return fmt.Errorf("strategy.liquidity.max_spread_pct must be > 0")
	}
	if c.Strategy.Volatility <= 0 || c.Strategy.Volatility > 3 {
		return fmt.Errorf("strategy.volatility must be in (0, 3]")
	}
	if c.Strategy.TargetDTE <= 0 {
		return fmt.Errorf("strategy.target_dte must be > 0")
	}
	if c.Strategy.Rolls.Enabled && c.Strategy.Rolls.MaxDTE <= 0 {
		return fmt.Errorf("strategy.rolls.max_dte must be > 0 when rolls are enabled")
	}
	if c.Strategy.TakeProfit.Enabled &&
		(c.Strategy.TakeProfit.Pct <= 0 || c.Strategy.TakeProfit.Pct > 100) {
		return fmt.Errorf("strategy.take_profit.pct must be in (0, 100]")
	}

	return nil
}

// StartDate parses the backtest start date.
func (c *Config) StartDate() (time.Time, error) {
	return time.Parse("2006-01-02", c.Backtest.Start)
}

// EndDate parses the backtest end date.
func (c *Config) EndDate() (time.Time, error) {
	return time.Parse("2006-01-02", c.Backtest.End)
}

// UseDecimal reports whether the run uses decimal ledger arithmetic.
func (c *Config) UseDecimal() bool {
	return c.Backtest.Precision == "decimal"
}

// EngineConfig assembles the simulation parameters for one run.
func (c *Config) EngineConfig() (backtest.Config, error) {
	start, err := c.StartDate()
	if err != nil {
		return backtest.Config{}, err
	}
	end, err := c.EndDate()
	if err != nil {
		return backtest.Config{}, err
	}

	watchlist := make([]backtest.SymbolConfig, 0, len(c.Strategy.Watchlist))
	for _, w := range c.Strategy.Watchlist {
		watchlist = append(watchlist, backtest.SymbolConfig{
			Symbol:          w.Symbol,
			MaxPositionFrac: w.MaxPositionFrac,
		})
	}

	return backtest.Config{
		Watchlist:          watchlist,
		InitialCapital:     c.Backtest.InitialCapital,
		Start:              start,
		End:                end,
		MinDelta:           c.Strategy.Entry.MinDelta,
		MaxDelta:           c.Strategy.Entry.MaxDelta,
		CallMinDelta:       c.Strategy.Calls.MinDelta,
		CallMaxDelta:       c.Strategy.Calls.MaxDelta,
		RSIOversold:        c.Strategy.Entry.RSIOversold,
		RSIPeriod:          c.Strategy.Entry.RSIPeriod,
		Volatility:         c.Strategy.Volatility,
		RiskFree:           c.Strategy.RiskFree,
		TargetDTE:          c.Strategy.TargetDTE,
		MonthlyExpirations: c.Strategy.MonthlyExpirations,
		Liquidity: strategy.LiquidityConfig{
			MinVolume:       c.Strategy.Liquidity.MinVolume,
			MinOpenInterest: c.Strategy.Liquidity.MinOpenInterest,
			MaxSpreadPct:    c.Strategy.Liquidity.MaxSpreadPct,
		},
		MinCallPremium: c.Strategy.Calls.MinPremium,
		Rolls: backtest.RollConfig{
			Enabled: c.Strategy.Rolls.Enabled,
			MaxDTE:  c.Strategy.Rolls.MaxDTE,
		},
		TakeProfit: backtest.TakeProfitConfig{
			Enabled: c.Strategy.TakeProfit.Enabled,
			Pct:     c.Strategy.TakeProfit.Pct,
		},
	}, nil
}
