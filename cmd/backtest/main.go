// Command backtest runs a single wheel-strategy simulation and prints the
// performance report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/dmaloney/wheelhouse/internal/backtest"
	"github.com/dmaloney/wheelhouse/internal/config"
	"github.com/dmaloney/wheelhouse/internal/marketdata"
	"github.com/dmaloney/wheelhouse/internal/num"
	"github.com/dmaloney/wheelhouse/internal/report"
)

func main() {
	var (
		configPath string
		startFlag  string
		endFlag    string
		capital    float64
		rsi        float64
		precision  string
		outDir     string
		debug      bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&startFlag, "start", "", "Override backtest start date (YYYY-MM-DD)")
	flag.StringVar(&endFlag, "end", "", "Override backtest end date (YYYY-MM-DD)")
	flag.Float64Var(&capital, "capital", 0, "Override initial capital")
	flag.Float64Var(&rsi, "rsi", 0, "Override RSI oversold threshold")
	flag.StringVar(&precision, "precision", "", "Override ledger arithmetic: decimal or float")
	flag.StringVar(&outDir, "out", "", "Override output directory for report files")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	// Credentials may live in a local .env; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg, startFlag, endFlag, capital, rsi, precision, outDir)

	logger := newLogger(cfg.Environment.LogLevel, debug)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("Backtest failed: %v", err)
	}
}

func applyOverrides(cfg *config.Config, start, end string, capital, rsi float64, precision, outDir string) {
	if start != "" {
		cfg.Backtest.Start = start
	}
	if end != "" {
		cfg.Backtest.End = end
	}
	if capital > 0 {
		cfg.Backtest.InitialCapital = capital
	}
	if rsi > 0 {
		cfg.Strategy.Entry.RSIOversold = rsi
	}
	if precision != "" {
		cfg.Backtest.Precision = precision
	}
	if outDir != "" {
		cfg.Storage.OutDir = outDir
	}
}

func newLogger(level string, debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	if debug {
		parsed = logrus.DebugLevel
	}
	logger.SetLevel(parsed)
	return logger
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return fmt.Errorf("assembling engine config: %w", err)
	}

	source, err := newSource(cfg, logger)
	if err != nil {
		return err
	}

	symbols := make([]string, 0, len(engineCfg.Watchlist))
	for _, s := range engineCfg.Watchlist {
		symbols = append(symbols, s.Symbol)
	}

	logger.WithFields(logrus.Fields{
		"symbols": len(symbols),
		"start":   cfg.Backtest.Start,
		"end":     cfg.Backtest.End,
	}).Info("Loading price history")
	cache := marketdata.LoadCache(ctx, source, symbols,
		engineCfg.Start, engineCfg.End, cfg.Data.LookbackDays, logger)

	calendar := marketdata.NewNYSECalendar()

	var rep *report.Report
	if cfg.UseDecimal() {
		rep, err = runEngine[num.Decimal](ctx, engineCfg, cache, calendar, logger)
	} else {
		rep, err = runEngine[num.Float](ctx, engineCfg, cache, calendar, logger)
	}
	if err != nil {
		return err
	}

	report.Render(os.Stdout, rep)

	if cfg.Storage.OutDir != "" {
		if err := os.MkdirAll(cfg.Storage.OutDir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		if err := report.WriteJSON(rep, cfg.Storage.OutDir); err != nil {
			return fmt.Errorf("writing report.json: %w", err)
		}
		if err := report.WriteTradesCSV(rep, cfg.Storage.OutDir); err != nil {
			return fmt.Errorf("writing trades.csv: %w", err)
		}
		logger.WithField("dir", cfg.Storage.OutDir).Info("Report files written")
	}
	return nil
}

func runEngine[T num.Real[T]](ctx context.Context, cfg backtest.Config, cache *marketdata.Cache,
	calendar marketdata.Calendar, logger *logrus.Logger) (*report.Report, error) {
	engine, err := backtest.New[T](cfg, cache, calendar, logger)
	if err != nil {
		return nil, err
	}
	return engine.Run(ctx)
}

func newSource(cfg *config.Config, logger *logrus.Logger) (marketdata.PriceSource, error) {
	switch cfg.Data.Provider {
	case "csv":
		return marketdata.NewCSVSource(cfg.Data.CSVDir), nil
	case "alpaca":
		return marketdata.NewAlpacaSource(cfg.Data.APIKey, cfg.Data.SecretKey,
			"", cfg.Data.Feed, logger), nil
	default:
		return nil, fmt.Errorf("unknown data provider %q", cfg.Data.Provider)
	}
}
