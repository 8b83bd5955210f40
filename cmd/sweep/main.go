// Command sweep runs a grid of wheel backtests in parallel, prints the
// top configurations, and persists every result to SQLite. With -serve
// it then exposes the results over HTTP.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v3"

	"github.com/dmaloney/wheelhouse/internal/config"
	"github.com/dmaloney/wheelhouse/internal/dashboard"
	"github.com/dmaloney/wheelhouse/internal/marketdata"
	"github.com/dmaloney/wheelhouse/internal/storage"
	"github.com/dmaloney/wheelhouse/internal/sweep"
)

func main() {
	var (
		configPath string
		gridPath   string
		workers    int
		topN       int
		servePort  int
		debug      bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&gridPath, "grid", "grid.yaml", "Path to sweep grid file")
	flag.IntVar(&workers, "workers", 0, "Concurrent runs (0 = number of CPUs)")
	flag.IntVar(&topN, "top", 10, "How many top configurations to print")
	flag.IntVar(&servePort, "serve", 0, "Serve results on this port after the sweep (0 = off)")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, gridPath, workers, topN, servePort, logger); err != nil {
		logger.Fatalf("Sweep failed: %v", err)
	}
}

func loadGrid(path string) (sweep.Grid, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is a user-provided grid file
	if err != nil {
		return sweep.Grid{}, fmt.Errorf("reading grid file: %w", err)
	}
	var grid sweep.Grid
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	dec.KnownFields(true)
	if err := dec.Decode(&grid); err != nil {
		return sweep.Grid{}, fmt.Errorf("parsing grid file: %w", err)
	}
	return grid, nil
}

func run(ctx context.Context, cfg *config.Config, gridPath string,
	workers, topN, servePort int, logger *logrus.Logger) error {
	grid, err := loadGrid(gridPath)
	if err != nil {
		return err
	}
	if err := grid.Validate(); err != nil {
		return err
	}

	base, err := cfg.EngineConfig()
	if err != nil {
		return fmt.Errorf("assembling engine config: %w", err)
	}

	source, err := newSource(cfg, logger)
	if err != nil {
		return err
	}

	symbols := make([]string, 0, len(base.Watchlist))
	for _, s := range base.Watchlist {
		symbols = append(symbols, s.Symbol)
	}

	// One cache load covers every period in the grid.
	start, end := grid.Span()
	logger.WithFields(logrus.Fields{
		"symbols": len(symbols),
		"start":   start.Format("2006-01-02"),
		"end":     end.Format("2006-01-02"),
		"runs":    grid.Size(),
	}).Info("Loading price history for sweep")
	cache := marketdata.LoadCache(ctx, source, symbols, start, end, cfg.Data.LookbackDays, logger)

	runner := &sweep.Runner{
		Base:     base,
		Cache:    cache,
		Calendar: marketdata.NewNYSECalendar(),
		Workers:  workers,
		Logger:   logger,
	}

	began := time.Now()
	rows, err := runner.Run(ctx, grid)
	if err != nil {
		return err
	}
	logger.WithField("elapsed", time.Since(began).Round(time.Second)).Info("Sweep finished")

	printTop(rows, topN)

	if cfg.Storage.OutDir != "" {
		if err := writeCSV(rows, cfg.Storage.OutDir); err != nil {
			return err
		}
	}

	var store *storage.Store
	if cfg.Storage.DBPath != "" {
		store, err = storage.Open(cfg.Storage.DBPath, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SaveResults(rows); err != nil {
			return err
		}
	}

	if servePort > 0 {
		if store == nil {
			return fmt.Errorf("-serve requires storage.db_path to be configured")
		}
		return serveResults(ctx, store, servePort, logger)
	}
	return nil
}

func serveResults(ctx context.Context, store *storage.Store, port int, logger *logrus.Logger) error {
	server := dashboard.NewServer(dashboard.Config{Port: port}, store, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func printTop(rows []storage.ResultRow, n int) {
	best := make([]storage.ResultRow, len(rows))
	copy(best, rows)
	// Simple selection of the n highest returns; the full table goes to
	// CSV and SQLite anyway.
	for i := 0; i < len(best) && i < n; i++ {
		maxIdx := i
		for j := i + 1; j < len(best); j++ {
			if best[j].TotalReturn > best[maxIdx].TotalReturn {
				maxIdx = j
			}
		}
		best[i], best[maxIdx] = best[maxIdx], best[i]
	}
	if n > len(best) {
		n = len(best)
	}

	fmt.Printf("\nTop %d configurations by total return:\n", n)
	for _, row := range best[:n] {
		if row.FailureReason != "" {
			continue
		}
		fmt.Printf("  %-12s | %-16s | RSI=%-4.0f | Return: %+6.1f%% | Sharpe: %5.2f | DD: %6.1f%% | Premium: $%.0f\n",
			row.Period, row.DeltaBand, row.RSIThreshold,
			row.TotalReturn*100, row.SharpeRatio, row.MaxDrawdown*100, row.PremiumCollected)
	}
}

func writeCSV(rows []storage.ResultRow, outDir string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(filepath.Join(outDir, "sweep.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"period", "delta_band", "rsi_threshold", "total_return", "annual_return",
		"sharpe_ratio", "max_drawdown", "win_rate", "total_trades", "final_value",
		"premium_collected", "assignments", "failure_reason"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Period,
			row.DeltaBand,
			strconv.FormatFloat(row.RSIThreshold, 'f', 0, 64),
			fmt.Sprintf("%.4f", row.TotalReturn),
			fmt.Sprintf("%.4f", row.AnnualReturn),
			fmt.Sprintf("%.2f", row.SharpeRatio),
			fmt.Sprintf("%.4f", row.MaxDrawdown),
			fmt.Sprintf("%.4f", row.WinRate),
			strconv.Itoa(row.TotalTrades),
			fmt.Sprintf("%.2f", row.FinalValue),
			fmt.Sprintf("%.2f", row.PremiumCollected),
			strconv.Itoa(row.Assignments),
			row.FailureReason,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
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
