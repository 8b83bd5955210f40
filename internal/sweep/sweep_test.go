package sweep

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmaloney/wheelhouse/internal/backtest"
	"github.com/dmaloney/wheelhouse/internal/marketdata"
	"github.com/dmaloney/wheelhouse/internal/strategy"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testGrid() Grid {
	return Grid{
		Periods: []Period{
			{Name: "june", Start: "2024-06-03", End: "2024-06-14"},
			{Name: "july", Start: "2024-07-01", End: "2024-07-12"},
		},
		DeltaBands: []DeltaBand{
			{Name: "wide", Min: 0.05, Max: 0.95},
			{Name: "narrow", Min: 0.25, Max: 0.35},
		},
		RSIThresholds: []float64{30, 100},
	}
}

func testBase() backtest.Config {
	return backtest.Config{
		Watchlist:      []backtest.SymbolConfig{{Symbol: "AAPL", MaxPositionFrac: 0.5}},
		InitialCapital: 100000,
		CallMinDelta:   0.05,
		CallMaxDelta:   0.95,
		RSIPeriod:      14,
		Volatility:     0.35,
		RiskFree:       0.05,
		TargetDTE:      30,
		Liquidity: strategy.LiquidityConfig{
			MinVolume:       100,
			MinOpenInterest: 500,
			MaxSpreadPct:    10,
		},
	}
}

func testCache() *marketdata.Cache {
	cal := marketdata.NewNYSECalendar()
	days := cal.TradingDays(
		time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.July, 31, 0, 0, 0, 0, time.UTC))
	bars := make([]marketdata.Bar, len(days))
	for i, d := range days {
		bars[i] = marketdata.Bar{Date: d, Close: 120 - float64(i)*0.5}
	}
	return marketdata.NewCacheFromBars(map[string][]marketdata.Bar{"AAPL": bars})
}

func TestGridSize(t *testing.T) {
	assert.Equal(t, 8, testGrid().Size())
	assert.Equal(t, 0, Grid{}.Size())
}

func TestGridValidate(t *testing.T) {
	require.NoError(t, testGrid().Validate())

	tests := []struct {
		name   string
		mutate func(*Grid)
		errSub string
	}{
		{"empty grid", func(g *Grid) { g.Periods = nil }, "empty"},
		{"bad start date", func(g *Grid) { g.Periods[0].Start = "June 3" }, "bad start"},
		{"bad end date", func(g *Grid) { g.Periods[1].End = "2024-13-40" }, "bad end"},
		{"inverted period", func(g *Grid) { g.Periods[0].End = g.Periods[0].Start }, "not before"},
		{"inverted band", func(g *Grid) { g.DeltaBands[0] = DeltaBand{Name: "x", Min: 0.5, Max: 0.2} }, "invalid range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testGrid()
			tt.mutate(&g)
			err := g.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSub)
		})
	}
}

func TestGridSpan(t *testing.T) {
	start, end := testGrid().Span()
	assert.Equal(t, time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, time.July, 12, 0, 0, 0, 0, time.UTC), end)
}

func TestRunnerProducesRowsInGridOrder(t *testing.T) {
	r := &Runner{
		Base:     testBase(),
		Cache:    testCache(),
		Calendar: marketdata.NewNYSECalendar(),
		Workers:  4,
		Logger:   quietLogger(),
	}
	grid := testGrid()

	rows, err := r.Run(context.Background(), grid)
	require.NoError(t, err)
	require.Len(t, rows, grid.Size())

	// Expansion order is period, then band, then threshold.
	i := 0
	for _, p := range grid.Periods {
		for _, b := range grid.DeltaBands {
			for _, rsi := range grid.RSIThresholds {
				assert.Equal(t, p.Name, rows[i].Period)
				assert.Equal(t, b.Name, rows[i].DeltaBand)
				assert.Equal(t, rsi, rows[i].RSIThreshold)
				i++
			}
		}
	}

	runID := rows[0].RunID
	require.NotEmpty(t, runID)
	for _, row := range rows {
		assert.Equal(t, runID, row.RunID, "one sweep shares one run id")
		assert.Empty(t, row.FailureReason)
		assert.Greater(t, row.FinalValue, 0.0)
	}
}

func TestRunnerRecordsFailureWithoutAborting(t *testing.T) {
	base := testBase()
	base.Watchlist[0].MaxPositionFrac = 0 // fails backtest.Config validation

	r := &Runner{
		Base:     base,
		Cache:    testCache(),
		Calendar: marketdata.NewNYSECalendar(),
		Workers:  2,
		Logger:   quietLogger(),
	}

	rows, err := r.Run(context.Background(), testGrid())
	require.NoError(t, err, "a failing cell never aborts the sweep")
	require.Len(t, rows, 8)
	for _, row := range rows {
		assert.Contains(t, row.FailureReason, "fraction")
		assert.Zero(t, row.FinalValue)
	}
}

func TestRunnerEmptyGrid(t *testing.T) {
	r := &Runner{Base: testBase(), Cache: testCache(),
		Calendar: marketdata.NewNYSECalendar(), Logger: quietLogger()}
	_, err := r.Run(context.Background(), Grid{})
	require.Error(t, err)
}

func TestRunnerCancellation(t *testing.T) {
	r := &Runner{
		Base:     testBase(),
		Cache:    testCache(),
		Calendar: marketdata.NewNYSECalendar(),
		Workers:  1,
		Logger:   quietLogger(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, testGrid())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}