// Package sweep runs a grid of wheel backtests in parallel over a shared
// read-only price cache. Each run owns its ledger and analyzer; the cache
// is the only shared resource and is never written after loading.
package sweep

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dmaloney/wheelhouse/internal/backtest"
	"github.com/dmaloney/wheelhouse/internal/marketdata"
	"github.com/dmaloney/wheelhouse/internal/num"
	"github.com/dmaloney/wheelhouse/internal/storage"
)

// DeltaBand names one put-delta selection range in the grid.
type DeltaBand struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

// Period names one date window in the grid.
type Period struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"` // YYYY-MM-DD
	End   string `yaml:"end"`
}

// Grid is the cartesian product of sweep dimensions. Every combination of
// period, delta band, and RSI threshold becomes one run.
type Grid struct {
	Periods       []Period    `yaml:"periods"`
	DeltaBands    []DeltaBand `yaml:"delta_bands"`
	RSIThresholds []float64   `yaml:"rsi_thresholds"`
}

// Size returns the number of runs the grid expands to.
func (g Grid) Size() int {
	return len(g.Periods) * len(g.DeltaBands) * len(g.RSIThresholds)
}

// Validate rejects empty grid dimensions and unparsable periods.
func (g Grid) Validate() error {
	if g.Size() == 0 {
		return fmt.Errorf("sweep grid is empty")
	}
	for _, p := range g.Periods {
		start, err := time.Parse("2006-01-02", p.Start)
		if err != nil {
			return fmt.Errorf("period %s: bad start: %w", p.Name, err)
		}
		end, err := time.Parse("2006-01-02", p.End)
		if err != nil {
			return fmt.Errorf("period %s: bad end: %w", p.Name, err)
		}
		if !start.Before(end) {
			return fmt.Errorf("period %s: start is not before end", p.Name)
		}
	}
	for _, b := range g.DeltaBands {
		if b.Min < 0 || b.Max <= 0 || b.Min >= b.Max {
			return fmt.Errorf("delta band %s: invalid range [%.2f, %.2f]", b.Name, b.Min, b.Max)
		}
	}
	return nil
}

// Span returns the earliest start and latest end across all periods, the
// window the price cache must cover.
func (g Grid) Span() (time.Time, time.Time) {
	var start, end time.Time
	for _, p := range g.Periods {
		s, _ := time.Parse("2006-01-02", p.Start)
		e, _ := time.Parse("2006-01-02", p.End)
		if start.IsZero() || s.Before(start) {
			start = s
		}
		if e.After(end) {
			end = e
		}
	}
	return start, end
}

// Runner executes a grid against one base configuration. Runs use float
// arithmetic: a sweep compares thousands of configurations and relative
// ordering is what matters, not penny-exact accounting.
type Runner struct {
	Base     backtest.Config
	Cache    *marketdata.Cache
	Calendar marketdata.Calendar
	Workers  int
	Logger   *logrus.Logger
}

// Run expands the grid and executes every combination, at most Workers
// at a time. A failed run is recorded as a zero row with its failure
// reason; it never aborts the rest of the sweep. Rows come back in grid
// order regardless of scheduling.
func (r *Runner) Run(ctx context.Context, grid Grid) ([]storage.ResultRow, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	runID := uuid.NewString()

	type job struct {
		idx    int
		period Period
		band   DeltaBand
		rsi    float64
	}
	jobs := make([]job, 0, grid.Size())
	for _, p := range grid.Periods {
		for _, b := range grid.DeltaBands {
			for _, rsi := range grid.RSIThresholds {
				jobs = append(jobs, job{idx: len(jobs), period: p, band: b, rsi: rsi})
			}
		}
	}

	rows := make([]storage.ResultRow, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows[j.idx] = r.runOne(ctx, runID, j.period, j.band, j.rsi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sweep cancelled: %w", err)
	}

	r.Logger.WithFields(logrus.Fields{"run_id": runID, "runs": len(rows)}).Info("sweep complete")
	return rows, nil
}

// runOne executes a single grid cell. Panics from a misbehaving run are
// converted into a failure row so one bad configuration cannot take down
// the sweep.
func (r *Runner) runOne(ctx context.Context, runID string, p Period, b DeltaBand, rsi float64) (row storage.ResultRow) {
	start, _ := time.Parse("2006-01-02", p.Start)
	end, _ := time.Parse("2006-01-02", p.End)

	row = storage.ResultRow{
		RunID:        runID,
		Period:       p.Name,
		DeltaBand:    b.Name,
		RSIThreshold: rsi,
		Start:        start,
		End:          end,
	}

	defer func() {
		if rec := recover(); rec != nil {
			row.FailureReason = fmt.Sprintf("panic: %v", rec)
			r.Logger.WithFields(logrus.Fields{
				"period": p.Name, "delta": b.Name, "rsi": rsi,
			}).Errorf("run panicked: %v", rec)
		}
	}()

	cfg := r.Base
	cfg.Start = start
	cfg.End = end
	cfg.MinDelta = b.Min
	cfg.MaxDelta = b.Max
	cfg.RSIOversold = rsi

	engine, err := backtest.New[num.Float](cfg, r.Cache, r.Calendar, r.Logger)
	if err != nil {
		row.FailureReason = err.Error()
		return row
	}
	rep, err := engine.Run(ctx)
	if err != nil {
		row.FailureReason = err.Error()
		r.Logger.WithFields(logrus.Fields{
			"period": p.Name, "delta": b.Name, "rsi": rsi,
		}).Warnf("run failed: %v", err)
		return row
	}

	row.TotalReturn = rep.TotalReturn
	row.AnnualReturn = rep.AnnualReturn
	row.SharpeRatio = rep.SharpeRatio
	row.MaxDrawdown = rep.MaxDrawdown
	row.WinRate = rep.WinRate
	row.TotalTrades = rep.TotalTrades
	row.FinalValue = rep.FinalValue
	row.PremiumCollected = rep.PremiumCollected
	row.Assignments = rep.Assignments
	return row
}
