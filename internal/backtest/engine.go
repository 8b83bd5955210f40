// Package backtest drives a wheel-strategy simulation over a trading-day
// sequence: expirations settle first, open positions are managed, covered
// calls are written against assigned stock, and new cash-secured puts are
// entered where the technical filter allows.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dmaloney/wheelhouse/internal/chain"
	"github.com/dmaloney/wheelhouse/internal/ledger"
	"github.com/dmaloney/wheelhouse/internal/marketdata"
	"github.com/dmaloney/wheelhouse/internal/num"
	"github.com/dmaloney/wheelhouse/internal/report"
	"github.com/dmaloney/wheelhouse/internal/strategy"
)

// SymbolConfig caps how much of the initial capital one underlying may
// consume as put collateral.
type SymbolConfig struct {
	Symbol          string
	MaxPositionFrac float64
}

// RollConfig controls rolling near-expiry OTM short options out a cycle.
type RollConfig struct {
	Enabled bool
	MaxDTE  int
}

// TakeProfitConfig controls early buy-backs of decayed short options.
type TakeProfitConfig struct {
	Enabled bool
	Pct     float64
}

// Config carries every knob of one simulation run. The engine reads no
// ambient process state; everything comes in here.
type Config struct {
	Watchlist      []SymbolConfig
	InitialCapital float64
	Start          time.Time
	End            time.Time

	// Put selection band on |delta|, and the call band for covered calls.
	MinDelta     float64
	MaxDelta     float64
	CallMinDelta float64
	CallMaxDelta float64

	RSIOversold float64
	RSIPeriod   int

	// Synthetic chain pricing assumptions.
	Volatility float64
	RiskFree   float64

	// TargetDTE is used when MonthlyExpirations is false; otherwise option
	// expirations snap to the next monthly cycle (third Friday).
	TargetDTE          int
	MonthlyExpirations bool

	Liquidity      strategy.LiquidityConfig
	MinCallPremium float64
	Rolls          RollConfig
	TakeProfit     TakeProfitConfig
}

// Validate rejects configurations the engine cannot run.
func (c Config) Validate() error {
	if len(c.Watchlist) == 0 {
		return fmt.Errorf("watchlist is empty")
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be > 0 (got %.2f)", c.InitialCapital)
	}
	if !c.Start.Before(c.End) {
		return fmt.Errorf("start %s is not before end %s",
			c.Start.Format("2006-01-02"), c.End.Format("2006-01-02"))
	}
	if c.MinDelta < 0 || c.MaxDelta <= 0 || c.MinDelta >= c.MaxDelta {
		return fmt.Errorf("invalid put delta band [%.2f, %.2f]", c.MinDelta, c.MaxDelta)
	}
	if c.Volatility <= 0 {
		return fmt.Errorf("volatility must be > 0 (got %.2f)", c.Volatility)
	}
	for _, s := range c.Watchlist {
		if s.Symbol == "" {
			return fmt.Errorf("watchlist entry with empty symbol")
		}
		if s.MaxPositionFrac <= 0 || s.MaxPositionFrac > 1 {
			return fmt.Errorf("%s: max position fraction %.2f outside (0, 1]", s.Symbol, s.MaxPositionFrac)
		}
	}
	return nil
}

// Engine runs one simulation with a chosen numeric mode: num.Decimal for
// accounting-precise single runs, num.Float for large parameter sweeps.
type Engine[T num.Real[T]] struct {
	cfg      Config
	cache    *marketdata.Cache
	calendar marketdata.Calendar
	gen      chain.Generator
	analyzer *strategy.Analyzer
	book     *ledger.Ledger[T]
	logger   *logrus.Logger

	dailyValues []report.DailyValue
}

// New builds an engine over a pre-loaded price cache. The cache is shared
// read-only; all mutable run state lives inside the engine.
func New[T num.Real[T]](cfg Config, cache *marketdata.Cache, calendar marketdata.Calendar,
	logger *logrus.Logger) (*Engine[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("backtest config: %w", err)
	}
	return &Engine[T]{
		cfg:      cfg,
		cache:    cache,
		calendar: calendar,
		gen:      chain.Generator{Volatility: cfg.Volatility, RiskFree: cfg.RiskFree},
		analyzer: strategy.NewAnalyzer(cfg.RSIOversold, cfg.RSIPeriod, cfg.Liquidity,
			cfg.MinCallPremium, logger),
		book:   ledger.New[T](cfg.InitialCapital, logger),
		logger: logger,
	}, nil
}

// Run iterates the trading days of the configured window and produces the
// performance report. Cancellation via ctx stops between days.
func (e *Engine[T]) Run(ctx context.Context) (*report.Report, error) {
	days := e.calendar.TradingDays(e.cfg.Start, e.cfg.End)
	if len(days) == 0 {
		return nil, fmt.Errorf("no trading days between %s and %s",
			e.cfg.Start.Format("2006-01-02"), e.cfg.End.Format("2006-01-02"))
	}

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest cancelled: %w", err)
		}
		e.processDay(day)
		e.recordValue(day)
	}

	watchlist := make([]string, 0, len(e.cfg.Watchlist))
	for _, s := range e.cfg.Watchlist {
		watchlist = append(watchlist, s.Symbol)
	}
	return report.Compute(report.Input{
		Start:            e.cfg.Start,
		End:              e.cfg.End,
		InitialCapital:   e.cfg.InitialCapital,
		DailyValues:      e.dailyValues,
		Trades:           e.book.Trades(),
		PremiumCollected: e.book.PremiumCollected().Float64(),
		Assignments:      e.book.Assignments(),
		Watchlist:        watchlist,
	}), nil
}

// DailyValues exposes the mark-to-market series after Run.
func (e *Engine[T]) DailyValues() []report.DailyValue {
	return e.dailyValues
}

func (e *Engine[T]) spot(day time.Time) ledger.SpotFunc {
	return func(symbol string) (float64, bool) {
		return e.cache.Close(symbol, day)
	}
}

func (e *Engine[T]) processDay(day time.Time) {
	spot := e.spot(day)

	// Settlement first: yesterday's obligations resolve before today's
	// decisions.
	e.book.ProcessExpirations(day, spot)

	if e.cfg.Rolls.Enabled || e.cfg.TakeProfit.Enabled {
		e.managePositions(day, spot)
	}
	e.sellCoveredCalls(day, spot)
	e.enterPuts(day, spot)
}

// managePositions walks the open short options and applies take-profit
// closes and defensive rolls.
func (e *Engine[T]) managePositions(day time.Time, spot ledger.SpotFunc) {
	for _, pos := range e.book.ShortOptions() {
		price, ok := spot(pos.Symbol)
		if !ok {
			continue
		}
		dte := pos.DTE(day)
		if dte <= 0 {
			// Settles through ProcessExpirations, not management.
			continue
		}
		class := chain.ClassPut
		if pos.Kind == ledger.KindShortCall {
			class = chain.ClassCall
		}
		_, _, ask := e.gen.Reprice(class, price, pos.Strike, dte)

		if e.cfg.TakeProfit.Enabled {
			if ok, reason := strategy.ShouldTakeProfit(pos.PremiumPerShare.Float64(), ask, e.cfg.TakeProfit.Pct); ok {
				e.logger.WithFields(logrus.Fields{"symbol": pos.Symbol, "kind": pos.Kind}).
					Infof("take profit: %s", reason)
				if err := e.book.CloseOption(day, pos.Symbol, pos.Kind, ask); err != nil {
					e.logger.WithField("symbol", pos.Symbol).Warnf("take profit close failed: %v", err)
				}
				continue
			}
		}

		if e.cfg.Rolls.Enabled && dte <= e.cfg.Rolls.MaxDTE {
			e.tryRoll(day, pos, class, price, ask)
		}
	}
}

func (e *Engine[T]) tryRoll(day time.Time, pos ledger.Position[T], class chain.Class,
	price, closeAsk float64) {
	ok, reason := strategy.ShouldRoll(pos.DTE(day), class, pos.Strike, price)
	if !ok {
		return
	}

	expiration, dte := e.nextExpiration(day)
	var next *chain.Contract
	if class == chain.ClassPut {
		candidates := e.gen.Puts(pos.Symbol, price, expiration, dte, 1)
		next = e.analyzer.SelectPut(candidates, e.cfg.MinDelta, e.cfg.MaxDelta)
	} else {
		stock, held := e.book.Stock(pos.Symbol)
		if !held {
			return
		}
		candidates := e.gen.Calls(pos.Symbol, price, expiration, dte)
		next = e.analyzer.SelectCall(candidates, stock.CostBasisPerShare.Float64(),
			e.cfg.CallMinDelta, e.cfg.CallMaxDelta)
	}
	if next == nil || next.Bid <= closeAsk {
		// Rolling for a debit defeats the purpose; let it expire.
		return
	}

	e.logger.WithFields(logrus.Fields{"symbol": pos.Symbol, "kind": pos.Kind}).
		Infof("rolling: %s", reason)
	if err := e.book.RollOption(day, pos.Symbol, pos.Kind, closeAsk, *next); err != nil {
		e.logger.WithField("symbol", pos.Symbol).Warnf("roll failed: %v", err)
	}
}

// sellCoveredCalls writes calls against assigned stock that has no call
// outstanding. Strikes below cost basis never qualify, so a dry day for
// acceptable calls simply leaves the stock uncovered.
func (e *Engine[T]) sellCoveredCalls(day time.Time, spot ledger.SpotFunc) {
	for _, stock := range e.book.UncoveredStocks() {
		price, ok := spot(stock.Symbol)
		if !ok {
			continue
		}
		expiration, dte := e.nextExpiration(day)
		candidates := e.gen.Calls(stock.Symbol, price, expiration, dte)
		call := e.analyzer.SelectCall(candidates, stock.CostBasisPerShare.Float64(),
			e.cfg.CallMinDelta, e.cfg.CallMaxDelta)
		if call == nil {
			continue
		}
		if err := e.book.SellCall(day, *call); err != nil {
			e.logger.WithField("symbol", stock.Symbol).Warnf("covered call rejected: %v", err)
		}
	}
}

// enterPuts scans the watchlist for new cash-secured put entries: flat
// slot, RSI oversold, collateral within the per-symbol capital cap, and a
// liquid put inside the delta band. Candidates are screened on a coarse 2%
// strike grid before the full 1% ladder is priced.
func (e *Engine[T]) enterPuts(day time.Time, spot ledger.SpotFunc) {
	for _, sc := range e.cfg.Watchlist {
		if e.book.State(sc.Symbol) != ledger.StateFlat {
			continue
		}
		price, ok := spot(sc.Symbol)
		if !ok {
			continue
		}

		window := e.cache.Window(sc.Symbol, day, e.cfg.RSIPeriod+1)
		if enter, reason := e.analyzer.ShouldEnterCSP(sc.Symbol, window); !enter {
			e.logger.WithField("symbol", sc.Symbol).Debugf("no entry: %s", reason)
			continue
		}

		// Collateral gate: one contract secures 100 shares at spot.
		if price*100 > e.cfg.InitialCapital*sc.MaxPositionFrac {
			e.logger.WithFields(logrus.Fields{"symbol": sc.Symbol, "spot": price}).
				Debug("no entry: collateral exceeds position cap")
			continue
		}

		expiration, dte := e.nextExpiration(day)

		// Coarse 2% scan decides whether the symbol is worth pricing in
		// full; the 1% ladder then searches for the strike.
		scan := e.gen.Puts(sc.Symbol, price, expiration, dte, 2)
		if e.analyzer.SelectPut(scan, e.cfg.MinDelta, e.cfg.MaxDelta) == nil {
			e.logger.WithField("symbol", sc.Symbol).Debug("no entry: scan found no candidate")
			continue
		}

		candidates := e.gen.Puts(sc.Symbol, price, expiration, dte, 1)
		put := e.analyzer.SelectPut(candidates, e.cfg.MinDelta, e.cfg.MaxDelta)
		if put == nil {
			continue
		}
		if err := e.book.SellPut(day, *put, 1); err != nil {
			e.logger.WithField("symbol", sc.Symbol).Warnf("put entry rejected: %v", err)
		}
	}
}

// nextExpiration picks the expiration for new contracts: the next monthly
// cycle when configured, otherwise a fixed offset from today.
func (e *Engine[T]) nextExpiration(day time.Time) (time.Time, int) {
	if e.cfg.MonthlyExpirations {
		exp := marketdata.NextMonthlyExpiration(day)
		dte := int(exp.Sub(marketdata.Day(day)).Hours() / 24)
		if dte < 1 {
			dte = 1
		}
		return exp, dte
	}
	return marketdata.Day(day).AddDate(0, 0, e.cfg.TargetDTE), e.cfg.TargetDTE
}

func (e *Engine[T]) recordValue(day time.Time) {
	value := e.book.PortfolioValue(e.spot(day))
	e.dailyValues = append(e.dailyValues, report.DailyValue{Date: day, Value: value.Float64()})
}
