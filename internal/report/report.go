package report

import (
	"math"
	"time"

	"github.com/dmaloney/wheelhouse/internal/ledger"
)

const tradingDaysPerYear = 252

// DailyValue is one mark-to-market observation of the portfolio.
type DailyValue struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Report summarizes a completed simulation run.
type Report struct {
	Start            time.Time                `json:"start"`
	End              time.Time                `json:"end"`
	InitialCapital   float64                  `json:"initial_capital"`
	FinalValue       float64                  `json:"final_value"`
	TotalReturn      float64                  `json:"total_return"`
	AnnualReturn     float64                  `json:"annual_return"`
	SharpeRatio      float64                  `json:"sharpe_ratio"`
	MaxDrawdown      float64                  `json:"max_drawdown"`
	WinRate          float64                  `json:"win_rate"`
	TotalTrades      int                      `json:"total_trades"`
	PremiumCollected float64                  `json:"premium_collected"`
	Assignments      int                      `json:"assignments"`
	Symbols          map[string]SymbolSummary `json:"symbols"`
	Trades           []ledger.Trade           `json:"trades"`
}

// SymbolSummary aggregates the wheel outcome for a single underlying.
type SymbolSummary struct {
	Status            string  `json:"status"` // HOLDING or EXITED
	Shares            int     `json:"shares"`
	AdjustedCostBasis float64 `json:"adjusted_cost_basis,omitempty"`
	TotalPremium      float64 `json:"total_premium"`
	NetPnL            float64 `json:"net_pnl,omitempty"`
}

// Input carries everything the reporter needs from a finished run.
type Input struct {
	Start            time.Time
	End              time.Time
	InitialCapital   float64
	DailyValues      []DailyValue
	Trades           []ledger.Trade
	PremiumCollected float64
	Assignments      int
	Watchlist        []string
}

// winActions are premium-capture outcomes. A put assignment continues the
// cycle rather than ending it, so it widens the denominator without
// scoring as a win.
var winActions = map[ledger.Action]bool{
	ledger.ActionPutExpired:   true,
	ledger.ActionCallExpired:  true,
	ledger.ActionCallAssigned: true,
}

var closedActions = map[ledger.Action]bool{
	ledger.ActionPutExpired:   true,
	ledger.ActionCallExpired:  true,
	ledger.ActionCallAssigned: true,
	ledger.ActionPutAssigned:  true,
}

// Compute derives all performance metrics from the daily value series and
// trade log. Every metric is guarded so it never returns NaN or Inf.
func Compute(in Input) *Report {
	r := &Report{
		Start:            in.Start,
		End:              in.End,
		InitialCapital:   in.InitialCapital,
		TotalTrades:      len(in.Trades),
		PremiumCollected: in.PremiumCollected,
		Assignments:      in.Assignments,
		Trades:           in.Trades,
		Symbols:          symbolSummaries(in.Watchlist, in.Trades),
	}
	if len(in.DailyValues) == 0 {
		r.FinalValue = in.InitialCapital
		return r
	}

	first := in.DailyValues[0].Value
	last := in.DailyValues[len(in.DailyValues)-1].Value
	r.FinalValue = last
	if first > 0 {
		r.TotalReturn = (last - first) / first
	}

	days := int(in.End.Sub(in.Start).Hours() / 24)
	if days > 0 {
		r.AnnualReturn = math.Pow(1+r.TotalReturn, 365/float64(days)) - 1
	}

	r.SharpeRatio = sharpe(in.DailyValues)
	r.MaxDrawdown = maxDrawdown(in.DailyValues)
	r.WinRate = winRate(in.Trades)
	return r
}

// sharpe annualizes mean/std of daily simple returns. No risk-free rate
// is subtracted; the ratio is reported against a zero baseline.
func sharpe(values []DailyValue) float64 {
	if len(values) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev := values[i-1].Value
		if prev == 0 {
			continue
		}
		returns = append(returns, values[i].Value/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

func maxDrawdown(values []DailyValue) float64 {
	var peak, maxDD float64
	for _, v := range values {
		if v.Value > peak {
			peak = v.Value
		}
		if peak == 0 {
			continue
		}
		dd := (v.Value - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func winRate(trades []ledger.Trade) float64 {
	var wins, closed int
	for _, t := range trades {
		if winActions[t.Action] {
			wins++
		}
		if closedActions[t.Action] {
			closed++
		}
	}
	if closed == 0 {
		return 0
	}
	return float64(wins) / float64(closed)
}

func symbolSummaries(watchlist []string, trades []ledger.Trade) map[string]SymbolSummary {
	type tally struct {
		premium float64
		cost    float64
		revenue float64
		shares  int
	}
	tallies := make(map[string]*tally, len(watchlist))
	for _, symbol := range watchlist {
		tallies[symbol] = &tally{}
	}

	for _, t := range trades {
		acc, ok := tallies[t.Symbol]
		if !ok {
			continue
		}
		switch t.Action {
		case ledger.ActionSellPut, ledger.ActionSellCall:
			// Quantity is contracts, price is premium per share.
			acc.premium += t.Price * float64(t.Quantity) * 100
		case ledger.ActionPutRolled, ledger.ActionCallRolled:
			// Price is the per-share net credit of the close/reopen pair.
			acc.premium += t.Price * float64(t.Quantity) * 100
		case ledger.ActionPutClosed, ledger.ActionCallClosed:
			// Early buy-back hands part of the premium back.
			acc.premium -= t.Price * float64(t.Quantity) * 100
		case ledger.ActionPutAssigned:
			acc.cost += t.Price * float64(t.Quantity)
			acc.shares += t.Quantity
		case ledger.ActionCallAssigned:
			acc.revenue += t.Price * float64(t.Quantity)
			acc.shares -= t.Quantity
			if acc.shares < 0 {
				acc.shares = 0
			}
		}
	}

	out := make(map[string]SymbolSummary, len(tallies))
	for symbol, acc := range tallies {
		s := SymbolSummary{TotalPremium: acc.premium}
		if acc.shares > 0 {
			s.Status = "HOLDING"
			s.Shares = acc.shares
			s.AdjustedCostBasis = (acc.cost - acc.revenue - acc.premium) / float64(acc.shares)
		} else {
			s.Status = "EXITED"
			s.NetPnL = (acc.revenue - acc.cost) + acc.premium
		}
		out[symbol] = s
	}
	return out
}
