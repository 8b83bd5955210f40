package report

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmaloney/wheelhouse/internal/ledger"
)

var reportStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func series(values ...float64) []DailyValue {
	out := make([]DailyValue, len(values))
	for i, v := range values {
		out[i] = DailyValue{Date: reportStart.AddDate(0, 0, i), Value: v}
	}
	return out
}

func TestCompute_TotalAndAnnualReturn(t *testing.T) {
	end := reportStart.AddDate(1, 0, 0)
	r := Compute(Input{
		Start:          reportStart,
		End:            end,
		InitialCapital: 100000,
		DailyValues:    series(100000, 105000, 110000),
	})

	assert.InDelta(t, 0.10, r.TotalReturn, 1e-9)
	// 366 elapsed days (2024 is a leap year) annualizes just under the
	// simple return.
	assert.InDelta(t, math.Pow(1.10, 365.0/366.0)-1, r.AnnualReturn, 1e-9)
	assert.Equal(t, 110000.0, r.FinalValue)
}

func TestCompute_ZeroVarianceSharpeIsZero(t *testing.T) {
	r := Compute(Input{
		Start:          reportStart,
		End:            reportStart.AddDate(0, 1, 0),
		InitialCapital: 100000,
		DailyValues:    series(100000, 100000, 100000, 100000),
	})

	assert.Equal(t, 0.0, r.SharpeRatio)
	assert.False(t, math.IsNaN(r.SharpeRatio))
	assert.False(t, math.IsInf(r.SharpeRatio, 0))
}

func TestCompute_SharpePositiveForSteadyGains(t *testing.T) {
	values := make([]float64, 50)
	v := 100000.0
	for i := range values {
		values[i] = v
		v *= 1.001
	}
	r := Compute(Input{
		Start:          reportStart,
		End:            reportStart.AddDate(0, 0, 49),
		InitialCapital: 100000,
		DailyValues:    series(values...),
	})

	assert.Greater(t, r.SharpeRatio, 0.0)
}

func TestCompute_MaxDrawdown(t *testing.T) {
	r := Compute(Input{
		Start:          reportStart,
		End:            reportStart.AddDate(0, 0, 4),
		InitialCapital: 100000,
		DailyValues:    series(100000, 120000, 90000, 110000, 108000),
	})

	// Peak 120000, trough 90000: -25%.
	assert.InDelta(t, -0.25, r.MaxDrawdown, 1e-9)
}

func TestCompute_MaxDrawdownZeroWhenMonotonic(t *testing.T) {
	r := Compute(Input{
		Start:          reportStart,
		End:            reportStart.AddDate(0, 0, 2),
		InitialCapital: 100000,
		DailyValues:    series(100000, 101000, 102000),
	})
	assert.Equal(t, 0.0, r.MaxDrawdown)
}

func TestCompute_EmptySeries(t *testing.T) {
	r := Compute(Input{
		Start:          reportStart,
		End:            reportStart.AddDate(0, 1, 0),
		InitialCapital: 100000,
	})

	assert.Equal(t, 100000.0, r.FinalValue)
	assert.Zero(t, r.TotalReturn)
	assert.Zero(t, r.SharpeRatio)
}

func TestWinRate_AssignmentWidensDenominator(t *testing.T) {
	trades := []ledger.Trade{
		{Symbol: "AAPL", Action: ledger.ActionSellPut},
		{Symbol: "AAPL", Action: ledger.ActionPutExpired},
		{Symbol: "MSFT", Action: ledger.ActionSellPut},
		{Symbol: "MSFT", Action: ledger.ActionPutAssigned},
		{Symbol: "MSFT", Action: ledger.ActionSellCall},
		{Symbol: "MSFT", Action: ledger.ActionCallAssigned},
		{Symbol: "AMD", Action: ledger.ActionSellPut},
		{Symbol: "AMD", Action: ledger.ActionPutRolled},
	}
	r := Compute(Input{
		Start:          reportStart,
		End:            reportStart.AddDate(0, 3, 0),
		InitialCapital: 100000,
		DailyValues:    series(100000, 100500),
		Trades:         trades,
	})

	// Wins: PUT_EXPIRED, CALL_ASSIGNED. Closed events additionally count
	// the assignment. Entries and rolls are excluded entirely.
	assert.InDelta(t, 2.0/3.0, r.WinRate, 1e-9)
	assert.Equal(t, len(trades), r.TotalTrades)
}

func TestWinRate_NoClosedEvents(t *testing.T) {
	r := Compute(Input{
		Start:          reportStart,
		End:            reportStart.AddDate(0, 1, 0),
		InitialCapital: 100000,
		DailyValues:    series(100000, 100100),
		Trades:         []ledger.Trade{{Symbol: "AAPL", Action: ledger.ActionSellPut}},
	})
	assert.Zero(t, r.WinRate)
}

func TestSymbolSummaries_HoldingAndExited(t *testing.T) {
	trades := []ledger.Trade{
		// AAPL: full wheel, exited with profit.
		{Symbol: "AAPL", Action: ledger.ActionSellPut, Price: 2.00, Quantity: 1},
		{Symbol: "AAPL", Action: ledger.ActionPutAssigned, Price: 90, Quantity: 100},
		{Symbol: "AAPL", Action: ledger.ActionSellCall, Price: 1.50, Quantity: 1},
		{Symbol: "AAPL", Action: ledger.ActionCallAssigned, Price: 92, Quantity: 100},
		// MSFT: assigned and still holding.
		{Symbol: "MSFT", Action: ledger.ActionSellPut, Price: 3.00, Quantity: 1},
		{Symbol: "MSFT", Action: ledger.ActionPutAssigned, Price: 300, Quantity: 100},
	}
	r := Compute(Input{
		Start:          reportStart,
		End:            reportStart.AddDate(0, 6, 0),
		InitialCapital: 100000,
		DailyValues:    series(100000, 100550),
		Trades:         trades,
		Watchlist:      []string{"AAPL", "MSFT", "AMD"},
	})

	require.Len(t, r.Symbols, 3)

	aapl := r.Symbols["AAPL"]
	assert.Equal(t, "EXITED", aapl.Status)
	assert.InDelta(t, 350, aapl.TotalPremium, 1e-9)
	// (9200 revenue - 9000 cost) + 350 premium.
	assert.InDelta(t, 550, aapl.NetPnL, 1e-9)

	msft := r.Symbols["MSFT"]
	assert.Equal(t, "HOLDING", msft.Status)
	assert.Equal(t, 100, msft.Shares)
	// (30000 cost - 300 premium) / 100 shares.
	assert.InDelta(t, 297, msft.AdjustedCostBasis, 1e-9)

	amd := r.Symbols["AMD"]
	assert.Equal(t, "EXITED", amd.Status)
	assert.Zero(t, amd.TotalPremium)
}

func TestSymbolSummaries_RollsAndClosesReconcileWithLedgerPremium(t *testing.T) {
	trades := []ledger.Trade{
		// AAPL: put sold at 2.00, rolled for a 1.50 net credit (buy back
		// 0.40, reopen 1.90), then expired worthless.
		{Symbol: "AAPL", Action: ledger.ActionSellPut, Price: 2.00, Quantity: 1},
		{Symbol: "AAPL", Action: ledger.ActionPutRolled, Price: 1.50, Quantity: 1},
		{Symbol: "AAPL", Action: ledger.ActionPutExpired, Price: 0, Quantity: 100},
		// MSFT: put sold at 3.00 and bought back early at 0.50.
		{Symbol: "MSFT", Action: ledger.ActionSellPut, Price: 3.00, Quantity: 1},
		{Symbol: "MSFT", Action: ledger.ActionPutClosed, Price: 0.50, Quantity: 1},
	}
	r := Compute(Input{
		Start:            reportStart,
		End:              reportStart.AddDate(0, 3, 0),
		InitialCapital:   100000,
		DailyValues:      series(100000, 100600),
		Trades:           trades,
		PremiumCollected: 600,
		Watchlist:        []string{"AAPL", "MSFT"},
	})

	aapl := r.Symbols["AAPL"]
	assert.Equal(t, "EXITED", aapl.Status)
	// 200 sold + 150 roll net credit.
	assert.InDelta(t, 350, aapl.TotalPremium, 1e-9)
	assert.InDelta(t, 350, aapl.NetPnL, 1e-9)

	msft := r.Symbols["MSFT"]
	assert.Equal(t, "EXITED", msft.Status)
	// 300 sold - 50 buy-back.
	assert.InDelta(t, 250, msft.TotalPremium, 1e-9)

	var sum float64
	for _, s := range r.Symbols {
		sum += s.TotalPremium
	}
	assert.InDelta(t, r.PremiumCollected, sum, 1e-9,
		"per-symbol premium must add up to the ledger total")
}
