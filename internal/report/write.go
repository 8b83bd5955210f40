package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// WriteJSON writes the full report, including the trade log, to
// report.json under outdir.
func WriteJSON(r *Report, outdir string) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(filepath.Join(outdir, "report.json"), b, 0644)
}

// WriteTradesCSV writes the trade log to trades.csv under outdir.
func WriteTradesCSV(r *Report, outdir string) error {
	f, err := os.Create(filepath.Join(outdir, "trades.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"date", "symbol", "action", "price", "quantity"}); err != nil {
		return err
	}
	for _, t := range r.Trades {
		row := []string{
			t.Date.Format("2006-01-02"),
			t.Symbol,
			string(t.Action),
			fmt.Sprintf("%.2f", t.Price),
			strconv.Itoa(t.Quantity),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// Render prints a human-readable summary to w.
func Render(w io.Writer, r *Report) {
	fmt.Fprintf(w, "Period:            %s to %s\n", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	fmt.Fprintf(w, "Initial capital:   $%.2f\n", r.InitialCapital)
	fmt.Fprintf(w, "Final value:       $%.2f\n", r.FinalValue)
	fmt.Fprintf(w, "Total return:      %+.2f%%\n", r.TotalReturn*100)
	fmt.Fprintf(w, "Annual return:     %+.2f%%\n", r.AnnualReturn*100)
	fmt.Fprintf(w, "Sharpe ratio:      %.2f\n", r.SharpeRatio)
	fmt.Fprintf(w, "Max drawdown:      %.2f%%\n", r.MaxDrawdown*100)
	fmt.Fprintf(w, "Win rate:          %.1f%%\n", r.WinRate*100)
	fmt.Fprintf(w, "Trades:            %d\n", r.TotalTrades)
	fmt.Fprintf(w, "Premium collected: $%.2f\n", r.PremiumCollected)
	fmt.Fprintf(w, "Assignments:       %d\n", r.Assignments)

	if len(r.Symbols) == 0 {
		return
	}
	symbols := make([]string, 0, len(r.Symbols))
	for s := range r.Symbols {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	fmt.Fprintln(w, "\nPer-symbol summary:")
	for _, symbol := range symbols {
		s := r.Symbols[symbol]
		if s.Status == "HOLDING" {
			fmt.Fprintf(w, "  %-6s HOLDING %d shares, adjusted cost basis $%.2f, premium $%.2f\n",
				symbol, s.Shares, s.AdjustedCostBasis, s.TotalPremium)
		} else {
			fmt.Fprintf(w, "  %-6s EXITED, net P&L $%.2f, premium $%.2f\n",
				symbol, s.NetPnL, s.TotalPremium)
		}
	}
}
