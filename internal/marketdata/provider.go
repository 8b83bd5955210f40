// Package marketdata supplies daily price history and the trading-day
// calendar to the simulation. The core consumes only the two interfaces
// here; concrete providers (Alpaca, local CSV) live alongside them.
package marketdata

import (
	"context"
	"time"
)

// Bar is one daily close. Dates are calendar days, midnight UTC.
type Bar struct {
	Date  time.Time
	Close float64
}

// PriceSource returns daily closes for a symbol, ordered by date
// ascending, tolerant of gaps. Implementations return an empty slice (and
// an error for the caller to log) on failure; the simulation core treats
// missing data as a hold, never as fatal.
type PriceSource interface {
	DailyCloses(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}

// Calendar produces the ordered market-session dates in a range.
type Calendar interface {
	TradingDays(start, end time.Time) []time.Time
}

// Day normalizes a time to its calendar day at midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
