package marketdata

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Cache holds all price history for a sweep in memory, loaded once and
// immutable afterward. Sharing it read-only across simulation runs is the
// only cross-run resource; no locking is needed because nothing mutates it
// after LoadCache returns.
type Cache struct {
	bars  map[string][]Bar
	index map[string]map[string]int // symbol -> yyyy-mm-dd -> bars offset
}

// LoadCache fetches [start-lookbackDays, end] for every symbol up front.
// A symbol whose fetch fails is logged and left out; the simulation treats
// it as having no data rather than failing the sweep.
func LoadCache(ctx context.Context, src PriceSource, symbols []string,
	start, end time.Time, lookbackDays int, logger *logrus.Logger) *Cache {
	c := &Cache{
		bars:  make(map[string][]Bar, len(symbols)),
		index: make(map[string]map[string]int, len(symbols)),
	}
	fetchStart := Day(start).AddDate(0, 0, -lookbackDays)
	for _, symbol := range symbols {
		bars, err := src.DailyCloses(ctx, symbol, fetchStart, Day(end))
		if err != nil {
			logger.WithField("symbol", symbol).Warnf("price history load failed: %v", err)
			continue
		}
		if len(bars) == 0 {
			logger.WithField("symbol", symbol).Warn("no price history returned")
			continue
		}
		c.add(symbol, bars)
		logger.WithFields(logrus.Fields{"symbol": symbol, "bars": len(bars)}).Debug("price history loaded")
	}
	return c
}

// NewCacheFromBars builds a cache directly from in-memory series, ordered
// by date ascending. Used by tests and synthetic runs.
func NewCacheFromBars(series map[string][]Bar) *Cache {
	c := &Cache{
		bars:  make(map[string][]Bar, len(series)),
		index: make(map[string]map[string]int, len(series)),
	}
	for symbol, bars := range series {
		c.add(symbol, bars)
	}
	return c
}

func (c *Cache) add(symbol string, bars []Bar) {
	c.bars[symbol] = bars
	idx := make(map[string]int, len(bars))
	for i, b := range bars {
		idx[b.Date.Format("2006-01-02")] = i
	}
	c.index[symbol] = idx
}

// HasSymbol reports whether any history is loaded for the symbol.
func (c *Cache) HasSymbol(symbol string) bool {
	return len(c.bars[symbol]) > 0
}

// Close returns the closing price for the symbol on the exact date.
func (c *Cache) Close(symbol string, date time.Time) (float64, bool) {
	idx, ok := c.index[symbol]
	if !ok {
		return 0, false
	}
	i, ok := idx[Day(date).Format("2006-01-02")]
	if !ok {
		return 0, false
	}
	return c.bars[symbol][i].Close, true
}

// Window returns up to n trailing closes ending at the most recent bar on
// or before date, oldest first. Returns nil when no bar exists yet.
func (c *Cache) Window(symbol string, date time.Time, n int) []float64 {
	bars, ok := c.bars[symbol]
	if !ok || n <= 0 {
		return nil
	}
	date = Day(date)

	// Latest bar at or before date.
	end := -1
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].Date.After(date) {
			end = i
			break
		}
	}
	if end < 0 {
		return nil
	}

	startIdx := end - n + 1
	if startIdx < 0 {
		startIdx = 0
	}
	window := make([]float64, 0, end-startIdx+1)
	for _, b := range bars[startIdx : end+1] {
		window = append(window, b.Close)
	}
	return window
}
