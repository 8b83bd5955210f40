package marketdata

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// stubSource serves canned bars and fails on demand.
type stubSource struct {
	bars map[string][]Bar
	fail map[string]bool
}

func (s *stubSource) DailyCloses(_ context.Context, symbol string, _, _ time.Time) ([]Bar, error) {
	if s.fail[symbol] {
		return nil, fmt.Errorf("stub failure for %s", symbol)
	}
	return s.bars[symbol], nil
}

func weekBars(start time.Time, closes ...float64) []Bar {
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{Date: start.AddDate(0, 0, i), Close: c}
	}
	return bars
}

func TestLoadCache_SkipsFailedSymbols(t *testing.T) {
	start := date(2024, time.June, 3)
	src := &stubSource{
		bars: map[string][]Bar{
			"AAPL": weekBars(start, 100, 101, 102),
		},
		fail: map[string]bool{"MSFT": true},
	}

	cache := LoadCache(context.Background(), src, []string{"AAPL", "MSFT", "EMPTY"},
		start, start.AddDate(0, 0, 5), 0, quietLogger())

	assert.True(t, cache.HasSymbol("AAPL"))
	assert.False(t, cache.HasSymbol("MSFT"), "failed fetch leaves the symbol out")
	assert.False(t, cache.HasSymbol("EMPTY"), "empty history leaves the symbol out")
}

func TestCache_CloseExactDate(t *testing.T) {
	start := date(2024, time.June, 3)
	cache := NewCacheFromBars(map[string][]Bar{
		"AAPL": weekBars(start, 100, 101, 102),
	})

	px, ok := cache.Close("AAPL", start.AddDate(0, 0, 1))
	require.True(t, ok)
	assert.Equal(t, 101.0, px)

	_, ok = cache.Close("AAPL", start.AddDate(0, 0, 10))
	assert.False(t, ok)

	_, ok = cache.Close("MSFT", start)
	assert.False(t, ok)
}

func TestCache_Window(t *testing.T) {
	start := date(2024, time.June, 3)
	cache := NewCacheFromBars(map[string][]Bar{
		"AAPL": weekBars(start, 100, 101, 102, 103, 104),
	})

	window := cache.Window("AAPL", start.AddDate(0, 0, 4), 3)
	assert.Equal(t, []float64{102, 103, 104}, window)
}

func TestCache_WindowSkipsGapDays(t *testing.T) {
	start := date(2024, time.June, 3)
	cache := NewCacheFromBars(map[string][]Bar{
		"AAPL": weekBars(start, 100, 101, 102),
	})

	// Asking on a later date returns the trailing bars at or before it.
	window := cache.Window("AAPL", start.AddDate(0, 0, 9), 2)
	assert.Equal(t, []float64{101, 102}, window)
}

func TestCache_WindowShorterThanRequested(t *testing.T) {
	start := date(2024, time.June, 3)
	cache := NewCacheFromBars(map[string][]Bar{
		"AAPL": weekBars(start, 100, 101),
	})

	window := cache.Window("AAPL", start.AddDate(0, 0, 1), 15)
	assert.Equal(t, []float64{100, 101}, window)
}

func TestCache_WindowBeforeHistory(t *testing.T) {
	start := date(2024, time.June, 3)
	cache := NewCacheFromBars(map[string][]Bar{
		"AAPL": weekBars(start, 100, 101),
	})

	assert.Nil(t, cache.Window("AAPL", start.AddDate(0, 0, -1), 5))
	assert.Nil(t, cache.Window("MSFT", start, 5))
	assert.Nil(t, cache.Window("AAPL", start, 0))
}
