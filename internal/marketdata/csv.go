package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CSVSource reads daily closes from local files, one <SYMBOL>.csv per
// symbol with a "date,close" header. Useful for offline runs and tests.
type CSVSource struct {
	dir string
}

// NewCSVSource creates a provider rooted at dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

// DailyCloses implements PriceSource.
func (s *CSVSource) DailyCloses(_ context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	path := filepath.Join(s.dir, strings.ToUpper(symbol)+".csv")
	f, err := os.Open(path) // #nosec G304 -- path is derived from a configured data directory
	if err != nil {
		return nil, fmt.Errorf("opening price file for %s: %w", symbol, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading price file for %s: %w", symbol, err)
	}

	start, end = Day(start), Day(end)
	var bars []Bar
	for i, rec := range records {
		if len(rec) < 2 {
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "date") {
			continue
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("price file for %s line %d: %w", symbol, i+1, err)
		}
		closePx, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("price file for %s line %d: %w", symbol, i+1, err)
		}
		date = Day(date)
		if date.Before(start) || date.After(end) {
			continue
		}
		bars = append(bars, Bar{Date: date, Close: closePx})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}
