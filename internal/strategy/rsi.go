package strategy

// DefaultRSIPeriod is the classic 14-period lookback.
const DefaultRSIPeriod = 14

// neutralRSI is returned when there is not enough history to compute the
// oscillator. A neutral reading intentionally suppresses entries until
// enough history accumulates.
const neutralRSI = 50.0

// RSI computes the Relative Strength Index over the trailing close series
// using a simple rolling mean of gains and losses (not Wilder exponential
// smoothing). It needs period+1 closes; with fewer it returns a neutral
// 50.0 rather than failing.
//
// A series with zero losses is guarded against division by zero: all-gain
// series return 100, a perfectly flat series returns the neutral 50.0.
// The result is always defined, never NaN.
func RSI(closes []float64, period int) float64 {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	if len(closes) < period+1 {
		return neutralRSI
	}

	// Average gains/losses over the last `period` changes.
	window := closes[len(closes)-(period+1):]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		if avgGain == 0 {
			return neutralRSI
		}
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}
