// Package strategy holds the technical filter for the wheel: RSI entry
// gating, liquidity screening of synthetic quotes, and contract selection
// for cash-secured puts and covered calls.
package strategy

import (
	"fmt"
	"math"

	"github.com/dmaloney/wheelhouse/internal/chain"
	"github.com/sirupsen/logrus"
)

// LiquidityConfig defines the minimum quality a contract must show before
// it can be sold.
type LiquidityConfig struct {
	MinVolume       int
	MinOpenInterest int
	MaxSpreadPct    float64
}

// SpreadPct returns the bid/ask spread as a percentage of the ask.
// A zero ask is reported as +Inf, which always fails the liquidity check.
func SpreadPct(bid, ask float64) float64 {
	if ask == 0 {
		return math.Inf(1)
	}
	return (ask - bid) / ask * 100
}

// Check reports whether the contract meets the liquidity requirements.
func (c LiquidityConfig) Check(ct chain.Contract) (bool, string) {
	if ct.Volume < c.MinVolume {
		return false, fmt.Sprintf("low volume: %d < %d", ct.Volume, c.MinVolume)
	}
	if ct.OpenInterest < c.MinOpenInterest {
		return false, fmt.Sprintf("low open interest: %d < %d", ct.OpenInterest, c.MinOpenInterest)
	}
	if spread := SpreadPct(ct.Bid, ct.Ask); spread > c.MaxSpreadPct {
		return false, fmt.Sprintf("wide spread: %.1f%% > %.1f%%", spread, c.MaxSpreadPct)
	}
	return true, "liquid"
}

// Analyzer applies the entry and management rules of the wheel.
type Analyzer struct {
	RSIOversold    float64
	RSIPeriod      int
	Liquidity      LiquidityConfig
	MinCallPremium float64

	logger *logrus.Logger
}

// NewAnalyzer builds an Analyzer. The logger is required; the analyzer
// never reads ambient process state.
func NewAnalyzer(rsiOversold float64, rsiPeriod int, liq LiquidityConfig,
	minCallPremium float64, logger *logrus.Logger) *Analyzer {
	if rsiPeriod <= 0 {
		rsiPeriod = DefaultRSIPeriod
	}
	return &Analyzer{
		RSIOversold:    rsiOversold,
		RSIPeriod:      rsiPeriod,
		Liquidity:      liq,
		MinCallPremium: minCallPremium,
		logger:         logger,
	}
}

// ShouldEnterCSP gates a new cash-secured-put entry on the RSI of the
// trailing close window. If RSI is above the oversold threshold no put is
// sold regardless of liquidity.
func (a *Analyzer) ShouldEnterCSP(symbol string, closes []float64) (bool, string) {
	rsi := RSI(closes, a.RSIPeriod)
	if rsi > a.RSIOversold {
		return false, fmt.Sprintf("RSI %.2f > %.2f", rsi, a.RSIOversold)
	}
	return true, fmt.Sprintf("RSI %.2f oversold", rsi)
}

// SelectPut picks the best qualifying put from an ascending-strike ladder:
// liquid, |delta| inside [minDelta, maxDelta], maximizing bid premium.
// Ties keep the contract encountered first in scan order. Returns nil when
// no contract qualifies, which is a normal "no action today" outcome.
func (a *Analyzer) SelectPut(contracts []chain.Contract, minDelta, maxDelta float64) *chain.Contract {
	var best *chain.Contract
	bestScore := -1.0

	for i := range contracts {
		ct := contracts[i]
		if ct.Class != chain.ClassPut {
			continue
		}
		if ok, reason := a.Liquidity.Check(ct); !ok {
			a.logger.WithFields(logrus.Fields{
				"symbol": ct.Symbol,
				"strike": ct.Strike,
			}).Debugf("put rejected: %s", reason)
			continue
		}
		absDelta := math.Abs(ct.Delta)
		if absDelta < minDelta || absDelta > maxDelta {
			continue
		}
		if ct.Bid > bestScore {
			bestScore = ct.Bid
			best = &contracts[i]
		}
	}
	return best
}

// SelectCall picks the best qualifying covered call: liquid, strike at or
// above cost basis (a call below cost basis would lock in a loss on
// assignment), delta inside the band, and bid premium above the minimum
// floor. Highest bid wins, first-in-scan-order on ties.
func (a *Analyzer) SelectCall(contracts []chain.Contract, costBasis, minDelta, maxDelta float64) *chain.Contract {
	var best *chain.Contract
	bestScore := -1.0

	for i := range contracts {
		ct := contracts[i]
		if ct.Class != chain.ClassCall {
			continue
		}
		if ct.Strike < costBasis {
			continue
		}
		if ok, _ := a.Liquidity.Check(ct); !ok {
			continue
		}
		if ct.Delta < minDelta || ct.Delta > maxDelta {
			continue
		}
		if ct.Bid < a.MinCallPremium {
			continue
		}
		if ct.Bid > bestScore {
			bestScore = ct.Bid
			best = &contracts[i]
		}
	}
	return best
}

// rollWindowDTE is the near-expiry window in which OTM contracts are
// rolled one cycle out for additional premium.
const rollWindowDTE = 5

// ShouldRoll reports whether a short option should be rolled. Only
// near-expiry out-of-the-money contracts roll; an in-the-money contract is
// deliberately left to expire into assignment or call-away, since that is
// the intended mechanic of the wheel.
func ShouldRoll(dte int, class chain.Class, strike, spot float64) (bool, string) {
	if dte > rollWindowDTE {
		return false, "not near expiry"
	}
	if class == chain.ClassPut && spot > strike {
		return true, fmt.Sprintf("OTM put expiring in %d days", dte)
	}
	if class == chain.ClassCall && spot < strike {
		return true, fmt.Sprintf("OTM call expiring in %d days", dte)
	}
	return false, "ITM near expiry, allowing assignment"
}

// negligiblePrice closes a short option outright once its value has
// decayed to noise, freeing the capital early.
const negligiblePrice = 0.05

// ShouldTakeProfit reports whether a short option should be bought back
// early: unrealized profit at or above takeProfitPct of the premium
// received, or the option price decayed to a negligible level.
func ShouldTakeProfit(premiumReceived, currentPrice, takeProfitPct float64) (bool, string) {
	if premiumReceived <= 0 {
		return false, "no premium recorded"
	}
	if currentPrice <= negligiblePrice {
		return true, fmt.Sprintf("option price negligible ($%.2f)", currentPrice)
	}
	profitPct := (premiumReceived - currentPrice) / premiumReceived * 100
	if profitPct >= takeProfitPct {
		return true, fmt.Sprintf("profit %.1f%% >= %.1f%% target", profitPct, takeProfitPct)
	}
	return false, fmt.Sprintf("profit %.1f%% below %.1f%% target", profitPct, takeProfitPct)
}
