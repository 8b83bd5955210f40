// Package chain generates synthetic option chains for a trading day.
// Strikes are laid out as percentage offsets from spot and priced with the
// Black-Scholes model; bid/ask are synthesized as a fixed spread around the
// theoretical premium, and volume/open interest are placeholder constants
// representing an always-liquid book for entry evaluation.
package chain

import (
	"fmt"
	"time"

	"github.com/dmaloney/wheelhouse/internal/pricing"
	"github.com/dmaloney/wheelhouse/internal/util"
)

// Class identifies the option side of a synthetic contract.
type Class string

const (
	// ClassPut is a put option.
	ClassPut Class = "put"
	// ClassCall is a call option.
	ClassCall Class = "call"
)

// Valid returns true if the Class is one of the defined constants.
func (c Class) Valid() bool {
	return c == ClassPut || c == ClassCall
}

const (
	bidFactor = 0.95
	askFactor = 1.05

	// Placeholder liquidity for synthetic chains; real volume and open
	// interest do not exist for historical synthetic quotes.
	placeholderVolume       = 1000
	placeholderOpenInterest = 5000
)

// Contract is an immutable synthetic option quote. Construct through
// NewContract so malformed quotes fail fast instead of flowing into the
// ledger.
type Contract struct {
	Symbol       string
	Strike       float64
	Class        Class
	Expiration   time.Time
	DTE          int
	Premium      float64
	Delta        float64
	Bid          float64
	Ask          float64
	Volume       int
	OpenInterest int
}

// NewContract validates the required fields of a synthetic quote.
func NewContract(symbol string, class Class, strike float64, expiration time.Time,
	dte int, premium, delta float64) (Contract, error) {
	if symbol == "" {
		return Contract{}, fmt.Errorf("contract symbol is required")
	}
	if !class.Valid() {
		return Contract{}, fmt.Errorf("invalid option class %q", class)
	}
	if strike <= 0 {
		return Contract{}, fmt.Errorf("contract strike must be > 0 (got %.2f)", strike)
	}
	if expiration.IsZero() {
		return Contract{}, fmt.Errorf("contract expiration is required")
	}
	if premium < 0 {
		return Contract{}, fmt.Errorf("contract premium must be >= 0 (got %.4f)", premium)
	}

	return Contract{
		Symbol:       symbol,
		Strike:       strike,
		Class:        class,
		Expiration:   expiration,
		DTE:          dte,
		Premium:      premium,
		Delta:        delta,
		Bid:          premium * bidFactor,
		Ask:          premium * askFactor,
		Volume:       placeholderVolume,
		OpenInterest: placeholderOpenInterest,
	}, nil
}

// Generator prices synthetic ladders with fixed volatility and rate
// assumptions.
type Generator struct {
	Volatility float64
	RiskFree   float64
}

// Puts returns candidate puts at strikes from -30% to -5% of spot in
// stepPct increments, ordered by strike ascending. stepPct is 2 for entry
// scans and 1 for the cash-secured-put search.
func (g Generator) Puts(symbol string, spot float64, expiration time.Time, dte, stepPct int) []Contract {
	return g.ladder(symbol, ClassPut, spot, expiration, dte, -30, -5, stepPct)
}

// Calls returns candidate calls at strikes from +2% to +20% of spot in 1%
// increments, ordered by strike ascending.
func (g Generator) Calls(symbol string, spot float64, expiration time.Time, dte int) []Contract {
	return g.ladder(symbol, ClassCall, spot, expiration, dte, 2, 20, 1)
}

func (g Generator) ladder(symbol string, class Class, spot float64, expiration time.Time,
	dte, fromPct, toPct, stepPct int) []Contract {
	if spot <= 0 || stepPct <= 0 {
		return nil
	}

	isPut := class == ClassPut
	contracts := make([]Contract, 0, (toPct-fromPct)/stepPct+1)
	for pct := fromPct; pct <= toPct; pct += stepPct {
		strike := util.RoundToTick(spot*(1+float64(pct)/100), 0.01)
		premium := pricing.Premium(isPut, spot, strike, dte, g.Volatility, g.RiskFree)
		delta := pricing.Delta(isPut, spot, strike, dte, g.Volatility, g.RiskFree)

		ct, err := NewContract(symbol, class, strike, expiration, dte, premium, delta)
		if err != nil {
			// Degenerate strike from a degenerate spot; nothing to quote.
			continue
		}
		contracts = append(contracts, ct)
	}
	return contracts
}

// Reprice marks an already-open contract against today's spot, returning
// the theoretical premium and the synthetic bid/ask around it. Used when
// valuing a short option for an early close or a roll.
func (g Generator) Reprice(class Class, spot, strike float64, dte int) (premium, bid, ask float64) {
	premium = pricing.Premium(class == ClassPut, spot, strike, dte, g.Volatility, g.RiskFree)
	return premium, premium * bidFactor, premium * askFactor
}
