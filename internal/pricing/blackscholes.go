// Package pricing implements analytic Black-Scholes pricing for the
// synthetic option chains used by the backtester. No historical option
// quotes exist for the simulated period, so every contract is priced from
// the underlying close and a volatility assumption.
package pricing

import "math"

const daysPerYear = 365.0

// Premium returns the theoretical Black-Scholes premium per share.
//
// Time to expiry is max(1, dte)/365 years. The result is floored at 0.01 so
// a deep-OTM strike never prices at an economically meaningless zero or
// negative value. Degenerate inputs (non-positive spot, strike, volatility)
// return 0 rather than erroring: a zero quote is filtered out downstream by
// the liquidity checks.
func Premium(isPut bool, spot, strike float64, dte int, sigma, riskFree float64) float64 {
	t := yearFraction(dte)
	if spot <= 0 || strike <= 0 || sigma <= 0 || t <= 0 {
		return 0
	}

	d1 := calcD1(spot, strike, t, riskFree, sigma)
	d2 := d1 - sigma*math.Sqrt(t)

	var premium float64
	if isPut {
		premium = strike*math.Exp(-riskFree*t)*normCDF(-d2) - spot*normCDF(-d1)
	} else {
		premium = spot*normCDF(d1) - strike*math.Exp(-riskFree*t)*normCDF(d2)
	}

	return math.Max(0.01, premium)
}

// Delta returns the Black-Scholes delta: Phi(d1)-1 for puts (negative),
// Phi(d1) for calls (positive). Degenerate inputs return 0.
func Delta(isPut bool, spot, strike float64, dte int, sigma, riskFree float64) float64 {
	t := yearFraction(dte)
	if spot <= 0 || strike <= 0 || sigma <= 0 || t <= 0 {
		return 0
	}

	d1 := calcD1(spot, strike, t, riskFree, sigma)
	if isPut {
		return normCDF(d1) - 1
	}
	return normCDF(d1)
}

func yearFraction(dte int) float64 {
	if dte < 1 {
		dte = 1
	}
	return float64(dte) / daysPerYear
}

func calcD1(s, k, t, r, sigma float64) float64 {
	return (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * math.Sqrt(t))
}

// normCDF computes the standard normal cumulative distribution function
// via the error function.
func normCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}
