// Package num provides the numeric modes the ledger is parameterized by:
// exact decimal arithmetic for accounting-sensitive runs and plain float64
// for large parameter sweeps.
package num

import "github.com/shopspring/decimal"

// Real is the arithmetic contract a ledger amount must satisfy. The zero
// value of an implementing type must represent zero dollars.
type Real[T any] interface {
	// Of mints a new value of the same mode from a float64.
	Of(v float64) T
	Add(o T) T
	Sub(o T) T
	Mul(o T) T
	Div(o T) T
	// Cmp returns -1, 0, or +1.
	Cmp(o T) int
	Float64() float64
}

// Float is the fast float64 mode.
type Float float64

// Of implements Real.
func (Float) Of(v float64) Float { return Float(v) }

// Add implements Real.
func (f Float) Add(o Float) Float { return f + o }

// Sub implements Real.
func (f Float) Sub(o Float) Float { return f - o }

// Mul implements Real.
func (f Float) Mul(o Float) Float { return f * o }

// Div implements Real.
func (f Float) Div(o Float) Float { return f / o }

// Cmp implements Real.
func (f Float) Cmp(o Float) int {
	switch {
	case f < o:
		return -1
	case f > o:
		return 1
	default:
		return 0
	}
}

// Float64 implements Real.
func (f Float) Float64() float64 { return float64(f) }

// Decimal is the exact mode backed by shopspring/decimal.
type Decimal struct {
	d decimal.Decimal
}

// Of implements Real.
func (Decimal) Of(v float64) Decimal { return Decimal{decimal.NewFromFloat(v)} }

// Add implements Real.
func (x Decimal) Add(o Decimal) Decimal { return Decimal{x.d.Add(o.d)} }

// Sub implements Real.
func (x Decimal) Sub(o Decimal) Decimal { return Decimal{x.d.Sub(o.d)} }

// Mul implements Real.
func (x Decimal) Mul(o Decimal) Decimal { return Decimal{x.d.Mul(o.d)} }

// Div implements Real.
func (x Decimal) Div(o Decimal) Decimal { return Decimal{x.d.DivRound(o.d, 16)} }

// Cmp implements Real.
func (x Decimal) Cmp(o Decimal) int { return x.d.Cmp(o.d) }

// Float64 implements Real.
func (x Decimal) Float64() float64 {
	f, _ := x.d.Float64()
	return f
}

// String returns the exact decimal representation.
func (x Decimal) String() string { return x.d.String() }
