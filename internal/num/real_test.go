package num

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloat_Arithmetic(t *testing.T) {
	var zero Float
	a := zero.Of(10.5)
	b := zero.Of(2.0)

	assert.Equal(t, 12.5, a.Add(b).Float64())
	assert.Equal(t, 8.5, a.Sub(b).Float64())
	assert.Equal(t, 21.0, a.Mul(b).Float64())
	assert.Equal(t, 5.25, a.Div(b).Float64())
}

func TestFloat_Cmp(t *testing.T) {
	var zero Float
	assert.Equal(t, 0, zero.Of(1).Cmp(zero.Of(1)))
	assert.Equal(t, -1, zero.Of(1).Cmp(zero.Of(2)))
	assert.Equal(t, 1, zero.Of(2).Cmp(zero.Of(1)))
}

func TestDecimal_Arithmetic(t *testing.T) {
	var zero Decimal
	a := zero.Of(10.5)
	b := zero.Of(2.0)

	assert.Equal(t, 12.5, a.Add(b).Float64())
	assert.Equal(t, 8.5, a.Sub(b).Float64())
	assert.Equal(t, 21.0, a.Mul(b).Float64())
	assert.Equal(t, 5.25, a.Div(b).Float64())
}

func TestDecimal_ExactRepeatedAddition(t *testing.T) {
	// The reason decimal mode exists: 0.1 added ten times is exactly 1.
	var zero Decimal
	sum := zero.Of(0)
	tenth := zero.Of(0.1)
	for i := 0; i < 10; i++ {
		sum = sum.Add(tenth)
	}
	assert.Equal(t, 0, sum.Cmp(zero.Of(1)))
	assert.Equal(t, "1", sum.String())
}

func TestDecimal_Cmp(t *testing.T) {
	var zero Decimal
	assert.Equal(t, 0, zero.Of(88).Cmp(zero.Of(88)))
	assert.Equal(t, -1, zero.Of(87.99).Cmp(zero.Of(88)))
	assert.Equal(t, 1, zero.Of(88.01).Cmp(zero.Of(88)))
}

// mint is how generic callers create values: the zero value of either mode
// acts as a factory.
func mint[T Real[T]](v float64) T {
	var zero T
	return zero.Of(v)
}

func TestZeroValueMintsBothModes(t *testing.T) {
	assert.Equal(t, 42.0, mint[Float](42).Float64())
	assert.Equal(t, 42.0, mint[Decimal](42).Float64())
}
