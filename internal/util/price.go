// Package util holds small price-arithmetic helpers shared across the
// simulation.
package util

import "math"

// RoundToTick snaps a price onto the given tick grid, ties away from zero.
// A non-positive tick leaves the price untouched. The chain generator lays
// out synthetic strike ladders on a one-cent tick.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}
