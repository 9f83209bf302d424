// Package indicator provides deterministic technical indicator calculations
// over price series and OHLC candle windows.
//
// Every function is pure: the same inputs always give the same output, and
// functions that need a minimum history report readiness through a bool
// rather than returning a partial value.
package indicator

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
