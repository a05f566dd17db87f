package model

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

var hundred = big.NewRat(100, 1)

// Round2 rounds v to 2 decimal places, half to even on the exact binary
// value (0.125 -> 0.12, 2.675 -> 2.67 since 2.675 is stored just below the
// tie). Monetary and percentage fields all go through here so re-deriving a
// value from rounded inputs is stable. NaN and ±Inf are returned unchanged.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r := new(big.Rat).SetFloat64(v)
	r.Mul(r, hundred)

	// QuoRem truncates toward zero; rem carries the sign of v.
	q, rem := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	twice := new(big.Int).Abs(rem)
	twice.Lsh(twice, 1)
	if c := twice.Cmp(r.Denom()); c > 0 || (c == 0 && q.Bit(0) == 1) {
		if rem.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return decimal.NewFromBigInt(q, -2).InexactFloat64()
}

// Finite reports whether v is neither NaN nor ±Inf.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
