package fixmath

import (
	"math/big"
	"sync"
)

// UnitScale is the fixed-point scale used for dimensionless fractions
// (sine values, volatility factors): 10^6.
const UnitScale int64 = 1_000_000

// int128Pool recycles big.Int values used for intermediate products.
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0)
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b in 128-bit space to prevent overflow.
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
)

// DivideInt128 performs numerator / denominator with the given rounding mode
// and releases numerator back to the pool.
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	neg := numerator.Sign() < 0
	abs := getInt128().Abs(numerator)

	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()
	quotient.DivMod(abs, denom, remainder)

	result := quotient.Int64()

	if roundingMode == RoundHalfEven {
		twice := getInt128().Lsh(remainder, 1)
		cmp := twice.Cmp(denom)
		if cmp > 0 {
			result++
		} else if cmp == 0 && result%2 != 0 {
			result++
		}
		putInt128(twice)
	}

	putInt128(abs)
	putInt128(quotient)
	putInt128(remainder)
	putInt128(numerator)

	if neg {
		return -result
	}
	return result
}

// MulDiv computes a * b / denominator with banker's rounding.
func MulDiv(a, b, denominator int64) int64 {
	return DivideInt128(MultiplyInt128(a, b), denominator, RoundHalfEven)
}
