package uniswap

import (
	"errors"

	"github.com/holiman/uint256"
)

// ErrOverflow reports an intermediate product that cannot be represented in
// 256 bits. The math layer panics with it; state-mutating callers recover
// it into an error so the failing event's block and timestamp can be
// attached before the run aborts.
var ErrOverflow = errors.New("fixed-point overflow exceeds 256 bits")

var (
	// Q96 is 2^96, the scaling factor of sqrt prices.
	Q96 = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	// Q128 is 2^128, the scaling factor of fee growth values.
	Q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	// Q192 is 2^192, the scaling factor of squared sqrt prices.
	Q192 = new(uint256.Int).Lsh(uint256.NewInt(1), 192)

	one        = uint256.NewInt(1)
	maxUint256 = new(uint256.Int).SetAllOne()
)

// MulDiv computes a*b/denominator with the intermediate product held in
// 512 bits. It panics with ErrOverflow if the result does not fit in 256
// bits; replay is aborted rather than continued with a truncated quantity.
func MulDiv(a, b, denominator *uint256.Int) *uint256.Int {
	result, overflow := new(uint256.Int).MulDivOverflow(a, b, denominator)
	if overflow {
		panic(ErrOverflow)
	}
	return result
}

// MulDivRoundingUp is MulDiv rounding the quotient toward infinity.
func MulDivRoundingUp(a, b, denominator *uint256.Int) *uint256.Int {
	if a.IsZero() || b.IsZero() {
		return new(uint256.Int)
	}
	result := MulDiv(a, b, denominator)
	rem := new(uint256.Int).MulMod(a, b, denominator)
	if !rem.IsZero() {
		result.Add(result, one)
	}
	return result
}

// DivRoundingUp computes a/denominator rounding toward infinity.
func DivRoundingUp(a, denominator *uint256.Int) *uint256.Int {
	result := new(uint256.Int).Div(a, denominator)
	rem := new(uint256.Int).Mod(a, denominator)
	if !rem.IsZero() {
		result.Add(result, one)
	}
	return result
}
