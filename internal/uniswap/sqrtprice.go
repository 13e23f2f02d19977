package uniswap

import "github.com/holiman/uint256"

// Amount0Delta returns the token0 amount covering the range
// [sqrtRatioAX96, sqrtRatioBX96] at liquidity L:
// L * (sqrtB - sqrtA) * 2^96 / (sqrtA * sqrtB).
func Amount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) *uint256.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, 96)
	numerator2 := new(uint256.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		return DivRoundingUp(MulDivRoundingUp(numerator1, numerator2, sqrtRatioBX96), sqrtRatioAX96)
	}
	res := MulDiv(numerator1, numerator2, sqrtRatioBX96)
	return res.Div(res, sqrtRatioAX96)
}

// Amount1Delta returns the token1 amount covering the range
// [sqrtRatioAX96, sqrtRatioBX96] at liquidity L: L * (sqrtB - sqrtA) / 2^96.
func Amount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) *uint256.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	diff := new(uint256.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return MulDivRoundingUp(liquidity, diff, Q96)
	}
	return MulDiv(liquidity, diff, Q96)
}
