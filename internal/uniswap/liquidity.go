package uniswap

import "github.com/holiman/uint256"

// LiquidityForAmount0 computes the liquidity a given amount0 funds across
// [sqrtRatioAX96, sqrtRatioBX96]: amount0 * (sqrtA * sqrtB / 2^96) / (sqrtB - sqrtA).
func LiquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0 *uint256.Int) *uint256.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	intermediate := MulDiv(sqrtRatioAX96, sqrtRatioBX96, Q96)
	return MulDiv(amount0, intermediate, new(uint256.Int).Sub(sqrtRatioBX96, sqrtRatioAX96))
}

// LiquidityForAmount1 computes the liquidity a given amount1 funds across
// [sqrtRatioAX96, sqrtRatioBX96]: amount1 * 2^96 / (sqrtB - sqrtA).
func LiquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1 *uint256.Int) *uint256.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	return MulDiv(amount1, Q96, new(uint256.Int).Sub(sqrtRatioBX96, sqrtRatioAX96))
}

// LiquidityForAmounts sizes a mint for the current sqrt price and both token
// budgets. Inside the range the result is the binding minimum across tokens;
// outside it only the relevant single-token formula applies.
func LiquidityForAmounts(sqrtRatioX96, sqrtRatioAX96, sqrtRatioBX96, amount0, amount1 *uint256.Int) *uint256.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioX96.Cmp(sqrtRatioAX96) <= 0 {
		return LiquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0)
	}
	if sqrtRatioX96.Cmp(sqrtRatioBX96) < 0 {
		liquidity0 := LiquidityForAmount0(sqrtRatioX96, sqrtRatioBX96, amount0)
		liquidity1 := LiquidityForAmount1(sqrtRatioAX96, sqrtRatioX96, amount1)
		if liquidity0.Cmp(liquidity1) < 0 {
			return liquidity0
		}
		return liquidity1
	}
	return LiquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1)
}

// AmountsForLiquidity is the inverse of LiquidityForAmounts: the token
// amounts a position of the given liquidity holds at the current sqrt price.
func AmountsForLiquidity(sqrtRatioX96, sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int) (amount0, amount1 *uint256.Int) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	switch {
	case sqrtRatioX96.Cmp(sqrtRatioAX96) <= 0:
		amount0 = Amount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity, false)
		amount1 = new(uint256.Int)
	case sqrtRatioX96.Cmp(sqrtRatioBX96) < 0:
		amount0 = Amount0Delta(sqrtRatioX96, sqrtRatioBX96, liquidity, false)
		amount1 = Amount1Delta(sqrtRatioAX96, sqrtRatioX96, liquidity, false)
	default:
		amount0 = new(uint256.Int)
		amount1 = Amount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity, false)
	}
	return amount0, amount1
}
