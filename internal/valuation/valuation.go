package valuation

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"

	"v3backtester/internal/pool"
	"v3backtester/internal/uniswap"
)

// PositionAmounts resolves a position's liquidity into token amounts at the
// pool's current price. Range bounds go through SqrtRatioAtTick; the current
// price is the pool's authoritative sqrtPriceX96. No other sqrt-price source
// is admissible here.
func PositionAmounts(p *pool.Pool, pos *pool.Position) (amount0, amount1 *uint256.Int) {
	return uniswap.AmountsForLiquidity(
		p.SqrtPriceX96,
		uniswap.SqrtRatioAtTick(pos.TickLower),
		uniswap.SqrtRatioAtTick(pos.TickUpper),
		pos.Liquidity)
}

// QuoteValue values (amount0, amount1) in token1 raw units at the given
// sqrt price: amount1 + amount0 * price, computed entirely in integers.
func QuoteValue(sqrtPriceX96, amount0, amount1 *uint256.Int) *uint256.Int {
	value := new(uint256.Int).Set(amount1)
	if !amount0.IsZero() {
		priceX192 := new(uint256.Int).Mul(sqrtPriceX96, sqrtPriceX96)
		value.Add(value, uniswap.MulDiv(amount0, priceX192, uniswap.Q192))
	}
	return value
}

// PositionQuoteValue values a position's principal plus its uncollected
// fees in token1 raw units.
func PositionQuoteValue(p *pool.Pool, pos *pool.Position) *uint256.Int {
	amount0, amount1 := PositionAmounts(p, pos)
	value := QuoteValue(p.SqrtPriceX96, amount0, amount1)
	fees := QuoteValue(p.SqrtPriceX96, pos.TokensOwed0, pos.TokensOwed1)
	return value.Add(value, fees)
}

// Float converts a raw token1 quantity to a float for the recorded series.
func Float(v *uint256.Int) float64 {
	if v.IsUint64() {
		return float64(v.Uint64())
	}
	out, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return out
}

// DisplayPrice converts a raw price to the human display price for the
// configured token decimals.
func DisplayPrice(rawPrice float64, decimals0, decimals1 int) float64 {
	return rawPrice * math.Pow10(decimals0-decimals1)
}

// ImpermanentLoss compares the LP value (fees excluded) against holding the
// initial token mixture at the current price. Zero HODL value yields zero.
func ImpermanentLoss(lpValueExclFees float64, initial0, initial1 *uint256.Int, sqrtPriceX96 *uint256.Int) float64 {
	hodl := Float(QuoteValue(sqrtPriceX96, initial0, initial1))
	if hodl == 0 {
		return 0
	}
	return (lpValueExclFees - hodl) / hodl
}
