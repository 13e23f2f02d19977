package pool

import (
	"sort"

	"github.com/holiman/uint256"
)

// TickState tracks per-tick liquidity bookkeeping. LiquidityNet is signed
// and stored in two's complement on uint256, matching the on-chain layout;
// adding it to the active liquidity wraps correctly in both directions.
type TickState struct {
	LiquidityNet          *uint256.Int
	LiquidityGross        *uint256.Int
	FeeGrowthOutside0X128 *uint256.Int
	FeeGrowthOutside1X128 *uint256.Int
}

func newTickState() *TickState {
	return &TickState{
		LiquidityNet:          new(uint256.Int),
		LiquidityGross:        new(uint256.Int),
		FeeGrowthOutside0X128: new(uint256.Int),
		FeeGrowthOutside1X128: new(uint256.Int),
	}
}

// updateTick applies a liquidity delta to one bound of a range, creating the
// tick entry on first touch. A tick created at or below the current tick
// starts with feeGrowthOutside equal to the current global growth, the
// standard V3 initialization rule.
func (p *Pool) updateTick(tick int, liquidityDelta *uint256.Int, negate, upper bool) {
	state, ok := p.Ticks[tick]
	if !ok {
		state = newTickState()
		if tick <= p.Tick {
			state.FeeGrowthOutside0X128.Set(p.FeeGrowthGlobal0X128)
			state.FeeGrowthOutside1X128.Set(p.FeeGrowthGlobal1X128)
		}
		p.Ticks[tick] = state
	}

	if negate {
		state.LiquidityGross.Sub(state.LiquidityGross, liquidityDelta)
	} else {
		state.LiquidityGross.Add(state.LiquidityGross, liquidityDelta)
	}

	// Lower bounds add liquidity when crossed left-to-right, upper bounds
	// remove it.
	addNet := !upper
	if negate {
		addNet = !addNet
	}
	if addNet {
		state.LiquidityNet.Add(state.LiquidityNet, liquidityDelta)
	} else {
		state.LiquidityNet.Sub(state.LiquidityNet, liquidityDelta)
	}

	if state.LiquidityGross.IsZero() {
		delete(p.Ticks, tick)
	}
}

// crossTick flips the fee growth accumulated outside the tick and returns
// its net liquidity. Called once per initialized tick the price moves past.
func (p *Pool) crossTick(tick int) *uint256.Int {
	state, ok := p.Ticks[tick]
	if !ok {
		return new(uint256.Int)
	}
	state.FeeGrowthOutside0X128.Sub(p.FeeGrowthGlobal0X128, state.FeeGrowthOutside0X128)
	state.FeeGrowthOutside1X128.Sub(p.FeeGrowthGlobal1X128, state.FeeGrowthOutside1X128)
	return state.LiquidityNet
}

// initializedTicksBetween returns the initialized ticks in (low, high],
// ascending.
func (p *Pool) initializedTicksBetween(low, high int) []int {
	var ticks []int
	for tick := range p.Ticks {
		if tick > low && tick <= high {
			ticks = append(ticks, tick)
		}
	}
	sort.Ints(ticks)
	return ticks
}

// feeGrowthInside computes the fee growth accumulated inside [tickLower,
// tickUpper) per unit of liquidity. Subtraction wraps exactly as the
// on-chain accounting does.
func (p *Pool) feeGrowthInside(tickLower, tickUpper int) (inside0, inside1 *uint256.Int) {
	lower, okLower := p.Ticks[tickLower]
	upper, okUpper := p.Ticks[tickUpper]

	below0, below1 := new(uint256.Int), new(uint256.Int)
	if okLower {
		if p.Tick >= tickLower {
			below0.Set(lower.FeeGrowthOutside0X128)
			below1.Set(lower.FeeGrowthOutside1X128)
		} else {
			below0.Sub(p.FeeGrowthGlobal0X128, lower.FeeGrowthOutside0X128)
			below1.Sub(p.FeeGrowthGlobal1X128, lower.FeeGrowthOutside1X128)
		}
	}

	above0, above1 := new(uint256.Int), new(uint256.Int)
	if okUpper {
		if p.Tick < tickUpper {
			above0.Set(upper.FeeGrowthOutside0X128)
			above1.Set(upper.FeeGrowthOutside1X128)
		} else {
			above0.Sub(p.FeeGrowthGlobal0X128, upper.FeeGrowthOutside0X128)
			above1.Sub(p.FeeGrowthGlobal1X128, upper.FeeGrowthOutside1X128)
		}
	}

	inside0 = new(uint256.Int).Sub(p.FeeGrowthGlobal0X128, below0)
	inside0.Sub(inside0, above0)
	inside1 = new(uint256.Int).Sub(p.FeeGrowthGlobal1X128, below1)
	inside1.Sub(inside1, above1)
	return inside0, inside1
}
