package strategy

import (
	"github.com/holiman/uint256"

	"v3backtester/internal/uniswap"
)

// DualOrder runs the passive alpha-vault policy: a base order symmetric
// around the current tick holding the token-balanced maximum, plus a
// one-sided limit order parking the surplus asset just outside the current
// price. It repositions on a long fixed cadence and never swaps.
type DualOrder struct {
	baseThreshold     int
	limitThreshold    int
	rebalanceInterval int64

	placed        bool
	lastRebalance int64
}

// NewDualOrder builds the dual-order strategy; baseThreshold is the base
// order's half-width and limitThreshold the limit order's full width, both
// in ticks.
func NewDualOrder(baseThreshold, limitThreshold int, rebalanceIntervalSeconds int64) *DualOrder {
	if baseThreshold <= 0 {
		baseThreshold = 600
	}
	if limitThreshold <= 0 {
		limitThreshold = 1200
	}
	if rebalanceIntervalSeconds <= 0 {
		rebalanceIntervalSeconds = 48 * 3600
	}
	return &DualOrder{
		baseThreshold:     baseThreshold,
		limitThreshold:    limitThreshold,
		rebalanceInterval: rebalanceIntervalSeconds,
	}
}

func (d *DualOrder) Name() string {
	return "alpha_vault"
}

func (d *DualOrder) OnEvent(snap Snapshot) []Action {
	if !snap.Pool.Initialized() {
		return nil
	}

	if !d.placed {
		d.placed = true
		d.lastRebalance = snap.Timestamp
		return d.placeOrders(snap)
	}

	if snap.Timestamp-d.lastRebalance < d.rebalanceInterval {
		return nil
	}
	d.lastRebalance = snap.Timestamp

	actions := make([]Action, 0, len(snap.Positions)+2)
	for _, pos := range snap.Positions {
		actions = append(actions, Action{Kind: Close, TickLower: pos.TickLower, TickUpper: pos.TickUpper})
	}
	return append(actions, d.placeOrders(snap)...)
}

// placeOrders computes the base order around the current tick and a limit
// order in whichever asset the base order leaves over.
func (d *DualOrder) placeOrders(snap Snapshot) []Action {
	p := snap.Pool
	spacing := p.TickSpacing

	baseLower, baseUpper := snapRange(p.Tick-d.baseThreshold, p.Tick+d.baseThreshold, spacing)

	// Project what the balanced base order consumes to find the surplus
	// side. Closing positions in the same batch returns their principal to
	// idle before the opens execute, so include it in the projection.
	idle0 := new(uint256.Int).Set(snap.Idle0)
	idle1 := new(uint256.Int).Set(snap.Idle1)
	for _, pos := range snap.Positions {
		amount0, amount1 := uniswap.AmountsForLiquidity(
			p.SqrtPriceX96,
			uniswap.SqrtRatioAtTick(pos.TickLower),
			uniswap.SqrtRatioAtTick(pos.TickUpper),
			pos.Liquidity)
		idle0.Add(idle0, amount0)
		idle1.Add(idle1, amount1)
	}

	sqrtBaseLower := uniswap.SqrtRatioAtTick(baseLower)
	sqrtBaseUpper := uniswap.SqrtRatioAtTick(baseUpper)
	baseLiquidity := uniswap.LiquidityForAmounts(p.SqrtPriceX96, sqrtBaseLower, sqrtBaseUpper, idle0, idle1)

	actions := []Action{{Kind: Open, TickLower: baseLower, TickUpper: baseUpper}}
	if baseLiquidity.IsZero() {
		return actions
	}

	used0, used1 := uniswap.AmountsForLiquidity(p.SqrtPriceX96, sqrtBaseLower, sqrtBaseUpper, baseLiquidity)
	left0 := new(uint256.Int)
	if idle0.Cmp(used0) > 0 {
		left0.Sub(idle0, used0)
	}
	left1 := new(uint256.Int)
	if idle1.Cmp(used1) > 0 {
		left1.Sub(idle1, used1)
	}

	priceX192 := new(uint256.Int).Mul(p.SqrtPriceX96, p.SqrtPriceX96)
	left0Quote := uniswap.MulDiv(left0, priceX192, uniswap.Q192)

	var limitLower, limitUpper int
	if left0Quote.Cmp(left1) > 0 {
		// Surplus token0 sits above the current price.
		limitLower, limitUpper = snapRange(p.Tick+spacing, p.Tick+spacing+d.limitThreshold, spacing)
	} else {
		limitLower, limitUpper = snapRange(p.Tick-spacing-d.limitThreshold, p.Tick-spacing, spacing)
	}
	return append(actions, Action{Kind: Open, TickLower: limitLower, TickUpper: limitUpper})
}
