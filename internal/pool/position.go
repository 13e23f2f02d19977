package pool

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"v3backtester/internal/uniswap"
)

type positionKey struct {
	owner     string
	tickLower int
	tickUpper int
}

// Position is one LP range keyed by (owner, tickLower, tickUpper).
// TokensOwed holds uncollected fees only; withdrawn principal is returned
// directly by Burn.
type Position struct {
	Owner                    string
	TickLower                int
	TickUpper                int
	Liquidity                *uint256.Int
	FeeGrowthInside0LastX128 *uint256.Int
	FeeGrowthInside1LastX128 *uint256.Int
	TokensOwed0              *uint256.Int
	TokensOwed1              *uint256.Int
}

// GetPosition returns the live position for the key, or nil.
func (p *Pool) GetPosition(owner string, tickLower, tickUpper int) *Position {
	return p.positions[positionKey{owner, tickLower, tickUpper}]
}

// Positions returns all live positions of one owner, ordered by range so
// iteration is deterministic across runs.
func (p *Pool) Positions(owner string) []*Position {
	var out []*Position
	for key, pos := range p.positions {
		if key.owner == owner {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TickLower != out[j].TickLower {
			return out[i].TickLower < out[j].TickLower
		}
		return out[i].TickUpper < out[j].TickUpper
	})
	return out
}

// Poke settles a position's accrued fees into TokensOwed without changing
// its liquidity, the burn-zero poke pattern.
func (p *Pool) Poke(owner string, tickLower, tickUpper int) {
	pos := p.positions[positionKey{owner, tickLower, tickUpper}]
	if pos == nil || pos.Liquidity.IsZero() {
		return
	}
	inside0, inside1 := p.feeGrowthInside(tickLower, tickUpper)
	pos.settle(inside0, inside1)
}

// PositionCount returns the number of live positions across all owners.
func (p *Pool) PositionCount() int {
	return len(p.positions)
}

// Mint adds liquidity to (owner, tickLower, tickUpper), settling the
// position's accrued fees first. A fresh position snapshots the current
// inside growth so no historical fees are credited to it.
func (p *Pool) Mint(owner string, tickLower, tickUpper int, liquidity *uint256.Int) (err error) {
	defer recoverOverflow(&err)
	if err := p.checkRange(tickLower, tickUpper); err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	if liquidity == nil || liquidity.IsZero() {
		return fmt.Errorf("mint: zero liquidity")
	}

	p.updateTick(tickLower, liquidity, false, false)
	p.updateTick(tickUpper, liquidity, false, true)

	key := positionKey{owner, tickLower, tickUpper}
	pos, ok := p.positions[key]
	inside0, inside1 := p.feeGrowthInside(tickLower, tickUpper)
	if !ok {
		pos = &Position{
			Owner:                    owner,
			TickLower:                tickLower,
			TickUpper:                tickUpper,
			Liquidity:                new(uint256.Int),
			FeeGrowthInside0LastX128: new(uint256.Int).Set(inside0),
			FeeGrowthInside1LastX128: new(uint256.Int).Set(inside1),
			TokensOwed0:              new(uint256.Int),
			TokensOwed1:              new(uint256.Int),
		}
		p.positions[key] = pos
	} else {
		pos.settle(inside0, inside1)
	}
	pos.Liquidity.Add(pos.Liquidity, liquidity)

	if tickLower <= p.Tick && p.Tick < tickUpper {
		p.Liquidity.Add(p.Liquidity, liquidity)
	}
	return nil
}

// Burn removes liquidity from a position after settling its fees, returning
// the principal amounts the removed liquidity represents at the current
// price. The position stays alive (with any owed fees) until Collect.
func (p *Pool) Burn(owner string, tickLower, tickUpper int, liquidity *uint256.Int) (amount0, amount1 *uint256.Int, err error) {
	defer recoverOverflow(&err)
	if liquidity == nil || liquidity.IsZero() {
		return nil, nil, fmt.Errorf("burn: zero liquidity")
	}
	key := positionKey{owner, tickLower, tickUpper}
	pos, ok := p.positions[key]
	if !ok {
		return nil, nil, fmt.Errorf("burn: no position %s [%d, %d)", owner, tickLower, tickUpper)
	}
	if pos.Liquidity.Cmp(liquidity) < 0 {
		return nil, nil, fmt.Errorf("burn: liquidity %s exceeds position %s", liquidity, pos.Liquidity)
	}

	inside0, inside1 := p.feeGrowthInside(tickLower, tickUpper)
	pos.settle(inside0, inside1)
	pos.Liquidity.Sub(pos.Liquidity, liquidity)

	p.updateTick(tickLower, liquidity, true, false)
	p.updateTick(tickUpper, liquidity, true, true)

	if tickLower <= p.Tick && p.Tick < tickUpper {
		p.Liquidity.Sub(p.Liquidity, liquidity)
	}

	sqrtLower := uniswap.SqrtRatioAtTick(tickLower)
	sqrtUpper := uniswap.SqrtRatioAtTick(tickUpper)
	amount0, amount1 = uniswap.AmountsForLiquidity(p.SqrtPriceX96, sqrtLower, sqrtUpper, liquidity)
	return amount0, amount1, nil
}

// Collect settles and withdraws the position's owed fees. A drained
// position (zero liquidity) is removed from the book.
func (p *Pool) Collect(owner string, tickLower, tickUpper int) (owed0, owed1 *uint256.Int, err error) {
	defer recoverOverflow(&err)
	key := positionKey{owner, tickLower, tickUpper}
	pos, ok := p.positions[key]
	if !ok {
		return nil, nil, fmt.Errorf("collect: no position %s [%d, %d)", owner, tickLower, tickUpper)
	}

	if !pos.Liquidity.IsZero() {
		inside0, inside1 := p.feeGrowthInside(tickLower, tickUpper)
		pos.settle(inside0, inside1)
	}

	owed0 = new(uint256.Int).Set(pos.TokensOwed0)
	owed1 = new(uint256.Int).Set(pos.TokensOwed1)
	pos.TokensOwed0.Clear()
	pos.TokensOwed1.Clear()

	if pos.Liquidity.IsZero() {
		delete(p.positions, key)
	}
	return owed0, owed1, nil
}

// settle credits the fee growth accrued since the last touch to TokensOwed
// and moves the snapshot forward. Attribution is strictly incremental.
func (pos *Position) settle(inside0, inside1 *uint256.Int) {
	delta0 := new(uint256.Int).Sub(inside0, pos.FeeGrowthInside0LastX128)
	delta1 := new(uint256.Int).Sub(inside1, pos.FeeGrowthInside1LastX128)
	if !pos.Liquidity.IsZero() {
		pos.TokensOwed0.Add(pos.TokensOwed0, uniswap.MulDiv(delta0, pos.Liquidity, uniswap.Q128))
		pos.TokensOwed1.Add(pos.TokensOwed1, uniswap.MulDiv(delta1, pos.Liquidity, uniswap.Q128))
	}
	pos.FeeGrowthInside0LastX128.Set(inside0)
	pos.FeeGrowthInside1LastX128.Set(inside1)
}

func (p *Pool) checkRange(tickLower, tickUpper int) error {
	if tickLower >= tickUpper {
		return fmt.Errorf("tick lower %d not below tick upper %d", tickLower, tickUpper)
	}
	if tickLower < uniswap.MinTick || tickUpper > uniswap.MaxTick {
		return fmt.Errorf("range [%d, %d) outside tick bounds", tickLower, tickUpper)
	}
	return nil
}
