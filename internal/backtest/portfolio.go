package backtest

import (
	"github.com/holiman/uint256"

	"v3backtester/internal/pool"
	"v3backtester/internal/uniswap"
	"v3backtester/internal/valuation"
)

// Owner is the synthetic identity the driver mints strategy positions
// under; it never collides with on-chain addresses.
const Owner = "strategy"

// Portfolio is the driver's view of what one strategy run owns: idle
// reserves, cumulative collected fees and friction spent. Positions
// themselves live in the pool's book under Owner.
type Portfolio struct {
	Idle0 *uint256.Int
	Idle1 *uint256.Int

	// Initial mixture, kept for the HODL benchmark and impermanent loss.
	Initial0 *uint256.Int
	Initial1 *uint256.Int

	// Fees collected to idle over the lifetime of the run.
	CollectedFees0 *uint256.Int
	CollectedFees1 *uint256.Int

	GasSpent *uint256.Int

	RebalanceCount int
	DroppedActions int
}

func newPortfolio() *Portfolio {
	return &Portfolio{
		Idle0:          new(uint256.Int),
		Idle1:          new(uint256.Int),
		Initial0:       new(uint256.Int),
		Initial1:       new(uint256.Int),
		CollectedFees0: new(uint256.Int),
		CollectedFees1: new(uint256.Int),
		GasSpent:       new(uint256.Int),
	}
}

// fund converts quote capital into the strategy's initial token mixture at
// the given price, a 50/50 value split by default.
func (pf *Portfolio) fund(capitalQuote uint64, sqrtPriceX96 *uint256.Int) {
	capital := uint256.NewInt(capitalQuote)
	half := new(uint256.Int).Rsh(capital, 1)

	pf.Idle1.Sub(capital, half)
	priceX192 := new(uint256.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	pf.Idle0.Set(uniswap.MulDiv(half, uniswap.Q192, priceX192))

	pf.Initial0.Set(pf.Idle0)
	pf.Initial1.Set(pf.Idle1)
}

// totalValue values positions (principal plus uncollected fees) and idle
// reserves in quote raw units.
func (pf *Portfolio) totalValue(p *pool.Pool) *uint256.Int {
	value := valuation.QuoteValue(p.SqrtPriceX96, pf.Idle0, pf.Idle1)
	for _, pos := range p.Positions(Owner) {
		value.Add(value, valuation.PositionQuoteValue(p, pos))
	}
	return value
}

// feesAccrued values all fees earned so far, collected or still owed, at
// the current price.
func (pf *Portfolio) feesAccrued(p *pool.Pool) *uint256.Int {
	fee0 := new(uint256.Int).Set(pf.CollectedFees0)
	fee1 := new(uint256.Int).Set(pf.CollectedFees1)
	for _, pos := range p.Positions(Owner) {
		fee0.Add(fee0, pos.TokensOwed0)
		fee1.Add(fee1, pos.TokensOwed1)
	}
	return valuation.QuoteValue(p.SqrtPriceX96, fee0, fee1)
}

func saturatingSub(a, b *uint256.Int) {
	if a.Cmp(b) < 0 {
		a.Clear()
		return
	}
	a.Sub(a, b)
}
