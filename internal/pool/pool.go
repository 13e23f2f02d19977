package pool

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"v3backtester/internal/uniswap"
)

// Pool is the replayed state of a single V3 pool: current price, tick-indexed
// liquidity, global fee growth, and the position book.
type Pool struct {
	SqrtPriceX96         *uint256.Int
	Tick                 int
	Liquidity            *uint256.Int
	FeeGrowthGlobal0X128 *uint256.Int
	FeeGrowthGlobal1X128 *uint256.Int
	FeeTier              uint32
	TickSpacing          int
	Ticks                map[int]*TickState

	// Protocol fee denominators per input side, the on-chain feeProtocol
	// encoding: 0 disables, otherwise 1/n of the swap fee is withheld from
	// LPs. Zero by default.
	ProtocolFee0 uint8
	ProtocolFee1 uint8

	positions map[positionKey]*Position

	initialized bool
}

// recoverOverflow converts a fixed-point overflow panic into the returned
// error so callers can attach the failing event's block and timestamp.
// Any other panic propagates.
func recoverOverflow(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(error); ok && errors.Is(e, uniswap.ErrOverflow) {
		*err = e
		return
	}
	panic(r)
}

// New returns an uninitialized pool; Initialize must run before any event
// is applied.
func New() *Pool {
	return &Pool{
		SqrtPriceX96:         new(uint256.Int),
		Liquidity:            new(uint256.Int),
		FeeGrowthGlobal0X128: new(uint256.Int),
		FeeGrowthGlobal1X128: new(uint256.Int),
		Ticks:                make(map[int]*TickState),
		positions:            make(map[positionKey]*Position),
	}
}

// Initialized reports whether the pool has seen its first price.
func (p *Pool) Initialized() bool {
	return p.initialized
}

// Initialize sets the starting price and immutable pool parameters. It is
// idempotent for identical arguments and rejects anything else.
func (p *Pool) Initialize(sqrtPriceX96 *uint256.Int, feeTier uint32, tickSpacing int) error {
	if sqrtPriceX96 == nil || sqrtPriceX96.IsZero() {
		return fmt.Errorf("initialize: zero sqrt price")
	}
	if tickSpacing <= 0 {
		return fmt.Errorf("initialize: tick spacing must be positive")
	}
	if p.initialized {
		if p.SqrtPriceX96.Cmp(sqrtPriceX96) != 0 || p.FeeTier != feeTier || p.TickSpacing != tickSpacing {
			return fmt.Errorf("initialize: pool already initialized with different parameters")
		}
		return nil
	}
	p.SqrtPriceX96.Set(sqrtPriceX96)
	p.Tick = uniswap.TickAtSqrtRatio(sqrtPriceX96)
	p.FeeTier = feeTier
	p.TickSpacing = tickSpacing
	p.initialized = true
	return nil
}

// SwapOutcome reports how a replayed swap reconciled against the event's
// post-state.
type SwapOutcome struct {
	CrossedTicks     int
	FeeAmount        *uint256.Int
	FeeDropped       bool
	LiquidityMatched bool
}

// ApplySwap advances the pool through one swap event, trusting the event's
// post-state. The implied fee on the gross input leg is credited to
// feeGrowthGlobal against the liquidity active before the swap; when no
// liquidity was active the fee has no LPs to credit and is dropped. Ticks
// between the old and new current tick are crossed exactly once, then the
// event's post-state overrides price, tick and active liquidity.
func (p *Pool) ApplySwap(zeroForOne bool, amountInGross *uint256.Int, sqrtPriceAfterX96 *uint256.Int, tickAfter int, liquidityAfter *uint256.Int) (outcome SwapOutcome, err error) {
	defer recoverOverflow(&err)
	if !p.initialized {
		return SwapOutcome{}, fmt.Errorf("apply swap: pool not initialized")
	}

	outcome = SwapOutcome{FeeAmount: new(uint256.Int), LiquidityMatched: true}

	if amountInGross != nil && !amountInGross.IsZero() {
		fee := uniswap.MulDiv(amountInGross, uint256.NewInt(uint64(p.FeeTier)), uint256.NewInt(1_000_000))
		protocolDenom := p.ProtocolFee1
		if zeroForOne {
			protocolDenom = p.ProtocolFee0
		}
		if protocolDenom > 0 {
			withheld := new(uint256.Int).Div(fee, uint256.NewInt(uint64(protocolDenom)))
			fee.Sub(fee, withheld)
		}
		outcome.FeeAmount.Set(fee)
		if p.Liquidity.IsZero() {
			outcome.FeeDropped = true
		} else if !fee.IsZero() {
			growth := uniswap.MulDiv(fee, uniswap.Q128, p.Liquidity)
			if zeroForOne {
				p.FeeGrowthGlobal0X128.Add(p.FeeGrowthGlobal0X128, growth)
			} else {
				p.FeeGrowthGlobal1X128.Add(p.FeeGrowthGlobal1X128, growth)
			}
		}
	}

	running := new(uint256.Int).Set(p.Liquidity)
	if zeroForOne {
		// Price moves down: every initialized tick in (tickAfter, tick]
		// is crossed right-to-left.
		crossed := p.initializedTicksBetween(tickAfter, p.Tick)
		for i := len(crossed) - 1; i >= 0; i-- {
			net := p.crossTick(crossed[i])
			running.Sub(running, net)
			outcome.CrossedTicks++
		}
	} else {
		// Price moves up: every initialized tick in (tick, tickAfter]
		// is crossed left-to-right.
		for _, tick := range p.initializedTicksBetween(p.Tick, tickAfter) {
			net := p.crossTick(tick)
			running.Add(running, net)
			outcome.CrossedTicks++
		}
	}

	if liquidityAfter != nil {
		diff := new(uint256.Int)
		if running.Cmp(liquidityAfter) > 0 {
			diff.Sub(running, liquidityAfter)
		} else {
			diff.Sub(liquidityAfter, running)
		}
		outcome.LiquidityMatched = diff.CmpUint64(1) <= 0
		p.Liquidity.Set(liquidityAfter)
	} else {
		p.Liquidity.Set(running)
	}

	p.SqrtPriceX96.Set(sqrtPriceAfterX96)
	p.Tick = tickAfter
	return outcome, nil
}

// RawPrice returns the undecimated token1-per-token0 price as a float,
// derived from the authoritative sqrt price. Presentation only.
func (p *Pool) RawPrice() float64 {
	return RawPriceOf(p.SqrtPriceX96)
}

// RawPriceOf converts a Q96 sqrt price to a float price.
func RawPriceOf(sqrtPriceX96 *uint256.Int) float64 {
	sqrt := sqrtPriceFloat(sqrtPriceX96)
	return sqrt * sqrt
}

func sqrtPriceFloat(sqrtPriceX96 *uint256.Int) float64 {
	f := new(big.Float).SetInt(sqrtPriceX96.ToBig())
	f.Quo(f, q96Float)
	out, _ := f.Float64()
	return out
}

var q96Float = new(big.Float).SetInt(uniswap.Q96.ToBig())
