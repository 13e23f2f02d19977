package strategy

import (
	"math"

	"github.com/holiman/uint256"

	"v3backtester/internal/indicator"
	"v3backtester/internal/pool"
	"v3backtester/internal/uniswap"
)

// ActionKind tags the variant of a strategy action.
type ActionKind int

const (
	// Hold does nothing. Returning an empty action slice means the same.
	Hold ActionKind = iota
	// Open mints a position at the given range from idle reserves.
	Open
	// Close burns the given position entirely and collects it to idle.
	Close
	// Rebalance closes all positions, swaps idle to a 50/50 value split
	// and reopens one position at the given range. The driver charges the
	// configured friction on the notional moved.
	Rebalance
)

// Action is one position operation requested by a strategy.
type Action struct {
	Kind      ActionKind
	TickLower int
	TickUpper int
	// Amount caps for Open; nil means all available idle.
	Amount0 *uint256.Int
	Amount1 *uint256.Int
}

// Snapshot is the post-event view handed to a strategy. Everything here is
// read-only; mutations go through returned actions.
type Snapshot struct {
	Timestamp int64
	Pool      *pool.Pool
	Positions []*pool.Position
	Idle0     *uint256.Int
	Idle1     *uint256.Int
	Bars      *indicator.Series
}

// Strategy decides position actions after each replayed event. Strategies
// are state machines: the same instance sees every event of one run in
// order. Indicator warmup must map to no action, never to a zero signal.
type Strategy interface {
	Name() string
	OnEvent(snap Snapshot) []Action
}

// tickFromPrice converts a raw (undecimated) price to the tick at or below
// it. Strategy range targeting is the one place float price math is
// allowed; the resulting ticks go back through exact tick math.
func tickFromPrice(price float64) int {
	if price <= 0 {
		return 0
	}
	tick := int(math.Floor(math.Log(price) / math.Log(1.0001)))
	return clampTick(tick)
}

func clampTick(tick int) int {
	if tick < uniswap.MinTick {
		return uniswap.MinTick
	}
	if tick > uniswap.MaxTick {
		return uniswap.MaxTick
	}
	return tick
}

// snapDown aligns a tick to the spacing grid, toward negative infinity.
func snapDown(tick, spacing int) int {
	if spacing <= 0 {
		return tick
	}
	r := tick % spacing
	if r < 0 {
		r += spacing
	}
	return clampTick(tick - r)
}

// snapUp aligns a tick to the spacing grid, toward positive infinity.
func snapUp(tick, spacing int) int {
	down := snapDown(tick, spacing)
	if down == tick {
		return tick
	}
	return clampTick(down + spacing)
}

// snapRange aligns a target range outward and widens degenerate ones to a
// single spacing step.
func snapRange(lower, upper, spacing int) (int, int) {
	lo := snapDown(lower, spacing)
	hi := snapUp(upper, spacing)
	if lo >= hi {
		hi = lo + spacing
	}
	return clampTick(lo), clampTick(hi)
}
