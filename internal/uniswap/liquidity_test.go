package uniswap

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestMulDivRoundingUp(t *testing.T) {
	tests := []struct {
		a, b, den, want uint64
	}{
		{0, 500, 1000000, 0},
		{1, 500, 1000000, 1},
		{1000000, 1, 1000000, 1},
		{1000001, 1, 1000000, 2},
		{7, 7, 7, 7},
	}
	for _, tt := range tests {
		got := MulDivRoundingUp(uint256.NewInt(tt.a), uint256.NewInt(tt.b), uint256.NewInt(tt.den))
		if got.Uint64() != tt.want {
			t.Fatalf("MulDivRoundingUp(%d,%d,%d) = %s, want %d", tt.a, tt.b, tt.den, got, tt.want)
		}
	}
}

func TestAmountDeltasAtUnitPrice(t *testing.T) {
	// At tick 0 the price is 1, so a symmetric range holds near-equal
	// amounts of both tokens.
	sqrtLow := SqrtRatioAtTick(-600)
	sqrtCur := SqrtRatioAtTick(0)
	sqrtHigh := SqrtRatioAtTick(600)
	liquidity := uint256.NewInt(1_000_000_000)

	amount0 := Amount0Delta(sqrtCur, sqrtHigh, liquidity, false)
	amount1 := Amount1Delta(sqrtLow, sqrtCur, liquidity, false)

	if amount0.IsZero() || amount1.IsZero() {
		t.Fatalf("expected both amounts nonzero, got %s / %s", amount0, amount1)
	}

	diff := new(uint256.Int)
	if amount0.Cmp(amount1) > 0 {
		diff.Sub(amount0, amount1)
	} else {
		diff.Sub(amount1, amount0)
	}
	// 600 ticks is ~3%, so the two sides differ by a few percent at most.
	limit := new(uint256.Int).Div(amount0, uint256.NewInt(10))
	if diff.Cmp(limit) > 0 {
		t.Fatalf("amounts too far apart at unit price: %s vs %s", amount0, amount1)
	}
}

func TestAmount0DeltaRounding(t *testing.T) {
	sqrtA := SqrtRatioAtTick(70000)
	sqrtB := SqrtRatioAtTick(70060)
	liquidity := uint256.NewInt(12345)

	down := Amount0Delta(sqrtA, sqrtB, liquidity, false)
	up := Amount0Delta(sqrtA, sqrtB, liquidity, true)

	diff := new(uint256.Int).Sub(up, down)
	if diff.Cmp(uint256.NewInt(1)) > 0 {
		t.Fatalf("roundUp and roundDown differ by more than one unit: %s vs %s", up, down)
	}
	if up.Cmp(down) < 0 {
		t.Fatalf("roundUp below roundDown: %s < %s", up, down)
	}
}

func TestLiquidityForAmountsBindingMinimum(t *testing.T) {
	sqrtLow := SqrtRatioAtTick(69000)
	sqrtCur := SqrtRatioAtTick(70000)
	sqrtHigh := SqrtRatioAtTick(71000)

	amount0 := uint256.NewInt(5_000_000)
	amount1 := uint256.NewInt(40_000_000_000)

	liquidity := LiquidityForAmounts(sqrtCur, sqrtLow, sqrtHigh, amount0, amount1)
	if liquidity.IsZero() {
		t.Fatalf("expected nonzero liquidity")
	}

	l0 := LiquidityForAmount0(sqrtCur, sqrtHigh, amount0)
	l1 := LiquidityForAmount1(sqrtLow, sqrtCur, amount1)
	want := l0
	if l1.Cmp(l0) < 0 {
		want = l1
	}
	if liquidity.Cmp(want) != 0 {
		t.Fatalf("liquidity %s is not the binding minimum %s", liquidity, want)
	}

	// The sized liquidity never requires more than the provided budgets.
	need0, need1 := AmountsForLiquidity(sqrtCur, sqrtLow, sqrtHigh, liquidity)
	if need0.Cmp(amount0) > 0 || need1.Cmp(amount1) > 0 {
		t.Fatalf("sized liquidity exceeds budget: needs %s/%s of %s/%s", need0, need1, amount0, amount1)
	}
}

func TestLiquidityForAmountsOutOfRange(t *testing.T) {
	sqrtLow := SqrtRatioAtTick(70000)
	sqrtHigh := SqrtRatioAtTick(71000)
	amount0 := uint256.NewInt(5_000_000)
	amount1 := uint256.NewInt(40_000_000_000)

	below := LiquidityForAmounts(SqrtRatioAtTick(69000), sqrtLow, sqrtHigh, amount0, amount1)
	if below.Cmp(LiquidityForAmount0(sqrtLow, sqrtHigh, amount0)) != 0 {
		t.Fatalf("below range should size from token0 only")
	}

	above := LiquidityForAmounts(SqrtRatioAtTick(72000), sqrtLow, sqrtHigh, amount0, amount1)
	if above.Cmp(LiquidityForAmount1(sqrtLow, sqrtHigh, amount1)) != 0 {
		t.Fatalf("above range should size from token1 only")
	}
}

func TestAmountsForLiquidityCases(t *testing.T) {
	sqrtLow := SqrtRatioAtTick(70000)
	sqrtHigh := SqrtRatioAtTick(71000)
	liquidity := uint256.NewInt(1_000_000)

	amount0, amount1 := AmountsForLiquidity(SqrtRatioAtTick(69500), sqrtLow, sqrtHigh, liquidity)
	if amount0.IsZero() || !amount1.IsZero() {
		t.Fatalf("below range: want token0 only, got %s/%s", amount0, amount1)
	}

	amount0, amount1 = AmountsForLiquidity(SqrtRatioAtTick(70500), sqrtLow, sqrtHigh, liquidity)
	if amount0.IsZero() || amount1.IsZero() {
		t.Fatalf("in range: want both tokens, got %s/%s", amount0, amount1)
	}

	amount0, amount1 = AmountsForLiquidity(SqrtRatioAtTick(71500), sqrtLow, sqrtHigh, liquidity)
	if !amount0.IsZero() || amount1.IsZero() {
		t.Fatalf("above range: want token1 only, got %s/%s", amount0, amount1)
	}
}
