package uniswap

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// MinTick is the minimum tick usable on any pool.
	MinTick = -887272
	// MaxTick is the maximum tick usable on any pool.
	MaxTick = -MinTick
)

var (
	// MinSqrtRatio is the sqrt ratio at MinTick.
	MinSqrtRatio = uint256.NewInt(4295128739)
	// MaxSqrtRatio is the sqrt ratio at MaxTick.
	MaxSqrtRatio = mustFromDecimal("1461446703485210103287273052203988822378723970342")
)

// Multipliers for 1.0001^(2^k), k = 0..19, in Q128.
var sqrtRatioMultipliers = [20]*uint256.Int{
	mustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
	mustFromHex("0xfff97272373d413259a46990580e213a"),
	mustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
	mustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
	mustFromHex("0xffcb9843d60f6159c9db58835c926644"),
	mustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
	mustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
	mustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
	mustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
	mustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
	mustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
	mustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
	mustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
	mustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
	mustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
	mustFromHex("0x31be135f97d08fd981231505542fcfa6"),
	mustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
	mustFromHex("0x5d6af8dedb81196699c329225ee604"),
	mustFromHex("0x2216e584f5fa1ea926041bedfe98"),
	mustFromHex("0x48a170391f7dc42444e8fa2"),
}

var (
	magicSqrt10001 = mustFromHex("0x3627A301D71055774C85")
	magicTickLow   = mustFromHex("0x28F6481AB7F045A5AF012A19D003AAA")
	magicTickHigh  = mustFromHex("0xDB2DF09E81959A81455E260799A0632F")
)

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96 integer. This is
// the reference bit-decomposition algorithm; it is exact, deterministic and
// strictly monotonic in tick.
func SqrtRatioAtTick(tick int) *uint256.Int {
	absTick := tick
	if tick < 0 {
		absTick = -tick
	}
	if absTick > MaxTick {
		panic(fmt.Sprintf("uniswap: tick %d out of range", tick))
	}

	ratio := new(uint256.Int)
	if absTick&1 != 0 {
		ratio.Set(sqrtRatioMultipliers[0])
	} else {
		ratio.Set(Q128)
	}
	for k := 1; k < len(sqrtRatioMultipliers); k++ {
		if absTick&(1<<k) != 0 {
			ratio.Rsh(ratio.Mul(ratio, sqrtRatioMultipliers[k]), 128)
		}
	}
	if tick > 0 {
		ratio = new(uint256.Int).Div(maxUint256, ratio)
	}

	// Q128 -> Q96, rounding up.
	q32 := uint256.NewInt(1 << 32)
	rem := new(uint256.Int).Mod(ratio, q32)
	ratio.Rsh(ratio, 32)
	if !rem.IsZero() {
		ratio.Add(ratio, one)
	}
	return ratio
}

// TickAtSqrtRatio returns the largest tick T such that
// SqrtRatioAtTick(T) <= sqrtRatioX96.
func TickAtSqrtRatio(sqrtRatioX96 *uint256.Int) int {
	if sqrtRatioX96.Cmp(MinSqrtRatio) < 0 || sqrtRatioX96.Cmp(MaxSqrtRatio) >= 0 {
		panic("uniswap: sqrt ratio out of range")
	}

	sqrtRatioX128 := new(uint256.Int).Lsh(sqrtRatioX96, 32)
	msb := sqrtRatioX128.BitLen() - 1

	r := new(uint256.Int)
	if msb >= 128 {
		r.Rsh(sqrtRatioX128, uint(msb-127))
	} else {
		r.Lsh(sqrtRatioX128, uint(127-msb))
	}

	log2 := new(uint256.Int).Lsh(
		new(uint256.Int).Sub(uint256.NewInt(uint64(msb)), uint256.NewInt(128)), 64)

	for i := 0; i < 14; i++ {
		r.Rsh(r.Mul(r, r), 127)
		f := new(uint256.Int).Rsh(r, 128)
		log2.Or(log2, new(uint256.Int).Lsh(f, uint(63-i)))
		r.Rsh(r, uint(f.Uint64()))
	}

	logSqrt10001 := new(uint256.Int).Mul(log2, magicSqrt10001)

	tickLow := int(int64(new(uint256.Int).Rsh(
		new(uint256.Int).Sub(logSqrt10001, magicTickLow), 128).Uint64()))
	tickHigh := int(int64(new(uint256.Int).Rsh(
		new(uint256.Int).Add(logSqrt10001, magicTickHigh), 128).Uint64()))

	if tickLow == tickHigh {
		return tickLow
	}
	if SqrtRatioAtTick(tickHigh).Cmp(sqrtRatioX96) <= 0 {
		return tickHigh
	}
	return tickLow
}

func mustFromHex(s string) *uint256.Int {
	v, err := uint256.FromHex(s)
	if err != nil {
		panic(err)
	}
	return v
}

func mustFromDecimal(s string) *uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return v
}
