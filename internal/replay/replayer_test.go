package replay

import (
	"testing"

	"v3backtester/internal/model"
	"v3backtester/internal/uniswap"
)

func tickPtr(t int) *int { return &t }

func swapRecord(ts int64, block uint64, amount0, amount1 int64, tick int, liquidity int64) model.Record {
	sqrt := new(model.BigInt)
	sqrt.Set(uniswap.SqrtRatioAtTick(tick).ToBig())
	return model.Record{
		Type:            model.EventSwap,
		BlockNumber:     block,
		BlockTimestamp:  ts,
		TransactionHash: "0xswap",
		Amount0:         model.NewBigInt(amount0),
		Amount1:         model.NewBigInt(amount1),
		SqrtPriceX96:    sqrt,
		Liquidity:       model.NewBigInt(liquidity),
		Tick:            tickPtr(tick),
	}
}

func mintRecord(ts int64, block uint64, owner string, lower, upper int, liquidity int64) model.Record {
	return model.Record{
		Type:            model.EventMint,
		BlockNumber:     block,
		BlockTimestamp:  ts,
		TransactionHash: "0xmint",
		Owner:           owner,
		TickLower:       tickPtr(lower),
		TickUpper:       tickPtr(upper),
		Liquidity:       model.NewBigInt(liquidity),
		Amount0:         model.NewBigInt(0),
		Amount1:         model.NewBigInt(0),
	}
}

func TestBootstrapFromFirstSwap(t *testing.T) {
	r := New(3000, 60, nil)
	records := []model.Record{
		mintRecord(100, 1, "0xaa", 69000, 72000, 1000),
		swapRecord(200, 2, 0, 0, 70000, 1000),
	}
	if err := r.Bootstrap(records); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !r.Pool().Initialized() {
		t.Fatalf("pool should be initialized from the first swap")
	}
	if r.Pool().Tick != 70000 {
		t.Fatalf("tick = %d, want 70000", r.Pool().Tick)
	}
}

func TestBootstrapWithoutSwapFails(t *testing.T) {
	r := New(3000, 60, nil)
	records := []model.Record{mintRecord(100, 1, "0xaa", 69000, 72000, 1000)}
	if err := r.Bootstrap(records); err == nil {
		t.Fatalf("bootstrap without any swap should fail")
	}
}

func TestFeeRoundTripThroughReplay(t *testing.T) {
	r := New(3000, 60, nil)
	records := []model.Record{
		swapRecord(100, 1, 0, 0, 70500, 0),
		mintRecord(110, 2, "0xaa", 70000, 71000, 1000),
		swapRecord(120, 3, 1_000_000, -1, 70400, 1000),
	}
	if err := r.Bootstrap(records); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	for i := range records {
		if err := r.Apply(&records[i]); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	owner := records[1].OwnerAddress()
	owed0, _, err := r.Pool().Collect(owner, 70000, 71000)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	// 1,000,000 in at 3000 hundredths of a bip = 3,000 fee, single LP.
	if owed0.Uint64() < 2999 || owed0.Uint64() > 3001 {
		t.Fatalf("owed0 = %s, want 3000 +/- 1", owed0)
	}
}

func TestSwapSignMismatchSkipped(t *testing.T) {
	r := New(3000, 60, nil)
	boot := swapRecord(100, 1, 0, 0, 70000, 0)
	if err := r.Bootstrap([]model.Record{boot}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := r.Apply(&boot); err != nil {
		t.Fatalf("apply boot: %v", err)
	}

	bad := swapRecord(110, 2, 100, 100, 70060, 0)
	if err := r.Apply(&bad); err != nil {
		t.Fatalf("apply bad: %v", err)
	}
	if r.SkippedCount() != 1 {
		t.Fatalf("skipped = %d, want 1", r.SkippedCount())
	}
	if len(r.Discrepancies()) != 1 || r.Discrepancies()[0].Kind != "InputShape" {
		t.Fatalf("discrepancies = %+v", r.Discrepancies())
	}
	if r.Pool().Tick != 70000 {
		t.Fatalf("skipped swap must not move the pool, tick = %d", r.Pool().Tick)
	}
}

func TestBurnExceedingPositionSkipped(t *testing.T) {
	r := New(3000, 60, nil)
	records := []model.Record{
		swapRecord(100, 1, 0, 0, 70000, 0),
		mintRecord(110, 2, "0xaa", 69000, 72000, 500),
	}
	if err := r.Bootstrap(records); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	for i := range records {
		if err := r.Apply(&records[i]); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	burn := model.Record{
		Type:           model.EventBurn,
		BlockNumber:    3,
		BlockTimestamp: 120,
		Owner:          "0xaa",
		TickLower:      tickPtr(69000),
		TickUpper:      tickPtr(72000),
		Liquidity:      model.NewBigInt(10_000),
	}
	if err := r.Apply(&burn); err != nil {
		t.Fatalf("apply burn: %v", err)
	}
	if r.SkippedCount() != 1 {
		t.Fatalf("oversized burn should be skipped, counter = %d", r.SkippedCount())
	}
}

func TestDroppedFeeOnEmptyLiquidity(t *testing.T) {
	r := New(3000, 60, nil)
	records := []model.Record{
		swapRecord(100, 1, 0, 0, 70000, 0),
		swapRecord(110, 2, 1_000_000, -1, 69940, 0),
	}
	if err := r.Bootstrap(records); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	for i := range records {
		if err := r.Apply(&records[i]); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if r.DroppedFeeCount() != 1 {
		t.Fatalf("dropped fees = %d, want 1", r.DroppedFeeCount())
	}
	if !r.Pool().FeeGrowthGlobal0X128.IsZero() {
		t.Fatalf("no growth should accrue with zero liquidity")
	}
}
