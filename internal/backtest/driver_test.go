package backtest

import (
	"encoding/json"
	"math"
	"testing"

	"v3backtester/internal/model"
	"v3backtester/internal/replay"
	"v3backtester/internal/uniswap"
)

func tickPtr(t int) *int { return &t }

func swapEvent(ts int64, block uint64, amount0, amount1 int64, tick int, liquidity int64) model.Record {
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

func mintEvent(ts int64, block uint64, owner string, lower, upper int, liquidity int64) model.Record {
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

func burnEvent(ts int64, block uint64, owner string, lower, upper int, liquidity int64) model.Record {
	return model.Record{
		Type:            model.EventBurn,
		BlockNumber:     block,
		BlockTimestamp:  ts,
		TransactionHash: "0xburn",
		Owner:           owner,
		TickLower:       tickPtr(lower),
		TickUpper:       tickPtr(upper),
		Liquidity:       model.NewBigInt(liquidity),
	}
}

func defaultOptions(strategyName string) Options {
	return Options{
		Strategy:            strategyName,
		InitialCapitalQuote: 10_000_000_000, // 10k in 6-decimal quote units
		FeeTier:             3000,
		TickSpacing:         60,
		RebalanceCostBps:    100,
		BarIntervalSeconds:  60,
		Decimals0:           8,
		Decimals1:           6,
	}
}

// Static pool: a mint, ten zero-amount swaps, a burn. No fees accrue and a
// hold portfolio keeps its value to the last float bit.
func TestStaticPoolNoSwaps(t *testing.T) {
	records := []model.Record{
		swapEvent(0, 1, 0, 0, 70000, 0),
		mintEvent(10, 2, "0xaa00000000000000000000000000000000000001", 69000, 72000, 1_000_000),
	}
	for i := 0; i < 10; i++ {
		records = append(records, swapEvent(int64(20+i*10), uint64(3+i), 0, 0, 70000, 1_000_000))
	}
	records = append(records, burnEvent(200, 20, "0xaa00000000000000000000000000000000000001", 69000, 72000, 1_000_000))

	// Replay level: the historical LP accrued nothing.
	r := replay.New(3000, 60, nil)
	if err := r.Bootstrap(records); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	for i := range records {
		if err := r.Apply(&records[i]); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	owner := records[1].OwnerAddress()
	owed0, owed1, err := r.Pool().Collect(owner, 69000, 72000)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !owed0.IsZero() || !owed1.IsZero() {
		t.Fatalf("tokensOwed = %s/%s, want 0/0", owed0, owed1)
	}

	// Driver level: with no price movement a hold portfolio is flat.
	strat, err := NewStrategy(defaultOptions("hold"))
	if err != nil {
		t.Fatalf("strategy: %v", err)
	}
	result, err := NewDriver(defaultOptions("hold"), nil).Run(records, strat)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	series := result.ValueSeries
	if len(series) == 0 {
		t.Fatalf("value series empty")
	}
	if series[0].Value != series[len(series)-1].Value {
		t.Fatalf("value drifted with no swaps: %f -> %f", series[0].Value, series[len(series)-1].Value)
	}
	if result.Summary.RebalanceCount != 0 || result.Summary.GasSpentQuote != 0 {
		t.Fatalf("hold must not trade: %+v", result.Summary)
	}
	if result.Summary.TimeInRangePct != 0 || result.Summary.TimeInRangeSeconds != 0 {
		t.Fatalf("hold has no positions, time in range should be zero: %+v", result.Summary)
	}
}

// HODL parity: with no priced event at all the run degenerates to holding
// quote, and the final value matches the initial capital exactly.
func TestHODLParityWithoutSwaps(t *testing.T) {
	records := []model.Record{
		mintEvent(10, 1, "0xaa00000000000000000000000000000000000001", 69000, 72000, 1000),
		burnEvent(20, 2, "0xaa00000000000000000000000000000000000001", 69000, 72000, 1000),
	}

	opts := defaultOptions("hold")
	strat, _ := NewStrategy(opts)
	result, err := NewDriver(opts, nil).Run(records, strat)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Summary.FinalValue != float64(opts.InitialCapitalQuote) {
		t.Fatalf("final = %f, want %d", result.Summary.FinalValue, opts.InitialCapitalQuote)
	}
	if result.Summary.TotalReturn != 0 {
		t.Fatalf("return = %f, want 0", result.Summary.TotalReturn)
	}
}

// monotoneRise is one swap per minute, each lifting the tick by 100
// (~1.005% in price), for an hour.
func monotoneRise() []model.Record {
	var records []model.Record
	for k := 0; k <= 60; k++ {
		// Token1 in, price up.
		records = append(records, swapEvent(int64(k*60), uint64(k+1), -1, 1_000_000, 70000+100*k, 1_000_000))
	}
	return records
}

// ATR cadence: on a monotone 1%-per-minute rise with a 180 s interval, the
// strategy opens once warmup completes at t=900 (ATR(14) needs 15 closed
// bars) and then repositions on every interval boundary, because each 180 s
// step moves the price ~3% while the ATR range spans only ~2%. That is
// (3600-900)/180 - 1 + 1 = 15 rebalances: floor(3600/180) = 20 minus the 5
// warmup intervals.
func TestATRRebalanceCadence(t *testing.T) {
	records := monotoneRise()

	opts := defaultOptions("atr")
	opts.ATRPeriod = 14
	opts.ATRMultiplier = 2.0
	opts.RebalanceIntervalS = 180
	opts.DeviationThreshold = 0.03

	strat, err := NewStrategy(opts)
	if err != nil {
		t.Fatalf("strategy: %v", err)
	}
	result, err := NewDriver(opts, nil).Run(records, strat)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Summary.RebalanceCount != 15 {
		t.Fatalf("rebalances = %d, want 15", result.Summary.RebalanceCount)
	}
	if result.Summary.GasSpentQuote <= 0 {
		t.Fatalf("rebalancing must cost gas, got %f", result.Summary.GasSpentQuote)
	}
}

// sineWave samples a sinusoidal tick path: amplitude in ticks, period and
// duration in seconds, one swap per step seconds.
func sineWave(amplitude float64, periodS, durationS, stepS int) []model.Record {
	var records []model.Record
	prev := 70000
	for k := 0; int64(k*stepS) <= int64(durationS); k++ {
		ts := int64(k * stepS)
		tick := 70000 + int(math.Round(amplitude*math.Sin(2*math.Pi*float64(ts)/float64(periodS))))
		amount0, amount1 := int64(-1), int64(1_000_000)
		if tick < prev {
			amount0, amount1 = 1_000_000, -1
		}
		prev = tick
		records = append(records, swapEvent(ts, uint64(k+1), amount0, amount1, tick, 1_000_000))
	}
	return records
}

// Bollinger over-trades: on a sinusoid whose swing stays inside the
// fixed-width threshold, the band strategy rebuilds repeatedly while the
// fixed-width strategy never moves, and pays strictly more friction.
func TestBollingerOverTradesFixedWidth(t *testing.T) {
	// 300-tick amplitude, 20-minute period, two hours, 30 s bars so the
	// SMA window covers half a period and actually oscillates.
	records := sineWave(300, 1200, 7200, 30)

	fixedOpts := defaultOptions("fixed_width")
	fixedOpts.PositionWidthTicks = 600
	fixedOpts.RebalanceThresholdBps = 500
	fixedStrat, _ := NewStrategy(fixedOpts)
	fixedResult, err := NewDriver(fixedOpts, nil).Run(records, fixedStrat)
	if err != nil {
		t.Fatalf("fixed width run: %v", err)
	}

	bollOpts := defaultOptions("bollinger")
	bollOpts.BarIntervalSeconds = 30
	bollOpts.SMAPeriod = 20
	bollOpts.StdMultiplier = 2.0
	bollOpts.MinWidthTicks = 120
	bollStrat, _ := NewStrategy(bollOpts)
	bollResult, err := NewDriver(bollOpts, nil).Run(records, bollStrat)
	if err != nil {
		t.Fatalf("bollinger run: %v", err)
	}

	if fixedResult.Summary.RebalanceCount != 0 {
		t.Fatalf("fixed width should sit still inside its threshold, rebalanced %d times",
			fixedResult.Summary.RebalanceCount)
	}
	if bollResult.Summary.RebalanceCount <= fixedResult.Summary.RebalanceCount {
		t.Fatalf("bollinger (%d) must rebalance strictly more than fixed width (%d)",
			bollResult.Summary.RebalanceCount, fixedResult.Summary.RebalanceCount)
	}
	if bollResult.Summary.GasSpentQuote <= fixedResult.Summary.GasSpentQuote {
		t.Fatalf("bollinger gas (%f) must exceed fixed width gas (%f)",
			bollResult.Summary.GasSpentQuote, fixedResult.Summary.GasSpentQuote)
	}
}

// Identical stream, identical config: byte-identical output.
func TestRunDeterministic(t *testing.T) {
	records := sineWave(300, 1200, 3600, 30)

	opts := defaultOptions("bollinger")
	opts.BarIntervalSeconds = 30
	opts.SMAPeriod = 20

	run := func() []byte {
		strat, err := NewStrategy(opts)
		if err != nil {
			t.Fatalf("strategy: %v", err)
		}
		result, err := NewDriver(opts, nil).Run(records, strat)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		blob, err := json.Marshal(result)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return blob
	}

	first := run()
	second := run()
	if string(first) != string(second) {
		t.Fatalf("two identical runs produced different output")
	}
}

// A strategy precondition failure (no funds to size a position) drops the
// action and keeps running.
func TestZeroLiquidityOpenDropped(t *testing.T) {
	records := []model.Record{
		swapEvent(0, 1, 0, 0, 70000, 0),
		swapEvent(60, 2, 1_000_000, -1, 70060, 0),
	}

	opts := defaultOptions("passive_range")
	opts.InitialCapitalQuote = 0
	strat, _ := NewStrategy(opts)
	result, err := NewDriver(opts, nil).Run(records, strat)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Summary.DroppedActions != 1 {
		t.Fatalf("dropped actions = %d, want 1", result.Summary.DroppedActions)
	}
	if len(result.Actions) == 0 || !result.Actions[0].Dropped {
		t.Fatalf("dropped open should be recorded: %+v", result.Actions)
	}
}

func TestPassiveRangeEarnsFees(t *testing.T) {
	// Price oscillates inside the passive range; the position earns fees
	// on every swap.
	records := []model.Record{swapEvent(0, 1, 0, 0, 70000, 0)}
	ticks := []int{70050, 69960, 70030, 69980, 70010}
	prev := 70000
	for i, tick := range ticks {
		amount0, amount1 := int64(-1), int64(1_000_000_000)
		if tick < prev {
			amount0, amount1 = 1_000_000_000, -1
		}
		prev = tick
		records = append(records, swapEvent(int64((i+1)*60), uint64(i+2), amount0, amount1, tick, 50_000_000))
	}

	opts := defaultOptions("passive_range")
	opts.PriceRangePct = 0.10
	strat, _ := NewStrategy(opts)
	result, err := NewDriver(opts, nil).Run(records, strat)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Summary.FeesEarnedQuote <= 0 {
		t.Fatalf("in-range passive position should earn fees, got %f", result.Summary.FeesEarnedQuote)
	}
	if result.Summary.RebalanceCount != 0 {
		t.Fatalf("passive strategy must not rebalance, did %d times", result.Summary.RebalanceCount)
	}
	if result.Summary.TimeInRangePct != 100 {
		t.Fatalf("price never left the passive range, time in range = %f%%", result.Summary.TimeInRangePct)
	}
}

// Time in range counts only the intervals a position actually bracketed the
// tick: two of three minutes here, the third spent above the range.
func TestTimeInRangeTracksRangeExit(t *testing.T) {
	records := []model.Record{
		swapEvent(0, 1, 0, 0, 70000, 0),
		swapEvent(60, 2, -1, 1_000_000, 70060, 1_000_000),
		swapEvent(120, 3, -1, 1_000_000, 72100, 1_000_000),
		swapEvent(180, 4, -1, 1_000_000, 72160, 1_000_000),
	}

	opts := defaultOptions("passive_range")
	opts.TickLower = 69000
	opts.TickUpper = 72000
	opts.UseExplicitTicks = true

	strat, _ := NewStrategy(opts)
	result, err := NewDriver(opts, nil).Run(records, strat)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Summary.TimeInRangeSeconds != 120 {
		t.Fatalf("time in range = %ds, want 120", result.Summary.TimeInRangeSeconds)
	}
	want := 100.0 * 120 / 180
	if math.Abs(result.Summary.TimeInRangePct-want) > 1e-9 {
		t.Fatalf("time in range = %f%%, want %f%%", result.Summary.TimeInRangePct, want)
	}
}

func TestCompareRunsAllStrategies(t *testing.T) {
	records := sineWave(300, 1200, 3600, 60)
	opts := defaultOptions("")

	results := Compare(records, opts, AllStrategies(), nil)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	for _, res := range results {
		if res.Err != nil {
			t.Fatalf("%s failed: %v", res.Name, res.Err)
		}
		if res.Result == nil || res.Result.Summary.Strategy != res.Name {
			t.Fatalf("result mislabeled for %s", res.Name)
		}
	}
}
