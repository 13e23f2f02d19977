package backtest

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"v3backtester/internal/indicator"
	"v3backtester/internal/model"
	"v3backtester/internal/pool"
	"v3backtester/internal/replay"
	"v3backtester/internal/strategy"
	"v3backtester/internal/uniswap"
	"v3backtester/internal/valuation"
)

// Options is the immutable per-run configuration the driver consumes.
type Options struct {
	Strategy            string
	InitialCapitalQuote uint64

	FeeTier            uint32
	TickSpacing        int
	RebalanceCostBps   uint32
	BarIntervalSeconds int64
	Decimals0          int
	Decimals1          int

	// passive_range
	PriceRangePct    float64
	TickLower        int
	TickUpper        int
	UseExplicitTicks bool

	// atr
	ATRPeriod          int
	ATRMultiplier      float64
	RebalanceIntervalS int64
	DeviationThreshold float64

	// alpha_vault
	BaseThreshold           int
	LimitThreshold          int
	AlphaRebalanceIntervalS int64

	// fixed_width
	PositionWidthTicks    int
	RebalanceThresholdBps int

	// bollinger
	SMAPeriod     int
	StdMultiplier float64
	MinWidthTicks int
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.FeeTier == 0 {
		out.FeeTier = 3000
	}
	if out.TickSpacing == 0 {
		out.TickSpacing = 60
	}
	if out.RebalanceCostBps == 0 {
		out.RebalanceCostBps = 100
	}
	if out.BarIntervalSeconds == 0 {
		out.BarIntervalSeconds = 60
	}
	return out
}

// NewStrategy resolves the configured strategy name.
func NewStrategy(opts Options) (strategy.Strategy, error) {
	switch opts.Strategy {
	case "hold", "":
		return strategy.NewHODL(), nil
	case "passive_range":
		return strategy.NewPassiveRange(opts.PriceRangePct, opts.TickLower, opts.TickUpper, opts.UseExplicitTicks), nil
	case "atr":
		return strategy.NewATRRange(opts.ATRPeriod, opts.ATRMultiplier, opts.RebalanceIntervalS, opts.DeviationThreshold), nil
	case "alpha_vault":
		return strategy.NewDualOrder(opts.BaseThreshold, opts.LimitThreshold, opts.AlphaRebalanceIntervalS), nil
	case "fixed_width":
		return strategy.NewFixedWidth(opts.PositionWidthTicks, opts.RebalanceThresholdBps), nil
	case "bollinger":
		return strategy.NewBollinger(opts.SMAPeriod, opts.StdMultiplier, opts.MinWidthTicks), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", opts.Strategy)
	}
}

// Result bundles everything one strategy run produced.
type Result struct {
	Summary       Summary
	ValueSeries   []Point
	PriceSeries   []Point
	FeesSeries    []Point
	ILSeries      []Point
	RangeSeries   []RangePoint
	Actions       []ActionRecord
	Discrepancies []replay.Discrepancy
}

// Driver wires replayer, indicators, strategy and portfolio into one
// event-serial run.
type Driver struct {
	opts   Options
	logger *zap.Logger
}

// NewDriver builds a driver; a nil logger disables logging.
func NewDriver(opts Options, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{opts: opts.withDefaults(), logger: logger}
}

// Run replays the event stream against a fresh pool and drives the
// strategy. The stream may be shared read-only across concurrent runs; all
// mutable state is private to this call.
func (d *Driver) Run(records []model.Record, strat strategy.Strategy) (*Result, error) {
	opts := d.opts
	replayer := replay.New(opts.FeeTier, opts.TickSpacing, d.logger)
	bars := indicator.NewSeries(opts.BarIntervalSeconds)
	pf := newPortfolio()
	result := &Result{}

	funded := false
	if err := replayer.Bootstrap(records); err == nil {
		pf.fund(opts.InitialCapitalQuote, replayer.Pool().SqrtPriceX96)
		funded = true
	} else {
		// A stream without a single priced event leaves the capital idle
		// in quote; every strategy degenerates to holding.
		pf.Idle1.SetUint64(opts.InitialCapitalQuote)
		pf.Initial1.SetUint64(opts.InitialCapitalQuote)
		d.logger.Warn("no priced event in stream, running as pure hold", zap.Error(err))
	}

	initialValue := float64(opts.InitialCapitalQuote)

	// Time-in-range accounting: an interval between consecutive events
	// counts as in-range when a position bracketed the tick at its start.
	var prevTS int64
	var prevInRange, havePrev bool
	var totalSecs, inRangeSecs int64

	for i := range records {
		rec := &records[i]
		inRange, err := d.step(replayer, bars, pf, strat, rec, result)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if !replayer.Pool().Initialized() {
			continue
		}

		if havePrev {
			if dt := rec.BlockTimestamp - prevTS; dt > 0 {
				totalSecs += dt
				if prevInRange {
					inRangeSecs += dt
				}
			}
		}
		prevTS, prevInRange, havePrev = rec.BlockTimestamp, inRange, true
	}

	finalValue := initialValue
	if n := len(result.ValueSeries); n > 0 {
		finalValue = result.ValueSeries[n-1].Value
	}

	il := 0.0
	if funded && replayer.Pool().Initialized() {
		p := replayer.Pool()
		fees := valuation.Float(pf.feesAccrued(p))
		lpExclFees := valuation.Float(pf.totalValue(p)) - fees
		il = valuation.ImpermanentLoss(lpExclFees, pf.Initial0, pf.Initial1, p.SqrtPriceX96)
	}

	feesEarned := 0.0
	if replayer.Pool().Initialized() {
		feesEarned = valuation.Float(pf.feesAccrued(replayer.Pool()))
	}

	timeInRangePct := 0.0
	if totalSecs > 0 {
		timeInRangePct = float64(inRangeSecs) / float64(totalSecs) * 100
	}

	result.Discrepancies = replayer.Discrepancies()
	result.Summary = Summary{
		Strategy:           strat.Name(),
		Events:             len(records),
		InitialValue:       initialValue,
		FinalValue:         finalValue,
		TotalReturn:        totalReturn(initialValue, finalValue),
		MaxDrawdown:        maxDrawdown(result.ValueSeries),
		RebalanceCount:     pf.RebalanceCount,
		GasSpentQuote:      valuation.Float(pf.GasSpent),
		FeesEarnedQuote:    feesEarned,
		ImpermanentLoss:    il,
		TimeInRangeSeconds: inRangeSecs,
		TimeInRangePct:     timeInRangePct,
		DroppedActions:     pf.DroppedActions,
		SkippedEvents:      replayer.SkippedCount(),
		DroppedFees:        replayer.DroppedFeeCount(),
	}

	d.logger.Info("run complete",
		zap.String("strategy", strat.Name()),
		zap.Int("events", len(records)),
		zap.Float64("final_value", finalValue),
		zap.Int("rebalances", pf.RebalanceCount))
	return result, nil
}

// step processes one event to completion: replay, indicator update, fee
// settlement, strategy actions, series samples. It reports whether any
// strategy position bracketed the tick afterwards. A fixed-point overflow
// anywhere in the event's math aborts the run with the event's block and
// timestamp attached.
func (d *Driver) step(replayer *replay.Replayer, bars *indicator.Series, pf *Portfolio, strat strategy.Strategy, rec *model.Record, result *Result) (inRange bool, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e, ok := r.(error)
		if !ok || !errors.Is(e, uniswap.ErrOverflow) {
			panic(r)
		}
		err = fmt.Errorf("numerical overflow at block %d (timestamp %d): %w", rec.BlockNumber, rec.BlockTimestamp, e)
	}()

	if err := replayer.Apply(rec); err != nil {
		return false, err
	}
	p := replayer.Pool()
	if !p.Initialized() {
		return false, nil
	}

	if rec.Type == model.EventSwap {
		bars.Update(rec.BlockTimestamp, p.RawPrice())
	}

	// Settle strategy fees so the snapshot and the valuation below see
	// current owed amounts.
	for _, pos := range p.Positions(Owner) {
		p.Poke(Owner, pos.TickLower, pos.TickUpper)
	}

	snap := strategy.Snapshot{
		Timestamp: rec.BlockTimestamp,
		Pool:      p,
		Positions: p.Positions(Owner),
		Idle0:     new(uint256.Int).Set(pf.Idle0),
		Idle1:     new(uint256.Int).Set(pf.Idle1),
		Bars:      bars,
	}
	for _, action := range strat.OnEvent(snap) {
		d.execute(p, pf, rec.BlockTimestamp, action, result)
	}

	d.record(p, pf, rec.BlockTimestamp, result)

	for _, pos := range p.Positions(Owner) {
		if pos.TickLower <= p.Tick && p.Tick < pos.TickUpper {
			return true, nil
		}
	}
	return false, nil
}

func (d *Driver) execute(p *pool.Pool, pf *Portfolio, ts int64, action strategy.Action, result *Result) {
	switch action.Kind {
	case strategy.Hold:
		return
	case strategy.Open:
		d.open(p, pf, ts, action, result, false)
	case strategy.Close:
		d.close(p, pf, ts, action.TickLower, action.TickUpper, result)
	case strategy.Rebalance:
		d.rebalance(p, pf, ts, action, result)
	}
}

// open mints at the requested range from idle reserves, capped by the
// action's amount limits. A sizing that lands on zero liquidity drops the
// action instead of minting an empty position.
func (d *Driver) open(p *pool.Pool, pf *Portfolio, ts int64, action strategy.Action, result *Result, fromRebalance bool) {
	budget0 := new(uint256.Int).Set(pf.Idle0)
	budget1 := new(uint256.Int).Set(pf.Idle1)
	if action.Amount0 != nil && action.Amount0.Cmp(budget0) < 0 {
		budget0.Set(action.Amount0)
	}
	if action.Amount1 != nil && action.Amount1.Cmp(budget1) < 0 {
		budget1.Set(action.Amount1)
	}

	sqrtLower := uniswap.SqrtRatioAtTick(action.TickLower)
	sqrtUpper := uniswap.SqrtRatioAtTick(action.TickUpper)
	liquidity := uniswap.LiquidityForAmounts(p.SqrtPriceX96, sqrtLower, sqrtUpper, budget0, budget1)
	if liquidity.IsZero() {
		pf.DroppedActions++
		d.logger.Warn("open would create zero liquidity",
			zap.Int("tick_lower", action.TickLower),
			zap.Int("tick_upper", action.TickUpper))
		result.Actions = append(result.Actions, ActionRecord{
			Timestamp: ts, Kind: "open", TickLower: action.TickLower, TickUpper: action.TickUpper,
			Dropped: true, Reason: "zero liquidity",
		})
		return
	}

	if err := p.Mint(Owner, action.TickLower, action.TickUpper, liquidity); err != nil {
		pf.DroppedActions++
		result.Actions = append(result.Actions, ActionRecord{
			Timestamp: ts, Kind: "open", TickLower: action.TickLower, TickUpper: action.TickUpper,
			Dropped: true, Reason: err.Error(),
		})
		return
	}

	used0 := uniswap.Amount0Delta(maxU256(p.SqrtPriceX96, sqrtLower), sqrtUpper, liquidity, true)
	if p.SqrtPriceX96.Cmp(sqrtUpper) >= 0 {
		used0.Clear()
	}
	used1 := uniswap.Amount1Delta(sqrtLower, minU256(p.SqrtPriceX96, sqrtUpper), liquidity, true)
	if p.SqrtPriceX96.Cmp(sqrtLower) <= 0 {
		used1.Clear()
	}
	saturatingSub(pf.Idle0, used0)
	saturatingSub(pf.Idle1, used1)

	kind := "open"
	if fromRebalance {
		kind = "reopen"
	}
	result.Actions = append(result.Actions, ActionRecord{
		Timestamp: ts, Kind: kind, TickLower: action.TickLower, TickUpper: action.TickUpper,
	})
}

// close burns the full position, collects principal and fees to idle, and
// remembers the fee share for attribution.
func (d *Driver) close(p *pool.Pool, pf *Portfolio, ts int64, tickLower, tickUpper int, result *Result) {
	pos := p.GetPosition(Owner, tickLower, tickUpper)
	if pos == nil {
		pf.DroppedActions++
		result.Actions = append(result.Actions, ActionRecord{
			Timestamp: ts, Kind: "close", TickLower: tickLower, TickUpper: tickUpper,
			Dropped: true, Reason: "no such position",
		})
		return
	}

	if !pos.Liquidity.IsZero() {
		amount0, amount1, err := p.Burn(Owner, tickLower, tickUpper, new(uint256.Int).Set(pos.Liquidity))
		if err != nil {
			pf.DroppedActions++
			result.Actions = append(result.Actions, ActionRecord{
				Timestamp: ts, Kind: "close", TickLower: tickLower, TickUpper: tickUpper,
				Dropped: true, Reason: err.Error(),
			})
			return
		}
		pf.Idle0.Add(pf.Idle0, amount0)
		pf.Idle1.Add(pf.Idle1, amount1)
	}

	owed0, owed1, err := p.Collect(Owner, tickLower, tickUpper)
	if err == nil {
		pf.Idle0.Add(pf.Idle0, owed0)
		pf.Idle1.Add(pf.Idle1, owed1)
		pf.CollectedFees0.Add(pf.CollectedFees0, owed0)
		pf.CollectedFees1.Add(pf.CollectedFees1, owed1)
	}

	result.Actions = append(result.Actions, ActionRecord{
		Timestamp: ts, Kind: "close", TickLower: tickLower, TickUpper: tickUpper,
	})
}

// rebalance closes everything, swaps idle to a 50/50 value split at the
// current price, charges the friction, and reopens at the new range.
func (d *Driver) rebalance(p *pool.Pool, pf *Portfolio, ts int64, action strategy.Action, result *Result) {
	for _, pos := range p.Positions(Owner) {
		d.close(p, pf, ts, pos.TickLower, pos.TickUpper, result)
	}

	total := valuation.QuoteValue(p.SqrtPriceX96, pf.Idle0, pf.Idle1)
	if total.IsZero() {
		pf.DroppedActions++
		result.Actions = append(result.Actions, ActionRecord{
			Timestamp: ts, Kind: "rebalance", TickLower: action.TickLower, TickUpper: action.TickUpper,
			Dropped: true, Reason: "no reserves",
		})
		return
	}

	cost := uniswap.MulDiv(total, uint256.NewInt(uint64(d.opts.RebalanceCostBps)), uint256.NewInt(10_000))
	saturatingSub(total, cost)
	pf.GasSpent.Add(pf.GasSpent, cost)

	// Virtual swap to the 50/50 split; the replayed pool is not touched.
	half1 := new(uint256.Int).Rsh(total, 1)
	priceX192 := new(uint256.Int).Mul(p.SqrtPriceX96, p.SqrtPriceX96)
	pf.Idle1.Set(new(uint256.Int).Sub(total, half1))
	pf.Idle0.Set(uniswap.MulDiv(half1, uniswap.Q192, priceX192))

	pf.RebalanceCount++
	result.Actions = append(result.Actions, ActionRecord{
		Timestamp: ts, Kind: "rebalance", TickLower: action.TickLower, TickUpper: action.TickUpper,
		CostQuote: valuation.Float(cost),
	})

	d.open(p, pf, ts, strategy.Action{Kind: strategy.Open, TickLower: action.TickLower, TickUpper: action.TickUpper}, result, true)
}

// record appends the per-event samples: portfolio value, display price,
// accrued fees, impermanent loss, and the positions' tick footprint.
func (d *Driver) record(p *pool.Pool, pf *Portfolio, ts int64, result *Result) {
	value := valuation.Float(pf.totalValue(p))
	fees := valuation.Float(pf.feesAccrued(p))
	display := valuation.DisplayPrice(p.RawPrice(), d.opts.Decimals0, d.opts.Decimals1)

	footprint := RangePoint{Timestamp: ts}
	for i, pos := range p.Positions(Owner) {
		if i == 0 || pos.TickLower < footprint.TickLower {
			footprint.TickLower = pos.TickLower
		}
		if i == 0 || pos.TickUpper > footprint.TickUpper {
			footprint.TickUpper = pos.TickUpper
		}
	}

	result.ValueSeries = append(result.ValueSeries, Point{Timestamp: ts, Value: value})
	result.PriceSeries = append(result.PriceSeries, Point{Timestamp: ts, Value: display})
	result.FeesSeries = append(result.FeesSeries, Point{Timestamp: ts, Value: fees})
	result.ILSeries = append(result.ILSeries, Point{
		Timestamp: ts,
		Value:     valuation.ImpermanentLoss(value-fees, pf.Initial0, pf.Initial1, p.SqrtPriceX96),
	})
	result.RangeSeries = append(result.RangeSeries, footprint)
}

func totalReturn(initial, final float64) float64 {
	if initial == 0 {
		return 0
	}
	return final/initial - 1
}

func maxU256(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func minU256(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
