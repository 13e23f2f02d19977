package strategy

// Bollinger tracks a volatility band around the moving average and rebuilds
// its position whenever either band edge has moved by more than the minimum
// width. On choppy data it trades far more often than a fixed-width policy.
type Bollinger struct {
	smaPeriod     int
	stdMultiplier float64
	minWidthTicks int

	opened bool
	lower  int
	upper  int
}

// NewBollinger builds the band strategy.
func NewBollinger(smaPeriod int, stdMultiplier float64, minWidthTicks int) *Bollinger {
	if smaPeriod <= 0 {
		smaPeriod = 20
	}
	if stdMultiplier <= 0 {
		stdMultiplier = 2.0
	}
	if minWidthTicks <= 0 {
		minWidthTicks = 120
	}
	return &Bollinger{smaPeriod: smaPeriod, stdMultiplier: stdMultiplier, minWidthTicks: minWidthTicks}
}

func (b *Bollinger) Name() string {
	return "bollinger"
}

func (b *Bollinger) OnEvent(snap Snapshot) []Action {
	if !snap.Pool.Initialized() {
		return nil
	}
	sma, ok := snap.Bars.SMA(b.smaPeriod)
	if !ok {
		return nil
	}
	std, ok := snap.Bars.StdDev(b.smaPeriod)
	if !ok {
		return nil
	}

	lower, upper := b.targetRange(sma, std, snap.Pool.TickSpacing)

	if !b.opened {
		b.opened = true
		b.lower, b.upper = lower, upper
		return []Action{{Kind: Open, TickLower: lower, TickUpper: upper}}
	}

	if !b.bandMoved(lower, upper) {
		return nil
	}
	b.lower, b.upper = lower, upper
	return []Action{{Kind: Rebalance, TickLower: lower, TickUpper: upper}}
}

// targetRange maps [SMA - k*sigma, SMA + k*sigma] to ticks, widening to the
// minimum width when volatility collapses.
func (b *Bollinger) targetRange(sma, std float64, spacing int) (int, int) {
	span := std * b.stdMultiplier
	lowerPrice := sma - span
	if floor := sma * 0.1; lowerPrice < floor {
		lowerPrice = floor
	}
	lower := tickFromPrice(lowerPrice)
	upper := tickFromPrice(sma + span)

	if upper-lower < b.minWidthTicks {
		center := (lower + upper) / 2
		lower = center - b.minWidthTicks/2
		upper = center + b.minWidthTicks/2
	}
	return snapRange(lower, upper, spacing)
}

func (b *Bollinger) bandMoved(lower, upper int) bool {
	dLower := lower - b.lower
	if dLower < 0 {
		dLower = -dLower
	}
	dUpper := upper - b.upper
	if dUpper < 0 {
		dUpper = -dUpper
	}
	return dLower > b.minWidthTicks || dUpper > b.minWidthTicks
}
