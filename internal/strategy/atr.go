package strategy

import "math"

// ATRRange sizes its range from recent volatility: bounds at P +/- k*ATR.
// It repositions on a fixed cadence, and only when the price has drifted
// beyond the deviation threshold from the range center or left the range
// entirely.
type ATRRange struct {
	period             int
	multiplier         float64
	rebalanceInterval  int64
	deviationThreshold float64

	opened        bool
	lastRebalance int64
	center        float64
	lower         float64
	upper         float64
}

// NewATRRange builds the ATR strategy; zeroed parameters fall back to the
// standard defaults.
func NewATRRange(period int, multiplier float64, rebalanceIntervalSeconds int64, deviationThreshold float64) *ATRRange {
	if period <= 0 {
		period = 14
	}
	if multiplier <= 0 {
		multiplier = 2.0
	}
	if rebalanceIntervalSeconds <= 0 {
		rebalanceIntervalSeconds = 180
	}
	if deviationThreshold <= 0 {
		deviationThreshold = 0.03
	}
	return &ATRRange{
		period:             period,
		multiplier:         multiplier,
		rebalanceInterval:  rebalanceIntervalSeconds,
		deviationThreshold: deviationThreshold,
	}
}

func (a *ATRRange) Name() string {
	return "atr"
}

func (a *ATRRange) OnEvent(snap Snapshot) []Action {
	if !snap.Pool.Initialized() {
		return nil
	}
	atr, ok := snap.Bars.ATR(a.period)
	if !ok {
		// Warmup: explicitly a hold.
		return nil
	}

	price := snap.Pool.RawPrice()
	if price <= 0 {
		return nil
	}

	if !a.opened {
		lower, upper := a.targetRange(price, atr, snap.Pool.TickSpacing)
		a.opened = true
		a.lastRebalance = snap.Timestamp
		return []Action{{Kind: Open, TickLower: lower, TickUpper: upper}}
	}

	if snap.Timestamp-a.lastRebalance < a.rebalanceInterval {
		return nil
	}

	drifted := a.center > 0 && math.Abs(price-a.center)/a.center > a.deviationThreshold
	outOfRange := price <= a.lower || price >= a.upper
	if !drifted && !outOfRange {
		return nil
	}

	lower, upper := a.targetRange(price, atr, snap.Pool.TickSpacing)
	a.lastRebalance = snap.Timestamp
	return []Action{{Kind: Rebalance, TickLower: lower, TickUpper: upper}}
}

// targetRange converts P +/- k*ATR to a snapped tick range and records the
// price-space bounds for drift checks.
func (a *ATRRange) targetRange(price, atr float64, spacing int) (int, int) {
	span := atr * a.multiplier
	// Guard against a collapsed range on quiet data.
	if min := price * 0.001; span < min {
		span = min
	}
	lowerPrice := price - span
	if floor := price * 0.1; lowerPrice < floor {
		lowerPrice = floor
	}
	upperPrice := price + span

	a.center = price
	a.lower = lowerPrice
	a.upper = upperPrice

	return snapRange(tickFromPrice(lowerPrice), tickFromPrice(upperPrice), spacing)
}
