package report

import (
	"math"

	"v3backtester/internal/backtest"
)

const secondsPerYear = 365.25 * 24 * 3600

// Metrics are the derived performance numbers computed from a run's value
// series. They are pure functions of the series; nothing here feeds back
// into the engine.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	Sharpe           float64 `json:"sharpe"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	// TimeInRangePct comes from the driver's in-range clock, not the value
	// series; ForResult copies it in.
	TimeInRangePct  float64 `json:"time_in_range_pct"`
	DurationSeconds int64   `json:"duration_seconds"`
	Samples         int     `json:"samples"`
}

// ForResult derives the metrics of a finished run: the series-based numbers
// from its value series plus the driver-tracked time in range.
func ForResult(result *backtest.Result) Metrics {
	m := Compute(result.ValueSeries)
	m.TimeInRangePct = result.Summary.TimeInRangePct
	return m
}

// Compute derives metrics from a value series. Returns zeroes for series
// too short to measure; the annualized return (and with it Sharpe) stays
// zero when the span is too short for compounding to a year to be finite.
func Compute(series []backtest.Point) Metrics {
	m := Metrics{Samples: len(series)}
	if len(series) < 2 {
		return m
	}

	first, last := series[0], series[len(series)-1]
	m.DurationSeconds = last.Timestamp - first.Timestamp
	if first.Value > 0 {
		m.TotalReturn = last.Value/first.Value - 1
	}

	if m.DurationSeconds > 0 && first.Value > 0 && last.Value > 0 {
		years := float64(m.DurationSeconds) / secondsPerYear
		m.AnnualizedReturn = math.Pow(last.Value/first.Value, 1/years) - 1
		if math.IsInf(m.AnnualizedReturn, 0) || math.IsNaN(m.AnnualizedReturn) {
			m.AnnualizedReturn = 0
		}
	}

	// Log returns between consecutive samples, annualized by the mean
	// sample spacing.
	var returns []float64
	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1].Value, series[i].Value
		if prev > 0 && cur > 0 {
			returns = append(returns, math.Log(cur/prev))
		}
	}
	if len(returns) > 1 && m.DurationSeconds > 0 {
		mean := 0.0
		for _, r := range returns {
			mean += r
		}
		mean /= float64(len(returns))

		variance := 0.0
		for _, r := range returns {
			d := r - mean
			variance += d * d
		}
		variance /= float64(len(returns) - 1)

		spacing := float64(m.DurationSeconds) / float64(len(returns))
		samplesPerYear := secondsPerYear / spacing
		m.Volatility = math.Sqrt(variance) * math.Sqrt(samplesPerYear)
		if m.Volatility > 0 {
			m.Sharpe = m.AnnualizedReturn / m.Volatility
		}
	}

	peak, worst := 0.0, 0.0
	for _, p := range series {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			if dd := (peak - p.Value) / peak; dd > worst {
				worst = dd
			}
		}
	}
	m.MaxDrawdown = worst
	return m
}
