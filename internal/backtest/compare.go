package backtest

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"v3backtester/internal/model"
)

// NamedResult pairs a strategy name with its run result.
type NamedResult struct {
	Name   string
	Result *Result
	Err    error
}

// Compare runs each named strategy over the shared event stream, one
// goroutine per strategy. The stream is read-only; every run builds its own
// pool, book and indicator state, so runs never observe each other.
func Compare(records []model.Record, opts Options, names []string, logger *zap.Logger) []NamedResult {
	if logger == nil {
		logger = zap.NewNop()
	}

	results := make([]NamedResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()

			runOpts := opts
			runOpts.Strategy = name
			strat, err := NewStrategy(runOpts)
			if err != nil {
				results[i] = NamedResult{Name: name, Err: err}
				return
			}

			driver := NewDriver(runOpts, logger.With(zap.String("strategy", name)))
			result, err := driver.Run(records, strat)
			if err != nil {
				results[i] = NamedResult{Name: name, Err: fmt.Errorf("run %s: %w", name, err)}
				return
			}
			results[i] = NamedResult{Name: name, Result: result}
		}(i, name)
	}
	wg.Wait()
	return results
}

// AllStrategies lists every strategy name Compare can run.
func AllStrategies() []string {
	return []string{"hold", "passive_range", "atr", "alpha_vault", "fixed_width", "bollinger"}
}
